package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// MemoryFiles is an in-memory object store with the same contract as the
// S3 gateway.
type MemoryFiles struct {
	mu      sync.Mutex
	seq     int
	objects map[string][]byte
	// Err, when set, is returned by Store.
	Err error
}

// NewMemoryFiles constructs an empty MemoryFiles.
func NewMemoryFiles() *MemoryFiles {
	return &MemoryFiles{objects: make(map[string][]byte)}
}

// Store keeps a copy of data under a fresh key.
func (f *MemoryFiles) Store(_ context.Context, data []byte, filename, mimeType, description string) (*model.Fichier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.seq++
	key := fmt.Sprintf("mem/%d/%s", f.seq, filename)
	f.objects[key] = append([]byte(nil), data...)
	return &model.Fichier{
		Nom:         filename,
		TypeMime:    mimeType,
		ObjectKey:   key,
		Taille:      int64(len(data)),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Remove deletes key. Missing keys are ignored.
func (f *MemoryFiles) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	delete(f.objects, key)
	f.mu.Unlock()
	return nil
}

// Object returns the content stored under key.
func (f *MemoryFiles) Object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}

// Keys returns the stored keys in order.
func (f *MemoryFiles) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
