package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/model"
)

// Error wraps every failure of the object store. Callers treat it as
// transient and redeliver their message.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether retrying later may succeed.
func (e *Error) Retryable() bool { return true }

// Storage wraps MinIO/S3 interactions for generated artifacts.
type Storage struct {
	client *minio.Client
	bucket string
	region string
	now    func() time.Time
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket, region: cfg.S3Region, now: time.Now}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// ObjectKey builds the key under which a file named filename is stored.
// Keys are unique per call so a redelivered message never overwrites an
// artifact already linked elsewhere.
func ObjectKey(now time.Time, filename string) string {
	return fmt.Sprintf("%s/%s/%s", now.UTC().Format("2006/01"), uuid.NewString(), path.Base(filename))
}

// Store uploads data and returns the metadata of the stored file. The
// returned Fichier has no id yet; the caller persists it.
func (s *Storage) Store(ctx context.Context, data []byte, filename, mimeType, description string) (*model.Fichier, error) {
	now := s.now().UTC()
	key := ObjectKey(now, filename)
	opts := minio.PutObjectOptions{
		ContentType:  mimeType,
		UserMetadata: map[string]string{"filename": filename},
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return nil, &Error{Op: "put", Key: key, Err: err}
	}
	return &model.Fichier{
		Nom:         filename,
		TypeMime:    mimeType,
		ObjectKey:   key,
		Taille:      info.Size,
		Description: description,
		CreatedAt:   now,
	}, nil
}

// Remove deletes an object. Removing a missing object is not an error.
func (s *Storage) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &Error{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// PresignURL returns a signed GET URL for a stored file.
func (s *Storage) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", &Error{Op: "presign", Key: key, Err: err}
	}
	return u.String(), nil
}
