package storage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// PutDecision inserts or replaces a decision.
func (m *MemoryStore) PutDecision(d model.Decision) {
	m.mu.Lock()
	if d.Etat == "" {
		d.Etat = model.EtatDecisionAttente
	}
	m.decisions[d.ID] = &d
	m.mu.Unlock()
}

// Decision returns a decision by id.
func (m *MemoryStore) Decision(_ context.Context, id int64) (*model.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decisions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// Decisions returns the decisions of uid ordered by year.
func (m *MemoryStore) Decisions(_ context.Context, uid string) ([]model.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Decision
	for _, d := range m.decisions {
		if d.UID == uid {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Annee < out[j].Annee })
	return out, nil
}

// CompleteDecision flips the decision to EDITE and completes its intent in
// one step. It reports false when the decision was already edited.
func (m *MemoryStore) CompleteDecision(_ context.Context, id int64, intentID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[id]
	if !ok {
		return false, ErrNotFound
	}
	if d.Etat == model.EtatDecisionEditee {
		return false, nil
	}
	d.Etat = model.EtatDecisionEditee
	d.UpdatedAt = at
	m.completeIntentLocked(intentID)
	return true, nil
}

// AttachDecisionArchive stores the archived file, links it to the
// beneficiary and to the decision.
func (m *MemoryStore) AttachDecisionArchive(_ context.Context, id int64, f *model.Fichier, pj *model.PieceJointeBeneficiaire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[id]
	if !ok {
		return ErrNotFound
	}
	m.insertFichierLocked(f)
	pj.ID = m.nextID()
	pj.FichierID = f.ID
	if pj.CreatedAt.IsZero() {
		pj.CreatedAt = m.now().UTC()
	}
	m.piecesJointes[pj.ID] = *pj
	fid, pid := f.ID, pj.ID
	d.FichierID = &fid
	d.PieceJointeID = &pid
	return nil
}

// PiecesJointes returns the attachments of uid.
func (m *MemoryStore) PiecesJointes(_ context.Context, uid string) ([]model.PieceJointeBeneficiaire, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.PieceJointeBeneficiaire
	for _, pj := range m.piecesJointes {
		if pj.UID == uid {
			out = append(out, pj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DecisionStatut returns the staff-facing status of a decision.
func (m *MemoryStore) DecisionStatut(_ context.Context, id int64) (model.EtatDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decisions[id]
	if !ok {
		return "", ErrNotFound
	}
	if d.Etat == model.EtatDecisionEditee {
		return d.Etat, nil
	}
	for _, in := range m.intents {
		if in.Kind == model.IntentEditionDecision && in.Ref == id &&
			(in.Status == model.IntentPending || in.Status == model.IntentFailed) {
			return model.EtatDecisionEnvoi, nil
		}
	}
	return d.Etat, nil
}

// PutBilan inserts or replaces a report job.
func (m *MemoryStore) PutBilan(b model.Bilan) {
	m.mu.Lock()
	m.bilans[b.ID] = &b
	m.mu.Unlock()
}

// CreateBilan inserts a report job to be generated.
func (m *MemoryStore) CreateBilan(_ context.Context, b *model.Bilan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextID()
	cp := *b
	m.bilans[b.ID] = &cp
	return nil
}

// Bilan returns a report job by id.
func (m *MemoryStore) Bilan(_ context.Context, id int64) (*model.Bilan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bilans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// CompleteBilan attaches the generated file and sets the generation date,
// unless the report was already generated, in which case it reports false
// and stores nothing.
func (m *MemoryStore) CompleteBilan(_ context.Context, id int64, f *model.Fichier, at time.Time, intentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bilans[id]
	if !ok {
		return false, ErrNotFound
	}
	if b.DateGeneration != nil {
		return false, nil
	}
	m.insertFichierLocked(f)
	fid := f.ID
	b.FichierID = &fid
	b.DateGeneration = &at
	m.completeIntentLocked(intentID)
	return true, nil
}

// Fichier returns a stored file metadata by id.
func (m *MemoryStore) Fichier(_ context.Context, id int64) (*model.Fichier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fichiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

// Fichiers returns every stored file metadata.
func (m *MemoryStore) Fichiers() []model.Fichier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Fichier, 0, len(m.fichiers))
	for _, f := range m.fichiers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) insertFichierLocked(f *model.Fichier) {
	f.ID = m.nextID()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = m.now().UTC()
	}
	m.fichiers[f.ID] = *f
}

// BeginIntent records that the external effect kind is about to run for ref.
// An open intent for the same effect is reused and its attempts incremented.
func (m *MemoryStore) BeginIntent(_ context.Context, kind model.IntentKind, ref int64) (*model.EffectIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	for _, in := range m.intents {
		if in.Kind == kind && in.Ref == ref && (in.Status == model.IntentPending || in.Status == model.IntentFailed) {
			in.Status = model.IntentPending
			in.Attempts++
			in.UpdatedAt = now
			cp := *in
			return &cp, nil
		}
	}
	in := &model.EffectIntent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Ref:       ref,
		Status:    model.IntentPending,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.intents[in.ID] = in
	cp := *in
	return &cp, nil
}

// FailIntent marks an intent as waiting for redelivery.
func (m *MemoryStore) FailIntent(_ context.Context, id, reason string) error {
	return m.setIntent(id, func(in *model.EffectIntent) {
		in.Status = model.IntentFailed
		in.LastError = reason
	})
}

// SetIntentObjectKey records the object written by the guarded effect.
func (m *MemoryStore) SetIntentObjectKey(_ context.Context, id, key string) error {
	return m.setIntent(id, func(in *model.EffectIntent) { in.ObjectKey = key })
}

// CompleteIntent marks an intent completed.
func (m *MemoryStore) CompleteIntent(_ context.Context, id string) error {
	return m.setIntent(id, func(in *model.EffectIntent) { in.Status = model.IntentCompleted })
}

// AbandonIntent marks an intent abandoned with a reason.
func (m *MemoryStore) AbandonIntent(_ context.Context, id, reason string) error {
	return m.setIntent(id, func(in *model.EffectIntent) {
		in.Status = model.IntentAbandoned
		in.LastError = reason
	})
}

func (m *MemoryStore) setIntent(id string, fn func(*model.EffectIntent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[id]
	if !ok {
		return ErrNotFound
	}
	fn(in)
	in.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) completeIntentLocked(id string) {
	if in, ok := m.intents[id]; ok {
		in.Status = model.IntentCompleted
		in.UpdatedAt = m.now().UTC()
	}
}

// Intent returns an intent by id.
func (m *MemoryStore) Intent(_ context.Context, id string) (*model.EffectIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *in
	return &cp, nil
}

// Intents returns the intents guarding kind for ref.
func (m *MemoryStore) Intents(_ context.Context, kind model.IntentKind, ref int64) ([]model.EffectIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.EffectIntent
	for _, in := range m.intents {
		if in.Kind == kind && in.Ref == ref {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// StaleIntents returns the pending intents not updated since before.
func (m *MemoryStore) StaleIntents(_ context.Context, before time.Time) ([]model.EffectIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.EffectIntent
	for _, in := range m.intents {
		if in.Status == model.IntentPending && in.UpdatedAt.Before(before) {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// SaveDeadLetter appends a dead letter.
func (m *MemoryStore) SaveDeadLetter(_ context.Context, dl *model.DeadLetter) error {
	m.mu.Lock()
	m.deadLetters = append(m.deadLetters, *dl)
	m.mu.Unlock()
	return nil
}

// DeadLetters returns the most recent dead letters first.
func (m *MemoryStore) DeadLetters(_ context.Context, limit int) ([]model.DeadLetter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.DeadLetter, 0, len(m.deadLetters))
	for i := len(m.deadLetters) - 1; i >= 0; i-- {
		out = append(out, m.deadLetters[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
