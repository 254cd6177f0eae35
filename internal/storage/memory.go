// Package storage contains the in-memory implementation of the persistence
// gateway. It backs the handler tests and local dry runs; the pgx repository
// is the production implementation.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// ErrNotFound is model.ErrNotFound, kept here so callers of the memory store
// can compare without importing model.
var ErrNotFound = model.ErrNotFound

// MemoryStore keeps every table in maps guarded by one RWMutex. Returned
// values are copies so callers cannot mutate internal state.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	demandes      map[int64]*model.Demande
	modifications []model.ModificationEtatDemande
	campagnes     map[int64]model.Campagne
	types         map[int64]model.TypeDemande
	profils       map[int64]model.Profil
	chartes       map[int64]*model.CharteDemandeur
	reponses      []model.Reponse
	sportifs      map[string]model.SportifHautNiveau
	utilisateurs  map[string]*model.Utilisateur
	beneficiaires map[int64]model.Beneficiaire
	amenagements  map[int64]model.Amenagement
	inscriptions  []model.Inscription
	entretiens    []model.Entretien
	avis          map[int64]model.AvisEs
	evenements    map[int64]model.Evenement
	decisions     map[int64]*model.Decision
	bilans        map[int64]*model.Bilan
	fichiers      map[int64]model.Fichier
	piecesJointes map[int64]model.PieceJointeBeneficiaire
	intents       map[string]*model.EffectIntent
	deadLetters   []model.DeadLetter
	anonymes      int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		demandes:      make(map[int64]*model.Demande),
		campagnes:     make(map[int64]model.Campagne),
		types:         make(map[int64]model.TypeDemande),
		profils:       make(map[int64]model.Profil),
		chartes:       make(map[int64]*model.CharteDemandeur),
		sportifs:      make(map[string]model.SportifHautNiveau),
		utilisateurs:  make(map[string]*model.Utilisateur),
		beneficiaires: make(map[int64]model.Beneficiaire),
		amenagements:  make(map[int64]model.Amenagement),
		avis:          make(map[int64]model.AvisEs),
		evenements:    make(map[int64]model.Evenement),
		decisions:     make(map[int64]*model.Decision),
		bilans:        make(map[int64]*model.Bilan),
		fichiers:      make(map[int64]model.Fichier),
		piecesJointes: make(map[int64]model.PieceJointeBeneficiaire),
		intents:       make(map[string]*model.EffectIntent),
	}
}

// SetClock overrides the clock used for timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *MemoryStore) nextID() int64 {
	m.seq++
	return m.seq + 1000
}

// PutDemande inserts or replaces a demande.
func (m *MemoryStore) PutDemande(d model.Demande) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	m.demandes[d.ID] = &d
}

// Demande returns a demande by id.
func (m *MemoryStore) Demande(_ context.Context, id int64) (*model.Demande, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.demandes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// UpdateDemandeEtat writes the new state and, when given, the granted profile.
func (m *MemoryStore) UpdateDemandeEtat(_ context.Context, id int64, etat model.EtatDemande, profilID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.demandes[id]
	if !ok {
		return ErrNotFound
	}
	d.Etat = etat
	if profilID != nil {
		p := *profilID
		d.ProfilAttribue = &p
	}
	d.UpdatedAt = m.now().UTC()
	return nil
}

// RestoreDemande writes etat and profilID as given, clearing the profile when
// profilID is nil.
func (m *MemoryStore) RestoreDemande(_ context.Context, id int64, etat model.EtatDemande, profilID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.demandes[id]
	if !ok {
		return ErrNotFound
	}
	d.Etat = etat
	d.ProfilAttribue = nil
	if profilID != nil {
		p := *profilID
		d.ProfilAttribue = &p
	}
	d.UpdatedAt = m.now().UTC()
	return nil
}

// AppendModification appends a transition-log row unless a row for the same
// message exists. It reports whether the row was inserted.
func (m *MemoryStore) AppendModification(_ context.Context, mod *model.ModificationEtatDemande) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.modifications {
		if existing.MessageID == mod.MessageID {
			return false, nil
		}
	}
	if mod.ID == "" {
		mod.ID = uuid.NewString()
	}
	m.modifications = append(m.modifications, *mod)
	return true, nil
}

// Modifications returns the transition log of a demande, oldest first.
func (m *MemoryStore) Modifications(_ context.Context, demandeID int64) ([]model.ModificationEtatDemande, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ModificationEtatDemande
	for _, mod := range m.modifications {
		if mod.DemandeID == demandeID {
			out = append(out, mod)
		}
	}
	return out, nil
}

// PutCampagne inserts or replaces a campaign.
func (m *MemoryStore) PutCampagne(c model.Campagne) {
	m.mu.Lock()
	m.campagnes[c.ID] = c
	m.mu.Unlock()
}

// Campagne returns a campaign by id.
func (m *MemoryStore) Campagne(_ context.Context, id int64) (*model.Campagne, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campagnes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// PutTypeDemande inserts or replaces a request type.
func (m *MemoryStore) PutTypeDemande(t model.TypeDemande) {
	m.mu.Lock()
	m.types[t.ID] = t
	m.mu.Unlock()
}

// TypeDemande returns a request type by id.
func (m *MemoryStore) TypeDemande(_ context.Context, id int64) (*model.TypeDemande, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// PutProfil inserts or replaces a profile.
func (m *MemoryStore) PutProfil(p model.Profil) {
	m.mu.Lock()
	m.profils[p.ID] = p
	m.mu.Unlock()
}

// Profil returns a profile by id.
func (m *MemoryStore) Profil(_ context.Context, id int64) (*model.Profil, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profils[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// CreateChartesDemande creates the requester charters of a demande, skipping
// the ones already created by an earlier delivery.
func (m *MemoryStore) CreateChartesDemande(_ context.Context, demandeID int64, chartes []model.Charte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[int64]bool)
	for _, c := range m.chartes {
		if c.DemandeID == demandeID {
			existing[c.CharteID] = true
		}
	}
	for _, c := range chartes {
		if existing[c.ID] {
			continue
		}
		id := m.nextID()
		m.chartes[id] = &model.CharteDemandeur{ID: id, DemandeID: demandeID, CharteID: c.ID, Libelle: c.Libelle}
	}
	return nil
}

// ChartesDemande returns the charters of a demande ordered by id.
func (m *MemoryStore) ChartesDemande(_ context.Context, demandeID int64) ([]model.CharteDemandeur, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CharteDemandeur
	for _, c := range m.chartes {
		if c.DemandeID == demandeID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CharteDemandeur returns a requester charter by id.
func (m *MemoryStore) CharteDemandeur(_ context.Context, id int64) (*model.CharteDemandeur, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chartes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ValiderCharte marks a requester charter as validated at t.
func (m *MemoryStore) ValiderCharte(id int64, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chartes[id]
	if !ok {
		return ErrNotFound
	}
	c.ValideeLe = &t
	return nil
}

// PutReponse records a questionnaire answer.
func (m *MemoryStore) PutReponse(r model.Reponse) {
	m.mu.Lock()
	m.reponses = append(m.reponses, r)
	m.mu.Unlock()
}

// Reponse returns the answer of uid to question in a campaign.
func (m *MemoryStore) Reponse(_ context.Context, uid string, campagneID int64, question string) (*model.Reponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reponses {
		if r.DemandeurUID == uid && r.CampagneID == campagneID && r.Question == question {
			cp := r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// PutSportif adds an athlete registry entry.
func (m *MemoryStore) PutSportif(s model.SportifHautNiveau) {
	m.mu.Lock()
	m.sportifs[s.NumeroPSQS] = s
	m.mu.Unlock()
}

// SportifHautNiveau looks an athlete up by registry number.
func (m *MemoryStore) SportifHautNiveau(_ context.Context, numero string) (*model.SportifHautNiveau, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sportifs[numero]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}
