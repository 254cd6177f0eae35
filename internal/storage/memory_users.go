package storage

import (
	"context"
	"sort"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

// PutUtilisateur inserts or replaces a user.
func (m *MemoryStore) PutUtilisateur(u model.Utilisateur) {
	m.mu.Lock()
	m.utilisateurs[u.UID] = &u
	m.mu.Unlock()
}

// Utilisateur returns a user by uid.
func (m *MemoryStore) Utilisateur(_ context.Context, uid string) (*model.Utilisateur, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.utilisateurs[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp, nil
}

// UpdateEtatAvisEs stores the computed medical-opinion state of uid.
func (m *MemoryStore) UpdateEtatAvisEs(_ context.Context, uid string, etat model.EtatAvisEs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.utilisateurs[uid]
	if !ok {
		return ErrNotFound
	}
	u.EtatAvisEs = etat
	return nil
}

// UpdateEtatDecision stores the computed decision state of uid.
func (m *MemoryStore) UpdateEtatDecision(_ context.Context, uid string, etat model.EtatDecisionUtilisateur) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.utilisateurs[uid]
	if !ok {
		return ErrNotFound
	}
	u.EtatDecision = etat
	return nil
}

// AssignNumeroAnonyme returns the anonymous number of uid, assigning the next
// one when the user has none yet.
func (m *MemoryStore) AssignNumeroAnonyme(_ context.Context, uid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.utilisateurs[uid]
	if !ok {
		return 0, ErrNotFound
	}
	if u.NumeroAnonyme != nil {
		return *u.NumeroAnonyme, nil
	}
	m.anonymes++
	n := m.anonymes
	u.NumeroAnonyme = &n
	return n, nil
}

// CreateBeneficiaire materializes a beneficiary period. A period already
// created for the same demande is left untouched.
func (m *MemoryStore) CreateBeneficiaire(_ context.Context, b *model.Beneficiaire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.DemandeID != nil {
		for _, existing := range m.beneficiaires {
			if existing.DemandeID != nil && *existing.DemandeID == *b.DemandeID {
				b.ID = existing.ID
				return nil
			}
		}
	}
	b.ID = m.nextID()
	m.beneficiaires[b.ID] = *b
	if u, ok := m.utilisateurs[b.UID]; ok && !hasRole(u.Roles, model.RoleBeneficiaire) {
		u.Roles = append(u.Roles, model.RoleBeneficiaire)
	}
	return nil
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// PutBeneficiaire inserts a beneficiary period as is.
func (m *MemoryStore) PutBeneficiaire(b model.Beneficiaire) {
	m.mu.Lock()
	m.beneficiaires[b.ID] = b
	m.mu.Unlock()
}

// Beneficiaires returns the beneficiary periods of uid ordered by start date.
func (m *MemoryStore) Beneficiaires(_ context.Context, uid string) ([]model.Beneficiaire, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Beneficiaire
	for _, b := range m.beneficiaires {
		if b.UID == uid {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Debut.Equal(out[j].Debut) {
			return out[i].ID < out[j].ID
		}
		return out[i].Debut.Before(out[j].Debut)
	})
	return out, nil
}

// PutAmenagement inserts or replaces an accommodation.
func (m *MemoryStore) PutAmenagement(a model.Amenagement) {
	m.mu.Lock()
	m.amenagements[a.ID] = a
	m.mu.Unlock()
}

// Amenagements returns the accommodations of uid ordered by start date.
func (m *MemoryStore) Amenagements(_ context.Context, uid string) ([]model.Amenagement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Amenagement
	for _, a := range m.amenagements {
		if a.UID == uid {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Debut.Equal(out[j].Debut) {
			return out[i].ID < out[j].ID
		}
		return out[i].Debut.Before(out[j].Debut)
	})
	return out, nil
}

// PutInscription records an enrollment.
func (m *MemoryStore) PutInscription(i model.Inscription) {
	m.mu.Lock()
	m.inscriptions = append(m.inscriptions, i)
	m.mu.Unlock()
}

// DerniereInscription returns the most recent enrollment of uid.
func (m *MemoryStore) DerniereInscription(_ context.Context, uid string) (*model.Inscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *model.Inscription
	for i := range m.inscriptions {
		ins := m.inscriptions[i]
		if ins.UID != uid {
			continue
		}
		if last == nil || ins.Debut.After(last.Debut) {
			cp := ins
			last = &cp
		}
	}
	if last == nil {
		return nil, ErrNotFound
	}
	return last, nil
}

// PutEntretien records an interview.
func (m *MemoryStore) PutEntretien(e model.Entretien) {
	m.mu.Lock()
	m.entretiens = append(m.entretiens, e)
	m.mu.Unlock()
}

// CountEntretiens counts the interviews of uid within [debut, fin].
func (m *MemoryStore) CountEntretiens(_ context.Context, uid string, debut, fin time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entretiens {
		if e.UID == uid && !e.Date.Before(debut) && !e.Date.After(fin) {
			n++
		}
	}
	return n, nil
}

// PutAvisEs inserts or replaces a medical opinion.
func (m *MemoryStore) PutAvisEs(a model.AvisEs) {
	m.mu.Lock()
	m.avis[a.ID] = a
	m.mu.Unlock()
}

// DeleteAvisEs removes a medical opinion.
func (m *MemoryStore) DeleteAvisEs(id int64) {
	m.mu.Lock()
	delete(m.avis, id)
	m.mu.Unlock()
}

// AvisEs returns the medical opinions of uid.
func (m *MemoryStore) AvisEs(_ context.Context, uid string) ([]model.AvisEs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AvisEs
	for _, a := range m.avis {
		if a.UID == uid {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutEvenement inserts or replaces a calendar event.
func (m *MemoryStore) PutEvenement(e model.Evenement) {
	m.mu.Lock()
	m.evenements[e.ID] = e
	m.mu.Unlock()
}

// DeleteEvenement removes a calendar event.
func (m *MemoryStore) DeleteEvenement(id int64) {
	m.mu.Lock()
	delete(m.evenements, id)
	m.mu.Unlock()
}

// Evenement returns a calendar event by id.
func (m *MemoryStore) Evenement(_ context.Context, id int64) (*model.Evenement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evenements[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// BeneficiaireUIDs returns the sorted uids of the users having a beneficiary
// period overlapping the query interval and matching every criterion.
func (m *MemoryStore) BeneficiaireUIDs(_ context.Context, q model.BeneficiaireQuery) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	for _, b := range m.beneficiaires {
		if seen[b.UID] || !overlaps(b.Debut, b.Fin, q.Debut, q.Fin) {
			continue
		}
		if m.matchProfil(b.UID, q) && m.matchInscription(b.UID, q) && m.matchAmenagement(b.UID, q) {
			seen[b.UID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out, nil
}

func overlaps(debut time.Time, fin *time.Time, qDebut, qFin time.Time) bool {
	return !debut.After(qFin) && (fin == nil || !fin.Before(qDebut))
}

func (m *MemoryStore) matchProfil(uid string, q model.BeneficiaireQuery) bool {
	if len(q.Profils) == 0 && len(q.Gestionnaires) == 0 {
		return true
	}
	for _, b := range m.beneficiaires {
		if b.UID != uid || !overlaps(b.Debut, b.Fin, q.Debut, q.Fin) {
			continue
		}
		if (len(q.Profils) == 0 || containsInt(q.Profils, b.ProfilID)) &&
			(len(q.Gestionnaires) == 0 || containsString(q.Gestionnaires, b.GestionnaireUID)) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) matchInscription(uid string, q model.BeneficiaireQuery) bool {
	if len(q.Composantes) == 0 && len(q.Formations) == 0 && len(q.TypesDiplome) == 0 && len(q.Regimes) == 0 {
		return true
	}
	for _, i := range m.inscriptions {
		if i.UID != uid {
			continue
		}
		if (len(q.Composantes) == 0 || containsString(q.Composantes, i.Composante)) &&
			(len(q.Formations) == 0 || containsString(q.Formations, i.Formation)) &&
			(len(q.TypesDiplome) == 0 || containsString(q.TypesDiplome, i.TypeDiplome)) &&
			(len(q.Regimes) == 0 || containsString(q.Regimes, i.Regime)) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) matchAmenagement(uid string, q model.BeneficiaireQuery) bool {
	if len(q.CategoriesAmenagement) == 0 && len(q.TypesAmenagement) == 0 {
		return true
	}
	for _, a := range m.amenagements {
		if a.UID != uid || !a.Chevauche(q.Debut, q.Fin) {
			continue
		}
		if (len(q.CategoriesAmenagement) == 0 || containsString(q.CategoriesAmenagement, a.Categorie)) &&
			(len(q.TypesAmenagement) == 0 || containsString(q.TypesAmenagement, a.Type)) {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int64, v int64) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
