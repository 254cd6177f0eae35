package workflow

import (
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
)

// FollowUp returns the message published after a demande entered etat, if
// any, carrying s. States without a dedicated follow-up (EN_COURS,
// ATTENTE_COMMISSION) return false.
func FollowUp(etat model.EtatDemande, s queue.DemandeSuivi) (queue.Message, bool) {
	switch etat {
	case model.EtatReceptionnee:
		return queue.DemandeReceptionnee{DemandeSuivi: s}, true
	case model.EtatConforme:
		return queue.DemandeConforme{DemandeSuivi: s}, true
	case model.EtatNonConforme:
		return queue.DemandeNonConforme{DemandeSuivi: s}, true
	case model.EtatProfilValide:
		return queue.DemandeProfilValide{DemandeSuivi: s}, true
	case model.EtatAttenteCharte:
		return queue.DemandeAttenteCharte{DemandeSuivi: s}, true
	case model.EtatAttenteAccompagnement:
		return queue.DemandeAttenteAccompagnement{DemandeSuivi: s}, true
	case model.EtatRefusee:
		return queue.DemandeRefusee{DemandeSuivi: s}, true
	case model.EtatValidee:
		return queue.DemandeValidee{DemandeSuivi: s}, true
	default:
		return nil, false
	}
}
