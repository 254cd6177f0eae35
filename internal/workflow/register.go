package workflow

import (
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// Subscriber priorities on the state-changed message. The journal must run
// before any handler that transitions again.
const (
	PriorityJournal    = 10
	PriorityConformite = 0
)

// Register subscribes the state machine handlers on r.
func (h *Handlers) Register(r *worker.Router) {
	worker.Subscribe(r, "workflow.journal", PriorityJournal, h.EtatModifie)
	worker.Subscribe(r, "workflow.conformite", PriorityConformite, h.ControleConformite)
	worker.Subscribe(r, "workflow.receptionnee", 0, h.Receptionnee)
	worker.Subscribe(r, "workflow.conforme", 0, h.Conforme)
	worker.Subscribe(r, "workflow.non_conforme", 0, h.NonConforme)
	worker.Subscribe(r, "workflow.profil_valide", 0, h.ProfilValide)
	worker.Subscribe(r, "workflow.attente_charte", 0, h.AttenteCharte)
	worker.Subscribe(r, "workflow.attente_accompagnement", 0, h.AttenteAccompagnement)
	worker.Subscribe(r, "workflow.charte_validee", 0, h.CharteValidee)
	worker.Subscribe(r, "workflow.refusee", 0, h.Refusee)
	worker.Subscribe(r, "workflow.validee", 0, h.Validee)
}
