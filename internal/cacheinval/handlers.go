package cacheinval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/metrics"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// Store is what the handlers re-read before computing tags.
type Store interface {
	Evenement(ctx context.Context, id int64) (*model.Evenement, error)
	Utilisateur(ctx context.Context, uid string) (*model.Utilisateur, error)
}

// TagInvalidator drops tagged cache entries.
type TagInvalidator interface {
	InvalidateTags(ctx context.Context, tags []string) (int, error)
}

// RefInvalidator purges a public ref from the HTTP cache.
type RefInvalidator interface {
	Invalidate(ctx context.Context, ref string) error
}

// Handlers consume the entity-changed events.
type Handlers struct {
	store   Store
	tags    TagInvalidator
	refs    RefInvalidator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHandlers wires the handlers.
func NewHandlers(store Store, tags TagInvalidator, refs RefInvalidator, logger *slog.Logger, m *metrics.Metrics) *Handlers {
	return &Handlers{store: store, tags: tags, refs: refs, logger: logger, metrics: m}
}

// Register subscribes the handlers on r.
func (h *Handlers) Register(r *worker.Router) {
	worker.Subscribe(r, "cache.evenement", 0, h.Evenement)
	worker.Subscribe(r, "cache.utilisateur", 0, h.Utilisateur)
	worker.Subscribe(r, "cache.role", 0, h.Role)
	worker.Subscribe(r, "cache.ressource", 0, h.Ressource)
}

func (h *Handlers) invalidate(ctx context.Context, tags []string) error {
	tags = Normalize(tags)
	n, err := h.tags.InvalidateTags(ctx, tags)
	if err != nil {
		return fmt.Errorf("invalidate %v: %w", tags, err)
	}
	h.metrics.TagsInvalidated(len(tags))
	h.logger.DebugContext(ctx, "cache tags invalidated", slog.Any("tags", tags), slog.Int("entries", n))
	return nil
}

// Evenement re-reads the event to learn its current date.
func (h *Handlers) Evenement(ctx context.Context, msg queue.EvenementModifie) error {
	op := msg.Operation
	var date *time.Time
	e, err := h.store.Evenement(ctx, msg.EvenementID)
	switch {
	case err == nil:
		date = e.Date
	case errors.Is(err, model.ErrNotFound):
		op = queue.OperationDelete
	default:
		return fmt.Errorf("load evenement %d: %w", msg.EvenementID, err)
	}
	return h.invalidate(ctx, EvenementTags(msg.EvenementID, op, date, msg.DatePrecedente))
}

// Utilisateur invalidates the user, the user listings and the listings of
// every role the user currently has.
func (h *Handlers) Utilisateur(ctx context.Context, msg queue.UtilisateurModifie) error {
	tags := []string{TagUtilisateur(msg.UID), TagUtilisateurs}
	u, err := h.store.Utilisateur(ctx, msg.UID)
	switch {
	case err == nil:
		for _, r := range u.Roles {
			tags = append(tags, TagRole(r))
		}
	case !errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("load utilisateur %s: %w", msg.UID, err)
	}
	return h.invalidate(ctx, tags)
}

// Role invalidates the listing of one role.
func (h *Handlers) Role(ctx context.Context, msg queue.RoleModifie) error {
	return h.invalidate(ctx, []string{TagRole(msg.Role)})
}

// Ressource invalidates the entity tag and purges its public ref.
func (h *Handlers) Ressource(ctx context.Context, msg queue.RessourceModifiee) error {
	if err := h.invalidate(ctx, []string{TagRessource(msg.Ressource, msg.ID)}); err != nil {
		return err
	}
	ref := "/" + msg.Ressource + "/" + msg.ID
	if err := h.refs.Invalidate(ctx, ref); err != nil {
		return fmt.Errorf("purge %s: %w", ref, err)
	}
	return nil
}
