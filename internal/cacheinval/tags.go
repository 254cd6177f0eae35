// Package cacheinval keeps cached read views consistent with writes: every
// entity-changed event is turned into the closed set of cache tags it can
// affect, and those tags are invalidated in one call.
package cacheinval

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/queue"
)

// Collection tags.
const (
	TagEvenements   = "evenements"
	TagUtilisateurs = "utilisateurs"
)

// TagEvenement is the tag of a single calendar event.
func TagEvenement(id int64) string { return "evenement:" + strconv.FormatInt(id, 10) }

// TagEvenementsDate is the tag of the events of one day.
func TagEvenementsDate(d time.Time) string { return TagEvenements + ":" + d.Format("2006-01-02") }

// TagUtilisateur is the tag of a single user.
func TagUtilisateur(uid string) string { return "utilisateur:" + uid }

// TagRole is the tag of the users having role.
func TagRole(role string) string { return TagUtilisateurs + ":role:" + role }

// TagDemande is the tag of a single demande.
func TagDemande(id int64) string { return "demande:" + strconv.FormatInt(id, 10) }

// TagRessource is the tag of one entity of a plural resource name, so
// "demandes"/"42" gives "demande:42".
func TagRessource(ressource, id string) string {
	return strings.TrimSuffix(ressource, "s") + ":" + id
}

// EvenementTags returns the tags affected by a mutation of event id. current
// is the date after the mutation (nil when the event is undated or gone),
// previous the date before it when known. The result is sorted and free of
// duplicates.
func EvenementTags(id int64, op queue.Operation, current, previous *time.Time) []string {
	tags := []string{TagEvenement(id)}
	if current != nil {
		tags = append(tags, TagEvenementsDate(*current))
	}
	moved := !sameDay(current, previous)
	if previous != nil && (op == queue.OperationDelete || moved) {
		tags = append(tags, TagEvenementsDate(*previous))
	}
	if op == queue.OperationCreate || current == nil || moved {
		tags = append(tags, TagEvenements)
	}
	return Normalize(tags)
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

// Normalize sorts tags and drops duplicates and empty entries.
func Normalize(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
