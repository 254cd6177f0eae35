package cacheinval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dharsanguruparan/amenagements/internal/queue"
)

func day(d int) *time.Time {
	t := time.Date(2024, 5, d, 14, 30, 0, 0, time.UTC)
	return &t
}

func TestEvenementTags(t *testing.T) {
	cases := []struct {
		name     string
		op       queue.Operation
		current  *time.Time
		previous *time.Time
		want     []string
	}{
		{"create dated", queue.OperationCreate, day(1), nil,
			[]string{"evenement:7", "evenements", "evenements:2024-05-01"}},
		{"update same day", queue.OperationUpdate, day(1), day(1),
			[]string{"evenement:7", "evenements:2024-05-01"}},
		{"move", queue.OperationUpdate, day(2), day(1),
			[]string{"evenement:7", "evenements", "evenements:2024-05-01", "evenements:2024-05-02"}},
		{"delete", queue.OperationDelete, nil, day(1),
			[]string{"evenement:7", "evenements", "evenements:2024-05-01"}},
		{"undated update", queue.OperationUpdate, nil, nil,
			[]string{"evenement:7", "evenements"}},
		{"undated to dated", queue.OperationUpdate, day(3), nil,
			[]string{"evenement:7", "evenements", "evenements:2024-05-03"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvenementTags(7, tc.op, tc.current, tc.previous))
		})
	}
}

func TestTagGrammar(t *testing.T) {
	assert.Equal(t, "utilisateur:ada", TagUtilisateur("ada"))
	assert.Equal(t, "utilisateurs:role:ROLE_GESTIONNAIRE", TagRole("ROLE_GESTIONNAIRE"))
	assert.Equal(t, "demande:42", TagDemande(42))
	assert.Equal(t, TagDemande(42), TagRessource("demandes", "42"))
	assert.Equal(t, []string{"a", "b"}, Normalize([]string{"b", "", "a", "b"}))
}
