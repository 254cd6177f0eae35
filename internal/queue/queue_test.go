package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/model"
)

func TestQueueFor(t *testing.T) {
	assert.Equal(t, QueueCritical, QueueFor(EtatDemandeModifieTask))
	assert.Equal(t, QueueDefault, QueueFor(EditionDecisionTask))
	assert.Equal(t, QueueLow, QueueFor(GenerationBilanTask))
	assert.Equal(t, QueueDefault, QueueFor("unknown"))
}

func TestNewTaskCarriesFlattenedFollowUpPayload(t *testing.T) {
	task, err := NewTask(DemandeConforme{DemandeSuivi{DemandeID: 42, Acteur: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, DemandeConformeTask, task.Type())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.EqualValues(t, 42, decoded["demande_id"])
	assert.Equal(t, "u1", decoded["acteur"])
}

func TestNextAttemptKeepsIdentity(t *testing.T) {
	msg := EditionDecision{DecisionID: 7}
	next := msg.NextAttempt().(EditionDecision)
	assert.Equal(t, int64(7), next.DecisionID)
	assert.Equal(t, 1, next.Attempts())
	assert.Equal(t, 0, msg.Attempts())
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	require.NoError(t, rec.Dispatch(ctx, UtilisateurModifie{UID: "a"}))
	require.NoError(t, rec.Dispatch(ctx, GenerationBilan{BilanID: 1}, WithDelay(5*time.Minute)))
	require.NoError(t, rec.Dispatch(ctx, EtatDemandeModifie{DemandeID: 1, Etat: model.EtatConforme}))

	assert.Len(t, rec.Sent(), 3)
	bilans := rec.OfType(GenerationBilanTask)
	require.Len(t, bilans, 1)
	assert.Equal(t, 5*time.Minute, bilans[0].Delay)
}
