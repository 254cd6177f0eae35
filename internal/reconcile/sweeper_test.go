package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/reconcile"
	"github.com/dharsanguruparan/amenagements/internal/storage"
)

func TestSweepRepairsStaleIntents(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	files := storage.NewMemoryFiles()
	bus := &queue.Recorder{}
	t0 := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return t0 })

	store.PutDecision(model.Decision{ID: 1, UID: "ada", Annee: 2024})
	store.PutBilan(model.Bilan{ID: 2})
	generated := t0
	store.PutBilan(model.Bilan{ID: 3, DateGeneration: &generated})

	crashed, err := store.BeginIntent(ctx, model.IntentEditionDecision, 1)
	require.NoError(t, err)
	orphan, err := files.Store(ctx, []byte("x"), "bilan_activite.csv", "text/csv", "")
	require.NoError(t, err)
	unfinished, err := store.BeginIntent(ctx, model.IntentGenerationBilan, 2)
	require.NoError(t, err)
	require.NoError(t, store.SetIntentObjectKey(ctx, unfinished.ID, orphan.ObjectKey))
	late, err := store.BeginIntent(ctx, model.IntentGenerationBilan, 3)
	require.NoError(t, err)
	failed, err := store.BeginIntent(ctx, model.IntentEditionDecision, 99)
	require.NoError(t, err)
	require.NoError(t, store.FailIntent(ctx, failed.ID, "render"))

	s := reconcile.New(store, files, bus, 30*time.Minute, logging.Discard())
	s.SetClock(func() time.Time { return t0.Add(time.Hour) })
	rep, err := s.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, reconcile.Report{Examined: 3, Redispatched: 2, Abandoned: 3, Removed: 1}, rep)
	assert.ElementsMatch(t, []queue.Dispatched{
		{Message: queue.EditionDecision{DecisionID: 1, Attempt: 1}},
		{Message: queue.GenerationBilan{BilanID: 2, Attempt: 1}},
	}, bus.Sent())
	assert.Empty(t, files.Keys())

	for _, id := range []string{crashed.ID, unfinished.ID, late.ID} {
		in, err := store.Intent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.IntentAbandoned, in.Status)
	}
	in, err := store.Intent(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IntentFailed, in.Status)
}

func TestSweepIgnoresFreshIntents(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	bus := &queue.Recorder{}
	t0 := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return t0 })
	store.PutDecision(model.Decision{ID: 1})
	_, err := store.BeginIntent(ctx, model.IntentEditionDecision, 1)
	require.NoError(t, err)

	s := reconcile.New(store, storage.NewMemoryFiles(), bus, 30*time.Minute, logging.Discard())
	s.SetClock(func() time.Time { return t0.Add(10 * time.Minute) })
	rep, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Examined)
	assert.Empty(t, bus.Sent())
}
