package retry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
)

func TestRedeliverSchedulesNextAttempt(t *testing.T) {
	bus := &queue.Recorder{}
	s := NewScheduler(bus, logging.Discard(), nil)

	out, err := s.Redeliver(context.Background(), queue.EditionDecision{DecisionID: 3}, Policy{Delay: time.Hour, MaxAttempts: 5}, errors.New("render"))
	require.NoError(t, err)
	assert.Equal(t, Redelivered, out)

	sent := bus.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, time.Hour, sent[0].Delay)
	assert.Equal(t, queue.EditionDecision{DecisionID: 3, Attempt: 1}, sent[0].Message)
}

func TestRedeliverDeadLettersWhenExhausted(t *testing.T) {
	bus := &queue.Recorder{}
	s := NewScheduler(bus, logging.Discard(), nil)

	out, err := s.Redeliver(context.Background(), queue.GenerationBilan{BilanID: 9, Attempt: 2}, Policy{Delay: time.Minute, MaxAttempts: 3}, errors.New("s3 down"))
	require.NoError(t, err)
	assert.Equal(t, DeadLettered, out)

	sent := bus.Sent()
	require.Len(t, sent, 1)
	dl, ok := sent[0].Message.(queue.DeadLetter)
	require.True(t, ok)
	assert.Equal(t, queue.GenerationBilanTask, dl.OriginalType)
	assert.Equal(t, 3, dl.Attempts)
	assert.Equal(t, "s3 down", dl.Reason)

	var original queue.GenerationBilan
	require.NoError(t, json.Unmarshal(dl.Payload, &original))
	assert.Equal(t, int64(9), original.BilanID)
}

func TestUnboundedPolicyNeverDeadLetters(t *testing.T) {
	bus := &queue.Recorder{}
	s := NewScheduler(bus, logging.Discard(), nil)
	out, err := s.Redeliver(context.Background(), queue.GenerationBilan{BilanID: 1, Attempt: 1000}, Policy{Delay: time.Minute}, nil)
	require.NoError(t, err)
	assert.Equal(t, Redelivered, out)
}

type deadLetters struct{ saved []*model.DeadLetter }

func (d *deadLetters) SaveDeadLetter(_ context.Context, dl *model.DeadLetter) error {
	d.saved = append(d.saved, dl)
	return nil
}

func TestDeadLetterHandlerPersists(t *testing.T) {
	store := &deadLetters{}
	h := NewDeadLetterHandler(store, logging.Discard())
	require.NoError(t, h.Handle(context.Background(), queue.DeadLetter{OriginalType: "x", Attempts: 4, Reason: "r"}))
	require.Len(t, store.saved, 1)
	assert.Equal(t, "x", store.saved[0].TaskType)
	assert.NotEmpty(t, store.saved[0].ID)
}
