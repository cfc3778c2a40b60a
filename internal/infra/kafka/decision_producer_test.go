package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic_followup_engine/internal/app"
	"civic_followup_engine/internal/domain/decision"
)

type fakeWriter struct {
	failures int
	written  []kafka.Message
	attempts int
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("leader not available")
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestProducer(w messageWriter, attempts int) *DecisionProducer {
	logger, _ := test.NewNullLogger()
	p := newDecisionProducer(w, ProducerConfig{Topic: "complaint-decisions", MaxAttempts: attempts}, logrus.NewEntry(logger))
	p.backoff = time.Millisecond
	return p
}

func sampleEvent() app.DecisionEvent {
	return app.DecisionEvent{
		ID:          "evt-1",
		ComplaintID: "c-1",
		Action:      decision.ActionEscalate,
		Confidence:  0.91,
		Outcome:     app.OutcomeEscalated,
		Reason:      "SLA breached by 28 hours",
		DecidedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublishDecision(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w, 3)

	require.NoError(t, p.PublishDecision(context.Background(), sampleEvent()))
	require.Len(t, w.written, 1)

	msg := w.written[0]
	assert.Equal(t, []byte("c-1"), msg.Key)
	var decoded app.DecisionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, sampleEvent(), decoded)
	assert.Equal(t, "event_id", msg.Headers[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishDecision_RetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newTestProducer(w, 3)

	require.NoError(t, p.PublishDecision(context.Background(), sampleEvent()))
	assert.Equal(t, 3, w.attempts)
}

func TestPublishDecision_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newTestProducer(w, 2)

	err := p.PublishDecision(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, w.attempts)
}

func TestNewDecisionProducer_Validation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewDecisionProducer(ProducerConfig{Topic: "t"}, logrus.NewEntry(logger))
	assert.Error(t, err)
	_, err = NewDecisionProducer(ProducerConfig{Brokers: []string{"localhost:9092"}}, logrus.NewEntry(logger))
	assert.Error(t, err)
}
