package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("broker down") }

func TestSendLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	assert.NotPanics(t, func() {
		Send(context.Background(), failingPublisher{}, logger, Event{Type: EventTokenTransfer, AccountID: uuid.New()})
	})
	assert.Contains(t, buf.String(), "notification not delivered")
	assert.Contains(t, buf.String(), "broker down")
}

func TestSendStampsTimestamp(t *testing.T) {
	rec := &Recorder{}
	Send(context.Background(), rec, logrus.New(), Event{Type: EventAccountBanned, AccountID: uuid.New()})

	events := rec.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestSendToNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Send(context.Background(), nil, logrus.New(), Event{Type: EventSessionFlagged})
	})
}

func TestMultiPublishesToAll(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	err := Multi{a, failingPublisher{}, b}.Publish(context.Background(), Event{Type: EventTokenRequest})

	assert.EqualError(t, err, "broker down")
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestObservedCountsFailures(t *testing.T) {
	failures := 0
	count := func() { failures++ }

	require.NoError(t, Observed(&Recorder{}, count).Publish(context.Background(), Event{Type: EventTokenTransfer}))
	assert.Error(t, Observed(failingPublisher{}, count).Publish(context.Background(), Event{Type: EventTokenTransfer}))
	assert.Equal(t, 1, failures)
}

func TestSubject(t *testing.T) {
	id := uuid.MustParse("7f1c1f4e-9a55-4a1b-8f2d-0c6a7b1a2e3d")

	assert.Equal(t,
		"economy.notifications.7f1c1f4e-9a55-4a1b-8f2d-0c6a7b1a2e3d.token_transfer",
		Subject("economy.notifications", Event{Type: EventTokenTransfer, AccountID: id}))
	assert.Equal(t,
		"economy.notifications.operators.session_flagged",
		Subject("economy.notifications", Event{Type: EventSessionFlagged}))
}
