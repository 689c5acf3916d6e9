package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/notifications"
)

func TestDropConnectionAfterShutdown(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Shutdown()

	done := make(chan struct{})
	go func() {
		m.dropConnection(&Connection{ID: "viewer-1"})
		close(done)
	}()

	// A viewer disconnecting after shutdown must not hang on the hub
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect blocked after shutdown")
	}
}

func TestDropConnectionForgetsViewer(t *testing.T) {
	m := NewManager(zap.NewNop())

	conn := &Connection{
		ID:   "viewer-1",
		Send: make(chan notifications.ReportChangeEvent, 1),
	}
	m.hub.register <- conn
	m.mu.Lock()
	m.connections[conn.ID] = conn
	m.mu.Unlock()
	require.Equal(t, 1, m.ConnectionCount())

	m.dropConnection(conn)
	assert.Equal(t, 0, m.ConnectionCount())

	// The hub closed the send channel on unregister
	select {
	case _, open := <-conn.Send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestRunForwardsPublisherEvents(t *testing.T) {
	m := NewManager(zap.NewNop())
	publisher := notifications.NewMemoryPublisher()
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan error, 1)
	go func() {
		stopped <- m.Run(ctx, publisher)
	}()

	conn := &Connection{
		ID:   "viewer-1",
		Send: make(chan notifications.ReportChangeEvent, 256),
	}
	m.hub.register <- conn

	event := notifications.ReportChangeEvent{
		Type:               notifications.EventReportDecided,
		ReportID:           uuid.New(),
		VerificationStatus: "approved",
		OccurredAt:         time.Now(),
	}

	// Re-publish until the subscription inside Run is live and the hub
	// delivers
	var received notifications.ReportChangeEvent
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
deliver:
	for {
		require.NoError(t, publisher.Publish(context.Background(), event))
		select {
		case received = <-conn.Send:
			break deliver
		case <-deadline.C:
			t.Fatal("hub did not deliver the published event")
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, event.ReportID, received.ReportID)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
