package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	want := Message{Type: "mark", Body: []byte(`{"record_id":"R|1","session_id":"S1"}`)}
	require.NoError(t, q.Publish(ctx, want))

	select {
	case got := <-messages:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-messages:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestPublishBlockedByCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Publish(ctx, Message{Type: "mark"}))

	// queue full; a canceled context must unblock the publisher
	cancel()
	err := q.Publish(ctx, Message{Type: "mark"})
	assert.ErrorIs(t, err, context.Canceled)
}
