package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/queue"
)

type fakeTally struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeTally() *fakeTally {
	return &fakeTally{counts: make(map[string]int64)}
}

func (f *fakeTally) IncrSessionTally(_ context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[sessionID]++
	return f.counts[sessionID], nil
}

func (f *fakeTally) snapshot() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}

func markMessage(t *testing.T, recordID, sessionID string) queue.Message {
	t.Helper()
	body, err := json.Marshal(attendance.MarkedEvent{RecordID: recordID, SessionID: sessionID})
	require.NoError(t, err)
	return queue.Message{Type: "mark", Body: body}
}

func TestRunTally(t *testing.T) {
	q := queue.NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, markMessage(t, "R1", "S1")))
	require.NoError(t, q.Publish(ctx, markMessage(t, "R2", "S1")))
	require.NoError(t, q.Publish(ctx, markMessage(t, "R3", "S2")))
	// neither of these may touch the tallies
	require.NoError(t, q.Publish(ctx, queue.Message{Type: "noise", Body: []byte("x")}))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: "mark", Body: []byte("{not json")}))

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	tally := newFakeTally()
	done := make(chan struct{})
	go func() {
		runTally(ctx, messages, tally)
		close(done)
	}()

	// tally ends up equal to the number of accepted marks per session
	assert.Eventually(t, func() bool {
		got := tally.snapshot()
		return got["S1"] == 2 && got["S2"] == 1 && len(got) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runTally did not stop after cancel")
	}
}
