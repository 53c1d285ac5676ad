package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// tallyStore is the slice of the Redis wrapper the worker needs.
type tallyStore interface {
	IncrSessionTally(ctx context.Context, sessionID string) (int64, error)
}

// Worker consumes mark events and keeps the live per-session attendee
// tallies in Redis current.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:marks")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	runTally(ctx, messages, redisClient)
	log.Println("worker stopped")
}

// runTally drains mark events and bumps the per-session tallies. Unknown
// message types and malformed payloads are skipped. Returns when the
// messages channel closes.
func runTally(ctx context.Context, messages <-chan queue.Message, tallies tallyStore) {
	for msg := range messages {
		if msg.Type != "mark" {
			continue
		}

		var evt attendance.MarkedEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad mark event: %v", err)
			continue
		}

		n, err := tallies.IncrSessionTally(ctx, evt.SessionID)
		if err != nil {
			log.Printf("tally update failed for session %s: %v", evt.SessionID, err)
			continue
		}
		log.Printf("session %s: %d attendee(s), record %s", evt.SessionID, n, evt.RecordID)
	}
}
