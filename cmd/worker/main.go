package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendance/internal/config"
	"attendance/internal/leaderboard"
	"attendance/internal/ledger"
	"attendance/internal/queue"
	"attendance/internal/schedule"
	"attendance/internal/store"
)

// Worker consumes ledger-write messages and drops the cached leaderboard
// for the affected course so the next read recomputes it.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, store.Key("ledger-writes"))
	}

	sched := schedule.NewRepository(db.Client)
	records := ledger.NewRepository(db.Client)
	boards := leaderboard.NewService(sched, records, redisClient.Client, cfg.LeaderboardCacheTTL, cfg.ShowTop)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeLedgerWrite {
			continue
		}

		var evt queue.LedgerWrite
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("malformed ledger write message: %v", err)
			continue
		}

		if err := boards.Invalidate(ctx, evt.CourseCode); err != nil {
			log.Printf("invalidate leaderboard %s: %v", evt.CourseCode, err)
			continue
		}
		log.Printf("leaderboard cache invalidated for %s (student %s, lecture %d)",
			evt.CourseCode, evt.StudentID, evt.LectureID)
	}

	log.Println("worker stopped")
}
