package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"examination/internal/config"
	"examination/internal/exam"
	"examination/internal/queue"
	"examination/internal/store"
)

// Worker runs the timeout reconciliation sweep and consumes attempt
// completion events published by the API.
func main() {
	_ = godotenv.Load()
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
		q = queue.NewRedisQueue(redisClient.Client, "examination:attempts")
	}

	repo := exam.NewRepository(db.Client)
	svc := exam.NewService(repo)

	// Sweep loop: any attempt left in_progress past its duration or exam
	// window becomes time_out, graded from whatever was recorded. The sweep
	// is idempotent so overlapping runs are harmless.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := svc.ReconcileTimeouts(ctx)
				if err != nil {
					log.Printf("timeout sweep failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("timeout sweep transitioned %d attempt(s)", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeAttemptCompleted && msg.Type != queue.TypeAttemptTimedOut {
			continue
		}
		var evt struct {
			AttemptID string `json:"attempt_id"`
			ResultID  string `json:"result_id"`
			Grade     string `json:"grade"`
		}
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("malformed %s message: %v", msg.Type, err)
			continue
		}
		log.Printf("attempt %s graded %s (result %s)", evt.AttemptID, evt.Grade, evt.ResultID)
	}

	log.Println("worker stopped")
}
