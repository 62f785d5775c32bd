package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"tempo-backend/internal/events"
	"tempo-backend/internal/models"
)

const maxAttempts = 3

type invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

type publisher interface {
	Publish(ctx context.Context, userID int64, msg models.WSMessage) error
	Requeue(ctx context.Context, job events.Job) error
}

// Pool delivers queued timer events: it invalidates the user's cached
// productivity reports and pushes a live update to their websocket clients.
type Pool struct {
	redis       *redis.Client
	cache       invalidator
	publisher   publisher
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, cache invalidator, pub publisher, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		cache:       cache,
		publisher:   pub,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d timer event workers", p.workerCount)
}

func (p *Pool) Stop() {
	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 5s timeout so Stop is noticed promptly
		result, err := p.redis.BLPop(ctx, 5*time.Second, events.TimerQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Printf("Worker %d: queue read failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job events.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse timer event: %v", id, err)
			continue
		}

		if err := p.deliver(ctx, job.Event); err != nil {
			p.handleFailure(ctx, job, err)
		}
	}
}

func (p *Pool) deliver(ctx context.Context, ev models.TimerEvent) error {
	if err := p.cache.Invalidate(ctx, ev.UserID); err != nil {
		return fmt.Errorf("invalidate reports: %w", err)
	}

	msg := models.WSMessage{Type: models.WSTypeTimerUpdate, Payload: ev}
	if err := p.publisher.Publish(ctx, ev.UserID, msg); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

func (p *Pool) handleFailure(ctx context.Context, job events.Job, err error) {
	job.Attempts++

	if job.Attempts >= maxAttempts {
		log.Printf("Timer event %s for user %d dropped after %d attempts: %v",
			job.Event.Action, job.Event.UserID, job.Attempts, err)
		return
	}

	log.Printf("Timer event %s for user %d failed (attempt %d), retrying: %v",
		job.Event.Action, job.Event.UserID, job.Attempts, err)

	time.AfterFunc(backoff(job.Attempts), func() {
		if err := p.publisher.Requeue(context.Background(), job); err != nil {
			log.Printf("failed to requeue timer event for user %d: %v", job.Event.UserID, err)
		}
	})
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
