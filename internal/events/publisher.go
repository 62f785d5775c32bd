package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tempo-backend/internal/models"
)

// TimerQueue is the redis list timer events wait on until a worker delivers them.
const TimerQueue = "queue:timer-events"

// Job is a queued timer event plus its delivery attempts.
type Job struct {
	Event    models.TimerEvent `json:"event"`
	Attempts int               `json:"attempts"`
}

// UserChannel is the pub/sub channel the websocket hub listens on for a user.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user_updates:%d", userID)
}

type Publisher struct {
	redis *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{redis: client}
}

// Enqueue hands a committed timer transition to the worker pool.
func (p *Publisher) Enqueue(ctx context.Context, ev models.TimerEvent) error {
	return p.Requeue(ctx, Job{Event: ev})
}

func (p *Publisher) Requeue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode timer event: %w", err)
	}
	return p.redis.LPush(ctx, TimerQueue, data).Err()
}

// Publish sends msg to every websocket connection of the user.
func (p *Publisher) Publish(ctx context.Context, userID int64, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode ws message: %w", err)
	}
	return p.redis.Publish(ctx, UserChannel(userID), data).Err()
}
