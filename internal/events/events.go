// Package events provides Redis pub/sub for evaluation lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notevault/notescript/internal/config"
)

// Channel names
const (
	EvaluationChannel = "script_evaluations"
	VaultChannel      = "vault_changes"
)

// EvaluationEvent is published after every script evaluation.
type EvaluationEvent struct {
	Type            string `json:"type"`
	EvaluationID    string `json:"evaluation_id"`
	VaultID         string `json:"vault_id"`
	Success         bool   `json:"success"`
	ErrorKind       string `json:"error_kind,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Timestamp       int64  `json:"time"`
}

// VaultEvent is published when a script mutates vault content.
type VaultEvent struct {
	Type      string `json:"type"`
	VaultID   string `json:"vault_id"`
	NoteID    string `json:"note_id,omitempty"`
	Timestamp int64  `json:"time"`
}

// EvaluationHandler handles incoming evaluation events.
type EvaluationHandler interface {
	HandleEvaluation(ctx context.Context, event EvaluationEvent) error
}

// Subscriber subscribes to Redis channels and processes events.
type Subscriber struct {
	redis    *redis.Client
	handlers []EvaluationHandler
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSubscriber creates a new event subscriber.
func NewSubscriber(redisClient *redis.Client) *Subscriber {
	return &Subscriber{
		redis:    redisClient,
		handlers: make([]EvaluationHandler, 0),
	}
}

// AddHandler adds an event handler.
func (s *Subscriber) AddHandler(handler EvaluationHandler) {
	s.handlers = append(s.handlers, handler)
}

// Start begins listening for events. Blocks until the context is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	pubsub := s.redis.Subscribe(s.ctx, EvaluationChannel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(s.ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Printf("Subscribed to %s channel", EvaluationChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case msg := <-ch:
			if msg == nil {
				continue
			}
			if err := s.processMessage(msg); err != nil {
				log.Printf("Error processing message: %v", err)
			}
		}
	}
}

// Stop stops the subscriber.
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscriber) processMessage(msg *redis.Message) error {
	var event EvaluationEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, handler := range s.handlers {
		if err := handler.HandleEvaluation(s.ctx, event); err != nil {
			log.Printf("Handler error: %v", err)
		}
	}
	return nil
}

// Publisher publishes events to Redis. A nil publisher drops all events, so
// callers do not need to special-case a deployment without Redis.
type Publisher struct {
	redis *redis.Client
}

// NewPublisher creates a new event publisher.
func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

// PublishEvaluation publishes an evaluation completion event.
func (p *Publisher) PublishEvaluation(ctx context.Context, event EvaluationEvent) error {
	if p == nil || p.redis == nil {
		return nil
	}
	event.Timestamp = time.Now().Unix()
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, EvaluationChannel, string(data)).Err()
}

// PublishVaultChange publishes a vault mutation event.
func (p *Publisher) PublishVaultChange(ctx context.Context, event VaultEvent) error {
	if p == nil || p.redis == nil {
		return nil
	}
	event.Timestamp = time.Now().Unix()
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, VaultChannel, string(data)).Err()
}

// ConnectRedis creates a Redis client from config.
func ConnectRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
