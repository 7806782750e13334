package questionbank

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

// BankEventKind names what happened to a bank
type BankEventKind string

const (
	EventBankCreated      BankEventKind = "bank_created"
	EventBankUpdated      BankEventKind = "bank_updated"
	EventQuestionsChanged BankEventKind = "questions_changed"
	EventReviewProcessed  BankEventKind = "review_processed"
)

// BankEvent tells listeners that a bank should be refreshed
type BankEvent struct {
	Kind          BankEventKind `json:"kind"`
	BankID        string        `json:"bankId"`
	QuestionCount int           `json:"questionCount"`
}

// Notifier receives bank events. It is injected into the components that
// mutate banks; nothing in this package broadcasts globally.
type Notifier interface {
	Notify(ctx context.Context, e BankEvent)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, e BankEvent)

func (f NotifierFunc) Notify(ctx context.Context, e BankEvent) {
	f(ctx, e)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, BankEvent) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func bankEvent(kind BankEventKind, b *QuestionBank) BankEvent {
	return BankEvent{Kind: kind, BankID: b.ID, QuestionCount: b.QuestionCount}
}

// RedisNotifier publishes bank events as JSON on a Redis channel so other
// processes (the UI's live view, caches) can refresh.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier connects to Redis at addr
func NewRedisNotifier(addr, password string, db int, channel string) *RedisNotifier {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisNotifier{client: rdb, channel: channel}
}

// Ping checks the connection
func (n *RedisNotifier) Ping(ctx context.Context) error {
	if err := n.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Notify publishes e. Publish failures are only logged.
func (n *RedisNotifier) Notify(ctx context.Context, e BankEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("Failed to marshal bank event: %v", err)
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		log.Printf("Failed to publish bank event %s for bank %s: %v", e.Kind, e.BankID, err)
		return
	}
	VerboseLog("Published %s for bank %s", e.Kind, e.BankID)
}

// Subscribe delivers events from the channel until ctx is cancelled
func (n *RedisNotifier) Subscribe(ctx context.Context, handle func(BankEvent)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e BankEvent
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Printf("Ignoring malformed bank event: %v", err)
				continue
			}
			handle(e)
		}
	}
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
