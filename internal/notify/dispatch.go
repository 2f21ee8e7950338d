package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Reminder is a fire-once notification request. Rendering, channels and
// delivery belong to the consumer; the scheduler's contract ends here.
type Reminder struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"device_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewReminder builds a request with a fresh id.
func NewReminder(deviceID, title, body string) Reminder {
	return Reminder{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Title:    title,
		Body:     body,
		IssuedAt: time.Now().UTC(),
	}
}

// Dispatcher hands reminder requests to whatever shows them.
type Dispatcher interface {
	Publish(ctx context.Context, r Reminder) error
	Consume(ctx context.Context) (<-chan Reminder, error)
}

// InMemory is a channel-backed dispatcher for single-process setups and tests.
type InMemory struct {
	ch chan Reminder
}

// NewInMemory creates a bounded in-memory dispatcher.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Reminder, size)}
}

// Publish enqueues a reminder.
func (d *InMemory) Publish(ctx context.Context, r Reminder) error {
	select {
	case d.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for the notification shell.
func (d *InMemory) Consume(ctx context.Context) (<-chan Reminder, error) {
	out := make(chan Reminder)
	go func() {
		defer close(out)
		for {
			select {
			case r := <-d.ch:
				out <- r
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisDispatcher pushes reminders onto a Redis list, for installs where the
// notification shell runs as a separate process.
type RedisDispatcher struct {
	client *redis.Client
	key    string
}

// NewRedisDispatcher builds a dispatcher using LPUSH/BRPOP semantics.
func NewRedisDispatcher(client *redis.Client, key string) *RedisDispatcher {
	if key == "" {
		key = "lockin:reminders"
	}
	return &RedisDispatcher{client: client, key: key}
}

// Publish enqueues a reminder as JSON.
func (d *RedisDispatcher) Publish(ctx context.Context, r Reminder) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return d.client.LPush(ctx, d.key, raw).Err()
}

// Consume streams reminders using BRPOP.
func (d *RedisDispatcher) Consume(ctx context.Context) (<-chan Reminder, error) {
	out := make(chan Reminder)
	go func() {
		defer close(out)
		for {
			res, err := d.client.BRPop(ctx, 5*time.Second, d.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var r Reminder
				if err := json.Unmarshal([]byte(res[1]), &r); err == nil {
					out <- r
				}
			}
		}
	}()
	return out, nil
}

// NewRedisClient connects to redis with short timeouts; the agent treats a
// slow redis the same as an absent one.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}
