package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// ProjectChangesChannel is the Redis channel write notifications are published on
const ProjectChangesChannel = "callsheet:projects:changed"

// ChangeFeed signals that the projects collection may have changed.
// Signals are coalesced; receivers re-query to get the full snapshot.
// The returned channel is closed when the feed breaks or ctx ends.
type ChangeFeed interface {
	Name() string
	Changes(ctx context.Context) (<-chan struct{}, error)
}

// signal does a non-blocking send; a pending signal already covers this change
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// ChangeStreamFeed watches the collection with a Mongo change stream.
// Requires a replica set or sharded cluster.
type ChangeStreamFeed struct {
	collection *mongo.Collection
}

// NewChangeStreamFeed creates a change stream feed
func NewChangeStreamFeed(collection *mongo.Collection) *ChangeStreamFeed {
	return &ChangeStreamFeed{collection: collection}
}

func (f *ChangeStreamFeed) Name() string { return "change-stream" }

// Changes implements ChangeFeed
func (f *ChangeStreamFeed) Changes(ctx context.Context) (<-chan struct{}, error) {
	stream, err := f.collection.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			signal(ch)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			log.Printf("⚠️  [STORE] Change stream closed: %v", err)
		}
	}()
	return ch, nil
}

// RedisChangeFeed relays write notifications over Redis pub/sub.
// It is both the publisher used by writers and the feed used by subscribers.
type RedisChangeFeed struct {
	client  *redis.Client
	channel string
}

// NewRedisChangeFeed creates a feed on the default projects channel
func NewRedisChangeFeed(client *redis.Client) *RedisChangeFeed {
	return &RedisChangeFeed{client: client, channel: ProjectChangesChannel}
}

func (f *RedisChangeFeed) Name() string { return "redis-pubsub" }

// PublishChange implements ChangePublisher
func (f *RedisChangeFeed) PublishChange(ctx context.Context, projectID string) error {
	return f.client.Publish(ctx, f.channel, projectID).Err()
}

// Changes implements ChangeFeed
func (f *RedisChangeFeed) Changes(ctx context.Context) (<-chan struct{}, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", f.channel, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(ch)
			}
		}
	}()
	return ch, nil
}

// PollingFeed signals on a fixed interval. Last resort when nothing pushes changes.
type PollingFeed struct {
	interval time.Duration
}

// NewPollingFeed creates a polling feed
func NewPollingFeed(interval time.Duration) *PollingFeed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollingFeed{interval: interval}
}

func (f *PollingFeed) Name() string { return "polling" }

// Changes implements ChangeFeed
func (f *PollingFeed) Changes(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				signal(ch)
			}
		}
	}()
	return ch, nil
}
