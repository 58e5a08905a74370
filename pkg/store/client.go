package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dyluth/tangle/pkg/tpg"
	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for runs and models.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new store client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: tangle instance identifier (must not be empty)
//
// Returns an error if instanceName is not a valid instance name.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if err := ValidateInstanceName(instanceName); err != nil {
		return nil, err
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client for the instance.
func NewClientFromURL(url, instanceName string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewClient(opts, instanceName)
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the namespace this client reads and writes.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// SaveRun writes a run record (full HSET replacement).
// Validates the run before writing.
func (c *Client) SaveRun(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	hash, err := RunToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	key := RunKey(c.instanceName, r.ID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write run to Redis: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
// Returns (nil, redis.Nil) if the run doesn't exist. Use IsNotFound() to check.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	key := RunKey(c.instanceName, runID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	run, err := HashToRun(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize run: %w", err)
	}

	return run, nil
}

// ScanRuns returns the IDs of every run whose ID starts with prefix, sorted.
// Uses SCAN so large instances do not block the server.
func (c *Client) ScanRuns(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := RunKeyPrefix(c.instanceName)
	iter := c.rdb.Scan(ctx, 0, keyPrefix+prefix+"*", 0).Iterator()

	var ids []string
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// ListRuns fetches every run of the instance, oldest first.
// Malformed records are returned in skipped rather than failing the listing.
func (c *Client) ListRuns(ctx context.Context) (runs []*Run, skipped []string, err error) {
	ids, err := c.ScanRuns(ctx, "")
	if err != nil {
		return nil, nil, err
	}

	for _, id := range ids {
		run, getErr := c.GetRun(ctx, id)
		if getErr != nil {
			skipped = append(skipped, id)
			continue
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAtMs < runs[j].StartedAtMs
	})
	return runs, skipped, nil
}

// SaveModel encodes a model and stores it under the run ID.
func (c *Client) SaveModel(ctx context.Context, runID string, m *tpg.Model) error {
	data, err := tpg.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	if err := c.rdb.Set(ctx, ModelKey(c.instanceName, runID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write model to Redis: %w", err)
	}
	return nil
}

// LoadModel fetches and decodes the model stored for a run.
// Returns (nil, redis.Nil) if no model has been saved.
func (c *Client) LoadModel(ctx context.Context, runID string) (*tpg.Model, error) {
	data, err := c.rdb.Get(ctx, ModelKey(c.instanceName, runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read model from Redis: %w", err)
	}

	m, err := tpg.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model for run %s: %w", runID, err)
	}
	return m, nil
}

// PublishGeneration publishes a generation event for live watchers.
func (c *Client) PublishGeneration(ctx context.Context, ev *GenerationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal generation event: %w", err)
	}

	channel := GenerationEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish generation event: %w", err)
	}
	return nil
}

// GenerationSubscription represents an active Pub/Sub subscription to generation events.
// Caller must call Close() when done to clean up resources.
type GenerationSubscription struct {
	events <-chan *GenerationEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of generation events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *GenerationSubscription) Events() <-chan *GenerationEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *GenerationSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *GenerationSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeGenerationEvents subscribes to generation events for this instance.
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once, so a slow subscriber may miss events.
func (c *Client) SubscribeGenerationEvents(ctx context.Context) (*GenerationSubscription, error) {
	channel := GenerationEventsChannel(c.instanceName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so no event published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to generation events: %w", err)
	}

	eventsChan := make(chan *GenerationEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev GenerationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal generation event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &GenerationSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
