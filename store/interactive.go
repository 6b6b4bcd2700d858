package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/flowgate/workflow"
)

// ErrNoSuspendedRun is returned when a chat has no paused run to resume.
var ErrNoSuspendedRun = errors.New("no suspended run for chat")

// SuspendStore keeps serialized interactive state in Redis so a paused run
// survives process restarts and can resume on any instance.
type SuspendStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewSuspendStore connects to Redis and verifies the connection.
func NewSuspendStore(addr, password string, db int, ttl time.Duration) (*SuspendStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SuspendStore{
		client:    client,
		keyPrefix: "flowgate:suspend:",
		ttl:       ttl,
	}, nil
}

// NewSuspendStoreWithClient wraps an existing client, for tests.
func NewSuspendStoreWithClient(client *redis.Client, ttl time.Duration) *SuspendStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SuspendStore{client: client, keyPrefix: "flowgate:suspend:", ttl: ttl}
}

// Close releases the Redis connection.
func (s *SuspendStore) Close() error {
	return s.client.Close()
}

func (s *SuspendStore) key(chatID string) string {
	return s.keyPrefix + chatID
}

// Save stores the chat's suspended state, replacing any previous one.
func (s *SuspendStore) Save(ctx context.Context, chatID string, st *workflow.InteractiveState) error {
	data, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("marshal interactive state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(chatID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save interactive state: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the chat's suspended state. A
// resume must consume so double-submits cannot replay the same pause.
func (s *SuspendStore) Consume(ctx context.Context, chatID string) (*workflow.InteractiveState, error) {
	data, err := s.client.GetDel(ctx, s.key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSuspendedRun
	}
	if err != nil {
		return nil, fmt.Errorf("load interactive state: %w", err)
	}
	st, err := workflow.UnmarshalInteractiveState(data)
	if err != nil {
		return nil, fmt.Errorf("decode interactive state: %w", err)
	}
	return st, nil
}

// Peek reads the suspended state without consuming it.
func (s *SuspendStore) Peek(ctx context.Context, chatID string) (*workflow.InteractiveState, error) {
	data, err := s.client.Get(ctx, s.key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSuspendedRun
	}
	if err != nil {
		return nil, fmt.Errorf("load interactive state: %w", err)
	}
	return workflow.UnmarshalInteractiveState(data)
}
