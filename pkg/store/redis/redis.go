package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"campuspay/pkg/store"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// RedisStore is a remote table store on Redis. Every "<collection>:<account>"
// pair is one hash whose fields are record ids and whose values are the
// JSON-encoded records.
type RedisStore struct {
	client rueidis.Client
	name   string
	config Config
	now    func() time.Time
}

// Config holds connection settings for the Redis store.
type Config struct {
	Name string
	// Addr is the Redis server address for single node mode.
	// Examples: "localhost:6379", "redis.example.com:6379"
	Addr string
	// ClusterAddrs enables cluster mode when set.
	ClusterAddrs []string
	Username     string
	Password     string
	// DB is the Redis database number. Cluster mode only supports DB 0.
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// SentinelAddrs enables sentinel mode when set.
	SentinelAddrs     []string
	SentinelMasterSet string
}

// DefaultConfig returns settings for a local single-node Redis.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "campuspay:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects to Redis and verifies the connection with PING.
func New(config Config) (*RedisStore, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	opts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
	}
	if len(config.SentinelAddrs) > 0 {
		opts.Sentinel = rueidis.SentinelOption{MasterSet: config.SentinelMasterSet}
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &RedisStore{
		client: client,
		name:   config.Name,
		config: config,
		now:    time.Now,
	}, nil
}

// Name returns the backend name.
func (r *RedisStore) Name() string {
	return r.name
}

// Read returns the matching records ordered by creation time.
func (r *RedisStore) Read(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	key, err := store.RemoteKey(r.config.KeyPrefix, collection, filter.AccountID)
	if err != nil {
		return nil, err
	}

	if filter.ID != "" {
		resp := r.client.Do(ctx, r.client.B().Hget().Key(key).Field(filter.ID).Build())
		if err := resp.Error(); err != nil {
			if rueidis.IsRedisNil(err) {
				return []store.Record{}, nil
			}
			return nil, fmt.Errorf("redis hget: %w", err)
		}
		raw, err := resp.ToString()
		if err != nil {
			return nil, fmt.Errorf("redis hget: failed to read response: %w", err)
		}
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		return []store.Record{record}, nil
	}

	resp := r.client.Do(ctx, r.client.B().Hgetall().Key(key).Build())
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	fields, err := resp.AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: failed to read response: %w", err)
	}

	records := make([]store.Record, 0, len(fields))
	for _, raw := range fields {
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Write stores record under its id, assigning a UUID when it has none.
func (r *RedisStore) Write(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
	if err := record.Validate(); err != nil {
		return store.Record{}, err
	}
	key, err := store.RemoteKey(r.config.KeyPrefix, collection, record.AccountID)
	if err != nil {
		return store.Record{}, err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return store.Record{}, fmt.Errorf("redis hset: failed to marshal: %w", err)
	}

	cmd := r.client.B().Hset().Key(key).FieldValue().FieldValue(record.ID, string(data)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return store.Record{}, fmt.Errorf("redis hset: %w", err)
	}
	return record, nil
}

// Remove deletes one field when the filter names an id, else the whole hash.
func (r *RedisStore) Remove(ctx context.Context, collection store.Collection, filter store.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	key, err := store.RemoteKey(r.config.KeyPrefix, collection, filter.AccountID)
	if err != nil {
		return err
	}

	var cmd rueidis.Completed
	if filter.ID != "" {
		cmd = r.client.B().Hdel().Key(key).Field(filter.ID).Build()
	} else {
		cmd = r.client.B().Del().Key(key).Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// FlushDB removes every key in the selected database. Tests only.
func (r *RedisStore) FlushDB(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Flushdb().Build()).Error(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	r.client.Close()
	return nil
}

func decodeRecord(raw string) (store.Record, error) {
	var record store.Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return store.Record{}, fmt.Errorf("redis: failed to unmarshal record: %w", err)
	}
	return record, nil
}
