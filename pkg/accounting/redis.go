package accounting

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the Redis keys.
const DefaultKeyPrefix = "token_usage"

// RedisSink keeps totals in Redis so several runner processes share them.
// Totals are INCRBY counters; per-model usage is a hash per model plus a
// set of model names.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisSink{client: client, prefix: prefix}
}

// DialRedis connects to url, which may be a redis:// URL or host:port.
func DialRedis(ctx context.Context, url, prefix string) (*RedisSink, error) {
	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis not reachable at %s: %w", opts.Addr, err)
	}
	return NewRedisSink(client, prefix), nil
}

// Close closes the underlying client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// Record adds one call in a single MULTI/EXEC.
func (s *RedisSink) Record(ctx context.Context, u Usage) error {
	model := modelKey(u.Model)
	modelHash := s.key("model", model)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.IncrBy(ctx, s.key("calls"), 1)
		p.IncrBy(ctx, s.key("input"), u.InputTokens)
		p.IncrBy(ctx, s.key("output"), u.OutputTokens)
		p.SAdd(ctx, s.key("models"), model)
		p.HIncrBy(ctx, modelHash, "calls", 1)
		p.HIncrBy(ctx, modelHash, "input", u.InputTokens)
		p.HIncrBy(ctx, modelHash, "output", u.OutputTokens)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record token usage: %w", err)
	}
	return nil
}

// Summary reads the per-model hashes back and prices them.
func (s *RedisSink) Summary(ctx context.Context) (*Summary, error) {
	names, err := s.client.SMembers(ctx, s.key("models")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read models: %w", err)
	}
	models := make(map[string]ModelUsage, len(names))
	for _, name := range names {
		fields, err := s.client.HGetAll(ctx, s.key("model", name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read usage for %s: %w", name, err)
		}
		models[name] = ModelUsage{
			Calls:        parseCount(fields["calls"]),
			InputTokens:  parseCount(fields["input"]),
			OutputTokens: parseCount(fields["output"]),
		}
	}
	return newSummary(models), nil
}

func parseCount(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
