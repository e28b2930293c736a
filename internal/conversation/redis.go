package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/relay/internal/types"
)

// RedisStore keeps each conversation as a capped list plus a metadata hash,
// both expiring after the configured TTL of inactivity.
type RedisStore struct {
	rdb  *redis.Client
	opts Options
	now  func() time.Time
}

func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{rdb: rdb, opts: opts.withDefaults(), now: time.Now}
}

func messagesKey(key Key) string { return "relay:conv:" + key.String() + ":messages" }
func metaKey(key Key) string     { return "relay:conv:" + key.String() + ":meta" }

func (s *RedisStore) Load(ctx context.Context, key Key) (*types.ConversationContext, error) {
	var (
		list *redis.StringSliceCmd
		meta *redis.MapStringStringCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		list = pipe.LRange(ctx, messagesKey(key), 0, -1)
		meta = pipe.HGetAll(ctx, metaKey(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", key, err)
	}

	conv := &types.ConversationContext{}
	for _, raw := range list.Val() {
		var m types.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode conversation message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}

	fields := meta.Val()
	conv.TotalTokens, _ = strconv.Atoi(fields["total_tokens"])
	conv.CreatedAt = parseMillis(fields["created_at"])
	conv.UpdatedAt = parseMillis(fields["updated_at"])
	return conv, nil
}

func (s *RedisStore) Append(ctx context.Context, key Key, tokens int, msgs ...types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	encoded := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode conversation message: %w", err)
		}
		encoded = append(encoded, string(data))
	}

	now := s.now().UnixMilli()
	lk, mk := messagesKey(key), metaKey(key)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, lk, encoded...)
		pipe.LTrim(ctx, lk, int64(-s.opts.MaxMessages), -1)
		pipe.HSetNX(ctx, mk, "created_at", now)
		pipe.HSet(ctx, mk, "updated_at", now)
		pipe.HIncrBy(ctx, mk, "total_tokens", int64(tokens))
		pipe.Expire(ctx, lk, s.opts.TTL)
		pipe.Expire(ctx, mk, s.opts.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append conversation %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, key Key) error {
	if err := s.rdb.Del(ctx, messagesKey(key), metaKey(key)).Err(); err != nil {
		return fmt.Errorf("clear conversation %s: %w", key, err)
	}
	return nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
