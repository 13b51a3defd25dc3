package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "agentic-browser/internal/errors"
)

// Store 保存对话历史。Append 之后历史长度不超过 maxMessages。
type Store interface {
	Append(ctx context.Context, id string, maxMessages int, msgs ...Message) error
	History(ctx context.Context, id string) ([]Message, error)
	Clear(ctx context.Context, id string) error
}

// MemoryStore 在进程内保存对话。
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string][]Message
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string][]Message)}
}

// Append 实现 Store。
func (m *MemoryStore) Append(_ context.Context, id string, maxMessages int, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := append(m.convs[id], msgs...)
	if maxMessages > 0 && len(history) > maxMessages {
		history = append([]Message(nil), history[len(history)-maxMessages:]...)
	}
	m.convs[id] = history
	return nil
}

// History 实现 Store。
func (m *MemoryStore) History(_ context.Context, id string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.convs[id]...), nil
}

// Clear 实现 Store。
func (m *MemoryStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	return nil
}

// RedisStore 以 Redis list 保存对话，每条消息一个 JSON 元素。
type RedisStore struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 存储，ttl 为 0 表示不过期。
func NewRedisStore(client goredis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "agentic:chat:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

// Append 在一个事务中追加、裁剪并刷新过期时间。
func (r *RedisStore) Append(ctx context.Context, id string, maxMessages int, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化消息失败")
		}
		values = append(values, raw)
	}
	key := r.key(id)
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if maxMessages > 0 {
			pipe.LTrim(ctx, key, int64(-maxMessages), -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入对话历史失败", xerrors.WithMetadata("conversation_id", id))
	}
	return nil
}

// History 实现 Store。
func (r *RedisStore) History(ctx context.Context, id string) ([]Message, error) {
	raw, err := r.client.LRange(ctx, r.key(id), 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取对话历史失败", xerrors.WithMetadata("conversation_id", id))
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear 实现 Store。
func (r *RedisStore) Clear(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清除对话历史失败", xerrors.WithMetadata("conversation_id", id))
	}
	return nil
}
