package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "agentic-browser/internal/errors"
)

// Config 描述 Redis 连接参数。
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Open 创建客户端并校验连通性。
func Open(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return client, nil
}

// GetJSON 读取 key 并解码到 v，key 不存在时返回 false。
func GetJSON(ctx context.Context, client goredis.Cmdable, key string, v any) (bool, error) {
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 失败", xerrors.WithMetadata("key", key))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 Redis 数据失败", xerrors.WithMetadata("key", key))
	}
	return true, nil
}

// SetJSON 将 v 编码后写入 key，ttl 为 0 表示不过期。
func SetJSON(ctx context.Context, client goredis.Cmdable, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化失败")
	}
	if err := client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 失败", xerrors.WithMetadata("key", key))
	}
	return nil
}

// Delete 删除 key。
func Delete(ctx context.Context, client goredis.Cmdable, key string) error {
	if err := client.Del(ctx, key).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除 Redis 数据失败", xerrors.WithMetadata("key", key))
	}
	return nil
}
