package job

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/pkg/logger"
)

const defaultRedisKey = "agentic:jobs"

// RedisQueue 使用 Redis list 实现任务队列：LPUSH 投递，BRPOP 消费。
type RedisQueue struct {
	client *goredis.Client
	key    string
	wait   time.Duration
}

// NewRedisQueue 基于已连接的客户端创建队列。
func NewRedisQueue(client *goredis.Client, key string) (*RedisQueue, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "cliente Redis não configurado")
	}
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second}, nil
}

// Publish 实现 Producer。
func (q *RedisQueue) Publish(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "falha ao publicar tarefa no Redis")
	}
	return nil
}

// Consume 实现 Consumer；处理失败的任务会被放回队尾。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	log := logger.Named("job.redis")
	errCh := make(chan error, workerCount)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				values, err := q.client.BRPop(ctx, q.wait, q.key).Result()
				if errors.Is(err, goredis.Nil) {
					continue
				}
				if err != nil {
					if ctx.Err() != nil || errors.Is(err, goredis.ErrClosed) {
						return
					}
					errCh <- xerrors.Wrap(xerrors.CodeQueueFailure, err, "falha ao consumir tarefa do Redis")
					return
				}
				if len(values) != 2 {
					continue
				}
				if err := handler(ctx, values[1]); err != nil {
					log.Warn("任务处理失败，重新入队", "job_id", values[1], "error", err)
					_ = q.client.RPush(ctx, q.key, values[1]).Err()
				}
			}
		}()
	}

	var first error
	select {
	case <-ctx.Done():
	case first = <-errCh:
	}
	wg.Wait()
	if first != nil {
		return first
	}
	return ctx.Err()
}

// Close 不关闭客户端，客户端与会话存储共享，由创建方释放。
func (q *RedisQueue) Close() error { return nil }

var _ Queue = (*RedisQueue)(nil)
