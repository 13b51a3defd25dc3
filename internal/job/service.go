package job

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/observability/metrics"
	"agentic-browser/internal/pipeline"
	"agentic-browser/pkg/logger"
)

const defaultMaxRetries = 3

// Service 负责任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
	metrics    *metrics.Metrics
}

// NewService 构造任务服务；maxRetries<=0 时使用 3。m 可以为 nil。
func NewService(store Store, producer Producer, maxRetries int, m *metrics.Metrics) *Service {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries, metrics: m}
}

// Submit 创建任务并投递到队列。相同 JobID 的重复提交返回已有任务。
func (s *Service) Submit(ctx context.Context, in pipeline.Input) (*Job, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "serviço de tarefas não inicializado")
	}
	if strings.TrimSpace(in.Query) == "" && strings.TrimSpace(in.Message) == "" &&
		in.FormSpec == nil && in.AutomationSpec == nil && !in.OverlayMode && !in.FirstAccess && !in.UpdateContext {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "informe query, message ou uma especificação")
	}

	id := strings.TrimSpace(in.JobID)
	if id != "" {
		existing, err := s.store.Get(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	} else {
		id = uuid.NewString()
	}
	in.JobID = id

	job := &Job{
		ID:         id,
		Input:      in,
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if errors.Is(err, ErrConflict) {
			if existing, getErr := s.store.Get(ctx, id); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	s.metrics.JobStatus(string(StatusPending))

	if err := s.producer.Publish(ctx, id); err != nil {
		logger.L().Error("任务入队失败", "job_id", id, "error", err)
		wrapped := xerrors.Wrap(xerrors.CodeQueueFailure, err, "falha ao publicar tarefa")
		_ = s.store.MarkFailed(ctx, id, xerrors.CodeQueueFailure, wrapped.Error(), Outcome{})
		s.metrics.JobStatus(string(StatusFailed))
		return nil, wrapped
	}
	logger.Audit().Info("任务已提交",
		"job_id", id,
		"subject", job.Subject(),
		"user_id", in.UserID,
		"max_retries", job.MaxRetries,
	)
	return job, nil
}

// Get 返回指定任务。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "armazenamento de tarefas não inicializado")
	}
	return s.store.Get(ctx, id)
}

// List 返回满足过滤条件的任务。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "armazenamento de tarefas não inicializado")
	}
	return s.store.List(ctx, BuildListOptions(opts...))
}

// Stats 返回满足过滤条件的任务统计。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeConfiguration, "armazenamento de tarefas não inicializado")
	}
	return s.store.Stats(ctx, BuildListOptions(opts...))
}

// WaitUntilDone 轮询任务直到终态或 ctx 结束。
func (s *Service) WaitUntilDone(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放存储与队列。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return errors.Join(errs...)
}
