package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/observability/alerting"
	"agentic-browser/internal/observability/metrics"
	"agentic-browser/internal/pipeline"
	"agentic-browser/pkg/logger"
)

// Runner 执行一次流水线；pipeline.Controller 满足该接口。
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) *pipeline.State
}

// Processor 从队列消费任务并交给流水线执行。
type Processor struct {
	runner      Runner
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	alerter     alerting.Dispatcher
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// WithProcessorMetrics 配置任务状态指标。
func WithProcessorMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		log:         logger.Named("job.processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 阻塞运行消费循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.runner == nil || p.store == nil {
		return xerrors.New(xerrors.CodeConfiguration, "processador de tarefas não inicializado")
	}
	p.log.Info("任务处理器启动", "workers", p.workerCount)
	err := p.consumer.Consume(ctx, p.workerCount, p.handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrExhausted) {
			p.log.Debug("跳过任务", "job_id", jobID, "reason", err.Error())
			return nil
		}
		p.log.Error("领取任务失败", "job_id", jobID, "error", err)
		p.emitAlert(ctx, &Job{ID: jobID}, err, "claim")
		return err
	}
	p.metrics.JobStatus(string(StatusRunning))

	in := job.Input
	in.JobID = job.ID
	s := p.runner.Run(ctx, in)
	outcome := Outcome{
		Capability:    string(s.SelectedCapability),
		WarningsCount: len(s.Warnings),
		EvidencePath:  s.Evidence.Path,
		Response:      s.Response,
	}

	if s.Error == "" {
		if err := p.store.MarkSucceeded(ctx, job.ID, outcome); err != nil {
			p.log.Error("标记任务成功失败", "job_id", job.ID, "error", err)
			return err
		}
		p.metrics.JobStatus(string(StatusSucceeded))
		logger.Audit().Info("任务执行成功",
			"job_id", job.ID,
			"capability", outcome.Capability,
			"warnings", outcome.WarningsCount,
			"evidence_path", outcome.EvidencePath,
		)
		return nil
	}
	return p.fail(ctx, job, outcome, s.Error)
}

// fail 记录失败；仍有重试次数时重新投递，否则发出 RETRIES_EXHAUSTED 告警。
func (p *Processor) fail(ctx context.Context, job *Job, outcome Outcome, message string) error {
	terminal := job.Attempts >= job.MaxRetries
	code := xerrors.CodeCollaboratorFailure
	if terminal {
		code = xerrors.CodeRetriesExhausted
	}
	if err := p.store.MarkFailed(ctx, job.ID, code, message, outcome); err != nil {
		p.log.Error("标记任务失败状态出错", "job_id", job.ID, "error", err)
		return err
	}
	p.metrics.JobStatus(string(StatusFailed))
	logger.Audit().Warn("任务执行失败",
		"job_id", job.ID,
		"terminal", terminal,
		"error", message,
		"attempts", job.Attempts,
		"max_retries", job.MaxRetries,
	)

	if terminal {
		p.emitAlert(ctx, job, xerrors.New(code, message, xerrors.WithMetadata("capability", outcome.Capability)), "terminal")
		return nil
	}
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Publish(ctx, job.ID); err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeQueueFailure, err, "falha ao republicar tarefa")
		p.emitAlert(ctx, job, wrapped, "retry")
		return wrapped
	}
	p.log.Debug("任务已重新排队", "job_id", job.ID, "attempts", job.Attempts)
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, cause error, stage string) {
	if p.alerter == nil {
		return
	}
	event := alerting.EventFromError(job.ID, cause)
	event.Attempts = job.Attempts
	event.MaxRetries = job.MaxRetries
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	event.Metadata["stage"] = stage
	event.OccurredAt = time.Now().UTC()
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.log.Error("告警通知失败", "job_id", job.ID, "stage", stage, "error", err)
	}
}
