package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"agentic-browser/internal/evidence"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/observability/metrics"
	"agentic-browser/pkg/logger"
)

// 阶段名称，同时用作指标标签。
const (
	StageRoute      = "route"
	StageCritic     = "critic"
	StageCapability = "capability"
	StageReport     = "report"
)

// Controller 按固定顺序执行各阶段，是唯一拥有执行权的组件。
type Controller struct {
	registry        Registry
	critic          *Critic
	reporter        *Reporter
	metrics         *metrics.Metrics
	blockOnWarnings bool
	now             func() time.Time
}

// Option 定义可选的 Controller 配置。
type Option func(*Controller)

// WithBlockOnWarnings 为 true 时审查未通过的请求不会执行能力节点。
func WithBlockOnWarnings(block bool) Option {
	return func(c *Controller) {
		c.blockOnWarnings = block
	}
}

// WithMetrics 记录阶段耗时与能力执行结果。
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock 替换时间源，便于测试。
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController 创建 Controller；critic 为 nil 时跳过审查，reporter 为 nil 时使用无依赖的默认实现。
func NewController(registry Registry, critic *Critic, reporter *Reporter, opts ...Option) *Controller {
	if registry == nil {
		registry = Registry{}
	}
	if reporter == nil {
		reporter = NewReporter(ReporterConfig{})
	}
	c := &Controller{
		registry: registry,
		critic:   critic,
		reporter: reporter,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Registry 返回已注册的能力节点。
func (c *Controller) Registry() Registry { return c.registry }

// Run 执行一次完整的流水线。任何阶段的错误都不会逃逸，调用方总能得到一个 State。
func (c *Controller) Run(ctx context.Context, in Input) *State {
	s := NewState(in)
	s.startedAt = c.now()
	ev := evidence.NewPack(s.JobID)
	log := logger.Named("pipeline").With("job_id", s.JobID)

	ev.Log("job_started", map[string]any{
		"query":        s.Query,
		"message":      s.Message,
		"user_id":      s.UserID,
		"first_access": s.FirstAccess,
	})

	c.stage(ctx, s, StageRoute, func(context.Context) error {
		s.SelectedCapability = Route(s)
		ev.Log("route", map[string]any{"capability": string(s.SelectedCapability)})
		return nil
	})

	c.stage(ctx, s, StageCritic, func(ctx context.Context) error {
		if c.critic == nil {
			s.SecurityCheckPassed = len(s.Warnings) == 0
			return nil
		}
		added := c.critic.Review(ctx, s)
		c.metrics.CriticWarnings(added)
		ev.Log("critic", map[string]any{
			"warnings":              append([]string{}, s.Warnings...),
			"security_check_passed": s.SecurityCheckPassed,
		})
		return nil
	})

	if c.blockOnWarnings && !s.SecurityCheckPassed {
		s.Blocked = true
		ev.Log("blocked", map[string]any{"capability": string(s.SelectedCapability), "warnings": len(s.Warnings)})
		log.Warn("审查未通过，跳过能力节点", "capability", s.SelectedCapability, "warnings", len(s.Warnings))
	} else {
		c.stage(ctx, s, StageCapability, func(ctx context.Context) error {
			node, ok := c.registry[s.SelectedCapability]
			if !ok {
				return xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("capacidade não registrada: %s", s.SelectedCapability))
			}
			err := node.Run(ctx, s, ev)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			c.metrics.CapabilityRun(string(s.SelectedCapability), outcome)
			return err
		})
	}

	c.stage(ctx, s, StageReport, func(ctx context.Context) error {
		c.reporter.Report(ctx, s, ev)
		return nil
	})

	log.Info("流水线执行完成",
		"capability", s.SelectedCapability,
		"warnings", len(s.Warnings),
		"processing_time", s.ProcessingTimeSeconds,
		"error", s.Error,
	)
	return s
}

// stage 执行单个阶段，记录耗时，并把错误或 panic 写入 State。
func (c *Controller) stage(ctx context.Context, s *State, name string, fn func(context.Context) error) {
	started := c.now()
	defer func() {
		if r := recover(); r != nil {
			logger.Named("pipeline").Error("阶段发生 panic",
				"job_id", s.JobID, "stage", name, "panic", r, "stack", string(debug.Stack()))
			c.fail(s, name, fmt.Errorf("panic: %v", r))
		}
		elapsed := c.now().Sub(started)
		s.recordStage(name, elapsed)
		c.metrics.ObserveStage(name, elapsed)
	}()

	if err := fn(ctx); err != nil {
		c.fail(s, name, err)
	}
}

func (c *Controller) fail(s *State, stage string, err error) {
	logger.Named("pipeline").Error("阶段执行失败", "job_id", s.JobID, "stage", stage, "error", err)
	if s.Error == "" {
		s.Error = fmt.Sprintf("%s: %v", stage, err)
	}
}
