package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentic-browser/internal/evidence"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/observability/alerting"
	"agentic-browser/internal/prompts"
	"agentic-browser/internal/telemetry"
	"agentic-browser/pkg/logger"
)

// TelemetrySource 提供当前的性能报告。
type TelemetrySource interface {
	Report() telemetry.Report
}

// ReporterConfig 汇总 Reporter 的依赖，均为可选。
type ReporterConfig struct {
	LLM         llm.Client
	Prompts     *prompts.Catalog
	Telemetry   TelemetrySource
	EvidenceDir string
	Index       evidence.Index
	Alerts      alerting.Dispatcher
}

// Reporter 总结一次运行并归档证据，总会执行且不会返回错误。
type Reporter struct {
	cfg ReporterConfig
	now func() time.Time
}

// NewReporter 创建 Reporter。
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.Default()
	}
	return &Reporter{cfg: cfg, now: time.Now}
}

type archivedReport struct {
	ExecutiveSummary string           `json:"execution_summary"`
	TechnicalReport  *TechnicalReport `json:"technical_details"`
	ExecutionLog     *ExecutionLog    `json:"execution_log"`
	State            *State           `json:"raw_state"`
}

// Report 写入执行摘要、技术报告、执行日志与证据归档结果。
func (r *Reporter) Report(ctx context.Context, s *State, ev *evidence.Pack) {
	log := logger.Named("reporter").With("job_id", s.JobID)

	s.ExecutiveSummary = r.summary(ctx, s)

	now := r.now().UTC()
	if !s.startedAt.IsZero() {
		s.ProcessingTimeSeconds = now.Sub(s.startedAt).Seconds()
	}
	status := "success"
	if s.Error != "" {
		status = "error"
	}
	report := &TechnicalReport{
		Timestamp:          now,
		Query:              s.Subject(),
		Agent:              s.SelectedCapability,
		SecurityWarnings:   append([]string{}, s.Warnings...),
		TabsOpened:         len(s.Tabs),
		FindingsCount:      len(s.Findings),
		CitationsGenerated: s.Citations != "",
		ProcessingTime:     s.ProcessingTimeSeconds,
		Status:             status,
	}
	if r.cfg.Telemetry != nil {
		snapshot := r.cfg.Telemetry.Report()
		report.Telemetry = &snapshot
		report.PerformanceAnalysis = r.performance(ctx, snapshot)
	}
	s.TechnicalReport = report

	s.ExecutionLog = &ExecutionLog{
		Timestamp:      now,
		JobID:          s.JobID,
		Query:          s.Subject(),
		Agent:          s.SelectedCapability,
		Success:        status == "success",
		WarningsCount:  len(s.Warnings),
		ProcessingTime: s.ProcessingTimeSeconds,
	}

	ev.Log("report", map[string]any{
		"agent":    string(s.SelectedCapability),
		"status":   status,
		"warnings": len(s.Warnings),
	})
	r.archive(ctx, s, ev)
	log.Info("报告生成完成", "status", status, "evidence_generated", s.Evidence.Generated)
}

func (r *Reporter) summary(ctx context.Context, s *State) string {
	prompt, err := r.cfg.Prompts.Render("reporter_summary", map[string]any{
		"Query":      s.Subject(),
		"Capability": string(s.SelectedCapability),
		"Warnings":   s.Warnings,
	})
	if err == nil {
		var out string
		out, err = llm.GenerateText(ctx, r.cfg.LLM, llm.Request{
			Prompt:       prompt,
			SystemPrompt: r.cfg.Prompts.System("reporter"),
			MaxLength:    500,
		})
		if err == nil {
			return out
		}
	}
	return fmt.Sprintf("Erro ao gerar resumo: %v", err)
}

func (r *Reporter) performance(ctx context.Context, report telemetry.Report) string {
	raw, err := json.Marshal(report.CurrentMetrics)
	if err == nil {
		var prompt string
		prompt, err = r.cfg.Prompts.Render("reporter_metrics", map[string]string{"Metrics": string(raw)})
		if err == nil {
			var out string
			out, err = llm.GenerateText(ctx, r.cfg.LLM, llm.Request{Prompt: prompt, MaxLength: 200})
			if err == nil {
				return out
			}
		}
	}
	return fmt.Sprintf("Erro na análise: %v", err)
}

// archive 构建证据包；失败只记录在 State 中并触发告警。
func (r *Reporter) archive(ctx context.Context, s *State, ev *evidence.Pack) {
	log := logger.Named("reporter").With("job_id", s.JobID)
	if r.cfg.EvidenceDir == "" {
		s.Evidence = EvidenceOutcome{Generated: false, Error: "diretório de evidências não configurado"}
		return
	}

	path, err := ev.BuildArchive(r.cfg.EvidenceDir, archivedReport{
		ExecutiveSummary: s.ExecutiveSummary,
		TechnicalReport:  s.TechnicalReport,
		ExecutionLog:     s.ExecutionLog,
		State:            s.redacted(),
	})
	record := evidence.ArchiveRecord{
		JobID:      s.JobID,
		Capability: string(s.SelectedCapability),
		Records:    len(ev.Records()),
		Warnings:   len(s.Warnings),
		CreatedAt:  r.now().Unix(),
	}
	if err != nil {
		s.Evidence = EvidenceOutcome{Generated: false, Error: err.Error()}
		record.Error = err.Error()
		log.Error("证据归档失败", "error", err)
		if r.cfg.Alerts != nil {
			wrapped := xerrors.Wrap(xerrors.CodeEvidencePersistence, err, "evidence archive failed",
				xerrors.WithMetadata("capability", string(s.SelectedCapability)))
			if alertErr := r.cfg.Alerts.Notify(ctx, alerting.EventFromError(s.JobID, wrapped)); alertErr != nil {
				log.Warn("发送告警失败", "error", alertErr)
			}
		}
	} else {
		s.Evidence = EvidenceOutcome{Path: path, Generated: true}
		record.Path = path
		record.Generated = true
		logger.Audit().Info("evidence archived", "job_id", s.JobID, "path", path, "capability", string(s.SelectedCapability))
	}

	if r.cfg.Index != nil {
		if err := r.cfg.Index.Save(ctx, record); err != nil {
			log.Warn("写入证据索引失败", "error", err)
		}
	}
}
