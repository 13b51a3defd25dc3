package capability

import (
	"context"

	"agentic-browser/internal/evidence"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/pipeline"
	"agentic-browser/internal/prompts"
	"agentic-browser/pkg/logger"
)

// Overlay 只记录辅助模式已激活，并尽力给出操作建议。
type Overlay struct {
	llm     llm.Client
	prompts *prompts.Catalog
}

// NewOverlay 创建辅助模式节点。
func NewOverlay(client llm.Client, catalog *prompts.Catalog) *Overlay {
	return &Overlay{llm: client, prompts: orDefault(catalog)}
}

// Capability 实现 pipeline.CapabilityNode。
func (o *Overlay) Capability() pipeline.Capability { return pipeline.CapabilityOverlay }

// Run 实现 pipeline.CapabilityNode。
func (o *Overlay) Run(ctx context.Context, s *pipeline.State, ev *evidence.Pack) error {
	ev.Log("overlay", map[string]any{"active": true})
	out := &pipeline.OverlayOutput{Active: true}
	s.Overlay = out

	suggestions, err := generate(ctx, o.llm, o.prompts, "overlay", "overlay_suggestions", map[string]string{"Query": s.Subject()}, 300)
	if err != nil {
		logger.Named("overlay").Warn("生成建议失败", "job_id", s.JobID, "error", err)
		return nil
	}
	out.Suggestions = suggestions
	return nil
}
