package capability

import (
	"context"

	"agentic-browser/internal/automation"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/pipeline"
	"agentic-browser/internal/policy"
	"agentic-browser/internal/prompts"
	"agentic-browser/pkg/logger"
)

// FormFiller 在目标地址被允许时打开页面、逐项填写并截图。
type FormFiller struct {
	llm     llm.Client
	browser automation.Controller
	gate    *policy.Gate
	prompts *prompts.Catalog
}

// NewFormFiller 创建表单节点。
func NewFormFiller(client llm.Client, browser automation.Controller, gate *policy.Gate, catalog *prompts.Catalog) *FormFiller {
	return &FormFiller{llm: client, browser: browser, gate: gate, prompts: orDefault(catalog)}
}

// Capability 实现 pipeline.CapabilityNode。
func (f *FormFiller) Capability() pipeline.Capability { return pipeline.CapabilityFormFiller }

// Run 实现 pipeline.CapabilityNode。
func (f *FormFiller) Run(ctx context.Context, s *pipeline.State, ev *evidence.Pack) error {
	log := logger.Named("form_filler").With("job_id", s.JobID)
	out := &pipeline.FormOutput{}
	s.Form = out

	spec := s.FormSpec
	if spec == nil {
		return nil
	}

	analysis, err := generate(ctx, f.llm, f.prompts, "form_filler", "form_analysis", map[string]string{"Spec": specJSON(spec.Masked())}, 400)
	if err != nil {
		log.Warn("表单分析失败", "error", err)
	}
	out.Analysis = analysis

	if spec.URL == "" || (f.gate != nil && !f.gate.IsDomainAllowed(spec.URL)) {
		ev.Log("policy_block", map[string]any{"url": spec.URL})
		if spec.URL == "" {
			s.AddWarning("Formulário sem endereço de destino")
		} else {
			s.AddWarning(blockedDomain(spec.URL))
		}
		log.Warn("目标地址未被允许，跳过表单填写", "url", spec.URL)
		return nil
	}
	out.Allowed = true

	opened := act(ctx, f.browser, ev, pipeline.Step{Kind: "open", URL: spec.URL})
	out.Actions = append(out.Actions, opened)
	if opened.Error != "" {
		return nil
	}
	for _, field := range spec.Fields {
		out.Actions = append(out.Actions, act(ctx, f.browser, ev, pipeline.Step{Kind: "fill", Selector: field.Selector, Value: field.Value}))
	}

	res, err := f.browser.Screenshot(ctx, "")
	if err != nil {
		ev.Log("screenshot", map[string]any{"error": err.Error()})
		log.Warn("截图失败", "error", err)
		return nil
	}
	path := automation.ScreenshotPath(res)
	ev.Log("screenshot", map[string]any{"path": path})
	ev.Attach(path)
	out.Screenshot = path
	return nil
}
