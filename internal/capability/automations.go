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

// Automations 顺序执行 open / click / fill 步骤，未知类型直接跳过。
type Automations struct {
	llm     llm.Client
	browser automation.Controller
	gate    *policy.Gate
	prompts *prompts.Catalog
}

// NewAutomations 创建自动化节点。
func NewAutomations(client llm.Client, browser automation.Controller, gate *policy.Gate, catalog *prompts.Catalog) *Automations {
	return &Automations{llm: client, browser: browser, gate: gate, prompts: orDefault(catalog)}
}

// Capability 实现 pipeline.CapabilityNode。
func (a *Automations) Capability() pipeline.Capability { return pipeline.CapabilityAutomations }

// Run 实现 pipeline.CapabilityNode。
func (a *Automations) Run(ctx context.Context, s *pipeline.State, ev *evidence.Pack) error {
	log := logger.Named("automations").With("job_id", s.JobID)
	out := &pipeline.AutomationOutput{}
	s.Automation = out
	if s.AutomationSpec == nil {
		return nil
	}

	plan, err := generate(ctx, a.llm, a.prompts, "automations", "automation_plan", map[string]string{"Spec": specJSON(pipeline.MaskSteps(s.AutomationSpec.Steps))}, 500)
	if err != nil {
		log.Warn("生成自动化计划失败", "error", err)
	}
	out.Plan = plan

	for _, step := range s.AutomationSpec.Steps {
		switch step.Kind {
		case "open":
			if a.gate != nil && !a.gate.IsDomainAllowed(step.URL) {
				ev.Log("policy_block", map[string]any{"url": step.URL})
				s.AddWarning(blockedDomain(step.URL))
				out.Skipped++
				continue
			}
		case "click", "fill":
		default:
			out.Skipped++
			continue
		}
		out.Actions = append(out.Actions, act(ctx, a.browser, ev, step))
	}
	log.Info("自动化执行完成", "actions", len(out.Actions), "skipped", out.Skipped)
	return nil
}
