package capability

import (
	"agentic-browser/internal/automation"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/pipeline"
	"agentic-browser/internal/policy"
	"agentic-browser/internal/prompts"
)

// Deps 汇总全部能力节点的依赖。
type Deps struct {
	LLM        llm.Client
	Retriever  Retriever
	Fetcher    PageFetcher
	Browser    automation.Controller
	Gate       *policy.Gate
	Prompts    *prompts.Catalog
	Sources    []string
	TopK       int
	MinScore   float64
	Chat       ChatEngine
	Onboarding OnboardingEngine
}

// Register 注册全部内置能力；Chat 或 Onboarding 为空时对应节点不注册。
func Register(reg pipeline.Registry, deps Deps) pipeline.Registry {
	if reg == nil {
		reg = pipeline.Registry{}
	}
	catalog := orDefault(deps.Prompts)
	reg.Register(
		NewResearcher(ResearcherConfig{
			LLM:       deps.LLM,
			Retriever: deps.Retriever,
			Fetcher:   deps.Fetcher,
			Browser:   deps.Browser,
			Gate:      deps.Gate,
			Prompts:   catalog,
			Sources:   deps.Sources,
			TopK:      deps.TopK,
			MinScore:  deps.MinScore,
		}),
		NewFormFiller(deps.LLM, deps.Browser, deps.Gate, catalog),
		NewAutomations(deps.LLM, deps.Browser, deps.Gate, catalog),
		NewOverlay(deps.LLM, catalog),
	)
	if deps.Chat != nil {
		reg.Register(NewChatbot(deps.Chat))
	}
	if deps.Onboarding != nil {
		reg.Register(NewOnboarding(deps.Onboarding))
	}
	return reg
}
