package capability

import (
	"context"
	"fmt"
	"strings"

	"agentic-browser/internal/automation"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/pipeline"
	"agentic-browser/internal/policy"
	"agentic-browser/internal/prompts"
	"agentic-browser/internal/retrieval"
	"agentic-browser/internal/webfetch"
	"agentic-browser/pkg/logger"
)

const (
	defaultTopK     = 5
	defaultMinScore = 0.3
	scrapedTabs     = 2
	findingExcerpt  = 500
)

// Retriever 检索与查询相似的文档。
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]retrieval.Result, error)
}

// PageFetcher 抓取单个页面。
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*webfetch.Page, error)
}

// ResearcherConfig 汇总研究节点的依赖；除 LLM 外均可为空。
type ResearcherConfig struct {
	LLM       llm.Client
	Retriever Retriever
	Fetcher   PageFetcher
	Browser   automation.Controller
	Gate      *policy.Gate
	Prompts   *prompts.Catalog
	Sources   []string
	TopK      int
	MinScore  float64
}

// Researcher 打开来源标签页、抓取摘录，并基于检索上下文生成回答。
type Researcher struct {
	cfg ResearcherConfig
}

// NewResearcher 创建研究节点。
func NewResearcher(cfg ResearcherConfig) *Researcher {
	cfg.Prompts = orDefault(cfg.Prompts)
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = defaultMinScore
	}
	return &Researcher{cfg: cfg}
}

// Capability 实现 pipeline.CapabilityNode。
func (r *Researcher) Capability() pipeline.Capability { return pipeline.CapabilityResearcher }

// Run 实现 pipeline.CapabilityNode。
func (r *Researcher) Run(ctx context.Context, s *pipeline.State, ev *evidence.Pack) error {
	log := logger.Named("researcher").With("job_id", s.JobID)
	query := s.Subject()
	out := &pipeline.ResearchOutput{}
	s.Research = out

	s.Plan = []string{
		"Pesquisar fontes para: " + query,
		"Usar RAG para encontrar contexto",
		"Gerar resposta com LLM",
	}

	strategy, err := generate(ctx, r.cfg.LLM, r.cfg.Prompts, "researcher", "research_plan", map[string]string{"Query": query}, 300)
	if err != nil {
		log.Warn("生成检索策略失败", "error", err)
	}
	out.SearchStrategy = strategy

	r.openSources(ctx, s, ev)
	r.scrape(ctx, s)
	r.cite(ctx, s, query)

	docs := r.relevant(ctx, query)
	var answer string
	if len(docs) > 0 {
		answer, err = generate(ctx, r.cfg.LLM, r.cfg.Prompts, "researcher", "research_rag",
			map[string]string{"Context": strings.Join(docs, "\n"), "Query": query}, 300)
	} else {
		answer, err = generate(ctx, r.cfg.LLM, r.cfg.Prompts, "researcher", "research_plain",
			map[string]string{"Query": query}, 300)
	}
	if err != nil {
		log.Error("研究回答生成失败", "error", err)
		out.Response = fmt.Sprintf("Desculpe, não foi possível completar a pesquisa sobre: %s", query)
		out.ResearcherResponse = fmt.Sprintf("Erro na pesquisa: %v", err)
		out.Completed = false
	} else {
		out.Response = answer
		out.ResearcherResponse = answer
		out.RAGContextUsed = len(docs) > 0
		out.Completed = true
	}
	s.Response = out.Response

	ev.Log("research", map[string]any{
		"rag_context_used": out.RAGContextUsed,
		"tabs":             len(s.Tabs),
		"findings":         len(s.Findings),
		"completed":        out.Completed,
	})
	return nil
}

// openSources 只打开策略允许的来源。
func (r *Researcher) openSources(ctx context.Context, s *pipeline.State, ev *evidence.Pack) {
	for _, src := range r.cfg.Sources {
		if r.cfg.Gate != nil && !r.cfg.Gate.IsDomainAllowed(src) {
			continue
		}
		if r.cfg.Browser != nil {
			res, err := r.cfg.Browser.OpenTab(ctx, src)
			if err != nil {
				logger.Named("researcher").Warn("打开来源失败", "job_id", s.JobID, "url", src, "error", err)
				ev.Log("open_tab", map[string]any{"url": src, "error": err.Error()})
				continue
			}
			ev.Log("open_tab", map[string]any{"url": src, "result": automation.Decode(res)})
		}
		s.Tabs = append(s.Tabs, pipeline.Tab{ID: fmt.Sprintf("tab_%d", len(s.Tabs)), URL: src})
	}
}

// batchFetcher 由支持并发抓取的实现提供，失败页返回 nil。
type batchFetcher interface {
	FetchAll(ctx context.Context, targets []string, concurrency int) []*webfetch.Page
}

func (r *Researcher) scrape(ctx context.Context, s *pipeline.State) {
	if r.cfg.Fetcher == nil {
		return
	}
	targets := make([]string, 0, scrapedTabs)
	for _, tab := range s.Tabs {
		if len(targets) == scrapedTabs {
			break
		}
		targets = append(targets, tab.URL)
	}

	var pages []*webfetch.Page
	if batch, ok := r.cfg.Fetcher.(batchFetcher); ok {
		pages = batch.FetchAll(ctx, targets, len(targets))
	} else {
		pages = make([]*webfetch.Page, len(targets))
		for i, target := range targets {
			page, err := r.cfg.Fetcher.Fetch(ctx, target)
			if err != nil {
				logger.Named("researcher").Warn("抓取页面失败", "job_id", s.JobID, "url", target, "error", err)
				continue
			}
			pages[i] = page
		}
	}

	for i, page := range pages {
		if page == nil {
			continue
		}
		s.Findings = append(s.Findings, pipeline.Finding{
			Source:  targets[i],
			Title:   page.Title,
			Content: excerpt(page.Content, findingExcerpt),
		})
	}
}

func (r *Researcher) cite(ctx context.Context, s *pipeline.State, query string) {
	if len(s.Findings) == 0 {
		return
	}
	sources := make([]string, 0, len(s.Findings))
	for _, f := range s.Findings {
		sources = append(sources, f.Source)
	}
	citations, err := generate(ctx, r.cfg.LLM, r.cfg.Prompts, "researcher", "research_citations",
		map[string]any{"Query": query, "Sources": sources}, 400)
	if err != nil {
		logger.Named("researcher").Warn("生成引用失败", "job_id", s.JobID, "error", err)
		return
	}
	s.Citations = citations
}

// relevant 返回得分高于阈值的文档文本；检索失败视为没有上下文。
func (r *Researcher) relevant(ctx context.Context, query string) []string {
	if r.cfg.Retriever == nil || query == "" {
		return nil
	}
	results, err := r.cfg.Retriever.Query(ctx, query, r.cfg.TopK)
	if err != nil {
		logger.Named("researcher").Warn("检索失败", "error", err)
		return nil
	}
	kept := retrieval.Filter(results, r.cfg.MinScore)
	docs := make([]string, 0, len(kept))
	for _, res := range kept {
		docs = append(docs, res.Text)
	}
	return docs
}
