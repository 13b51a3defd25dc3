package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"golang.org/x/sync/errgroup"

	"agentic-browser/internal/embedding"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/llm"
	"agentic-browser/internal/policy"
	"agentic-browser/internal/prompts"
	"agentic-browser/pkg/logger"
)

var injectionMarkers = []string{"ignore previous", "override", "system instruction", "exfiltrate"}

// Embedder 是审查阶段需要的最小向量化能力。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Critic 在能力节点执行前审查状态。四项检查相互独立，结果只会追加为告警，从不返回错误。
type Critic struct {
	llm      llm.Client
	gate     *policy.Gate
	embedder Embedder
	prompts  *prompts.Catalog
}

// NewCritic 创建审查器；llm 与 embedder 为 nil 时跳过对应检查。
func NewCritic(client llm.Client, gate *policy.Gate, embedder Embedder, catalog *prompts.Catalog) *Critic {
	if catalog == nil {
		catalog = prompts.Default()
	}
	return &Critic{llm: client, gate: gate, embedder: embedder, prompts: catalog}
}

// Review 运行全部检查并按固定顺序合并告警。对未变化的状态重复调用不会新增告警。
func (c *Critic) Review(ctx context.Context, s *State) int {
	subject := s.Subject()
	urls := s.URLs()

	var results [4][]string
	g, gctx := errgroup.WithContext(ctx)
	check := func(i int, label string, fn func() []string) {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Named("critic").Error("审查检查发生 panic",
						"job_id", s.JobID, "check", label, "panic", r, "stack", string(debug.Stack()))
					results[i] = []string{fmt.Sprintf("Erro na análise %s: panic: %v", label, r)}
				}
			}()
			results[i] = fn()
			return nil
		})
	}
	check(0, "de injection", func() []string { return scanInjection(s.Query, s.Message) })
	check(1, "LLM", func() []string { return c.modelCheck(gctx, subject) })
	check(2, "de domínio", func() []string { return c.domainCheck(urls) })
	check(3, "de embedding", func() []string { return c.embeddingCheck(gctx, subject) })
	_ = g.Wait()

	added := 0
	for _, warnings := range results {
		added += s.AddWarning(warnings...)
	}
	s.SecurityCheckPassed = len(s.Warnings) == 0
	return added
}

func scanInjection(texts ...string) []string {
	for _, text := range texts {
		low := strings.ToLower(text)
		for _, marker := range injectionMarkers {
			if strings.Contains(low, marker) {
				return []string{fmt.Sprintf("Injection detectado: Possível prompt-injection detectada: '%s'", marker)}
			}
		}
	}
	return nil
}

// modelCheck 请求模型给出 APROVADO / REJEITADO 判定。
// 模型未加载（MODEL_UNAVAILABLE）时只记录日志、不追加告警；其他调用失败追加一条告警。
func (c *Critic) modelCheck(ctx context.Context, subject string) []string {
	if c.llm == nil || subject == "" {
		return nil
	}
	prompt, err := c.prompts.Render("critic_risk", map[string]string{"Query": subject})
	if err != nil {
		return []string{fmt.Sprintf("Erro na análise LLM: %v", err)}
	}
	out, err := llm.GenerateText(ctx, c.llm, llm.Request{
		Prompt:       prompt,
		SystemPrompt: c.prompts.System("critic"),
		MaxLength:    100,
	})
	switch {
	case xerrors.IsCode(err, xerrors.CodeModelUnavailable):
		logger.Named("critic").Info("模型未加载，跳过风险判定", "error", err)
		return nil
	case err != nil:
		return []string{fmt.Sprintf("Erro na análise LLM: %v", err)}
	case strings.Contains(strings.ToUpper(out), "REJEITADO"):
		return []string{"Análise LLM: " + out}
	}
	return nil
}

func (c *Critic) domainCheck(urls []string) []string {
	if c.gate == nil {
		return nil
	}
	var warnings []string
	for _, u := range urls {
		if !c.gate.IsDomainAllowed(u) {
			warnings = append(warnings, "Domínio não autorizado: "+u)
		}
	}
	return warnings
}

func (c *Critic) embeddingCheck(ctx context.Context, subject string) []string {
	if c.embedder == nil || subject == "" {
		return nil
	}
	vec, err := c.embedder.Embed(ctx, subject)
	if err != nil {
		return []string{fmt.Sprintf("Erro na análise de embedding: %v", err)}
	}
	if embedding.IsZero(vec) {
		return []string{"Embedding inválido detectado"}
	}
	return nil
}
