package capability

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"agentic-browser/internal/llm"
	"agentic-browser/internal/prompts"
)

// generate 渲染模板并以对应智能体的系统提示词调用模型。
func generate(ctx context.Context, client llm.Client, catalog *prompts.Catalog, agent, template string, data any, maxLength int) (string, error) {
	prompt, err := catalog.Render(template, data)
	if err != nil {
		return "", err
	}
	return llm.GenerateText(ctx, client, llm.Request{
		Prompt:       prompt,
		SystemPrompt: catalog.System(agent),
		MaxLength:    maxLength,
	})
}

// excerpt 截取前 n 个字符并追加省略号。
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s + "..."
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func specJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func orDefault(c *prompts.Catalog) *prompts.Catalog {
	if c == nil {
		return prompts.Default()
	}
	return c
}
