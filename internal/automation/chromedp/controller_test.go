package chromedp

import (
	"strings"
	"testing"

	"agentic-browser/internal/automation"
)

func TestFindScriptQuotesInput(t *testing.T) {
	got := findScript(automation.FindQuery{Selector: `input[name="cpf"]`})
	if got != `document.querySelectorAll("input[name=\"cpf\"]").length` {
		t.Fatalf("unexpected script: %s", got)
	}
	byText := findScript(automation.FindQuery{Text: `Entrar "já"`})
	if !strings.Contains(byText, `"Entrar \"já\""`) {
		t.Fatalf("text not quoted: %s", byText)
	}
}

func TestExtractScriptKeepsStringSelectors(t *testing.T) {
	script := extractScript(map[string]any{"title": "h1", "ignored": 3})
	if !strings.Contains(script, `{"title":"h1"}`) {
		t.Fatalf("unexpected script: %s", script)
	}
}
