package prompts

import (
	"strings"
	"testing"

	xerrors "agentic-browser/internal/errors"
)

func TestDefaultCatalogRendersEveryTemplate(t *testing.T) {
	c := Default()
	data := map[string]any{
		"Query": "q", "Context": "ctx", "Sources": []string{"a", "b"}, "Spec": "{}",
		"Capability": "researcher", "Warnings": []string{"w"}, "Metrics": "{}",
		"Message": "m", "UserID": "u", "Collected": "{}", "Answer": "a",
		"Question": "q", "Keys": []string{"nome"}, "Topic": "nome",
	}
	for name := range c.templates {
		if _, err := c.Render(name, data); err != nil {
			t.Fatalf("render %s: %v", name, err)
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Default().Render("missing", nil)
	if !xerrors.IsCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSystemFallsBackToBase(t *testing.T) {
	c := Default()
	if c.System("unknown") != c.SystemBase() {
		t.Fatal("unknown agent should use the base prompt")
	}
	if !strings.Contains(c.System("researcher"), "Itaú") {
		t.Fatalf("unexpected researcher system prompt %q", c.System("researcher"))
	}
}

func TestCriticTemplateAsksForVerdict(t *testing.T) {
	out := Default().MustRender("critic_risk", map[string]string{"Query": "abrir conta"})
	if !strings.Contains(out, `"abrir conta"`) || !strings.Contains(out, "REJEITADO") {
		t.Fatalf("unexpected prompt %q", out)
	}
}
