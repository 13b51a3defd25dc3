package gemini

import (
	"context"
	"testing"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); !xerrors.IsCode(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerationConfigMapsSampling(t *testing.T) {
	cfg := generationConfig(llm.Request{
		SystemPrompt:      "sys",
		MaxLength:         200,
		Temperature:       0.5,
		TopP:              0.8,
		TopK:              20,
		RepetitionPenalty: 1.2,
	})
	if cfg.MaxOutputTokens != 200 || *cfg.TopK != 20 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.FrequencyPenalty == nil || *cfg.FrequencyPenalty < 0.19 || *cfg.FrequencyPenalty > 0.21 {
		t.Fatalf("unexpected frequency penalty: %v", cfg.FrequencyPenalty)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "sys" {
		t.Fatalf("system instruction missing: %+v", cfg.SystemInstruction)
	}

	plain := generationConfig(llm.Request{}.WithDefaults())
	if plain.FrequencyPenalty != nil || plain.SystemInstruction != nil {
		t.Fatalf("defaults should not set penalty or system: %+v", plain)
	}
}
