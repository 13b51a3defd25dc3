package pipeline

import (
	"strings"

	"agentic-browser/internal/onboarding"
)

var conversationalKeywords = []string{
	"olá", "oi", "bom dia", "boa tarde", "boa noite",
	"quero", "gostaria", "poderia", "pode me", "me ajude",
	"como", "qual", "quando", "onde", "por que", "o que",
	"explique", "conte", "fale", "diga",
}

var researchKeywords = []string{"pesquisa", "buscar", "procurar", "encontrar"}

// Route 是纯函数：按固定优先级选择能力，第一条命中的规则生效。
func Route(s *State) Capability {
	text := strings.ToLower(strings.TrimSpace(s.Query + " " + s.Message))

	if s.FirstAccess || onboarding.IsFirstAccess(text) {
		return CapabilityOnboarding
	}
	if s.UpdateContext {
		return CapabilityOnboarding
	}
	structured := s.FormSpec != nil || s.AutomationSpec != nil || s.OverlayMode
	if !structured && containsAny(text, conversationalKeywords) && !containsAny(text, researchKeywords) {
		return CapabilityChatbot
	}
	switch {
	case s.FormSpec != nil:
		return CapabilityFormFiller
	case s.AutomationSpec != nil:
		return CapabilityAutomations
	case s.OverlayMode:
		return CapabilityOverlay
	}
	return CapabilityResearcher
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
