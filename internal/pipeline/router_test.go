package pipeline

import "testing"

func TestRoute(t *testing.T) {
	form := &FormSpec{URL: "https://www.itau.com.br/form"}
	auto := &AutomationSpec{Steps: []Step{{Kind: "open", URL: "https://www.itau.com.br"}}}

	cases := []struct {
		name  string
		state State
		want  Capability
	}{
		{"form spec wins over conversational message", State{Message: "olá, quero ajuda", FormSpec: form}, CapabilityFormFiller},
		{"first access flag beats form spec", State{FirstAccess: true, FormSpec: form}, CapabilityOnboarding},
		{"first access phrase beats automation spec", State{Message: "é meu primeiro acesso", AutomationSpec: auto}, CapabilityOnboarding},
		{"first access phrase in query", State{Query: "Sou novo no sistema"}, CapabilityOnboarding},
		{"update context", State{UpdateContext: true, Message: "olá"}, CapabilityOnboarding},
		{"conversational message", State{Message: "Bom dia, como funciona o app?"}, CapabilityChatbot},
		{"research keyword suppresses chatbot", State{Message: "quero buscar normas da CVM"}, CapabilityResearcher},
		{"automation spec", State{AutomationSpec: auto}, CapabilityAutomations},
		{"overlay mode", State{OverlayMode: true, Message: "olá"}, CapabilityOverlay},
		{"default is researcher", State{Query: "taxa selic 2024"}, CapabilityResearcher},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.state
			if got := Route(&s); got != tc.want {
				t.Fatalf("Route() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRouteIsPure(t *testing.T) {
	s := &State{Message: "olá", FormSpec: &FormSpec{URL: "https://itau.com.br"}}
	first := Route(s)
	if second := Route(s); second != first {
		t.Fatalf("route changed between calls: %s then %s", first, second)
	}
	if s.SelectedCapability != "" {
		t.Fatal("Route must not mutate state")
	}
}
