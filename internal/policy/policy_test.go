package policy

import "testing"

func TestIsDomainAllowed(t *testing.T) {
	gate := NewGate([]string{"itau.com.br", "b3.com.br"}, []string{"phish.itau.com.br"})

	cases := []struct {
		target string
		want   bool
	}{
		{"https://www.itau.com.br/", true},
		{"itau.com.br", true},
		{"https://www.b3.com.br:443/mercado", true},
		{"https://phish.itau.com.br/login", false},
		{"https://notitau.com.br", false},
		{"https://google.com/search?q=itau.com.br", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := gate.IsDomainAllowed(tc.target); got != tc.want {
			t.Fatalf("IsDomainAllowed(%q) = %v, want %v", tc.target, got, tc.want)
		}
	}
}

func TestEmptyAllowListOnlyAppliesDeny(t *testing.T) {
	gate := NewGate(nil, []string{"evil.com"})
	if !gate.IsDomainAllowed("https://example.org") {
		t.Fatal("expected example.org to be allowed without allow list")
	}
	if gate.IsDomainAllowed("http://cdn.evil.com/x.js") {
		t.Fatal("expected deny list to win")
	}
}

func TestRequiresConfirmation(t *testing.T) {
	gate := NewGate(nil, nil)
	for _, action := range []string{"purchase", "submit_sensitive", "DELETE"} {
		if !gate.RequiresConfirmation(action) {
			t.Fatalf("expected %s to require confirmation", action)
		}
	}
	if gate.RequiresConfirmation("submit_form") {
		t.Fatal("submit_form should not require confirmation")
	}
}
