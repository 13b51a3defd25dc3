package automation

import "testing"

func TestTruthy(t *testing.T) {
	cases := map[string]bool{
		``:              false,
		`null`:          false,
		`false`:         false,
		`""`:            false,
		`0`:             false,
		`true`:          true,
		`"ok"`:          true,
		`{"tab_id": 1}`: true,
		`[]`:            true,
	}
	for raw, want := range cases {
		if got := Truthy(Result(raw)); got != want {
			t.Errorf("Truthy(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestScreenshotPath(t *testing.T) {
	if got := ScreenshotPath(Result(`{"path":"/tmp/a.png"}`)); got != "/tmp/a.png" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := ScreenshotPath(Result(`"/tmp/b.png"`)); got != "/tmp/b.png" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := ScreenshotPath(Result(`{"data":"..."}`)); got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
}
