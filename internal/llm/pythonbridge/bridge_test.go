package pythonbridge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/llm"
)

func TestNewClientRequiresModelPath(t *testing.T) {
	if _, err := NewClient(Config{ScriptPath: "infer.py"}); !xerrors.IsCode(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	missing := filepath.Join(t.TempDir(), "absent.gguf")
	if _, err := NewClient(Config{ScriptPath: "infer.py", ModelPath: missing}); !xerrors.IsCode(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error for missing model, got %v", err)
	}
}

func TestGenerateReadsScriptOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script bridge")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "infer.sh")
	if err := os.WriteFile(script, []byte("cat >/dev/null\nprintf '{\"text\":\" resposta \",\"model\":\"local\"}'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	client, err := NewClient(Config{PythonExecutable: sh, ScriptPath: script, ModelPath: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "oi"})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Content != "resposta" || resp.Model != "local" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestResolveScriptPath(t *testing.T) {
	if got := ResolveScriptPath("/srv", "scripts/infer.py"); got != filepath.Join("/srv", "scripts/infer.py") {
		t.Fatalf("unexpected path: %s", got)
	}
	if got := ResolveScriptPath("/srv", "/abs/infer.py"); got != "/abs/infer.py" {
		t.Fatalf("absolute path changed: %s", got)
	}
}
