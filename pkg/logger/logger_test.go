package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesJSONToFileAndAudit(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "app.log")
	auditPath := filepath.Join(dir, "audit.log")

	err := Init(Config{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = Init(Config{}) })

	Named("pipeline").Debug("stage finished", "stage", "route")
	Audit().Info("job submitted", "job_id", "job-1")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	entry := firstLine(t, appPath)
	if entry["component"] != "pipeline" || entry["stage"] != "route" {
		t.Fatalf("unexpected app entry: %v", entry)
	}
	audit := firstLine(t, auditPath)
	if audit["stream"] != "audit" || audit["job_id"] != "job-1" {
		t.Fatalf("unexpected audit entry: %v", audit)
	}
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatal("expected error for missing audit path")
	}
}

func firstLine(t *testing.T, path string) map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatalf("%s is empty", path)
	}
	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	return entry
}
