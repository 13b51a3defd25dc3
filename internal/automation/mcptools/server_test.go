package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"agentic-browser/internal/automation/automationtest"
	"agentic-browser/internal/policy"
)

func connectInMemory(t *testing.T, ctx context.Context, srv *Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	if _, err := srv.MCPServer.Connect(ctx, t1, nil); err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) (map[string]any, bool, string) {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var text string
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			text = tc.Text
			break
		}
	}
	if res.IsError {
		return nil, true, text
	}
	out := make(map[string]any)
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal tool result: %v (text: %s)", err, text)
	}
	return out, false, text
}

func TestOpenTabRespectsPolicy(t *testing.T) {
	ctx := context.Background()
	rec := &automationtest.Recorder{}
	srv := NewServer(rec, policy.NewGate([]string{"itau.com.br"}, nil), "test")
	session := connectInMemory(t, ctx, srv)

	out, isErr, text := callTool(t, ctx, session, "open_tab", map[string]any{"url": "https://www.itau.com.br/cartoes"})
	if isErr {
		t.Fatalf("open_tab failed: %s", text)
	}
	result, _ := out["result"].(map[string]any)
	if result["opened"] != true {
		t.Fatalf("unexpected result: %v", out)
	}

	_, isErr, text = callTool(t, ctx, session, "open_tab", map[string]any{"url": "https://evil.example.com"})
	if !isErr || !strings.Contains(text, "Domínio não autorizado") {
		t.Fatalf("expected policy error, got %q", text)
	}
	if calls := rec.Calls(); len(calls) != 1 {
		t.Fatalf("blocked url must not reach the controller: %+v", calls)
	}
}

func TestFillAndScreenshotTools(t *testing.T) {
	ctx := context.Background()
	rec := &automationtest.Recorder{ScreenshotPath: "/tmp/shot.png"}
	session := connectInMemory(t, ctx, NewServer(rec, nil, "test"))

	if _, isErr, text := callTool(t, ctx, session, "fill", map[string]any{"selector": "#cpf", "value": "123"}); isErr {
		t.Fatalf("fill failed: %s", text)
	}
	out, isErr, text := callTool(t, ctx, session, "screenshot", map[string]any{})
	if isErr {
		t.Fatalf("screenshot failed: %s", text)
	}
	if result, _ := out["result"].(map[string]any); result["path"] != "/tmp/shot.png" {
		t.Fatalf("unexpected screenshot result: %v", out)
	}

	if _, isErr, _ := callTool(t, ctx, session, "find", map[string]any{}); !isErr {
		t.Fatal("find without selector or text should fail")
	}
}
