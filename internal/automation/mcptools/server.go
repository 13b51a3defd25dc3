// Package mcptools 将 automation.Controller 暴露为 MCP 工具，供外部智能体通过 stdio 调用。
package mcptools

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"agentic-browser/internal/automation"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/evidence"
	"agentic-browser/internal/policy"
	"agentic-browser/pkg/logger"
)

// Server 包装 MCP SDK server。
type Server struct {
	MCPServer *sdkmcp.Server

	ctrl automation.Controller
	gate *policy.Gate
	log  *slog.Logger
}

// NewServer 注册浏览器工具；gate 为 nil 时不做域名校验。
func NewServer(ctrl automation.Controller, gate *policy.Gate, version string) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "agentic-browser", Version: version}, nil),
		ctrl:      ctrl,
		gate:      gate,
		log:       logger.Named("mcptools"),
	}
	s.registerTools()
	return s
}

// Run 在给定传输层上运行，直到 ctx 结束或对端断开。
func (s *Server) Run(ctx context.Context, transport sdkmcp.Transport) error {
	return s.MCPServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "open_tab",
		Description: "Open a new browser tab at the given URL. The domain must be allowed by policy.",
	}, s.handleOpenTab)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "click",
		Description: "Click the element matching a CSS selector in the current tab.",
	}, s.handleClick)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "fill",
		Description: "Type a value into the input matching a CSS selector.",
	}, s.handleFill)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "find",
		Description: "Find elements by CSS selector or visible text.",
	}, s.handleFind)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "extract",
		Description: "Extract text for each field of a schema mapping names to CSS selectors.",
	}, s.handleExtract)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "screenshot",
		Description: "Capture the page, or the element matching area, and return the saved path.",
	}, s.handleScreenshot)
}

type openTabInput struct {
	URL string `json:"url" jsonschema:"absolute URL to open"`
}

type selectorInput struct {
	Selector string `json:"selector" jsonschema:"CSS selector"`
}

type fillInput struct {
	Selector string `json:"selector" jsonschema:"CSS selector of the input"`
	Value    string `json:"value" jsonschema:"value to type"`
}

type findInput struct {
	Selector string `json:"selector,omitempty" jsonschema:"CSS selector"`
	Text     string `json:"text,omitempty" jsonschema:"visible text to search for"`
}

type extractInput struct {
	Schema map[string]any `json:"schema" jsonschema:"field name to CSS selector"`
}

type screenshotInput struct {
	Area string `json:"area,omitempty" jsonschema:"optional CSS selector of the area to capture"`
}

type toolOutput struct {
	Result any `json:"result"`
}

func (s *Server) handleOpenTab(ctx context.Context, _ *sdkmcp.CallToolRequest, in openTabInput) (*sdkmcp.CallToolResult, toolOutput, error) {
	if in.URL == "" {
		return nil, toolOutput{}, xerrors.New(xerrors.CodeInvalidArgument, "url is required")
	}
	if s.gate != nil && !s.gate.IsDomainAllowed(in.URL) {
		s.log.Warn("域名被策略拒绝", "url", in.URL)
		return nil, toolOutput{}, xerrors.New(xerrors.CodePolicyViolation, "Domínio não autorizado: "+in.URL)
	}
	return s.output(s.ctrl.OpenTab(ctx, in.URL))
}

func (s *Server) handleClick(ctx context.Context, _ *sdkmcp.CallToolRequest, in selectorInput) (*sdkmcp.CallToolResult, toolOutput, error) {
	if in.Selector == "" {
		return nil, toolOutput{}, xerrors.New(xerrors.CodeInvalidArgument, "selector is required")
	}
	return s.output(s.ctrl.Click(ctx, in.Selector))
}

func (s *Server) handleFill(ctx context.Context, _ *sdkmcp.CallToolRequest, in fillInput) (*sdkmcp.CallToolResult, toolOutput, error) {
	if in.Selector == "" {
		return nil, toolOutput{}, xerrors.New(xerrors.CodeInvalidArgument, "selector is required")
	}
	s.log.Info("fill", "selector", in.Selector, "value", evidence.Mask)
	return s.output(s.ctrl.Fill(ctx, in.Selector, in.Value))
}

func (s *Server) handleFind(ctx context.Context, _ *sdkmcp.CallToolRequest, in findInput) (*sdkmcp.CallToolResult, toolOutput, error) {
	if in.Selector == "" && in.Text == "" {
		return nil, toolOutput{}, xerrors.New(xerrors.CodeInvalidArgument, "selector or text is required")
	}
	return s.output(s.ctrl.Find(ctx, automation.FindQuery{Selector: in.Selector, Text: in.Text}))
}

func (s *Server) handleExtract(ctx context.Context, _ *sdkmcp.CallToolRequest, in extractInput) (*sdkmcp.CallToolResult, toolOutput, error) {
	return s.output(s.ctrl.Extract(ctx, in.Schema))
}

func (s *Server) handleScreenshot(ctx context.Context, _ *sdkmcp.CallToolRequest, in screenshotInput) (*sdkmcp.CallToolResult, toolOutput, error) {
	return s.output(s.ctrl.Screenshot(ctx, in.Area))
}

func (s *Server) output(res automation.Result, err error) (*sdkmcp.CallToolResult, toolOutput, error) {
	if err != nil {
		return nil, toolOutput{}, err
	}
	return nil, toolOutput{Result: automation.Decode(res)}, nil
}
