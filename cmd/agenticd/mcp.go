package main

import (
	"context"
	"errors"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"agentic-browser/internal/automation/mcptools"
	"agentic-browser/internal/policy"
)

// newMCPCommand 通过 stdio 把浏览器控制端暴露为 MCP 工具，日志不能写 stdout。
func newMCPCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expõe o controlador do navegador como ferramentas MCP via stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(true)
			if err != nil {
				return err
			}
			browser, err := newBrowser(cfg.Automation)
			if err != nil {
				return err
			}
			defer browser.Close()

			gate := policy.NewGate(cfg.Policy.AllowList(), cfg.Policy.DenyList())
			server := mcptools.NewServer(browser, gate, version)
			if err := server.Run(cmd.Context(), &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
