package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentic-browser/internal/config"
	"agentic-browser/pkg/logger"
)

// 构建时通过 -ldflags "-X main.version=..." 注入。
var version = "dev"

// main 是 agenticd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "agenticd 运行失败:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "agenticd",
		Short:         "Navegador agêntico com pipeline de agentes auditável",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AGENTIC_CONFIG"), "arquivo de configuração (JSON ou YAML)")

	load := func(reserveStdout bool) (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logging := cfg.Logging
		if reserveStdout {
			logging.OutputPaths = redirectStdout(logging.OutputPaths)
		}
		if err := logger.Init(logging); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCommand(load),
		newRunCommand(load),
		newMCPCommand(load),
		newVersionCommand(),
	)
	return root
}

// configLoader 加载配置并初始化日志；reserveStdout 为 true 时 stdout 留给命令输出。
type configLoader func(reserveStdout bool) (*config.Config, error)

func redirectStdout(outputs []string) []string {
	if len(outputs) == 0 {
		return []string{"stderr"}
	}
	out := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if o == "" || o == "stdout" {
			o = "stderr"
		}
		out = append(out, o)
	}
	return out
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Mostra a versão",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
