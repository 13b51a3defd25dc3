package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/pipeline"
	"agentic-browser/pkg/logger"
)

type runFlags struct {
	query          string
	message        string
	userID         string
	conversationID string
	firstAccess    bool
	overlay        bool
	formFile       string
	automationFile string
}

func newRunCommand(load configLoader) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Executa o pipeline uma vez e imprime o estado em JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := f.input()
			if err != nil {
				return err
			}
			cfg, err := load(true)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					logger.Named("agenticd").Warn("释放资源失败", "error", err)
				}
			}()

			state := a.controller.Run(cmd.Context(), in)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.query, "query", "q", "", "consulta de pesquisa")
	flags.StringVarP(&f.message, "message", "m", "", "mensagem para o chatbot")
	flags.StringVar(&f.userID, "user", "", "identificador do usuário")
	flags.StringVar(&f.conversationID, "conversation", "", "identificador da conversa")
	flags.BoolVar(&f.firstAccess, "first-access", false, "inicia o onboarding")
	flags.BoolVar(&f.overlay, "overlay", false, "ativa o modo overlay")
	flags.StringVar(&f.formFile, "form", "", "arquivo JSON com a especificação do formulário")
	flags.StringVar(&f.automationFile, "automation", "", "arquivo JSON com os passos de automação")
	return cmd
}

func (f runFlags) input() (pipeline.Input, error) {
	in := pipeline.Input{
		Query:          f.query,
		Message:        f.message,
		UserID:         f.userID,
		ConversationID: f.conversationID,
		FirstAccess:    f.firstAccess,
		OverlayMode:    f.overlay,
	}
	if f.formFile != "" {
		in.FormSpec = &pipeline.FormSpec{}
		if err := readJSON(f.formFile, in.FormSpec); err != nil {
			return in, err
		}
	}
	if f.automationFile != "" {
		in.AutomationSpec = &pipeline.AutomationSpec{}
		if err := readJSON(f.automationFile, in.AutomationSpec); err != nil {
			return in, err
		}
	}
	return in, nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取文件失败: "+path)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 JSON 失败: "+path)
	}
	return nil
}
