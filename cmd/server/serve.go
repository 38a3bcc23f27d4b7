package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sozercan/session-analyzer/internal/analyzer"
	"github.com/sozercan/session-analyzer/internal/llm"
	"github.com/sozercan/session-analyzer/internal/prompts"
	"github.com/sozercan/session-analyzer/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		provider, err := llm.NewProvider(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "create LLM provider")
		}

		catalog, err := prompts.Load(cfg.Prompts.Path)
		if err != nil {
			return eris.Wrap(err, "load prompts")
		}

		srv := server.New(*cfg, analyzer.New(provider, catalog, cfg))
		zap.L().Info("starting session analyzer",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("host", cfg.Server.Host),
			zap.String("port", cfg.Server.Port),
		)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
