package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/internal/logging"
	"github.com/cognicore/shopnlp/internal/server"
	"github.com/cognicore/shopnlp/pkg/shopnlp"
	"github.com/cognicore/shopnlp/pkg/shopnlp/config"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /parse, /query, /classify, /reload and /health over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv(envFile)
			if err != nil {
				return err
			}
			logger := root.logger
			if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-format") {
				if logger, err = logging.New(env.LogLevel, env.LogFormat); err != nil {
					return err
				}
				defer func() { _ = logger.Sync() }()
			}

			engine := shopnlp.New(shopnlp.Options{Logger: logger})
			if err := engine.Load(cmd.Context(), env.Model); err != nil {
				// /classify still works and /reload can pick the model up later
				logger.Warn("starting without a model", zap.String("model", env.Model), zap.Error(err))
			}

			srv := server.New(engine, server.Config{CacheSize: env.CacheSize, CacheTTL: env.CacheTTL}, logger)
			return server.ListenAndServe(cmd.Context(), fmt.Sprintf(":%d", env.Port), env.MaxConcurrent, srv.Routes(), logger)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "optional .env file loaded before reading the environment")
	return cmd
}
