package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/xsect/alphabench/internal/config"
	"github.com/xsect/alphabench/internal/httpapi"
	"github.com/xsect/alphabench/internal/metrics"
	"github.com/xsect/alphabench/internal/store"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored run results read-only over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			var repo store.Repo
			if cfg.Store.Enabled {
				if repo, err = store.Open(cfg.Store.DSN); err != nil {
					return err
				}
			} else {
				repo = store.NewMemoryRepo()
			}

			server := httpapi.NewServer(httpapi.Config{
				Host:         cfg.HTTP.Host,
				Port:         cfg.HTTP.Port,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}, repo, metrics.NewRegistry())

			return server.ListenAndServe(cmd.Context())
		},
	}

	addConfigFlag(cmd.Flags(), &configPath)
	return cmd
}
