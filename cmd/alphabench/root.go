package main

import (
	"context"

	"github.com/spf13/cobra"
)

func Execute(ctx context.Context) error {
	root := &cobra.Command{Use: "alphabench", Short: "Cross-sectional equity signal backtester"}
	root.AddCommand(backtestCmd())
	root.AddCommand(serveCmd())
	return root.ExecuteContext(ctx)
}
