package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/autom8ter/sql2hub"
	"github.com/spf13/cobra"
)

func queryCmd(configPath *string) *cobra.Command {
	var (
		single     bool
		jsonColumn bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "print the query's batches to stdout without publishing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			executor, closer, err := openExecutor(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closer()
			out := cmd.OutOrStdout()
			switch {
			case jsonColumn:
				result, err := executor.JSONResult(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, result)
			case single:
				result, err := executor.QueryResult(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, result.String())
			default:
				return executor.StreamBatches(ctx, func(ctx context.Context, batch *sql2hub.Batch) (bool, error) {
					_, err := fmt.Fprintln(out, batch.String())
					return err == nil, err
				})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&single, "single", false, "print every row as one json array")
	cmd.Flags().BoolVar(&jsonColumn, "json-column", false, "print the concatenated first column of a query that returns json text")
	return cmd
}
