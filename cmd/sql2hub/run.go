package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/autom8ter/sql2hub"
	"github.com/autom8ter/sql2hub/util"
	"github.com/spf13/cobra"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the query on its schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			job, err := sql2hub.OpenJob(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer job.Close()
			scheduler, err := sql2hub.NewScheduler(cfg.Schedule, job, logger)
			if err != nil {
				return err
			}
			scheduler.Start(ctx)
			<-ctx.Done()
			logger.Info(context.Background(), "shutting down", nil)
			return scheduler.Stop()
		},
	}
}

func onceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "run the query a single time and publish its batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			job, err := sql2hub.OpenJob(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer job.Close()
			summary, err := job.Run(ctx)
			if summary != nil {
				fmt.Fprintln(cmd.OutOrStdout(), util.JSONString(summary))
			}
			return err
		},
	}
}
