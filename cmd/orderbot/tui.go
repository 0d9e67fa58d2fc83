package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"orderbot/internal/app"
	"orderbot/internal/tui"
)

func TUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run with the live terminal board (logs go to the log file only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: cfgPath, Quiet: true})
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := a.Start(ctx); err != nil {
				return err
			}
			runErr := tui.Run(ctx, a.Scheduler(), a.Config().UIRefresh)

			reason := app.StopUserQuit
			if ctx.Err() != nil {
				reason = app.StopSIGINT
			}
			sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
			defer scancel()
			a.Stop(sctx, reason)
			return runErr
		},
	}
}
