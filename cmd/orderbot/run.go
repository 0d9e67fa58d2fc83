package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"orderbot/internal/app"
)

const stopTimeout = 10 * time.Second

// waitStop blocks until a signal arrives or the app dies on its own.
func waitStop(ctx context.Context, a *app.App) app.StopReason {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		if s == syscall.SIGTERM {
			return app.StopSIGTERM
		}
		return app.StopSIGINT
	case <-a.Done():
		if a.Err() != nil {
			return app.StopFatalError
		}
		return app.StopUnknown
	case <-ctx.Done():
		return app.StopUnknown
	}
}

func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run headless: ticker, journal and optional telegram commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: cfgPath})
			if err != nil {
				return err
			}
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			reason := waitStop(cmd.Context(), a)

			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			a.Stop(ctx, reason)
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
}
