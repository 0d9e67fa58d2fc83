package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderbot/internal/config"
	logx "orderbot/pkg/logx"
)

func CheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewManager(cfgPath, logx.Nop()).Load()
			if err != nil {
				return err
			}
			r, err := cfg.Resolve()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tick_interval    %s\n", r.TickInterval)
			fmt.Fprintf(out, "processing_time  %s\n", r.ProcessingTime)
			fmt.Fprintf(out, "initial_workers  %d\n", r.InitialWorkers)
			fmt.Fprintf(out, "eager_match      %v\n", r.EagerMatch)
			if r.Storage.Enabled() {
				fmt.Fprintf(out, "storage          %s %s\n", r.Storage.Driver, r.Storage.Path)
			} else {
				fmt.Fprintln(out, "storage          none")
			}
			fmt.Fprintf(out, "telegram         %v (owners: %d)\n", r.Telegram.Enabled, len(r.Telegram.OwnerUserIDs))
			fmt.Fprintf(out, "ui refresh       %s\n", r.UIRefresh)
			return nil
		},
	}
}
