package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "orderbot",
	Short:         "Order dispatch simulator: VIP-first queue, bot pool, fixed processing time",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config yaml/json (defaults when empty)")

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(TUICmd())
	rootCmd.AddCommand(SimulateCmd())
	rootCmd.AddCommand(CheckCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
