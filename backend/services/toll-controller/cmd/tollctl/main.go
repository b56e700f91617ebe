package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tollctl",
		Short:         "Operator tools for the toll booth controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(passwdCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(statusCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
