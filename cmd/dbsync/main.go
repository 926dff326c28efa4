// dbsync runs synchronization on demand and talks to a running server's admin service.
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
		Use:           "dbsync",
		Short:         "Synchronize users from a SQL database into the identity directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newFullCmd(), newSinceCmd(), newUserCmd(), newTokenCmd(), newRemoteCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "dbsync:", err)
		stop()
		os.Exit(1)
	}
}
