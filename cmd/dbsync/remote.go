package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	synchandler "db-user-sync/internal/sync/handler"
)

const remoteTimeout = 5 * time.Minute

type remoteOptions struct {
	addr  string
	token string
}

// dial connects to the admin service and returns a context carrying the bearer token.
func (o *remoteOptions) dial(ctx context.Context) (*synchandler.AdminClient, context.Context, func(), error) {
	token := strings.TrimSpace(o.token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("DBSYNC_TOKEN"))
	}
	if token == "" {
		return nil, nil, nil, errors.New("an admin token is required: pass --token or set DBSYNC_TOKEN")
	}
	conn, err := grpc.NewClient(o.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial %s: %w", o.addr, err)
	}
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	closeFn := func() {
		cancel()
		_ = conn.Close()
	}
	return synchandler.NewAdminClient(conn), ctx, closeFn, nil
}

func printMessage(cmd *cobra.Command, m proto.Message) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func newRemoteCmd() *cobra.Command {
	opts := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call the admin service of a running server",
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "localhost:8080", "Admin gRPC address")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "Admin access token (default: DBSYNC_TOKEN)")

	cmd.AddCommand(&cobra.Command{
		Use:   "user <username>",
		Short: "Synchronize one user of the caller's realm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, done, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			res, err := client.TriggerUserSync(ctx, args[0])
			if err != nil {
				return err
			}
			return printMessage(cmd, res)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "metrics",
		Short: "Show the source connection pool statistics of the caller's realm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, done, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			res, err := client.GetPoolMetrics(ctx)
			if err != nil {
				return err
			}
			return printMessage(cmd, res)
		},
	})
	return cmd
}
