package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"db-user-sync/internal/app"
	"db-user-sync/internal/config"
	"db-user-sync/internal/sync/domain"
)

// withProvider loads the configuration, builds the app and runs fn with the provider of realm.
// An empty realm selects the configured provider.
func withProvider(ctx context.Context, realm string, fn func(a *app.App, p *domain.Provider) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if realm == "" {
		realm = cfg.Realm
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	p, err := a.Providers.ForRealm(realm)
	if err != nil {
		return err
	}
	return fn(a, p)
}

func printResult(cmd *cobra.Command, r domain.Result) {
	fmt.Fprintln(cmd.OutOrStdout(), r.String())
}

func newFullCmd() *cobra.Command {
	var realm string
	cmd := &cobra.Command{
		Use:   "full",
		Short: "Import every user returned by the provider's full query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProvider(cmd.Context(), realm, func(a *app.App, p *domain.Provider) error {
				r, err := a.Orchestrator.SyncAll(cmd.Context(), p)
				if err != nil {
					return err
				}
				printResult(cmd, r)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&realm, "realm", "", "Realm name (default: SYNC_REALM)")
	return cmd
}

// parseSince accepts RFC 3339 timestamps and plain dates (UTC).
func parseSince(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func newSinceCmd() *cobra.Command {
	var realm, since string
	cmd := &cobra.Command{
		Use:   "since",
		Short: "Import users changed since a timestamp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseSince(since)
			if err != nil {
				return err
			}
			return withProvider(cmd.Context(), realm, func(a *app.App, p *domain.Provider) error {
				r, err := a.Orchestrator.SyncSince(cmd.Context(), p, t)
				if err != nil {
					return err
				}
				printResult(cmd, r)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&realm, "realm", "", "Realm name (default: SYNC_REALM)")
	cmd.Flags().StringVar(&since, "since", "", "Lower bound of the change timestamp, RFC 3339 or YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("since")
	return cmd
}

func newUserCmd() *cobra.Command {
	var realm string
	cmd := &cobra.Command{
		Use:   "user <username>",
		Short: "Import a single user by username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return errors.New("username must not be empty")
			}
			return withProvider(cmd.Context(), realm, func(a *app.App, p *domain.Provider) error {
				r, err := a.Orchestrator.SyncUsername(cmd.Context(), p, username)
				if err != nil {
					return err
				}
				if r.Total() == 0 {
					return fmt.Errorf("%w: %s", domain.ErrUserNotFound, username)
				}
				printResult(cmd, r)
				if r.Failed > 0 {
					return fmt.Errorf("%w: %s", domain.ErrUserSyncFailed, username)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&realm, "realm", "", "Realm name (default: SYNC_REALM)")
	return cmd
}
