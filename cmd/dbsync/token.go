package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"db-user-sync/internal/app"
	"db-user-sync/internal/config"
	"db-user-sync/internal/directory"
	"db-user-sync/internal/security"
)

// issueToken mints an admin access token for username in realm. The user must exist; the server
// checks the admin role on every call.
func issueToken(ctx context.Context, a *app.App, realmName, username string) (string, error) {
	cfg := a.Config
	if cfg.JWTPrivateKey == "" {
		return "", errors.New("JWT_PRIVATE_KEY must be set to mint tokens")
	}
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return "", fmt.Errorf("jwt private key: %w", err)
	}
	tokens := security.NewTokenProvider(priv, priv.Public(), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	var userID, realmID string
	err = directory.RunInTransaction(ctx, a.Directory, func(s directory.Session) error {
		realm, err := s.Realms().GetRealmByName(ctx, realmName)
		if err != nil {
			return err
		}
		if realm == nil {
			return fmt.Errorf("%w: %s", directory.ErrRealmNotFound, realmName)
		}
		u, err := s.Users().GetUserByUsername(ctx, realm, username)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %s not found in realm %s", username, realmName)
		}
		userID, realmID = u.ID, realm.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	token, _, err := tokens.IssueAccess(userID, realmID)
	return token, err
}

func newTokenCmd() *cobra.Command {
	var realm, username string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin access token for a directory user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
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

			token, err := issueToken(ctx, a, realm, username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&realm, "realm", "", "Realm name (default: SYNC_REALM)")
	cmd.Flags().StringVar(&username, "username", "", "Directory username (required)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
