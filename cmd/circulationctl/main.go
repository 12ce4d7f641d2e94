// Command circulationctl runs operator tasks against the circulation database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"circulation/internal/access"
	"circulation/internal/auth/store/revocation"
	circstore "circulation/internal/circulation/store"
	memberservice "circulation/internal/members/service"
	memberstore "circulation/internal/members/store"
	"circulation/internal/platform/config"
	"circulation/internal/platform/postgres"
	dErrors "circulation/pkg/domain-errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var databaseURL string
	root := &cobra.Command{
		Use:           "circulationctl",
		Short:         "Operator commands for the circulation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres connection string (defaults to DATABASE_URL)")

	open := func(ctx context.Context) (*sqlx.DB, error) {
		url := databaseURL
		if url == "" {
			cfg, err := config.FromEnv()
			if err != nil {
				return nil, err
			}
			url = cfg.DatabaseURL
		}
		if url == "" {
			return nil, errors.New("no database configured: pass --database-url or set DATABASE_URL")
		}
		return postgres.Open(ctx, url)
	}

	root.AddCommand(
		newMigrateCmd(open),
		newBootstrapCmd(open),
		newPurgeCmd(open),
	)
	return root
}

type opener func(ctx context.Context) (*sqlx.DB, error)

func newMigrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newBootstrapCmd(open opener) *cobra.Command {
	var name, email, pw string
	cmd := &cobra.Command{
		Use:   "bootstrap-librarian",
		Short: "Create the first librarian account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pw == "" {
				var err error
				if pw, err = promptPassword(cmd); err != nil {
					return err
				}
			}
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}

			members := memberservice.New(memberstore.NewPostgres(db), circstore.NewPostgres(db), access.NewGuard(),
				memberservice.WithTxRunner(postgres.NewTxRunner(db)))
			m, err := members.BootstrapLibrarian(cmd.Context(), name, email, pw)
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				fmt.Fprintf(cmd.OutOrStdout(), "librarian %s already exists\n", email)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created librarian %s (%s)\n", m.Email, m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name; derived from the email when omitted")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&pw, "password", "", "password; prompted when omitted")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newPurgeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-revocations",
		Short: "Delete revoked token entries that have expired",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := revocation.NewPostgresTRL(db.DB).PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired revocations\n", n)
			return nil
		},
	}
}

func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimSpace(string(raw))
	if pw == "" {
		return "", errors.New("password must not be empty")
	}
	return pw, nil
}
