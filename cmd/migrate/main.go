package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stockroom.org/internal/config"
	"stockroom.org/internal/migrate"
	"stockroom.org/internal/obs"
	"stockroom.org/internal/store/pg"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dsn     string
		dir     string
		timeout time.Duration
	)
	logg := obs.NewLogger(obs.Options{ServiceName: "stockroom-migrate", Format: "console", Output: os.Stderr})

	withManager := func(run func(ctx context.Context, mgr *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide --dsn or %s", config.EnvDBDSN)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			var files fs.FS = pg.Migrations()
			if dir != "" {
				files = os.DirFS(dir)
			}
			return run(ctx, migrate.NewManager(db, files, migrate.WithLogger(logg)))
		}
	}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the stockroom documents schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv(config.EnvDBDSN), "PostgreSQL DSN")
	root.PersistentFlags().StringVar(&dir, "dir", "", "directory of *.up.sql/*.down.sql files (default: embedded)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, mgr *migrate.Manager) error {
				applied, err := mgr.Up(ctx)
				for _, name := range applied {
					fmt.Fprintf(os.Stdout, "applied %s\n", name)
				}
				if err == nil && len(applied) == 0 {
					fmt.Fprintln(os.Stdout, "nothing to apply")
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, mgr *migrate.Manager) error {
				name, err := mgr.Down(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "rolled back %s\n", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(ctx context.Context, mgr *migrate.Manager) error {
				applied, pending, err := mgr.Status(ctx)
				if err != nil {
					return err
				}
				for _, a := range applied {
					fmt.Fprintf(os.Stdout, "applied  %s  %s\n", a.AppliedAt.Format(time.RFC3339), a.Name)
				}
				for _, name := range pending {
					fmt.Fprintf(os.Stdout, "pending  %s\n", name)
				}
				return nil
			}),
		},
	)
	return root
}
