package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"campusmart/internal/config"
	"campusmart/migrations"
)

var descriptions = map[string]string{
	"up":      "Migrate to the latest version",
	"up-one":  "Migrate one version up",
	"down":    "Roll back one version",
	"status":  "Show migration status",
	"version": "Show current version",
	"reset":   "Roll back all migrations",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the migrate command tree. The --db flag defaults to the configured database path.
func newRootCmd(cfg *config.Config) *cobra.Command {
	var dbPath string
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the marketplace database schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", cfg.DatabasePath, "path to sqlite database")

	for _, name := range migrations.Commands {
		root.AddCommand(&cobra.Command{
			Use:   name,
			Short: descriptions[name],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(dbPath, cmd.Name())
			},
		})
	}
	return root
}

func run(dbPath, command string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return migrations.Apply(db, command)
}
