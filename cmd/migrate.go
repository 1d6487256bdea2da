package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/remind/internal/config"
	"github.com/nextlevelbuilder/remind/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|version]",
		Short: "Manage schema migrations of the reminder store",
		Long:  "Applies or rolls back the embedded schema migrations. The serve path migrates on open as well; this exists for operating on the database while the service is down.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			action := "up"
			if len(args) > 0 {
				action = args[0]
			}
			runMigrate(action)
		},
	}
	return cmd
}

func runMigrate(action string) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	path := config.ExpandHome(cfg.Store.Path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer db.Close()

	m, err := store.NewMigrator(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init migrator: %v\n", err)
		os.Exit(1)
	}

	switch action {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "migrate up: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("migrations applied: %s\n", path)
	case "down":
		if err := m.Steps(-1); err != nil {
			fmt.Fprintf(os.Stderr, "migrate down: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("rolled back one migration")
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("no migrations applied")
				return
			}
			fmt.Fprintf(os.Stderr, "migrate version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty: %v)\n", v, dirty)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q (want up, down, or version)\n", action)
		os.Exit(1)
	}
}
