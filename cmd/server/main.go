package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"tempo-backend/internal/config"
	"tempo-backend/internal/database"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "tempo",
		Short:   "Tempo - task timer and productivity backend",
		Version: Version,
		RunE:    runServe,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			pool, err := openPostgres(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := database.RunMigrations(cmd.Context(), pool, cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("database migration failed: %w", err)
			}
			log.Printf("✓ %d migration(s) applied", n)
			return nil
		},
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("PostgreSQL connection failed: %w", err)
	}
	log.Println("✓ PostgreSQL connected")
	return pool, nil
}
