package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/service"
	pgstore "pharmapos/backend/internal/store/postgres"
)

// cliActor is recorded in the audit log for changes made from the command line.
var cliActor = domain.Actor{Username: "pharmactl", Role: domain.RoleAdmin}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pharmactl",
		Short: "Operations CLI for the pharmacy backend",
		Long: `pharmactl runs schema migrations, exports the cash records as
spreadsheets and manages staff accounts against the database named by
DATABASE_URL. A .env file in the working directory is read first.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadDotEnv()
			logging.Setup(config.Load().LogLevel, os.Stderr)
		},
	}
	root.SilenceUsage = true
	root.AddCommand(newMigrateCmd(), newExportCmd(), newUserCmd())
	return root
}

func databaseURL() (string, error) {
	url := config.Load().DatabaseURL
	if url == "" {
		return "", errors.New("DATABASE_URL environment variable is required")
	}
	return url, nil
}

// openService connects to Postgres and returns a service running as the CLI
// actor. The returned func closes the connection.
func openService(ctx context.Context) (*service.Service, *pgstore.Store, func(), error) {
	url, err := databaseURL()
	if err != nil {
		return nil, nil, nil, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, err := pgstore.New(connectCtx, url)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := config.Load()
	svc := service.New(repo, nil, nil, service.Options{
		PhoneRegion:       cfg.PhoneRegion,
		LowStockThreshold: cfg.LowStockThreshold,
	})
	return svc, repo, func() { _ = repo.Close() }, nil
}
