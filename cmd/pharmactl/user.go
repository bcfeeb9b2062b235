package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/httpapi"
	"pharmapos/backend/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a staff account",
		Long:    "Create a staff account. This is how the first admin of a fresh database is made.",
		Example: `  pharmactl user create --username owner --password 's3cret!' --role admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			role, _ := cmd.Flags().GetString("role")

			ctx := service.WithActor(cmd.Context(), cliActor)
			svc, repo, closeFn, err := openService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			cfg := config.Load()
			auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
			user, err := auth.CreateUser(ctx, domain.UserCreateRequest{Username: username, Password: password, Role: role})
			if err != nil {
				return err
			}
			svc.RecordAudit(ctx, "user_create", "user", user.Username, "role="+user.Role)
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", user.Username, user.Role)
			return nil
		},
	}
	create.Flags().String("username", "", "Login name")
	create.Flags().String("password", "", "Initial password")
	create.Flags().String("role", domain.RoleCashier, "admin or cashier")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}
