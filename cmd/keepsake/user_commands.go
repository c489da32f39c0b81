package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"keepsake/internal/api"
	"keepsake/internal/daemonrun"
)

func newUserCommand(ctx *commandContext) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	userCmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Register a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				user, err := rt.Service.CreateUser(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				return ctx.emit(cmd, user, func() string {
					return fmt.Sprintf("Created user %s (%s)", user.Name, user.ID)
				})
			})
		},
	})

	userCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				users, err := rt.Service.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				return ctx.emit(cmd, api.UserListResponse{Users: users}, func() string {
					if len(users) == 0 {
						return "No users"
					}
					rows := make([][]string, 0, len(users))
					for _, u := range users {
						rows = append(rows, []string{u.ID, u.Name, u.CreatedAt})
					}
					return renderTable([]string{"ID", "Name", "Created"}, rows, nil)
				})
			})
		},
	})

	return userCmd
}
