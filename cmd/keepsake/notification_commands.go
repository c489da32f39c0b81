package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keepsake/internal/api"
	"keepsake/internal/daemonrun"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Inspect recorded user notifications",
	}

	var unreadOnly bool
	listCmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's notifications, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				items, err := rt.Service.Notifications(cmd.Context(), args[0], unreadOnly)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, api.NotificationListResponse{Notifications: items}, func() string {
					if len(items) == 0 {
						return "No notifications"
					}
					rows := make([][]string, 0, len(items))
					for _, n := range items {
						rows = append(rows, []string{n.ID, n.Kind, n.CapsuleID, n.Message, yesNo(n.Read), n.CreatedAt})
					}
					return renderTable([]string{"ID", "Kind", "Capsule", "Message", "Read", "Created"}, rows, nil)
				})
			})
		},
	}
	listCmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only show unread notifications")
	notifyCmd.AddCommand(listCmd)

	notifyCmd.AddCommand(&cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				if err := rt.Service.MarkRead(cmd.Context(), args[0]); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"id": args[0], "status": "read"})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read\n", args[0])
				return nil
			})
		},
	})

	return notifyCmd
}
