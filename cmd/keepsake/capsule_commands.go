package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"keepsake/internal/api"
	"keepsake/internal/daemonrun"
	"keepsake/internal/lifecycle"
)

func newCapsuleCommand(ctx *commandContext) *cobra.Command {
	capsuleCmd := &cobra.Command{
		Use:   "capsule",
		Short: "Create, seal, and open time capsules",
	}

	capsuleCmd.AddCommand(newCapsuleCreateCommand(ctx))
	capsuleCmd.AddCommand(newCapsuleAttachCommand(ctx))
	capsuleCmd.AddCommand(newCapsuleInviteCommand(ctx))
	capsuleCmd.AddCommand(newCapsuleShowCommand(ctx))
	capsuleCmd.AddCommand(newCapsuleListCommand(ctx))
	capsuleCmd.AddCommand(newCapsuleRetrieveCommand(ctx))
	capsuleCmd.AddCommand(newCapsuleRetryCommand(ctx))
	capsuleCmd.AddCommand(newCapsuleNotifyCommand(ctx))

	return capsuleCmd
}

func newCapsuleCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateCapsuleRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft capsule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				capsule, err := rt.Service.CreateCapsule(cmd.Context(), req)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, capsule, func() string {
					return fmt.Sprintf("Created capsule %s (%s), unlocks at %s", capsule.ID, capsule.State, capsule.UnlockAt)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "Owner user ID")
	cmd.Flags().StringVar(&req.Title, "title", "", "Capsule title")
	cmd.Flags().StringVar(&req.Description, "description", "", "Optional description")
	cmd.Flags().StringVar(&req.UnlockAt, "unlock-at", "", "Unlock time (RFC 3339, e.g. 2030-06-01T12:00:00Z)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("unlock-at")
	return cmd
}

func newCapsuleAttachCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <capsule-id> <file>...",
		Short: "Upload media and seal the capsule",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uploads, err := readUploads(args[1:])
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				capsule, err := rt.Service.AttachMedia(cmd.Context(), args[0], uploads)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, capsule, func() string {
					return fmt.Sprintf("Attached %d file(s); capsule %s is %s", len(capsule.Media), capsule.ID, capsule.State)
				})
			})
		},
	}
}

func readUploads(paths []string) ([]lifecycle.Upload, error) {
	uploads := make([]lifecycle.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		uploads = append(uploads, lifecycle.Upload{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
			Data:        data,
		})
	}
	return uploads, nil
}

func newCapsuleInviteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invite <capsule-id> <user-id>...",
		Short: "Add collaborators to a capsule",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				if err := rt.Service.Invite(cmd.Context(), args[0], args[1:]); err != nil {
					return err
				}
				capsule, err := rt.Service.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, capsule, func() string {
					return fmt.Sprintf("Invited %d user(s) to %s", len(args)-1, capsule.ID)
				})
			})
		},
	}
}

func newCapsuleShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <capsule-id>",
		Short: "Show capsule details and attached media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				capsule, err := rt.Service.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				return ctx.emit(cmd, capsule, func() string {
					return renderCapsuleDetail(capsule, colorize)
				})
			})
		},
	}
}

func renderCapsuleDetail(c api.Capsule, colorize bool) string {
	lines := renderSectionHeader(c.Title, colorize)
	lines = append(lines,
		renderStatusLine("ID", statusInfo, c.ID, colorize),
		renderStatusLine("Owner", statusInfo, c.OwnerID, colorize),
		renderStatusLine("State", stateKind(c.State), c.State, colorize),
		renderStatusLine("Unlocks", statusInfo, c.UnlockAt, colorize),
	)
	if c.Description != "" {
		lines = append(lines, renderStatusLine("Description", statusInfo, c.Description, colorize))
	}
	if c.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, c.FailedStage+": "+c.LastError, colorize))
	}
	summary := fmt.Sprintf("%d image(s), %d video(s), %d other, %d bytes",
		c.Summary.Images, c.Summary.Videos, c.Summary.Other, c.Summary.TotalBytes)
	lines = append(lines, renderStatusLine("Media", statusInfo, summary, colorize))
	if len(c.Media) > 0 {
		rows := make([][]string, 0, len(c.Media))
		for _, m := range c.Media {
			rows = append(rows, []string{strconv.Itoa(m.Position), m.Name, m.Category, valueOrDash(m.ContentType), strconv.FormatInt(m.SizeBytes, 10)})
		}
		lines = append(lines, renderTable(
			[]string{"#", "Name", "Category", "Type", "Bytes"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
		))
	}
	return strings.Join(lines, "\n")
}

func newCapsuleListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var states []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List capsules, optionally filtered by owner or state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				capsules, err := rt.Service.ListCapsules(cmd.Context(), owner, states)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, api.CapsuleListResponse{Capsules: capsules}, func() string {
					if len(capsules) == 0 {
						return "No capsules"
					}
					rows := make([][]string, 0, len(capsules))
					for _, c := range capsules {
						media := c.Summary.Images + c.Summary.Videos + c.Summary.Other
						rows = append(rows, []string{c.ID, c.Title, c.State, c.UnlockAt, strconv.Itoa(media)})
					}
					return renderTable(
						[]string{"ID", "Title", "State", "Unlocks", "Media"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
					)
				})
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only capsules owned by this user")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only capsules in these states (repeatable)")
	return cmd
}

func newCapsuleRetrieveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "retrieve <capsule-id>",
		Aliases: []string{"content", "open"},
		Short:   "Retrieve enriched content, unlocking the capsule if it is due",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				content, err := rt.Service.Content(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, content, func() string { return renderContent(content) })
			})
		},
	}
}

func newCapsuleRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <capsule-id>",
		Short: "Re-run enrichment for a failed capsule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				content, err := rt.Service.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, content, func() string { return renderContent(content) })
			})
		},
	}
}

func newCapsuleNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notify <capsule-id>",
		Short: "Re-send the unlock notification to the owner and collaborators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				if err := rt.Service.Notify(cmd.Context(), args[0]); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"capsuleId": args[0], "status": "notified"})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notified members of %s\n", args[0])
				return nil
			})
		},
	}
}

func renderContent(c api.Content) string {
	var b strings.Builder
	title := c.Title
	if title == "" {
		title = c.CapsuleID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "## Analysis\n\n%s\n\n", strings.TrimSpace(c.Analysis))
	fmt.Fprintf(&b, "## Narrative\n\n%s\n\n", strings.TrimSpace(c.Narrative))
	fmt.Fprintf(&b, "## Then and now\n\n%s\n\n", strings.TrimSpace(c.Comparison))
	fmt.Fprintf(&b, "Video: %s", valueOrDash(c.VideoRef))
	if c.CompletedAt != "" {
		fmt.Fprintf(&b, "\nCompleted: %s", c.CompletedAt)
	}
	return b.String()
}
