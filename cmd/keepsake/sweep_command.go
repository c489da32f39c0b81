package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keepsake/internal/api"
	"keepsake/internal/daemonrun"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Unlock every due capsule once, without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *daemonrun.Runtime) error {
				report, err := rt.Scheduler.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				payload := api.FromSweepReport(report)
				return ctx.emit(cmd, payload, func() string {
					return fmt.Sprintf("Sweep finished in %dms: %d due, %d unlocked, %d skipped, %d failed, %d recovered",
						payload.DurationMS, payload.Due, payload.Unlocked, payload.Skipped, payload.Failed, payload.Recovered)
				})
			})
		},
	}
}
