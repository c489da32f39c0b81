package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"keepsake/internal/api"
	"keepsake/internal/config"
	"keepsake/internal/daemonrun"
	"keepsake/internal/preflight"
	"keepsake/internal/store"
)

const daemonProbeTimeout = 2 * time.Second

var errDaemonUnreachable = errors.New("daemon unreachable")

type statusReport struct {
	DaemonRunning bool                `json:"daemonRunning"`
	PID           int                 `json:"pid,omitempty"`
	Scheduler     api.SchedulerStatus `json:"scheduler"`
	Checks        []checkResult       `json:"checks,omitempty"`
}

type checkResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var runChecks bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler state, capsule counts, and provider health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			report, err := collectStatus(cmd.Context(), ctx, cfg)
			if err != nil {
				return err
			}
			if runChecks {
				for _, r := range preflight.RunAll(cmd.Context(), cfg) {
					report.Checks = append(report.Checks, checkResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
				}
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			return ctx.emit(cmd, report, func() string {
				return renderStatusReport(report, colorize)
			})
		},
	}
	cmd.Flags().BoolVar(&runChecks, "checks", false, "Also run directory and provider preflight checks")
	return cmd
}

// collectStatus prefers the running daemon's view and falls back to reading
// the stores directly.
func collectStatus(ctx context.Context, cc *commandContext, cfg *config.Config) (statusReport, error) {
	if remote, err := fetchDaemonStatus(ctx, cfg); err == nil {
		return statusReport{
			DaemonRunning: remote.Running,
			PID:           remote.PID,
			Scheduler:     remote.Scheduler,
		}, nil
	}

	var report statusReport
	err := cc.withRuntime(func(rt *daemonrun.Runtime) error {
		report.Scheduler = api.FromStatusSummary(rt.Scheduler.Status(ctx))
		return nil
	})
	return report, err
}

func fetchDaemonStatus(ctx context.Context, cfg *config.Config) (*api.DaemonStatus, error) {
	base, ok := apiBaseURL(cfg.Paths.APIBind)
	if !ok {
		return nil, errDaemonUnreachable
	}
	reqCtx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	if token := cfg.Paths.APIToken; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDaemonUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errDaemonUnreachable, resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}

// apiBaseURL turns a listen address into a loopback URL. Port zero means the
// address cannot be dialed.
func apiBaseURL(bind string) (string, bool) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil || port == "" || port == "0" {
		return "", false
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), true
}

func renderStatusReport(report statusReport, colorize bool) string {
	var lines []string
	lines = append(lines, renderSectionHeader("Scheduler", colorize)...)
	if report.DaemonRunning {
		lines = append(lines, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(report.PID)+")", colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	sched := report.Scheduler
	if sched.LastSweep != "" {
		lines = append(lines, renderStatusLine("Last sweep", statusInfo, sched.LastSweep, colorize))
	}
	if r := sched.LastReport; r != nil {
		summary := fmt.Sprintf("due %d, unlocked %d, skipped %d, failed %d, recovered %d",
			r.Due, r.Unlocked, r.Skipped, r.Failed, r.Recovered)
		lines = append(lines, renderStatusLine("Last report", statusInfo, summary, colorize))
	}
	if sched.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, sched.LastError, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Capsules", colorize)...)
	rows := make([][]string, 0, len(sched.CapsuleStats))
	for _, state := range store.AllStates() {
		rows = append(rows, []string{string(state), strconv.Itoa(sched.CapsuleStats[string(state)])})
	}
	lines = append(lines, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Providers", colorize)...)
	for _, h := range sched.StageHealth {
		lines = append(lines, renderStatusLine(h.Name, readinessKind(h.Ready), h.Detail, colorize))
	}

	if len(report.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Checks", colorize)...)
		for _, c := range report.Checks {
			lines = append(lines, renderStatusLine(c.Name, readinessKind(c.Passed), c.Detail, colorize))
		}
	}
	return strings.Join(lines, "\n")
}
