package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"keepsake/internal/config"
	"keepsake/internal/daemonrun"
	"keepsake/internal/logging"
	"keepsake/internal/services"
)

type commandContext struct {
	configFlag  *string
	jsonFlag    *bool
	runtimeOpts []daemonrun.RuntimeOption

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool, opts ...daemonrun.RuntimeOption) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		jsonFlag:    jsonFlag,
		runtimeOpts: opts,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withRuntime opens the stores in-process for the duration of fn.
func (c *commandContext) withRuntime(fn func(*daemonrun.Runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return err
	}
	rt, err := daemonrun.Open(cfg, logger, c.runtimeOpts...)
	if err != nil {
		return fmt.Errorf("%w (if the daemon is running with the badger backend, use the HTTP API)", err)
	}
	defer rt.Close()
	return fn(rt)
}

// cliLogger only surfaces warnings so table output stays readable.
func cliLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// skipConfigLoad is the cobra annotation for commands that load (or write)
// the configuration themselves.
const skipConfigLoad = "skipConfigLoad"

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[skipConfigLoad] == "true" {
			return true
		}
	}
	return false
}

func describeError(err error) string {
	kind := services.Kind(err)
	if kind == "" || kind == "internal" {
		return err.Error()
	}
	return fmt.Sprintf("%s [%s]", err.Error(), kind)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
