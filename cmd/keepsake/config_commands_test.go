package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitWritesSampleOnce(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "keepsake.toml")

	run := func(args ...string) (string, error) {
		cmd := newRootCommand()
		var stdout bytes.Buffer
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.Execute()
		return stdout.String(), err
	}

	out, err := run("config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target path in output: %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[scheduler]") {
		t.Fatalf("sample config missing scheduler section")
	}

	if _, err := run("config", "init", "--path", target); err == nil || !strings.Contains(err.Error(), "--overwrite") {
		t.Fatalf("expected overwrite hint, got %v", err)
	}
	if _, err := run("config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateUsesFlagPath(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, env.configPath) || !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}
