package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"keepsake/internal/config"
	"keepsake/internal/services/llm"
	"keepsake/internal/services/render"
)

const renderCheckTimeout = 5 * time.Second

// CheckLLM verifies that the text provider API is reachable and the key is valid.
// It makes a single attempt bounded by the configured stage timeout.
func CheckLLM(ctx context.Context, name string, cfg *config.Config) Result {
	if strings.TrimSpace(cfg.Enrichment.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.StageTimeout())
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.Enrichment.APIKey,
		BaseURL:        cfg.Enrichment.BaseURL,
		Model:          cfg.Enrichment.Model,
		Referer:        cfg.Enrichment.Referer,
		Title:          cfg.Enrichment.Title,
		TimeoutSeconds: cfg.Enrichment.StageTimeoutSeconds,
	}, llm.WithAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError("LLM API", err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckRender verifies that the render service answers its health endpoint.
func CheckRender(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Render service"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, renderCheckTimeout)
	defer cancel()

	client := render.NewClient(render.Config{BaseURL: base, APIKey: strings.TrimSpace(apiKey)})
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError("render service", err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeError produces a human-readable summary for health check failures.
func summarizeError(target string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("health check timed out (%s unresponsive)", target)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("health check timed out (%s unreachable)", target)
	}
	return err.Error()
}
