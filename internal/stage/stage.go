package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keepsake/internal/services"
)

// Stage names recorded as failed_stage and carried in log fields.
const (
	Fetch   = "fetch"
	Analyze = "analyze"
	Enhance = "enhance"
	Compare = "compare"
	Render  = "render"
	Persist = "persist"
)

// Chain lists the enrichment stages in execution order.
var Chain = []string{Analyze, Enhance, Compare, Render}

// Checker is implemented by anything that can report its readiness.
type Checker interface {
	HealthCheck(context.Context) Health
}

// Run executes fn under its own timeout and tags any failure with marker and
// the stage name. A deadline hit inside fn is reported as a timeout of the stage.
func Run(ctx context.Context, name string, timeout time.Duration, marker error, fn func(context.Context) (string, error)) (string, error) {
	stageCtx := services.WithStage(ctx, name)
	cancel := func() {}
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(stageCtx, timeout)
	}
	defer cancel()

	out, err := fn(stageCtx)
	if err == nil && stageCtx.Err() != nil {
		err = stageCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", services.ErrTimeout, timeout, err)
		}
		return "", services.Wrap(marker, name, "run", "", err)
	}
	return out, nil
}
