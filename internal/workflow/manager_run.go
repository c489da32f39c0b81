package workflow

import (
	"context"
	"errors"
	"time"

	"keepsake/internal/logging"
)

// Start begins the background sweep loop. The first sweep runs immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("scheduler already running")
	}
	if m.pipeline == nil {
		return errors.New("scheduler pipeline not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.loop(runCtx)
	return nil
}

// Stop terminates the sweep loop and waits for the current sweep to return.
// A retrieval already past its claim finishes on its own timeouts.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	for {
		wait := m.cfg.SweepInterval()
		if _, err := m.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = m.cfg.ErrorRetryInterval()
			logging.ErrorWithContext(m.logger, "sweep failed", "sweep_failed",
				logging.Error(err),
				logging.Duration("retry_in", wait),
				logging.String(logging.FieldErrorHint, "check metadata database access"),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
