package hooks

import (
	"context"
	"time"

	"github.com/grapheneos/appstore/internal/logger"
)

// DefaultTimeout bounds one script run.
const DefaultTimeout = 30 * time.Second

// Manager holds the hooks of one client and runs them.
type Manager struct {
	executor *TengoExecutor
	timeout  time.Duration
}

// NewManager creates a manager whose scripts run for at most timeout,
// or DefaultTimeout when timeout is not positive.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{executor: NewTengoExecutor(), timeout: timeout}
}

// AddHook adds or replaces the hook of an event.
func (m *Manager) AddHook(hook Hook) error {
	if hook.Event == "" {
		return ErrHookEventEmpty
	}
	if !hook.Event.Valid() {
		return ErrUnsupportedEvent(hook.Event)
	}
	m.executor.AddScript(hook.Event, hook.Content)
	return nil
}

// RemoveHook removes the hook of event.
func (m *Manager) RemoveHook(event Event) error {
	if event == "" {
		return ErrHookEventEmpty
	}
	m.executor.RemoveScript(event)
	return nil
}

// HasHook checks if event has a hook.
func (m *Manager) HasHook(event Event) bool {
	return m.executor.HasScript(event)
}

// Hooks lists the events that have a hook, in Events order.
func (m *Manager) Hooks() []Event {
	var out []Event
	for _, e := range Events {
		if m.HasHook(e) {
			out = append(out, e)
		}
	}
	return out
}

// Execute runs the hook of event with hctx.
func (m *Manager) Execute(ctx context.Context, event Event, hctx Context) error {
	if !m.HasHook(event) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	logger.Debug("Running hook", logger.Fields{"event": string(event), "packages": hctx.Packages})
	return m.executor.Execute(ctx, event, hctx)
}

// Notify runs the hook of event and logs a failure instead of returning
// it. Hooks never change the outcome of the job that fired them.
func (m *Manager) Notify(ctx context.Context, event Event, hctx Context) {
	if err := m.Execute(ctx, event, hctx); err != nil {
		logger.Warn("Hook failed", logger.Fields{"event": string(event), "error": err.Error()})
	}
}
