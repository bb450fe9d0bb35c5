package hooks

import (
	"fmt"

	"github.com/grapheneos/appstore/pkg/errors"
)

// Common hook errors.
var (
	// ErrHookEventEmpty is returned when a hook has no event.
	ErrHookEventEmpty = fmt.Errorf("hook event cannot be empty")
	// ErrHookExecution is returned when a script fails to compile or run.
	ErrHookExecution = fmt.Errorf("error executing hook")
	// ErrHookScript is returned when a script sets err.
	ErrHookScript = fmt.Errorf("hook script error")
	// ErrHookLoad is returned when the hooks directory cannot be read.
	ErrHookLoad = fmt.Errorf("failed to load hooks")
)

// ErrUnsupportedEvent is returned for events outside Events.
func ErrUnsupportedEvent(event Event) error {
	return errors.Wrapf(ErrHookExecution, "unsupported hook event: %s", event)
}
