// Package hooks runs user scripts when install jobs change phase.
package hooks

// Event names a point in the life of an install job. A script runs for
// an event when <hooks dir>/<event>.tengo exists.
type Event string

// Supported events. The first four match the phases of install jobs.
const (
	Staging     Event = "staging"
	Committed   Event = "committed"
	Installed   Event = "installed"
	Failed      Event = "error"
	Uninstalled Event = "uninstalled"
)

// Events lists every supported event.
var Events = []Event{Staging, Committed, Installed, Failed, Uninstalled}

// Valid reports whether e is a supported event.
func (e Event) Valid() bool {
	for _, known := range Events {
		if e == known {
			return true
		}
	}
	return false
}

// Hook is a script bound to an event.
type Hook struct {
	Event   Event
	Content string
}

// Context is what a script sees. Packages and Error are exposed as the
// packages and failure variables, Vars under their own names.
type Context struct {
	Packages []string
	Error    string
	Vars     map[string]interface{}
}
