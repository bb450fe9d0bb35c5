package hooks

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/grapheneos/appstore/pkg/errors"
)

// ScriptExtension is the file extension of hook scripts.
const ScriptExtension = ".tengo"

// LoadDir adds every <event>.tengo script in dir. A missing directory
// holds no hooks; files for unknown events are skipped.
func LoadDir(manager *Manager, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(ErrHookLoad, "failed to read hooks directory %s: %v", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ScriptExtension {
			continue
		}
		event := Event(strings.TrimSuffix(entry.Name(), ScriptExtension))
		if !event.Valid() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(ErrHookLoad, "error reading hook file %s: %v", path, err)
		}
		if err := manager.AddHook(Hook{Event: event, Content: string(content)}); err != nil {
			return errors.Wrapf(err, "error adding hook %s", event)
		}
	}
	return nil
}

// Template returns a starting point for the script of event.
func Template(event Event) string {
	const vars = `// Available variables:
// - event: string - the event name
// - packages: array - names of the packages of the job
// - failure: string - the localized failure, empty unless the job failed
// Set err = "message" to report a failure; it is logged, the job is not
// affected.
`
	switch event {
	case Staging:
		return "// Staging hook\n// This script runs before the apks of a job are downloaded.\n" + vars
	case Committed:
		return "// Committed hook\n// This script runs once the installer session is committed.\n" + vars
	case Installed:
		return `// Installed hook
// This script runs after the OS reported a successful install.
` + vars + `
// Example: print the installed packages
/*
fmt := import("fmt")
for p in packages {
    fmt.println("installed ", p)
}
*/`
	case Failed:
		return "// Error hook\n// This script runs when a job fails or is cancelled.\n" + vars
	case Uninstalled:
		return "// Uninstalled hook\n// This script runs after a package was removed.\n" + vars
	default:
		return "// Unknown hook event: " + string(event)
	}
}
