package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// scriptModules are the tengo stdlib modules a script may import.
var scriptModules = []string{"fmt", "os", "text", "times", "json", "enum"}

// TengoExecutor handles the execution of Tengo scripts.
type TengoExecutor struct {
	scripts map[Event]string
	mutex   sync.RWMutex
}

// NewTengoExecutor creates a new Tengo script executor.
func NewTengoExecutor() *TengoExecutor {
	return &TengoExecutor{
		scripts: make(map[Event]string),
	}
}

// Execute runs the script of event, if any. It stops the script when ctx
// is done.
func (e *TengoExecutor) Execute(ctx context.Context, event Event, hctx Context) error {
	e.mutex.RLock()
	script, exists := e.scripts[event]
	e.mutex.RUnlock()
	if !exists {
		return nil
	}

	s := tengo.NewScript([]byte(script))
	s.SetImports(stdlib.GetModuleMap(scriptModules...))

	packages := make([]interface{}, len(hctx.Packages))
	for i, p := range hctx.Packages {
		packages[i] = p
	}
	vars := map[string]interface{}{
		"event":    string(event),
		"packages": packages,
		"failure":  hctx.Error,
	}
	for k, v := range hctx.Vars {
		vars[k] = v
	}
	for k, v := range vars {
		if err := s.Add(k, v); err != nil {
			return fmt.Errorf("failed to add variable '%s' to script: %w", k, err)
		}
	}
	// err is the script's way to fail the hook.
	if err := s.Add("err", ""); err != nil {
		return fmt.Errorf("failed to add variable 'err' to script: %w", err)
	}

	compiled, err := s.RunContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", event, ErrHookExecution, err)
	}

	switch v := compiled.Get("err").Value().(type) {
	case error:
		return fmt.Errorf("%s: %w: %w", event, ErrHookScript, v)
	case string:
		if v != "" {
			return fmt.Errorf("%s: %w: %s", event, ErrHookScript, v)
		}
	}
	return nil
}

// AddScript adds or updates the script of event.
func (e *TengoExecutor) AddScript(event Event, script string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.scripts[event] = script
}

// RemoveScript removes the script of event.
func (e *TengoExecutor) RemoveScript(event Event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.scripts, event)
}

// HasScript checks if event has a script.
func (e *TengoExecutor) HasScript(event Event) bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	_, exists := e.scripts[event]
	return exists
}
