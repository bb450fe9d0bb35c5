package hooks_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/hooks"
)

func TestAddHook(t *testing.T) {
	tests := []struct {
		name    string
		hook    hooks.Hook
		wantErr error
	}{
		{name: "valid hook", hook: hooks.Hook{Event: hooks.Installed, Content: `// nothing`}},
		{name: "empty event", hook: hooks.Hook{Content: "x := 1"}, wantErr: hooks.ErrHookEventEmpty},
		{name: "unknown event", hook: hooks.Hook{Event: "pre-install", Content: "x := 1"}, wantErr: hooks.ErrHookExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := hooks.NewManager(0)
			err := m.AddHook(tt.hook)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, m.Hooks())
				return
			}
			require.NoError(t, err)
			assert.True(t, m.HasHook(tt.hook.Event))
		})
	}
}

func TestRemoveHook(t *testing.T) {
	m := hooks.NewManager(0)
	require.NoError(t, m.AddHook(hooks.Hook{Event: hooks.Failed, Content: `// test`}))
	require.NoError(t, m.RemoveHook(hooks.Failed))
	assert.False(t, m.HasHook(hooks.Failed))
	assert.ErrorIs(t, m.RemoveHook(""), hooks.ErrHookEventEmpty)
}

func TestExecute(t *testing.T) {
	hctx := hooks.Context{
		Packages: []string{"org.example.app", "org.example.lib"},
		Error:    "download failed",
		Vars:     map[string]interface{}{"channel": "stable"},
	}

	tests := []struct {
		name    string
		script  string
		wantErr error
	}{
		{
			name:   "sees variables",
			script: `if len(packages) != 2 || packages[1] != "org.example.lib" || failure != "download failed" || channel != "stable" || event != "error" { err = "unexpected context" }`,
		},
		{
			name:   "imports stdlib",
			script: `text := import("text"); if !text.has_prefix(packages[0], "org.") { err = "bad prefix" }`,
		},
		{
			name:    "sets err",
			script:  `err = "refused " + packages[0]`,
			wantErr: hooks.ErrHookScript,
		},
		{
			name:    "runtime error",
			script:  `non_existent_function()`,
			wantErr: hooks.ErrHookExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := hooks.NewManager(0)
			require.NoError(t, m.AddHook(hooks.Hook{Event: hooks.Failed, Content: tt.script}))
			err := m.Execute(context.Background(), hooks.Failed, hctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestExecuteWithoutHook(t *testing.T) {
	m := hooks.NewManager(0)
	assert.NoError(t, m.Execute(context.Background(), hooks.Installed, hooks.Context{}))
}

func TestExecuteTimeout(t *testing.T) {
	m := hooks.NewManager(50 * time.Millisecond)
	require.NoError(t, m.AddHook(hooks.Hook{Event: hooks.Staging, Content: `for { }`}))

	start := time.Now()
	err := m.Execute(context.Background(), hooks.Staging, hooks.Context{})
	assert.ErrorIs(t, err, hooks.ErrHookExecution)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("installed.tengo", `// installed`)
	write("error.tengo", `// failed`)
	write("pre-install.tengo", `// unknown event`)
	write("installed.txt", `// wrong extension`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "staging.tengo"), 0o750))

	m := hooks.NewManager(0)
	require.NoError(t, hooks.LoadDir(m, dir))
	assert.Equal(t, []hooks.Event{hooks.Installed, hooks.Failed}, m.Hooks())
}

func TestLoadDirMissing(t *testing.T) {
	m := hooks.NewManager(0)
	require.NoError(t, hooks.LoadDir(m, filepath.Join(t.TempDir(), "absent")))
	assert.Empty(t, m.Hooks())
}

func TestTemplate(t *testing.T) {
	tests := []struct {
		event    hooks.Event
		expected string
	}{
		{hooks.Staging, "Staging hook"},
		{hooks.Committed, "Committed hook"},
		{hooks.Installed, "Installed hook"},
		{hooks.Failed, "Error hook"},
		{hooks.Uninstalled, "Uninstalled hook"},
		{hooks.Event("unknown"), "Unknown hook event"},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			assert.Contains(t, hooks.Template(tt.event), tt.expected)
		})
	}
}

func TestTemplatesCompile(t *testing.T) {
	for _, e := range hooks.Events {
		t.Run(string(e), func(t *testing.T) {
			m := hooks.NewManager(0)
			require.NoError(t, m.AddHook(hooks.Hook{Event: e, Content: hooks.Template(e)}))
			assert.NoError(t, m.Execute(context.Background(), e, hooks.Context{Packages: []string{"a"}}))
		})
	}
}
