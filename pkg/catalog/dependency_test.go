package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDependency(t *testing.T) {
	tests := []struct {
		input   string
		want    Dependency
		wantErr bool
	}{
		{input: "org.example.lib", want: Dependency{PackageName: "org.example.lib"}},
		{input: "org.example.lib 42", want: Dependency{PackageName: "org.example.lib", MinVersion: 42}},
		{input: "org.example.lib 42 SkipIfMissing", want: Dependency{PackageName: "org.example.lib", MinVersion: 42, Flags: []DependencyFlag{SkipIfMissing}}},
		{input: "org.example.lib 1 Unknown,SkipIfMissing", want: Dependency{PackageName: "org.example.lib", MinVersion: 1, Flags: []DependencyFlag{SkipIfMissing}}},
		{input: "org.example.lib 1 Unknown", want: Dependency{PackageName: "org.example.lib", MinVersion: 1}},
		{input: "org.example.lib abc", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDependency(tt.input, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDependencyTranslates(t *testing.T) {
	d, err := ParseDependency("app.new 3", func(s string) string { return strings.Replace(s, "app.new", "com.old", 1) })
	require.NoError(t, err)
	assert.Equal(t, "com.old", d.PackageName)
	assert.Equal(t, "com.old >= 3", d.String())
}

func TestStaticDep(t *testing.T) {
	tests := []struct {
		input   string
		present int64
		ok      bool
		wantErr bool
	}{
		{input: "a", present: 0, ok: true},
		{input: "a >= 3", present: 3, ok: true},
		{input: "a >= 3", present: 2},
		{input: "a == 3", present: 3, ok: true},
		{input: "a == 3", present: 4},
		{input: "a < 3", present: 2, ok: true},
		{input: "a < 3", present: 3},
		{input: "a > 3", wantErr: true},
		{input: "a >= x", wantErr: true},
		{input: "a >=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := parseStaticDep(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", d.lhs)
			assert.Equal(t, tt.ok, d.check(tt.present))
		})
	}
}
