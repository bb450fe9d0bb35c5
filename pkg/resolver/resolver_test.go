package resolver

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/test/testutil"
)

type fakeStates struct {
	cat      *catalog.Catalog
	channels map[string]catalog.ReleaseChannel
	pkgs     *testutil.FakePackages
}

func (f *fakeStates) Catalog() *catalog.Catalog { return f.cat }

func (f *fakeStates) PreferredChannel(name string) catalog.ReleaseChannel {
	if ch, ok := f.channels[name]; ok {
		return ch
	}
	return catalog.ChannelStable
}

func (f *fakeStates) InstalledPackage(name string) *platform.PackageInfo {
	info, err := f.pkgs.GetPackageInfo(name)
	if err != nil {
		return nil
	}
	return info
}

// chainDoc describes app -> lib-b 2 -> lib-c, plus an optional package.
func chainDoc() *testutil.CatalogJSON {
	doc := testutil.NewCatalogJSON(1_800_000_000)
	app := doc.Package("app")
	app["deps"] = []string{"lib-b 2", "optional 1 SkipIfMissing"}
	app.Variant(1, []byte("app"))

	b := doc.Package("lib-b")
	b["deps"] = []string{"lib-c"}
	b.Variant(2, []byte("b2"))
	b.Variant(3, []byte("b3"))["channel"] = "beta"

	c := doc.Package("lib-c")
	c["isSharedLibrary"] = true
	c.Variant(7, []byte("c"))
	return doc
}

func setup(t *testing.T, doc *testutil.CatalogJSON, pkgs *testutil.FakePackages) (*Resolver, *fakeStates) {
	t.Helper()
	cat, err := catalog.Parse(doc.Bytes(), "", catalog.Environment{
		Device:   platform.Device{SDK: 35, PrimaryABI: "arm64-v8a"},
		Packages: testutil.NewFakePackages(),
	})
	require.NoError(t, err)
	states := &fakeStates{cat: cat, channels: map[string]catalog.ReleaseChannel{}, pkgs: pkgs}
	return New(states, pkgs), states
}

func names(vs []*catalog.Variant) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Name())
	}
	return out
}

func variant(t *testing.T, states *fakeStates, name string) *catalog.Variant {
	t.Helper()
	c := states.cat.Container(name)
	require.NotNil(t, c, name)
	return c.Variant(catalog.ChannelStable)
}

func requireReason(t *testing.T, err error, dependant, dependency string, reason errors.MissingDependencyReason) {
	t.Helper()
	var resErr *errors.DependencyResolutionError
	require.True(t, stderrors.As(err, &resErr), "want *DependencyResolutionError, got %v", err)
	assert.Equal(t, dependant, resErr.Details.Dependant)
	assert.Equal(t, dependency, resErr.Details.Dependency)
	assert.Equal(t, reason, resErr.Details.Reason)
}

func TestMissingDependenciesDeepestFirst(t *testing.T) {
	r, states := setup(t, chainDoc(), testutil.NewFakePackages())

	deps, err := r.MissingDependencies(variant(t, states, "app"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib-c", "lib-b"}, names(deps))
	assert.Equal(t, int64(2), deps[1].VersionCode)
}

func TestMissingDependenciesSkipsPresent(t *testing.T) {
	tests := []struct {
		name string
		pkgs *testutil.FakePackages
		want []string
	}{
		{
			name: "installed dependency is skipped but its own deps are walked",
			pkgs: testutil.NewFakePackages().Install("lib-b", 2),
			want: []string{"lib-c"},
		},
		{
			name: "outdated dependency is included",
			pkgs: testutil.NewFakePackages().Install("lib-b", 1),
			want: []string{"lib-c", "lib-b"},
		},
		{
			name: "shared library reported by the OS is skipped",
			pkgs: testutil.NewFakePackages().AddLibrary("lib-c", 7),
			want: []string{"lib-b"},
		},
		{
			name: "shared library of another version is needed",
			pkgs: testutil.NewFakePackages().AddLibrary("lib-c", 6),
			want: []string{"lib-c", "lib-b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, states := setup(t, chainDoc(), tt.pkgs)
			deps, err := r.MissingDependencies(variant(t, states, "app"), false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(deps))
		})
	}
}

func TestAllDependenciesIncludesPresent(t *testing.T) {
	r, states := setup(t, chainDoc(), testutil.NewFakePackages().Install("lib-b", 9).AddLibrary("lib-c", 7))
	deps, err := r.AllDependencies(variant(t, states, "app"))
	require.NoError(t, err)
	assert.Equal(t, []string{"lib-c", "lib-b"}, names(deps))
}

func TestPreferredChannel(t *testing.T) {
	r, states := setup(t, chainDoc(), testutil.NewFakePackages())
	states.channels["lib-b"] = catalog.ChannelBeta

	deps, err := r.MissingDependencies(variant(t, states, "app"), false)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, int64(3), deps[1].VersionCode)
	assert.Equal(t, catalog.ChannelBeta, deps[1].Channel)
}

func TestMissingInRepo(t *testing.T) {
	t.Run("absent without flag", func(t *testing.T) {
		doc := chainDoc()
		doc.Packages["lib-b"]["deps"] = []string{"lib-x"}
		r, states := setup(t, doc, testutil.NewFakePackages())

		_, err := r.MissingDependencies(variant(t, states, "app"), false)
		requireReason(t, err, "lib-b", "lib-x", errors.ReasonMissingInRepo)
	})

	t.Run("no variant new enough", func(t *testing.T) {
		doc := chainDoc()
		doc.Packages["app"]["deps"] = []string{"lib-b 4"}
		r, states := setup(t, doc, testutil.NewFakePackages())

		_, err := r.MissingDependencies(variant(t, states, "app"), false)
		requireReason(t, err, "app", "lib-b", errors.ReasonMissingInRepo)
		assert.Contains(t, err.Error(), "lib-b >= 4")
	})
}

func TestEnabledChecks(t *testing.T) {
	disabledB := func() *testutil.FakePackages {
		return testutil.NewFakePackages().Put(platform.PackageInfo{Name: "lib-b", VersionCode: 2})
	}

	t.Run("disabled before install", func(t *testing.T) {
		r, states := setup(t, chainDoc(), disabledB())
		_, err := r.MissingDependencies(variant(t, states, "app"), false)
		requireReason(t, err, "app", "lib-b", errors.ReasonDisabledBeforeInstall)
	})

	t.Run("disabled after install", func(t *testing.T) {
		r, states := setup(t, chainDoc(), disabledB().Install("app", 1))
		_, err := r.MissingDependencies(variant(t, states, "app"), true)
		requireReason(t, err, "app", "lib-b", errors.ReasonDisabledAfterInstall)
	})

	t.Run("disabled root allows disabled dependencies", func(t *testing.T) {
		pkgs := disabledB().Put(platform.PackageInfo{Name: "app", VersionCode: 1})
		r, states := setup(t, chainDoc(), pkgs)
		deps, err := r.MissingDependencies(variant(t, states, "app"), true)
		require.NoError(t, err)
		assert.Equal(t, []string{"lib-c"}, names(deps))
	})
}

func TestUninstalledAfterInstall(t *testing.T) {
	r, states := setup(t, chainDoc(), testutil.NewFakePackages().Install("app", 1))
	_, err := r.MissingDependencies(variant(t, states, "app"), true)
	// lib-c is a shared library and may be absent; lib-b may not.
	requireReason(t, err, "app", "lib-b", errors.ReasonUninstalledAfterInstall)
}

func TestCycleTerminates(t *testing.T) {
	doc := testutil.NewCatalogJSON(1_800_000_000)
	a := doc.Package("a")
	a["deps"] = []string{"b"}
	a.Variant(1, []byte("a"))
	b := doc.Package("b")
	b["deps"] = []string{"a", "b"}
	b.Variant(1, []byte("b"))

	r, states := setup(t, doc, testutil.NewFakePackages())
	deps, err := r.MissingDependencies(variant(t, states, "a"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(deps))
}

func TestNoDependencies(t *testing.T) {
	r, states := setup(t, chainDoc(), testutil.NewFakePackages())
	deps, err := r.MissingDependencies(variant(t, states, "lib-c"), false)
	require.NoError(t, err)
	assert.Empty(t, deps)
}
