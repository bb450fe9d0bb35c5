package install

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/test/testutil"
)

const (
	pkgA = "org.example.a"
	pkgB = "org.example.b"
	pkgC = "org.example.c"
	pkgD = "org.example.d"
	pkgE = "org.example.e"
	pkgF = "org.example.f"
)

func newUpdateEnv(t *testing.T) *env {
	pkgs := testutil.NewFakePackages().
		Install(pkgA, 1).
		Install(pkgB, 1).
		Install(pkgD, 1).
		Install(pkgE, 1).
		Install(pkgF, 1).
		Install(storeName, 1)
	return newEnv(t, pkgs, func(e *env, doc *testutil.CatalogJSON) {
		e.servePackage(doc, pkgA, 2, []byte("a"))["deps"] = []string{pkgC}
		e.servePackage(doc, pkgB, 2, []byte("b"))["deps"] = []string{pkgC + " 5"}
		e.servePackage(doc, pkgC, 5, []byte("c"))["isSharedLibrary"] = true
		e.servePackage(doc, pkgD, 2, []byte("d"))
		e.servePackage(doc, pkgE, 2, []byte("e"))["optOutOfBulkUpdates"] = true
		e.servePackage(doc, pkgF, 2, []byte("f"))["deps"] = []string{"org.example.missing"}
		e.servePackage(doc, storeName, 2, []byte("store"))
	})
}

func groupNames(groups []Group) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.Names()
	}
	return out
}

func TestOutdatedGroups(t *testing.T) {
	e := newUpdateEnv(t)

	var groups []Group
	var self Group
	e.do(func() { groups, self = e.manager.OutdatedGroups() })

	assert.Equal(t, [][]string{{pkgC, pkgA, pkgB}, {pkgD}}, groupNames(groups))
	assert.Equal(t, []string{storeName}, self.Names())

	reports := e.reported()
	require.Len(t, reports, 1)
	var dre *errors.DependencyResolutionError
	require.ErrorAs(t, reports[0], &dre)
	assert.Equal(t, pkgF, dre.Details.Dependant)
	assert.Equal(t, errors.ReasonMissingInRepo, dre.Details.Reason)
}

func TestOutdatedGroupsSkipBusyDependencies(t *testing.T) {
	e := newUpdateEnv(t)
	open := e.holdPolicy()
	lib := e.start(pkgC, true)

	var groups []Group
	e.do(func() { groups, _ = e.manager.OutdatedGroups() })
	assert.Equal(t, [][]string{{pkgD}}, groupNames(groups))

	lib.Cancel()
	open()
	require.ErrorIs(t, e.wait(lib), context.Canceled)
}

func TestBackgroundUpdateAll(t *testing.T) {
	t.Run("auto-update off", func(t *testing.T) {
		e := newUpdateEnv(t)
		e.manager.Options.AutoUpdate = false
		var jobs []*Job
		e.do(func() { jobs = e.manager.UpdateAll(e.ctx, false) })
		assert.Nil(t, jobs)
		params, _, _ := e.os.snapshot()
		assert.Empty(t, params)
	})

	t.Run("self first", func(t *testing.T) {
		e := newUpdateEnv(t)
		var jobs []*Job
		e.do(func() { jobs = e.manager.UpdateAll(e.ctx, false) })
		require.Len(t, jobs, 1)
		assert.Equal(t, []string{storeName}, jobs[0].Packages())
		require.NoError(t, e.wait(jobs[0]))
		assert.False(t, jobs[0].Tasks()[0].UserInitiated())
	})
}

func TestUpdateAllCommitsSelfLast(t *testing.T) {
	e := newUpdateEnv(t)
	var jobs []*Job
	e.do(func() { jobs = e.manager.UpdateAll(e.ctx, true) })
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{pkgC, pkgA, pkgB}, jobs[0].Packages())
	assert.Equal(t, []string{pkgD}, jobs[1].Packages())
	assert.Equal(t, []string{storeName}, jobs[2].Packages())

	for _, job := range jobs {
		require.NoError(t, e.wait(job))
	}
	for _, task := range jobs[0].Tasks() {
		if task.PackageName() == pkgC {
			assert.False(t, task.IsUpdate(), "fresh dependencies are installed, not updated")
		} else {
			assert.True(t, task.IsUpdate())
		}
	}

	params, _, commits := e.os.snapshot()
	require.Len(t, commits, 3)
	last := params[commits[len(commits)-1]]
	assert.Equal(t, storeName, last.AppPackageName)
	assert.False(t, last.MultiPackage)
	e.idle()
}
