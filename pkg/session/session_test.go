package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/mainloop"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/platform/mocks"
	"github.com/grapheneos/appstore/pkg/prefs"
	"github.com/grapheneos/appstore/pkg/state"
	"github.com/grapheneos/appstore/test/testutil"
)

const (
	appA = "org.example.a"
	appB = "org.example.b"
)

type env struct {
	t     *testing.T
	loop  *mainloop.Loop
	store *state.Store
	pkgs  *testutil.FakePackages
}

func newEnv(t *testing.T, device platform.Device) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p, err := prefs.Open(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	doc := testutil.NewCatalogJSON(1_800_000_000)
	doc.Package(appA).Variant(2, []byte("a"))
	doc.Package(appB).Variant(3, []byte("b"))

	pkgs := testutil.NewFakePackages().Install(appA, 1)
	cat, err := catalog.Parse(doc.Bytes(), "", catalog.Environment{Device: device, Packages: pkgs, BaseURL: "https://apps.example.org"})
	require.NoError(t, err)

	opts := state.DefaultOptions()
	opts.PruneInitialDelay = -1
	opts.UpdateLoopInterval = time.Hour

	e := &env{t: t, loop: mainloop.New(), pkgs: pkgs}
	e.loop.Start(ctx)
	e.store = state.NewStore(e.loop, cat, nil, p, pkgs, device, nil, opts)
	e.do(func() { e.store.Init(ctx) })
	return e
}

func testDevice() platform.Device {
	return platform.Device{SDK: 35, PrimaryABI: "arm64-v8a", DensityDPI: 420, Locales: []string{"en"}}
}

func (e *env) do(fn func()) {
	e.t.Helper()
	require.NoError(e.t, e.loop.Call(context.Background(), fn))
}

func TestInitRecoversSessions(t *testing.T) {
	e := newEnv(t, testDevice())
	ctrl := gomock.NewController(t)
	inst := mocks.NewMockInstaller(ctrl)
	tr := NewTracker(e.store, inst, e.pkgs, 0)

	gomock.InOrder(
		inst.EXPECT().RegisterSessionCallback(tr),
		inst.EXPECT().MySessions().Return([]platform.SessionInfo{
			{ID: 1, AppPackageName: appA, Committed: false},
			{ID: 2, AppPackageName: appA, Committed: true, Progress: 0.95},
			{ID: 3, AppPackageName: appB, Committed: true, Progress: 0.8},
			{ID: 4, AppPackageName: "org.example.gone", Committed: true, Progress: 1},
			{ID: 5, Committed: true, MultiPackage: true, ChildSessionIDs: []int{6, 7}},
			{ID: 6, AppPackageName: appB, Committed: true, Progress: 1, ParentSessionID: 5},
			{ID: 8, Committed: true, MultiPackage: true, ChildSessionIDs: []int{9}},
		}, nil),
	)
	inst.EXPECT().SessionInfo(6).Return(&platform.SessionInfo{ID: 6, AppPackageName: appB, Committed: true, Progress: 1, ParentSessionID: 5}, nil)
	inst.EXPECT().SessionInfo(7).Return(&platform.SessionInfo{ID: 7, AppPackageName: "org.example.gone", Committed: true, Progress: 1, ParentSessionID: 5}, nil)
	inst.EXPECT().SessionInfo(9).Return(&platform.SessionInfo{ID: 9, AppPackageName: appA, Committed: true, Progress: 0.8, ParentSessionID: 8}, nil)
	for _, id := range []int{1, 3, 4, 8} {
		inst.EXPECT().AbandonSession(id).Return(nil)
	}

	e.do(func() {
		tr.Init()
		assert.Same(t, e.store.State(appA), e.store.SessionState(2))
		assert.Same(t, e.store.State(appB), e.store.SessionState(6))
		assert.Nil(t, e.store.SessionState(7))
		assert.True(t, tr.IsMultiPackage(5))
		assert.False(t, tr.IsMultiPackage(8))
		assert.Equal(t, state.StatusInstalling, e.store.State(appB).Status())
	})
	assert.Equal(t, 3, tr.OpenSessions())

	tr.OnFinished(6, true)
	tr.OnFinished(5, true)
	tr.OnFinished(99, false)
	e.do(func() {
		assert.Nil(t, e.store.SessionState(6))
		assert.False(t, tr.IsMultiPackage(5))
	})
	assert.Equal(t, 1, tr.OpenSessions())
}

func TestInitPrivilegedWaitingCheck(t *testing.T) {
	dev := testDevice()
	dev.Privileged = true
	e := newEnv(t, dev)
	ctrl := gomock.NewController(t)
	inst := mocks.NewMockInstaller(ctrl)
	tr := NewTracker(e.store, inst, e.pkgs, 0)

	inst.EXPECT().RegisterSessionCallback(tr)
	inst.EXPECT().MySessions().Return([]platform.SessionInfo{
		// installed: an update, never waits for confirmation
		{ID: 1, AppPackageName: appA, Committed: true, Progress: 0.1},
		// not installed: a fresh install awaiting confirmation
		{ID: 2, AppPackageName: appB, Committed: true, Progress: 1},
	}, nil)
	inst.EXPECT().AbandonSession(2).Return(nil)

	e.do(func() {
		tr.Init()
		assert.NotNil(t, e.store.SessionState(1))
		assert.Nil(t, e.store.SessionState(2))
	})
}

func TestCreateSession(t *testing.T) {
	e := newEnv(t, testDevice())
	ctrl := gomock.NewController(t)
	inst := mocks.NewMockInstaller(ctrl)
	tr := NewTracker(e.store, inst, e.pkgs, 1)

	var st *state.PackageState
	e.do(func() { st = e.store.State(appB) })

	params := platform.SessionParams{AppPackageName: appB, Size: 1}
	inst.EXPECT().CreateSession(params).Return(11, nil)
	id, err := tr.CreateSession(context.Background(), params, st)
	require.NoError(t, err)
	assert.Equal(t, 11, id)
	e.do(func() { assert.Same(t, st, e.store.SessionState(11)) })

	t.Run("waits for a permit", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := tr.CreateMultiPackageSession(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	tr.OnFinished(11, true)
	e.do(func() {
		assert.Nil(t, e.store.SessionState(11))
		assert.Equal(t, platform.InvalidSessionID, st.SessionID)
	})
	assert.Equal(t, 0, tr.OpenSessions())

	t.Run("failures release the permit", func(t *testing.T) {
		inst.EXPECT().CreateSession(gomock.Any()).Return(0, assert.AnError)
		_, err := tr.CreateSession(context.Background(), params, st)
		assert.ErrorIs(t, err, assert.AnError)

		inst.EXPECT().CreateSession(gomock.Any()).Return(0, nil)
		_, err = tr.CreateSession(context.Background(), params, st)
		assert.Error(t, err)
		assert.Equal(t, 0, tr.OpenSessions())
	})

	t.Run("multi-package", func(t *testing.T) {
		inst.EXPECT().CreateSession(platform.SessionParams{MultiPackage: true}).Return(20, nil)
		id, err := tr.CreateMultiPackageSession(context.Background())
		require.NoError(t, err)
		e.do(func() { assert.True(t, tr.IsMultiPackage(id)) })
		tr.OnFinished(id, false)
		e.do(func() { assert.False(t, tr.IsMultiPackage(id)) })
	})

	t.Run("refused on the loop", func(t *testing.T) {
		e.do(func() {
			assert.Panics(t, func() { _, _ = tr.CreateSession(context.Background(), params, st) })
		})
	})
}

func TestAbandon(t *testing.T) {
	e := newEnv(t, testDevice())
	ctrl := gomock.NewController(t)
	inst := mocks.NewMockInstaller(ctrl)
	tr := NewTracker(e.store, inst, e.pkgs, 0)

	inst.EXPECT().AbandonSession(1).Return(nil)
	inst.EXPECT().AbandonSession(2).Return(assert.AnError)
	assert.True(t, tr.Abandon(1))
	assert.False(t, tr.Abandon(2))
}

func TestProgressClearsWaiting(t *testing.T) {
	e := newEnv(t, testDevice())
	tr := NewTracker(e.store, mocks.NewMockInstaller(gomock.NewController(t)), e.pkgs, 0)

	e.do(func() {
		st := e.store.State(appA)
		e.store.LinkSession(3, st)
		st.WaitingForUserAction = true
	})
	tr.OnProgressChanged(3, 0.9)
	e.do(func() { assert.False(t, e.store.State(appA).WaitingForUserAction) })
}

func request(names ...string) errors.InstallerRequest {
	req := errors.InstallerRequest{UserInitiated: true}
	for _, n := range names {
		req.Packages = append(req.Packages, errors.InstallerPackage{Name: n, Label: n, VersionName: "1"})
	}
	return req
}

func TestStatusReceiver(t *testing.T) {
	e := newEnv(t, testDevice())

	var succeeded []errors.InstallerRequest
	var failed []*errors.PackageInstallerError
	var actions []string
	r := NewStatusReceiver(e.store, ObserverFuncs{
		UserActionRequired: func(_ errors.InstallerRequest, name string, _ interface{}) { actions = append(actions, name) },
		InstallSucceeded:   func(req errors.InstallerRequest) { succeeded = append(succeeded, req) },
		InstallFailed:      func(err *errors.PackageInstallerError) { failed = append(failed, err) },
	})

	t.Run("success", func(t *testing.T) {
		done := r.Completion(1)
		assert.Panics(t, func() { r.Completion(1) })
		target := r.Target(request(appA))
		assert.NotEmpty(t, target.ID)

		target.OnStatus(platform.StatusEvent{SessionID: 1, Status: platform.StatusSuccess})
		assert.NoError(t, <-done)
		assert.NoError(t, <-target.Result())
		e.do(func() {})
		assert.Len(t, succeeded, 1)
	})

	t.Run("failure", func(t *testing.T) {
		done := r.Completion(2)
		r.Target(request(appA, appB)).OnStatus(platform.StatusEvent{
			SessionID:    2,
			Status:       platform.StatusFailureStorage,
			LegacyStatus: platform.LegacyInstallFailedInsufficientStorage,
			Message:      "no space",
		})
		err := <-done
		var pie *errors.PackageInstallerError
		require.ErrorAs(t, err, &pie)
		assert.Equal(t, []string{appA, appB}, pie.Request.Labels())
		assert.Equal(t, "no space", pie.Message)
		e.do(func() {})
		assert.Len(t, failed, 1)
	})

	t.Run("aborted is not reported", func(t *testing.T) {
		done := r.Completion(3)
		r.Target(request(appA)).OnStatus(platform.StatusEvent{SessionID: 3, Status: platform.StatusFailureAborted})
		assert.ErrorIs(t, <-done, errors.ErrInstallAborted)
		e.do(func() {})
		assert.Len(t, failed, 1)
	})

	t.Run("pending user action", func(t *testing.T) {
		e.do(func() { e.store.LinkSession(4, e.store.State(appB)) })

		target := r.Target(request(appB))
		target.OnStatus(platform.StatusEvent{SessionID: 4, Status: platform.StatusPendingUserAction, UserAction: "confirm"})
		// repeated requests for a waiting package are ignored
		target.OnStatus(platform.StatusEvent{SessionID: 4, Status: platform.StatusPendingUserAction, UserAction: "confirm"})
		// not installing
		r.Target(request(appA)).OnStatus(platform.StatusEvent{SessionID: 5, Status: platform.StatusPendingUserAction})
		e.do(func() {})
		e.do(func() { assert.True(t, e.store.State(appB).WaitingForUserAction) })
		assert.Equal(t, []string{appB}, actions)

		uninstall := request(appA)
		uninstall.Uninstall = true
		r.Target(uninstall).OnStatus(platform.StatusEvent{Status: platform.StatusPendingUserAction})
		e.do(func() {})
		assert.Equal(t, []string{appB, ""}, actions)
	})
}
