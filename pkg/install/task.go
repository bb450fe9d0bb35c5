package install

import (
	"context"
	"sync/atomic"

	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/state"
)

// Task installs one variant. The state store sees it through state.Task.
type Task struct {
	Variant *catalog.Variant

	state         *state.PackageState
	apks          []*catalog.Apk
	userInitiated bool
	isUpdate      bool
	beforeCommit  func(ctx context.Context) error
	// pruning is the cache pass running when the task was created.
	pruning *state.PruneJob

	phase      atomic.Int32
	downloaded atomic.Int64
	total      int64
	cancelled  atomic.Bool
}

var _ state.Task = (*Task)(nil)

func newTask(v *catalog.Variant, st *state.PackageState, userInitiated, isUpdate bool, pruning *state.PruneJob) *Task {
	apks := v.CollectNeededApks(st.ResourceConfig())
	return &Task{
		Variant:       v,
		state:         st,
		apks:          apks,
		userInitiated: userInitiated,
		isUpdate:      isUpdate,
		pruning:       pruning,
		total:         catalog.TotalCompressedSize(apks),
	}
}

func (t *Task) PackageName() string { return t.Variant.Name() }

func (t *Task) Phase() state.TaskPhase { return state.TaskPhase(t.phase.Load()) }

func (t *Task) setPhase(p state.TaskPhase) { t.phase.Store(int32(p)) }

// Progress reports compressed bytes obtained out of the total.
func (t *Task) Progress() (done, total int64) { return t.downloaded.Load(), t.total }

func (t *Task) IsUpdate() bool { return t.isUpdate }

// IsCancelled reports a manual cancellation.
func (t *Task) IsCancelled() bool { return t.cancelled.Load() }

// UserInitiated reports whether a user asked for this install.
func (t *Task) UserInitiated() bool { return t.userInitiated }

// Apks returns the apks the task stages.
func (t *Task) Apks() []*catalog.Apk { return t.apks }

func (t *Task) sessionParams() platform.SessionParams {
	c := t.Variant.Container
	p := platform.SessionParams{
		AppPackageName:         c.ManifestName,
		AppLabel:               t.Variant.Label,
		SourceStore:            true,
		Size:                   catalog.TotalSize(t.apks),
		RequestUpdateOwnership: c.RequestUpdateOwnership,
	}
	if t.isUpdate {
		p.RequireUserAction = platform.UserActionNotRequired
		p.Scenario = platform.ScenarioBulk
	} else {
		p.RequireUserAction = platform.UserActionRequired
		p.Scenario = platform.ScenarioFast
	}
	return p
}

func (t *Task) installerPackage() errors.InstallerPackage {
	return errors.InstallerPackage{
		Name:                       t.Variant.Name(),
		Label:                      t.Variant.Label,
		VersionName:                t.Variant.VersionName,
		ShowAutoUpdateNotification: t.Variant.Container.ShowAutoUpdateNotifications,
	}
}

func installerRequest(tasks []*Task) errors.InstallerRequest {
	req := errors.InstallerRequest{UserInitiated: true}
	for _, t := range tasks {
		req.Packages = append(req.Packages, t.installerPackage())
		req.UserInitiated = req.UserInitiated && t.userInitiated
	}
	return req
}

func labels(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Variant.Label
	}
	return out
}

func names(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Variant.Name()
	}
	return out
}
