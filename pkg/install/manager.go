// Package install stages catalog variants into installer sessions and
// commits them. A request becomes one task per package, installed in a
// single session or, with dependencies, in a multi-package session.
package install

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/apkcheck"
	"github.com/grapheneos/appstore/pkg/archive"
	"github.com/grapheneos/appstore/pkg/busy"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/download"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/resolver"
	"github.com/grapheneos/appstore/pkg/session"
	"github.com/grapheneos/appstore/pkg/state"
)

// DefaultInstallTimeout bounds the wait for the OS install result.
const DefaultInstallTimeout = 30 * time.Minute

// ErrorReporter receives failures nobody waits for, such as download
// errors of user-initiated jobs and dependency errors during update-all.
type ErrorReporter interface {
	ReportError(err error)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(err error)

func (f ReporterFunc) ReportError(err error) { f(err) }

// Event is a progress notification of a job.
type Event struct {
	Phase    string // staging|committed|installed|error
	Packages []string
	Err      error
}

// Hooks carries callbacks for job events. They run on job goroutines.
type Hooks struct {
	OnEvent func(Event)
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// Options configure a Manager.
type Options struct {
	// CacheDir is the root of the compressed package cache.
	CacheDir string
	// TempDir holds the decompressed apks while they are verified.
	TempDir        string
	InstallTimeout time.Duration
	// AutoUpdate allows background UpdateAll runs to install anything.
	AutoUpdate bool
}

// Manager starts install jobs. Its methods other than Uninstall must be
// called on the store's loop.
type Manager struct {
	Store      *state.Store
	Resolver   *resolver.Resolver
	Sessions   *session.Tracker
	Receiver   *session.StatusReceiver
	Installer  platform.Installer
	Packages   platform.PackageQuery
	Policy     platform.Policy
	Finder     platform.PackageFinder // optional
	Ledger     *busy.Ledger
	Downloader download.Downloader
	Archive    *archive.Manager
	Checker    *apkcheck.Checker
	Reporter   ErrorReporter // optional
	Hooks      Hooks
	Options    Options
}

// StartInstall installs v together with its missing dependencies.
func (m *Manager) StartInstall(ctx context.Context, v *catalog.Variant, userInitiated, isUpdate bool) (*Job, error) {
	m.Store.Loop().AssertOnLoop()
	deps, err := m.Resolver.MissingDependencies(v, isUpdate)
	if err != nil {
		return nil, err
	}
	variants := append(deps, v)
	for _, dv := range variants {
		if st := m.Store.State(dv.Name()); st != nil && st.IsInstalling() {
			return nil, &errors.InstallerBusyError{PkgName: dv.Name(), RequestedPkgName: v.Name()}
		}
	}
	return m.start(ctx, variants, userInitiated, isUpdate, nil)
}

// StartInstallByName looks up the preferred variant of name first.
func (m *Manager) StartInstallByName(ctx context.Context, name string, userInitiated bool) (*Job, error) {
	m.Store.Loop().AssertOnLoop()
	st := m.Store.State(name)
	if st == nil {
		return nil, errors.Wrapf(errors.ErrPackageUnknown, "%s", name)
	}
	v := st.Variant()
	if v == nil {
		return nil, errors.Wrapf(errors.ErrNoVariant, "%s", name)
	}
	return m.StartInstall(ctx, v, userInitiated, st.IsInstalled())
}

func (m *Manager) start(ctx context.Context, variants []*catalog.Variant, userInitiated, isUpdate bool,
	beforeCommit func(context.Context) error) (*Job, error) {
	pkgNames := make([]string, len(variants))
	for i, v := range variants {
		pkgNames[i] = v.Name()
	}
	release, err := m.Ledger.Reserve(pkgNames)
	if err != nil {
		return nil, err
	}

	pruning := m.Store.PruningJob()
	tasks := make([]*Task, len(variants))
	for i, v := range variants {
		st := m.Store.State(v.Name())
		if st == nil {
			release()
			return nil, errors.Wrapf(errors.ErrPackageUnknown, "%s", v.Name())
		}
		tasks[i] = newTask(v, st, userInitiated, isUpdate && st.IsInstalled(), pruning)
	}
	tasks[len(tasks)-1].beforeCommit = beforeCommit
	for _, t := range tasks {
		m.Store.AddInstallTask(t)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	loop := m.Store.Loop()
	job := newJob(tasks, cancel, func() {
		loop.Post(func() {
			for _, t := range tasks {
				t.state.NotifyListeners()
			}
		})
	})
	logger.Info("Starting install", logger.Fields{"packages": pkgNames, "user_initiated": userInitiated, "update": isUpdate})

	go func() {
		defer release()
		defer cancel()
		m.run(jobCtx, job)
	}()
	return job, nil
}

func (m *Manager) run(ctx context.Context, job *Job) {
	tasks := job.tasks
	pkgNames := names(tasks)
	emit(m.Hooks, Event{Phase: "staging", Packages: pkgNames})

	var completion <-chan error
	var stageErr error
	if len(tasks) == 1 {
		completion, stageErr = m.installSingle(ctx, tasks[0])
	} else {
		completion, stageErr = m.installMulti(ctx, tasks)
	}
	job.finishStaging(stageErr)

	done := make(chan struct{})
	m.Store.Loop().Post(func() {
		for _, t := range tasks {
			m.Store.CompleteInstallTask(t)
		}
		if stageErr != nil {
			m.handleError(tasks, stageErr)
		}
		close(done)
	})

	loopDone := m.Store.Loop().Done()
	if stageErr != nil {
		emit(m.Hooks, Event{Phase: "error", Packages: pkgNames, Err: stageErr})
		waitEither(done, loopDone)
		job.finish(stageErr)
		return
	}
	emit(m.Hooks, Event{Phase: "committed", Packages: pkgNames})

	// Installer failures after commit are reported by the status receiver.
	installErr := m.awaitCompletion(ctx, completion)
	waitEither(done, loopDone)
	if installErr != nil {
		emit(m.Hooks, Event{Phase: "error", Packages: pkgNames, Err: installErr})
	} else {
		emit(m.Hooks, Event{Phase: "installed", Packages: pkgNames})
	}
	job.finish(installErr)
}

func waitEither(a, b <-chan struct{}) {
	select {
	case <-a:
	case <-b:
	}
}

// awaitCompletion outlives cancellation of the job context: a committed
// session is owned by the OS.
func (m *Manager) awaitCompletion(ctx context.Context, completion <-chan error) error {
	timeout := m.Options.InstallTimeout
	if timeout <= 0 {
		timeout = DefaultInstallTimeout
	}
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	select {
	case err := <-completion:
		return err
	case <-waitCtx.Done():
		return errors.ErrInstallTimeout
	}
}

func (m *Manager) handleError(tasks []*Task, err error) {
	for _, t := range tasks {
		if !t.userInitiated || t.IsCancelled() {
			return
		}
	}
	if stderrors.Is(err, errors.ErrInstallAborted) {
		return
	}
	if stderrors.Is(err, context.Canceled) {
		logger.Debug("Install cancelled", logger.Fields{"packages": names(tasks), "error": err.Error()})
		return
	}
	logger.Warn("Install failed", logger.Fields{"packages": names(tasks), "error": err.Error()})
	m.report(&errors.DownloadError{Labels: labels(tasks), Err: err})
}

func (m *Manager) report(err error) {
	if m.Reporter != nil {
		m.Reporter.ReportError(err)
	}
}

// Uninstall removes name and waits for the OS result. It may be called
// from any goroutine.
func (m *Manager) Uninstall(ctx context.Context, name string) error {
	var label string
	if err := m.Store.Loop().Call(ctx, func() {
		if st := m.Store.State(name); st != nil && st.Variant() != nil {
			label = st.Variant().Label
		}
	}); err != nil {
		return err
	}
	if label == "" {
		label = name
	}
	target := m.Receiver.Target(errors.InstallerRequest{
		Packages:      []errors.InstallerPackage{{Name: name, Label: label}},
		UserInitiated: true,
		Uninstall:     true,
	})
	if err := m.Installer.Uninstall(name, target); err != nil {
		return fmt.Errorf("uninstall %s: %w", name, err)
	}
	select {
	case err := <-target.Result():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
