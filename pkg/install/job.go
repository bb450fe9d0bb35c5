package install

import (
	"context"
	"sync"

	"github.com/grapheneos/appstore/pkg/errors"
)

// Job is the two-phase result of an install request: the packages are
// first staged into an installer session, then installed by the OS.
type Job struct {
	tasks  []*Task
	cancel context.CancelFunc
	notify func()

	staged    chan struct{}
	stageErr  error
	installed chan struct{}
	err       error
	once      sync.Once
}

func newJob(tasks []*Task, cancel context.CancelFunc, notify func()) *Job {
	return &Job{
		tasks:     tasks,
		cancel:    cancel,
		notify:    notify,
		staged:    make(chan struct{}),
		installed: make(chan struct{}),
	}
}

// Tasks returns the tasks of the job, dependencies first.
func (j *Job) Tasks() []*Task { return j.tasks }

// Packages returns the package names of the job.
func (j *Job) Packages() []string { return names(j.tasks) }

// Request describes the job the way the installer reports it.
func (j *Job) Request() errors.InstallerRequest { return installerRequest(j.tasks) }

// Staged is closed once staging ends.
func (j *Job) Staged() <-chan struct{} { return j.staged }

// Done is closed once the final result is known.
func (j *Job) Done() <-chan struct{} { return j.installed }

// WaitStaged blocks until every apk is written and the session is
// committed, or staging failed.
func (j *Job) WaitStaged(ctx context.Context) error {
	select {
	case <-j.staged:
		return j.stageErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the OS reports the install result. A user-declined
// confirmation matches errors.ErrInstallAborted.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.installed:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops staging. It has no effect once the session is committed.
func (j *Job) Cancel() {
	for _, t := range j.tasks {
		t.cancelled.Store(true)
	}
	j.cancel()
	if j.notify != nil {
		j.notify()
	}
}

func (j *Job) finishStaging(err error) {
	j.stageErr = err
	close(j.staged)
}

func (j *Job) finish(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.installed)
	})
}
