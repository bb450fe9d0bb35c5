package state

import (
	"fmt"
	"slices"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/metrics"
	"github.com/grapheneos/appstore/pkg/platform"
)

// AddInstallTask attaches t to its package state.
func (s *Store) AddInstallTask(t Task) {
	s.loop.AssertOnLoop()
	st := s.states[t.PackageName()]
	if st == nil {
		panic(fmt.Sprintf("state: install task for unknown package %s", t.PackageName()))
	}
	if st.Task != nil {
		panic(fmt.Sprintf("state: %s already has an install task", st.Name))
	}
	s.tasks = append(s.tasks, t)
	st.Task = t
	st.NotifyListeners()
	s.maybeScheduleUpdateLoop()
}

// CompleteInstallTask detaches t.
func (s *Store) CompleteInstallTask(t Task) {
	s.loop.AssertOnLoop()
	i := slices.Index(s.tasks, t)
	if i < 0 {
		panic(fmt.Sprintf("state: unknown install task for %s", t.PackageName()))
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	st := s.states[t.PackageName()]
	if st.Task != t {
		panic(fmt.Sprintf("state: install task mismatch for %s", st.Name))
	}
	st.Task = nil
	st.NotifyListeners()
	s.maybeRunPendingPrune()
}

// NumberOfInstallTasks counts tasks that have not completed.
func (s *Store) NumberOfInstallTasks() int {
	s.loop.AssertOnLoop()
	return len(s.tasks)
}

// LinkSession records that st has installer session id.
func (s *Store) LinkSession(id int, st *PackageState) {
	s.loop.AssertOnLoop()
	if _, ok := s.sessions[id]; ok {
		panic(fmt.Sprintf("state: session %d linked twice", id))
	}
	if st.HasInstallerSession() {
		panic(fmt.Sprintf("state: %s already has session %d", st.Name, st.SessionID))
	}
	s.sessions[id] = st
	st.SessionID = id
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.maybeScheduleUpdateLoop()
}

// SessionState returns the state linked to session id.
func (s *Store) SessionState(id int) *PackageState {
	s.loop.AssertOnLoop()
	return s.sessions[id]
}

// UnlinkSession drops session id, returning its state or nil when the id
// was never linked.
func (s *Store) UnlinkSession(id int) *PackageState {
	s.loop.AssertOnLoop()
	st, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	if st.SessionID == id {
		st.SessionID = platform.InvalidSessionID
	}
	st.WaitingForUserAction = false
	st.NotifyListeners()
	s.ScheduleCachePruning()
	return st
}

// NumberOfSessions counts linked installer sessions.
func (s *Store) NumberOfSessions() int {
	s.loop.AssertOnLoop()
	return len(s.sessions)
}

func (s *Store) maybeScheduleUpdateLoop() {
	if s.updateLoopScheduled {
		return
	}
	s.updateLoopScheduled = true
	s.loop.PostDelayed(s.opts.UpdateLoopInterval, s.runUpdateLoop)
}

func (s *Store) runUpdateLoop() {
	s.updateLoopScheduled = false
	for _, t := range s.tasks {
		if st := s.states[t.PackageName()]; st != nil {
			st.NotifyListeners()
		}
	}
	for _, st := range s.sessions {
		st.NotifyListeners()
	}
	if len(s.tasks) > 0 || len(s.sessions) > 0 {
		s.maybeScheduleUpdateLoop()
	}
	s.updateLoopRuns++
}

// UpdateLoopRuns counts update loop iterations.
func (s *Store) UpdateLoopRuns() int {
	s.loop.AssertOnLoop()
	return s.updateLoopRuns
}

// PruningJob returns the pruning pass in progress, or nil.
func (s *Store) PruningJob() *PruneJob {
	s.loop.AssertOnLoop()
	return s.pruneJob
}

// ScheduleCachePruning starts a pruning pass when nothing is installing,
// otherwise it defers the pass until the last task or session finishes.
func (s *Store) ScheduleCachePruning() {
	s.loop.AssertOnLoop()
	if len(s.tasks) > 0 || len(s.sessions) > 0 {
		s.prunePending = true
		return
	}
	s.prunePending = false
	if s.pruneJob != nil || s.pruner == nil {
		return
	}
	job := &PruneJob{done: make(chan struct{})}
	s.pruneJob = job
	ctx := s.ctx
	go func() {
		job.err = s.pruner(ctx)
		if job.err != nil {
			logger.Warn("Cache pruning failed", logger.Fields{"error": job.err.Error()})
		}
		close(job.done)
		s.loop.Post(func() {
			s.pruneJob = nil
			if !s.pruneRunsScheduled && s.opts.PruneInterval > 0 {
				s.pruneRunsScheduled = true
				s.loop.PostDelayed(s.opts.PruneInterval, func() {
					s.pruneRunsScheduled = false
					s.ScheduleCachePruning()
				})
			}
		})
	}()
}

func (s *Store) maybeRunPendingPrune() {
	if s.prunePending && len(s.tasks) == 0 && len(s.sessions) == 0 {
		s.ScheduleCachePruning()
	}
}
