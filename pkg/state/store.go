// Package state is the live view over the catalog: one PackageState per
// package, the listener fabric that tells front-ends about changes, the
// update loop that animates in-flight installs, and the scheduling of
// repository refreshes and cache pruning. Everything here runs on the
// control loop.
package state

import (
	"context"
	"time"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/mainloop"
	"github.com/grapheneos/appstore/pkg/metrics"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/prefs"
)

// RepoFetcher refreshes the catalog.
type RepoFetcher interface {
	Fetch(ctx context.Context, current *catalog.Catalog, userInitiated bool) (*catalog.Catalog, error)
}

// Preferences persists channel choices.
type Preferences interface {
	Channel(scope, name string) (string, bool)
	SetChannel(scope, name, channel string) error
	String(key string) (string, bool)
	SetString(key, value string) error
}

// PruneFunc runs one cache pruning pass.
type PruneFunc func(ctx context.Context) error

// Options tunes the store's timers.
type Options struct {
	DefaultChannel       catalog.ReleaseChannel
	UpdateLoopInterval   time.Duration
	RepoCheckMinInterval time.Duration
	PruneInitialDelay    time.Duration
	PruneInterval        time.Duration
}

// DefaultOptions returns the stock timer values.
func DefaultOptions() Options {
	return Options{
		DefaultChannel:       catalog.ChannelStable,
		UpdateLoopInterval:   300 * time.Millisecond,
		RepoCheckMinInterval: 5 * time.Second,
		PruneInitialDelay:    5 * time.Minute,
		PruneInterval:        6 * time.Hour,
	}
}

// Store owns every PackageState.
type Store struct {
	loop     *mainloop.Loop
	fetcher  RepoFetcher
	prefs    Preferences
	packages platform.PackageQuery
	device   platform.Device
	pruner   PruneFunc
	opts     Options
	now      func() time.Time

	ctx context.Context

	catalog        *catalog.Catalog
	states         map[string]*PackageState
	nextID         int64
	defaultChannel catalog.ReleaseChannel

	repoJob             *repoJob
	lastRepoResult      error
	lastSuccessfulCheck time.Time

	tasks    []Task
	sessions map[int]*PackageState

	listeners []*listenerEntry

	updateLoopScheduled bool
	updateLoopRuns      int

	outdatedCount int

	pruneJob           *PruneJob
	prunePending       bool
	pruneRunsScheduled bool
}

type repoJob struct {
	done chan struct{}
	err  error
}

// PruneJob is a running cache pruning pass.
type PruneJob struct {
	done chan struct{}
	err  error
}

// Done is closed when the pass finishes.
func (j *PruneJob) Done() <-chan struct{} { return j.done }

// Err is valid after Done is closed.
func (j *PruneJob) Err() error { return j.err }

// NewStore creates a store over initial, normally the cached catalog or a
// placeholder. Call Init on the loop before use.
func NewStore(loop *mainloop.Loop, initial *catalog.Catalog, fetcher RepoFetcher, p Preferences,
	packages platform.PackageQuery, device platform.Device, pruner PruneFunc, opts Options,
) *Store {
	s := &Store{
		loop:          loop,
		fetcher:       fetcher,
		prefs:         p,
		packages:      packages,
		device:        device,
		pruner:        pruner,
		opts:          opts,
		now:           time.Now,
		ctx:           context.Background(),
		catalog:       initial,
		states:        make(map[string]*PackageState),
		sessions:      make(map[int]*PackageState),
		outdatedCount: -1,
	}
	s.defaultChannel = opts.DefaultChannel
	if v, ok := p.String(prefs.KeyDefaultChannel); ok {
		if ch, err := catalog.ParseReleaseChannel(v); err == nil {
			s.defaultChannel = ch
		}
	}
	return s
}

// Init applies the initial catalog and schedules the first pruning pass.
// ctx bounds background fetches and pruning.
func (s *Store) Init(ctx context.Context) {
	s.loop.AssertOnLoop()
	s.ctx = ctx
	s.UpdateRepo(s.catalog)
	if s.opts.PruneInitialDelay >= 0 {
		s.loop.PostDelayed(s.opts.PruneInitialDelay, s.ScheduleCachePruning)
	}
}

// Loop is the control loop the store runs on.
func (s *Store) Loop() *mainloop.Loop { return s.loop }

// Device returns the static device properties.
func (s *Store) Device() platform.Device { return s.device }

// Catalog is the current catalog snapshot.
func (s *Store) Catalog() *catalog.Catalog {
	s.loop.AssertOnLoop()
	return s.catalog
}

// State returns the state for name, or nil for packages the store never
// saw in any catalog.
func (s *Store) State(name string) *PackageState {
	s.loop.AssertOnLoop()
	return s.states[name]
}

// States returns the live state map. Do not modify it.
func (s *Store) States() map[string]*PackageState {
	s.loop.AssertOnLoop()
	return s.states
}

// CurrentStates returns the states of the packages in the current catalog,
// in name order.
func (s *Store) CurrentStates() []*PackageState {
	s.loop.AssertOnLoop()
	names := s.catalog.SortedNames()
	out := make([]*PackageState, 0, len(names))
	for _, n := range names {
		if st := s.states[n]; st != nil {
			out = append(out, st)
		}
	}
	return out
}

// PreferredChannel is the effective channel of a catalog package.
func (s *Store) PreferredChannel(name string) catalog.ReleaseChannel {
	s.loop.AssertOnLoop()
	st := s.states[name]
	if st == nil {
		return s.defaultChannel
	}
	return st.PreferredChannel(s.catalog.Container(name))
}

// InstalledPackage is the OS view of name as last refreshed, nil when
// not installed.
func (s *Store) InstalledPackage(name string) *platform.PackageInfo {
	s.loop.AssertOnLoop()
	if st := s.states[name]; st != nil && st.variant != nil && !st.variant.Container.IsSharedLibrary {
		return st.OSInfo
	}
	return s.queryPackage(name)
}

// DefaultChannel is the channel used without an override.
func (s *Store) DefaultChannel() catalog.ReleaseChannel { return s.defaultChannel }

// UpdateRepo swaps in c and reconciles every state with it.
func (s *Store) UpdateRepo(c *catalog.Catalog) {
	s.loop.AssertOnLoop()

	for name, g := range c.Groups {
		if v, ok := s.prefs.Channel(prefs.ScopeGroup, name); ok {
			if ch, err := catalog.ParseReleaseChannel(v); err == nil {
				g.ChannelOverride = &ch
			}
		}
	}

	for _, name := range c.SortedNames() {
		container := c.Packages[name]
		st := s.states[name]
		if st == nil {
			st = s.newState(name)
			s.states[name] = st
		}
		st.setVariant(container.Variant(st.PreferredChannel(container)))
		if !container.IsSharedLibrary {
			st.OSInfo = s.queryPackage(name)
		}
	}

	s.catalog = c
	s.dispatchAllStatesChanged()
	s.updateOutdatedCount()
}

func (s *Store) newState(name string) *PackageState {
	s.nextID++
	st := &PackageState{
		Name:      name,
		ID:        s.nextID,
		SessionID: platform.InvalidSessionID,
		store:     s,
	}
	if v, ok := s.prefs.Channel(prefs.ScopePackage, name); ok {
		if ch, err := catalog.ParseReleaseChannel(v); err == nil {
			st.ChannelOverride = &ch
		}
	}
	return st
}

func (s *Store) queryPackage(name string) *platform.PackageInfo {
	pi, err := s.packages.GetPackageInfo(name)
	if err != nil {
		return nil
	}
	return pi
}

// RequestRepoUpdate refreshes the catalog unless a refresh succeeded less
// than RepoCheckMinInterval ago and force is false. Concurrent callers join
// the fetch already in flight. Must not be called on the loop.
func (s *Store) RequestRepoUpdate(ctx context.Context, force, manual bool) error {
	var job *repoJob
	err := s.loop.Call(ctx, func() {
		if s.repoJob != nil {
			job = s.repoJob
			return
		}
		if !force && !s.lastSuccessfulCheck.IsZero() &&
			s.now().Sub(s.lastSuccessfulCheck) < s.opts.RepoCheckMinInterval {
			return
		}
		job = &repoJob{done: make(chan struct{})}
		s.repoJob = job
		s.startFetch(job, s.catalog, manual)
	})
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	select {
	case <-job.done:
		return job.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) startFetch(job *repoJob, current *catalog.Catalog, manual bool) {
	go func() {
		next, err := s.fetcher.Fetch(s.ctx, current, manual)
		s.loop.Post(func() {
			s.repoJob = nil
			s.lastRepoResult = err
			job.err = err
			if err == nil {
				s.lastSuccessfulCheck = s.now()
				if next != s.catalog {
					s.UpdateRepo(next)
				}
			} else {
				logger.Debug("Repository update failed", logger.Fields{"error": err.Error()})
			}
			s.dispatchRepoUpdateResult(err)
			close(job.done)
		})
	}()
}

// LastRepoUpdateResult is the outcome of the last refresh, nil on success
// or before any refresh.
func (s *Store) LastRepoUpdateResult() error {
	s.loop.AssertOnLoop()
	return s.lastRepoResult
}

// SetChannelOverride pins st, or its whole group, to ch.
func (s *Store) SetChannelOverride(st *PackageState, ch catalog.ReleaseChannel) error {
	s.loop.AssertOnLoop()
	container := st.variant.Container
	if g := container.Group; g != nil {
		if err := s.prefs.SetChannel(prefs.ScopeGroup, g.Name, ch.String()); err != nil {
			return err
		}
		g.ChannelOverride = &ch
		for _, member := range g.Packages {
			if ms := s.states[member.Name]; ms != nil {
				ms.UpdateVariant()
				ms.NotifyListeners()
			}
		}
	} else {
		if err := s.prefs.SetChannel(prefs.ScopePackage, st.Name, ch.String()); err != nil {
			return err
		}
		st.ChannelOverride = &ch
		st.UpdateVariant()
		st.NotifyListeners()
	}
	s.updateOutdatedCount()
	return nil
}

// SetDefaultChannel changes the channel used without an override.
func (s *Store) SetDefaultChannel(ch catalog.ReleaseChannel) error {
	s.loop.AssertOnLoop()
	if err := s.prefs.SetString(prefs.KeyDefaultChannel, ch.String()); err != nil {
		return err
	}
	s.defaultChannel = ch
	for _, st := range s.states {
		if st.variant != nil {
			st.UpdateVariant()
		}
	}
	s.dispatchAllStatesChanged()
	s.updateOutdatedCount()
	return nil
}

// OnPackageChanged handles an OS package add, change, replace or removal.
func (s *Store) OnPackageChanged(name string) {
	s.loop.AssertOnLoop()
	st := s.states[name]
	if st == nil {
		return
	}
	if st.variant == nil || !st.variant.Container.IsSharedLibrary {
		st.OSInfo = s.queryPackage(name)
	}
	st.NotifyListeners()
	s.updateOutdatedCount()
}

// OnPackageLocalesChanged records new app-specific locales for name.
func (s *Store) OnPackageLocalesChanged(name string, locales []string) {
	s.loop.AssertOnLoop()
	st := s.states[name]
	if st == nil {
		return
	}
	st.Locales = append([]string(nil), locales...)
	st.downloadSize = -1
	st.NotifyListeners()
}

// OutdatedCount is the number of enabled installed packages with an
// update available.
func (s *Store) OutdatedCount() int {
	s.loop.AssertOnLoop()
	return max(s.outdatedCount, 0)
}

func (s *Store) updateOutdatedCount() {
	n := 0
	for _, name := range s.catalog.SortedNames() {
		if st := s.states[name]; st != nil && st.IsOutdated() {
			n++
		}
	}
	metrics.OutdatedPackages.Set(float64(n))
	if n == s.outdatedCount {
		return
	}
	s.outdatedCount = n
	s.dispatchOutdatedCount(n)
}
