package state

import "fmt"

// Owner is the lifecycle of a listener. Events reach only owners that are
// active at dispatch time.
type Owner interface {
	IsActive() bool
}

// Listener receives state events on the control loop.
type Listener interface {
	OnPackageStateChanged(st *PackageState)
	OnAllPackageStatesChanged(states map[string]*PackageState)
	OnOutdatedCountChanged(n int)
	OnRepoUpdateResult(err error)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	StateChanged     func(st *PackageState)
	AllStatesChanged func(states map[string]*PackageState)
	OutdatedCount    func(n int)
	RepoUpdateResult func(err error)
}

func (f ListenerFuncs) OnPackageStateChanged(st *PackageState) {
	if f.StateChanged != nil {
		f.StateChanged(st)
	}
}

func (f ListenerFuncs) OnAllPackageStatesChanged(states map[string]*PackageState) {
	if f.AllStatesChanged != nil {
		f.AllStatesChanged(states)
	}
}

func (f ListenerFuncs) OnOutdatedCountChanged(n int) {
	if f.OutdatedCount != nil {
		f.OutdatedCount(n)
	}
}

func (f ListenerFuncs) OnRepoUpdateResult(err error) {
	if f.RepoUpdateResult != nil {
		f.RepoUpdateResult(err)
	}
}

type listenerEntry struct {
	owner    Owner
	listener Listener
}

// Register adds l for owner. The owner must not be active yet; call
// Activate once it is.
func (s *Store) Register(owner Owner, l Listener) {
	s.loop.AssertOnLoop()
	if s.findListener(owner) >= 0 {
		panic(fmt.Sprintf("state: owner %v registered twice", owner))
	}
	if owner.IsActive() {
		panic(fmt.Sprintf("state: owner %v registered after activation", owner))
	}
	s.listeners = append(s.listeners, &listenerEntry{owner: owner, listener: l})
}

// Activate delivers the initial snapshot to owner's listener.
func (s *Store) Activate(owner Owner) {
	s.loop.AssertOnLoop()
	i := s.findListener(owner)
	if i < 0 {
		panic(fmt.Sprintf("state: owner %v is not registered", owner))
	}
	l := s.listeners[i].listener
	l.OnAllPackageStatesChanged(s.states)
	l.OnRepoUpdateResult(s.lastRepoResult)
	l.OnOutdatedCountChanged(s.OutdatedCount())
}

// Unregister removes owner's listener.
func (s *Store) Unregister(owner Owner) {
	s.loop.AssertOnLoop()
	i := s.findListener(owner)
	if i < 0 {
		panic(fmt.Sprintf("state: owner %v is not registered", owner))
	}
	s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
}

func (s *Store) findListener(owner Owner) int {
	for i, e := range s.listeners {
		if e.owner == owner {
			return i
		}
	}
	return -1
}

// dispatch posts fn for every listener whose owner is active when the
// posted function runs.
func (s *Store) dispatch(fn func(l Listener)) {
	s.loop.Post(func() {
		for _, e := range append([]*listenerEntry(nil), s.listeners...) {
			if e.owner.IsActive() {
				fn(e.listener)
			}
		}
	})
}

func (s *Store) dispatchStateChanged(st *PackageState) {
	s.dispatch(func(l Listener) { l.OnPackageStateChanged(st) })
}

func (s *Store) dispatchAllStatesChanged() {
	s.dispatch(func(l Listener) { l.OnAllPackageStatesChanged(s.states) })
}

func (s *Store) dispatchOutdatedCount(n int) {
	s.dispatch(func(l Listener) { l.OnOutdatedCountChanged(n) })
}

func (s *Store) dispatchRepoUpdateResult(err error) {
	s.dispatch(func(l Listener) { l.OnRepoUpdateResult(err) })
}

// ActiveOwner is an Owner toggled by hand, for long-lived front-ends.
type ActiveOwner struct {
	Name   string
	active bool
}

func (o *ActiveOwner) IsActive() bool { return o.active }

// SetActive flips the owner's state. Call it on the loop.
func (o *ActiveOwner) SetActive(active bool) { o.active = active }

func (o *ActiveOwner) String() string { return o.Name }
