// Package session tracks the installer sessions this client owns, across
// restarts, and turns installer status reports into install results.
package session

import (
	"context"
	"fmt"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/mainloop"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/state"
)

// DefaultCapacity caps open sessions well below the platform limit.
const DefaultCapacity = 20

// Tracker owns the session permit pool and the session links of the
// state store.
type Tracker struct {
	loop      *mainloop.Loop
	store     *state.Store
	installer platform.Installer
	packages  platform.PackageQuery

	permits chan struct{}
	// multi holds parent sessions of multi-package installs. Loop only.
	multi map[int]struct{}
}

var _ platform.SessionCallback = (*Tracker)(nil)

// NewTracker creates a tracker allowing capacity open sessions.
func NewTracker(store *state.Store, installer platform.Installer, packages platform.PackageQuery, capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		loop:      store.Loop(),
		store:     store,
		installer: installer,
		packages:  packages,
		permits:   make(chan struct{}, capacity),
		multi:     make(map[int]struct{}),
	}
}

// Init registers for session callbacks, then reattaches or abandons the
// sessions left by a previous run.
func (t *Tracker) Init() {
	t.loop.AssertOnLoop()
	// Register first: a session that finishes between enumeration and
	// registration would otherwise never release its permit.
	t.installer.RegisterSessionCallback(t)

	sessions, err := t.installer.MySessions()
	if err != nil {
		logger.Warn("Unable to list installer sessions", logger.Fields{"error": err.Error()})
		return
	}

	for i := range sessions {
		info := &sessions[i]
		if info.ParentSessionID > 0 {
			continue
		}
		if !info.Committed {
			t.Abandon(info.ID)
			continue
		}

		if info.MultiPackage {
			t.recoverMultiPackage(info)
			continue
		}

		if t.waitingForUserAction(info) {
			// the pending confirmation cannot be recovered
			t.Abandon(info.ID)
			continue
		}
		if st := t.sessionState(info); st != nil {
			t.addPrevious(info.ID, st)
		} else {
			t.Abandon(info.ID)
		}
	}
}

func (t *Tracker) recoverMultiPackage(info *platform.SessionInfo) {
	children := make([]*platform.SessionInfo, 0, len(info.ChildSessionIDs))
	for _, id := range info.ChildSessionIDs {
		child, err := t.installer.SessionInfo(id)
		if err != nil || child == nil {
			continue
		}
		children = append(children, child)
	}
	for _, child := range children {
		if t.waitingForUserAction(child) {
			t.Abandon(info.ID)
			return
		}
	}
	// children cannot be abandoned on their own
	for _, child := range children {
		if st := t.sessionState(child); st != nil {
			t.addPrevious(child.ID, st)
		}
	}
	t.addPrevious(info.ID, nil)
}

func (t *Tracker) sessionName(info *platform.SessionInfo) string {
	return t.store.Catalog().TranslateManifestName(info.AppPackageName)
}

func (t *Tracker) sessionState(info *platform.SessionInfo) *state.PackageState {
	return t.store.State(t.sessionName(info))
}

// waitingForUserAction guesses whether a recovered session still waits for
// confirmation. Privileged installers never confirm updates, so a package
// that is not installed yet must be waiting. Otherwise progress 0.8 marks a
// pending confirmation and 0.9 a resumed one.
func (t *Tracker) waitingForUserAction(info *platform.SessionInfo) bool {
	if t.store.Device().Privileged {
		_, err := t.packages.GetPackageInfo(t.sessionName(info))
		return err != nil
	}
	return info.Progress < 0.9
}

func (t *Tracker) addPrevious(id int, st *state.PackageState) {
	select {
	case t.permits <- struct{}{}:
	default:
		panic(fmt.Sprintf("session: no permit left for recovered session %d", id))
	}
	if st != nil {
		t.store.LinkSession(id, st)
		logger.Debug("Picked up previous session", logger.Fields{"session_id": id, "package": st.Name})
		return
	}
	t.addMulti(id)
	logger.Debug("Picked up previous multi-package session", logger.Fields{"session_id": id})
}

func (t *Tracker) addMulti(id int) {
	if _, ok := t.multi[id]; ok {
		panic(fmt.Sprintf("session: multi-package session %d added twice", id))
	}
	t.multi[id] = struct{}{}
}

// CreateSession opens a session for st, waiting for a free permit. It
// must not be called on the loop.
func (t *Tracker) CreateSession(ctx context.Context, params platform.SessionParams, st *state.PackageState) (int, error) {
	id, err := t.create(ctx, params)
	if err != nil {
		return 0, err
	}
	logger.Debug("Created installer session", logger.Fields{"session_id": id, "package": st.Name})
	// runs before the session's OnFinished, which is posted to the same loop
	t.loop.Post(func() { t.store.LinkSession(id, st) })
	return id, nil
}

// CreateMultiPackageSession opens a parent session. It must not be called
// on the loop.
func (t *Tracker) CreateMultiPackageSession(ctx context.Context) (int, error) {
	id, err := t.create(ctx, platform.SessionParams{MultiPackage: true})
	if err != nil {
		return 0, err
	}
	logger.Debug("Created multi-package session", logger.Fields{"session_id": id})
	t.loop.Post(func() { t.addMulti(id) })
	return id, nil
}

func (t *Tracker) create(ctx context.Context, params platform.SessionParams) (int, error) {
	if t.loop.OnLoop() {
		panic("session: sessions must not be created on the loop")
	}
	select {
	case t.permits <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	id, err := t.installer.CreateSession(params)
	if err == nil && id <= 0 {
		err = fmt.Errorf("installer returned invalid session id %d", id)
	}
	if err != nil {
		<-t.permits
		return 0, fmt.Errorf("create installer session: %w", err)
	}
	return id, nil
}

// Abandon discards session id. Abandoning a parent abandons its children.
func (t *Tracker) Abandon(id int) bool {
	if err := t.installer.AbandonSession(id); err != nil {
		logger.Debug("Unable to abandon session", logger.Fields{"session_id": id, "error": err.Error()})
		return false
	}
	return true
}

// OpenSessions is the number of held permits.
func (t *Tracker) OpenSessions() int { return len(t.permits) }

// IsMultiPackage reports whether id is a tracked parent session.
func (t *Tracker) IsMultiPackage(id int) bool {
	t.loop.AssertOnLoop()
	_, ok := t.multi[id]
	return ok
}

// OnProgressChanged implements platform.SessionCallback.
func (t *Tracker) OnProgressChanged(sessionID int, progress float32) {
	t.loop.Post(func() {
		st := t.store.SessionState(sessionID)
		if st != nil && st.WaitingForUserAction {
			st.WaitingForUserAction = false
			st.NotifyListeners()
		}
	})
}

// OnFinished implements platform.SessionCallback.
func (t *Tracker) OnFinished(sessionID int, success bool) {
	t.loop.Post(func() {
		fields := logger.Fields{"session_id": sessionID, "success": success}
		if st := t.store.UnlinkSession(sessionID); st != nil {
			<-t.permits
			fields["package"] = st.Name
			logger.Debug("Completed session", fields)
			return
		}
		if _, ok := t.multi[sessionID]; ok {
			delete(t.multi, sessionID)
			<-t.permits
			logger.Debug("Completed multi-package session", fields)
			return
		}
		logger.Debug("Completed unknown session", fields)
	})
}
