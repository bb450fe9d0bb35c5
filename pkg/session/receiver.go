package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/metrics"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/state"
)

// Observer is told about installer outcomes that need user-facing
// handling. Methods run on the control loop.
type Observer interface {
	// OnUserActionRequired hands over the platform's confirmation handle.
	// packageName is empty for uninstalls.
	OnUserActionRequired(req errors.InstallerRequest, packageName string, action interface{})
	OnInstallSucceeded(req errors.InstallerRequest)
	// OnInstallFailed is not called for aborted confirmations.
	OnInstallFailed(err *errors.PackageInstallerError)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	UserActionRequired func(req errors.InstallerRequest, packageName string, action interface{})
	InstallSucceeded   func(req errors.InstallerRequest)
	InstallFailed      func(err *errors.PackageInstallerError)
}

func (f ObserverFuncs) OnUserActionRequired(req errors.InstallerRequest, packageName string, action interface{}) {
	if f.UserActionRequired != nil {
		f.UserActionRequired(req, packageName, action)
	}
}

func (f ObserverFuncs) OnInstallSucceeded(req errors.InstallerRequest) {
	if f.InstallSucceeded != nil {
		f.InstallSucceeded(req)
	}
}

func (f ObserverFuncs) OnInstallFailed(err *errors.PackageInstallerError) {
	if f.InstallFailed != nil {
		f.InstallFailed(err)
	}
}

// StatusReceiver routes status events to per-session completion channels.
type StatusReceiver struct {
	store    *state.Store
	observer Observer

	mu       sync.Mutex
	channels map[int]chan error
}

// NewStatusReceiver creates a receiver. observer may be nil.
func NewStatusReceiver(store *state.Store, observer Observer) *StatusReceiver {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	return &StatusReceiver{store: store, observer: observer, channels: make(map[int]chan error)}
}

// Completion registers a channel that receives the final result of
// session id: nil on success, else *errors.PackageInstallerError. Register
// before committing.
func (r *StatusReceiver) Completion(sessionID int) <-chan error {
	ch := make(chan error, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[sessionID]; ok {
		panic(fmt.Sprintf("session: completion channel for %d registered twice", sessionID))
	}
	r.channels[sessionID] = ch
	return ch
}

// Forget drops the completion channel of a session that was never
// committed.
func (r *StatusReceiver) Forget(sessionID int) {
	r.takeChannel(sessionID)
}

func (r *StatusReceiver) takeChannel(sessionID int) chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.channels[sessionID]
	delete(r.channels, sessionID)
	return ch
}

// Target is a platform.StatusTarget bound to one request.
type Target struct {
	ID       string
	Request  errors.InstallerRequest
	receiver *StatusReceiver
	result   chan error
}

var _ platform.StatusTarget = (*Target)(nil)

// Target creates a status target for req.
func (r *StatusReceiver) Target(req errors.InstallerRequest) *Target {
	return &Target{ID: uuid.NewString(), Request: req, receiver: r, result: make(chan error, 1)}
}

// Result receives the final result of a request without a session, such
// as an uninstall.
func (t *Target) Result() <-chan error { return t.result }

// OnStatus implements platform.StatusTarget. It may be called on any
// goroutine.
func (t *Target) OnStatus(ev platform.StatusEvent) {
	t.receiver.handle(t, ev)
}

func (r *StatusReceiver) handle(t *Target, ev platform.StatusEvent) {
	req := t.Request
	fields := logger.Fields{"session_id": ev.SessionID, "target": t.ID, "status": int(ev.Status)}

	if ev.Status == platform.StatusPendingUserAction {
		r.store.Loop().Post(func() { r.pendingUserAction(req, ev) })
		return
	}

	var result error
	if ev.Status == platform.StatusSuccess {
		metrics.InstallResults.WithLabelValues("success").Inc()
		logger.Debug("Installer request succeeded", fields)
	} else {
		pie := &errors.PackageInstallerError{
			Request:      req,
			LegacyStatus: ev.LegacyStatus,
			Message:      ev.Message,
			Status:       ev.Status,
		}
		result = pie
		if pie.IsAborted() {
			metrics.InstallResults.WithLabelValues("aborted").Inc()
		} else {
			metrics.InstallResults.WithLabelValues("failure").Inc()
		}
		fields["legacy_status"] = ev.LegacyStatus
		fields["message"] = ev.Message
		logger.Debug("Installer request failed", fields)
	}

	if ch := r.takeChannel(ev.SessionID); ch != nil {
		ch <- result
	}
	select {
	case t.result <- result:
	default:
	}

	r.store.Loop().Post(func() {
		if result == nil {
			r.observer.OnInstallSucceeded(req)
			return
		}
		pie := result.(*errors.PackageInstallerError)
		if !pie.IsAborted() {
			r.observer.OnInstallFailed(pie)
		}
	})
}

func (r *StatusReceiver) pendingUserAction(req errors.InstallerRequest, ev platform.StatusEvent) {
	if req.Uninstall {
		r.observer.OnUserActionRequired(req, "", ev.UserAction)
		return
	}

	var st *state.PackageState
	if len(req.Packages) == 1 {
		st = r.store.State(req.Packages[0].Name)
	} else {
		st = r.store.SessionState(ev.SessionID)
	}
	if st == nil {
		return
	}
	logger.Debug("Pending user action", logger.Fields{
		"session_id": ev.SessionID,
		"package":    st.Name,
		"status":     st.Status().String(),
	})
	if st.Status() != state.StatusInstalling || st.WaitingForUserAction {
		return
	}
	st.WaitingForUserAction = true
	st.NotifyListeners()
	r.observer.OnUserActionRequired(req, st.Name, ev.UserAction)
}
