package device

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	"github.com/grapheneos/appstore/pkg/platform"
)

// stagedProgress is reported once every byte of a session is written.
const stagedProgress = 0.8

// CreateSession implements platform.Installer.
func (s *System) CreateSession(params platform.SessionParams) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := InstallerSession{
		AppPackageName:         params.AppPackageName,
		AppLabel:               params.AppLabel,
		MultiPackage:           params.MultiPackage,
		ParentID:               platform.InvalidSessionID,
		RequireUserAction:      int(params.RequireUserAction),
		Scenario:               int(params.Scenario),
		Size:                   params.Size,
		RequestUpdateOwnership: params.RequestUpdateOwnership,
		CreatedAt:              time.Now(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, errors.Wrap(err, "failed to create session")
	}
	if err := os.MkdirAll(s.sessionDir(row.ID), fsutil.DirModePrivate); err != nil {
		s.db.Delete(&row)
		return 0, errors.Wrapf(err, "failed to create session %d", row.ID)
	}
	logger.Debug("Created session", logger.Fields{"session_id": row.ID, "package": row.AppPackageName, "multi_package": row.MultiPackage})
	return row.ID, nil
}

func (s *System) session(id int) (*InstallerSession, error) {
	var row InstallerSession
	err := s.db.Where("id = ?", id).Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platform.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query session %d", id)
	}
	return &row, nil
}

func (s *System) children(id int) ([]InstallerSession, error) {
	var rows []InstallerSession
	if err := s.db.Where("parent_id = ?", id).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to query children of session %d", id)
	}
	return rows, nil
}

// OpenSession implements platform.Installer.
func (s *System) OpenSession(id int) (platform.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if row.Committed {
		return nil, errors.Wrapf(errors.ErrSessionState, "session %d is committed", id)
	}
	return &session{sys: s, id: id}, nil
}

// AbandonSession implements platform.Installer.
func (s *System) AbandonSession(id int) error {
	ids, err := s.destroy(id)
	if err != nil {
		return err
	}
	logger.Debug("Abandoned session", logger.Fields{"session_id": id})
	s.notifyFinished(ids, false)
	return nil
}

// destroy removes a session with its children and returns the removed
// ids, children first.
func (s *System) destroy(id int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.session(id); err != nil {
		return nil, err
	}
	children, err := s.children(id)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	ids = append(ids, id)
	if err := s.db.Where("id IN ?", ids).Delete(&InstallerSession{}).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to delete session %d", id)
	}
	for _, i := range ids {
		if err := os.RemoveAll(s.sessionDir(i)); err != nil {
			logger.Warn("Unable to remove session files", logger.Fields{"session_id": i, "error": err.Error()})
		}
	}
	return ids, nil
}

// SessionInfo implements platform.Installer.
func (s *System) SessionInfo(id int) (*platform.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return s.info(row)
}

func (s *System) info(row *InstallerSession) (*platform.SessionInfo, error) {
	info := &platform.SessionInfo{
		ID:              row.ID,
		AppPackageName:  row.AppPackageName,
		Committed:       row.Committed,
		MultiPackage:    row.MultiPackage,
		ParentSessionID: row.ParentID,
		Progress:        row.Progress,
	}
	if row.MultiPackage {
		children, err := s.children(row.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			info.ChildSessionIDs = append(info.ChildSessionIDs, c.ID)
		}
	}
	return info, nil
}

// MySessions implements platform.Installer.
func (s *System) MySessions() ([]platform.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []InstallerSession
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	out := make([]platform.SessionInfo, 0, len(rows))
	for i := range rows {
		info, err := s.info(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

type session struct {
	sys *System
	id  int
}

func (ss *session) OpenWrite(name string, size int64) (io.WriteCloser, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid session file name %q", name)
	}
	f, err := os.OpenFile(filepath.Join(ss.sys.sessionDir(ss.id), name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fsutil.FileModeSecure)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s in session %d", name, ss.id)
	}
	return &sessionFile{File: f, session: ss}, nil
}

func (ss *session) AddChildSession(childID int) error {
	s := ss.sys
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, err := s.session(ss.id)
	if err != nil {
		return err
	}
	if !parent.MultiPackage {
		return errors.Wrapf(errors.ErrSessionState, "session %d is not a multi-package session", ss.id)
	}
	child, err := s.session(childID)
	if err != nil {
		return err
	}
	if child.MultiPackage || child.ParentID != platform.InvalidSessionID {
		return errors.Wrapf(errors.ErrSessionState, "session %d cannot be added to %d", childID, ss.id)
	}
	return s.db.Model(child).Update("parent_id", ss.id).Error
}

// Commit installs the session asynchronously and reports to target.
func (ss *session) Commit(target platform.StatusTarget) error {
	s := ss.sys
	s.mu.Lock()
	row, err := s.session(ss.id)
	if err == nil && (row.Committed || row.ParentID != platform.InvalidSessionID) {
		err = errors.Wrapf(errors.ErrSessionState, "session %d cannot be committed", ss.id)
	}
	if err == nil {
		err = s.db.Model(row).Update("committed", true).Error
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	go s.install(ss.id, target)
	return nil
}

func (ss *session) Close() error { return nil }

type sessionFile struct {
	*os.File
	session *session
}

func (f *sessionFile) Close() error {
	if err := f.File.Sync(); err != nil {
		_ = f.File.Close()
		return err
	}
	if err := f.File.Close(); err != nil {
		return err
	}
	f.session.updateProgress()
	return nil
}

// updateProgress maps the staged bytes to the 0..stagedProgress range.
func (ss *session) updateProgress() {
	s := ss.sys
	s.mu.Lock()
	row, err := s.session(ss.id)
	if err != nil || row.Size <= 0 {
		s.mu.Unlock()
		return
	}
	var written int64
	entries, _ := os.ReadDir(s.sessionDir(ss.id))
	for _, e := range entries {
		if fi, err := e.Info(); err == nil && fi.Mode().IsRegular() {
			written += fi.Size()
		}
	}
	progress := float32(stagedProgress) * float32(min(written, row.Size)) / float32(row.Size)
	err = s.db.Model(row).Update("progress", progress).Error
	s.mu.Unlock()
	if err == nil {
		s.notifyProgress(ss.id, progress)
	}
}

// install applies a committed session. A multi-package session applies
// all children or none.
func (s *System) install(id int, target platform.StatusTarget) {
	ev := platform.StatusEvent{SessionID: id, Status: platform.StatusSuccess}
	staged, err := s.verify(id)
	if err == nil {
		err = s.apply(staged)
	}
	if err != nil {
		var fe *failure
		if stderrors.As(err, &fe) {
			ev.Status, ev.LegacyStatus = fe.status, fe.legacy
		} else {
			ev.Status = platform.StatusFailure
		}
		ev.Message = err.Error()
	}

	ids, derr := s.destroy(id)
	if derr != nil {
		logger.Warn("Unable to remove committed session", logger.Fields{"session_id": id, "error": derr.Error()})
	}
	logger.Debug("Committed session finished", logger.Fields{"session_id": id, "status": int(ev.Status), "message": ev.Message})
	target.OnStatus(ev)
	s.notifyFinished(ids, ev.Status == platform.StatusSuccess)
}

type failure struct {
	status platform.Status
	legacy int
	msg    string
}

func (f *failure) Error() string { return f.msg }

type stagedPackage struct {
	sessionID   int
	dir         string
	name        string
	versionCode int64
	versionName string
}

func (s *System) verify(id int) ([]stagedPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.session(id)
	if err != nil {
		return nil, err
	}
	rows := []InstallerSession{*row}
	if row.MultiPackage {
		if rows, err = s.children(id); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, &failure{status: platform.StatusFailureInvalid, msg: fmt.Sprintf("session %d has no children", id)}
		}
	}
	staged := make([]stagedPackage, 0, len(rows))
	for _, r := range rows {
		p, err := s.verifyOne(&r)
		if err != nil {
			return nil, err
		}
		staged = append(staged, *p)
	}
	return staged, nil
}

func (s *System) verifyOne(row *InstallerSession) (*stagedPackage, error) {
	dir := s.sessionDir(row.ID)
	f, err := os.Open(filepath.Join(dir, baseApk))
	if err != nil {
		return nil, &failure{status: platform.StatusFailureInvalid, msg: fmt.Sprintf("session %d: missing %s", row.ID, baseApk)}
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	m, err := s.opts.ReadManifest(f, st.Size())
	if err != nil {
		return nil, &failure{status: platform.StatusFailureInvalid, msg: fmt.Sprintf("session %d: %v", row.ID, err)}
	}
	if m.Package != row.AppPackageName {
		return nil, &failure{
			status: platform.StatusFailureInvalid,
			msg:    fmt.Sprintf("session %d: apk declares %s, expected %s", row.ID, m.Package, row.AppPackageName),
		}
	}
	if cur, err := s.packageInfo(m.Package); err == nil && cur.VersionCode > m.VersionCode {
		return nil, &failure{
			status: platform.StatusFailureConflict,
			legacy: platform.LegacyInstallFailedVersionDowngrade,
			msg:    fmt.Sprintf("%s: version %d is older than installed %d", m.Package, m.VersionCode, cur.VersionCode),
		}
	}
	return &stagedPackage{sessionID: row.ID, dir: dir, name: m.Package, versionCode: m.VersionCode, versionName: m.VersionName}, nil
}

func (s *System) apply(staged []stagedPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range staged {
			dst := s.packageDir(p.name)
			if err := os.RemoveAll(dst); err != nil {
				return err
			}
			if err := fsutil.Move(p.dir, dst); err != nil {
				return errors.Wrapf(err, "failed to install %s", p.name)
			}
			enabled := true
			var cur InstalledPackage
			if err := tx.Where("name = ?", p.name).Take(&cur).Error; err == nil {
				enabled = cur.Enabled
			}
			err := tx.Save(&InstalledPackage{
				Name:        p.name,
				VersionCode: p.versionCode,
				VersionName: p.versionName,
				Enabled:     enabled,
				System:      cur.System,
				InstalledAt: time.Now(),
			}).Error
			if err != nil {
				return err
			}
			logger.Info("Installed package", logger.Fields{"package": p.name, "version_code": p.versionCode, "session_id": p.sessionID})
		}
		return nil
	})
}
