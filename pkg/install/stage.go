package install

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/archive"
	"github.com/grapheneos/appstore/pkg/cache"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/download"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/metrics"
	"github.com/grapheneos/appstore/pkg/platform"
	"github.com/grapheneos/appstore/pkg/state"
)

const fsVeritySuffix = ".fsv_sig"

func (m *Manager) installSingle(ctx context.Context, t *Task) (<-chan error, error) {
	if err := m.Policy.InstallationAllowed(); err != nil {
		return nil, err
	}
	id, err := m.Sessions.CreateSession(ctx, t.sessionParams(), t.state)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			m.Sessions.Abandon(id)
		}
	}()

	sess, err := m.Installer.OpenSession(id)
	if err != nil {
		return nil, fmt.Errorf("open session %d: %w", id, err)
	}
	defer sess.Close()

	if err := m.obtainAndWriteApks(ctx, t, sess); err != nil {
		return nil, err
	}
	tasks := []*Task{t}
	if err := m.prepareCommit(ctx, tasks); err != nil {
		return nil, err
	}
	completion, err := m.commit(id, sess, tasks)
	if err != nil {
		return nil, err
	}
	committed = true
	return completion, nil
}

func (m *Manager) installMulti(ctx context.Context, tasks []*Task) (<-chan error, error) {
	if !m.Installer.SupportsMultiPackage() {
		return nil, errors.ErrMultiInstallUnsupported
	}
	if err := m.Policy.InstallationAllowed(); err != nil {
		return nil, err
	}
	parentID, err := m.Sessions.CreateMultiPackageSession(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		// children are abandoned with their parent
		if !committed {
			m.Sessions.Abandon(parentID)
		}
	}()

	parent, err := m.Installer.OpenSession(parentID)
	if err != nil {
		return nil, fmt.Errorf("open session %d: %w", parentID, err)
	}
	defer parent.Close()

	children := make([]int, len(tasks))
	for i, t := range tasks {
		id, err := m.Sessions.CreateSession(ctx, t.sessionParams(), t.state)
		if err != nil {
			return nil, err
		}
		if err := parent.AddChildSession(id); err != nil {
			m.Sessions.Abandon(id)
			return nil, fmt.Errorf("add child session %d to %d: %w", id, parentID, err)
		}
		children[i] = id
	}

	err = fanOut(ctx, len(tasks), func(ctx context.Context, i int) error {
		child, err := m.Installer.OpenSession(children[i])
		if err != nil {
			return fmt.Errorf("open session %d: %w", children[i], err)
		}
		defer child.Close()
		return m.obtainAndWriteApks(ctx, tasks[i], child)
	})
	if err != nil {
		return nil, err
	}
	if err := m.prepareCommit(ctx, tasks); err != nil {
		return nil, err
	}
	completion, err := m.commit(parentID, parent, tasks)
	if err != nil {
		return nil, err
	}
	committed = true
	return completion, nil
}

// prepareCommit runs the last checks before the point of no return.
func (m *Manager) prepareCommit(ctx context.Context, tasks []*Task) error {
	for _, t := range tasks {
		if t.beforeCommit != nil {
			if err := t.beforeCommit(ctx); err != nil {
				return err
			}
		}
	}
	for _, t := range tasks {
		if err := m.checkVanished(t); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Policy.InstallationAllowed()
}

func (m *Manager) commit(id int, sess platform.Session, tasks []*Task) (<-chan error, error) {
	completion := m.Receiver.Completion(id)
	if err := sess.Commit(m.Receiver.Target(installerRequest(tasks))); err != nil {
		m.Receiver.Forget(id)
		return nil, fmt.Errorf("commit session %d: %w", id, err)
	}
	logger.Debug("Committed installer session", logger.Fields{"session_id": id, "packages": names(tasks)})
	return completion, nil
}

// checkVanished cancels an update of a package that was uninstalled while
// it was being staged, which would otherwise turn into a fresh install.
func (m *Manager) checkVanished(t *Task) error {
	if !t.isUpdate || t.Variant.Container.IsSharedLibrary {
		return nil
	}
	_, err := m.Packages.GetPackageInfo(t.Variant.Name())
	if stderrors.Is(err, platform.ErrPackageNotFound) {
		return fmt.Errorf("%s: %w: %w", t.Variant.Name(), context.Canceled, errors.ErrPackageVanished)
	}
	return nil
}

func (m *Manager) obtainAndWriteApks(ctx context.Context, t *Task, sess platform.Session) error {
	if !t.isUpdate {
		reused, err := m.reuse(ctx, t, sess)
		if err != nil {
			return err
		}
		if reused {
			t.setPhase(state.PhasePendingInstall)
			return nil
		}
	}

	if t.pruning != nil {
		select {
		case <-t.pruning.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.setPhase(state.PhaseDownloading)
	err := fanOut(ctx, len(t.apks), func(ctx context.Context, i int) error {
		return m.stageApk(ctx, t, t.apks[i], sess)
	})
	if err != nil {
		return err
	}

	if t.Variant.Container.HasFsVeritySignatures && m.Store.Device().UsesFsVeritySignatures() {
		err := fanOut(ctx, len(t.apks), func(ctx context.Context, i int) error {
			return m.stageFsVeritySignature(ctx, t, t.apks[i], sess)
		})
		if err != nil {
			return err
		}
	}
	t.setPhase(state.PhasePendingInstall)
	return nil
}

// reuse copies the apks of the same package installed in another profile
// into sess. It reports false when no such package exists.
func (m *Manager) reuse(ctx context.Context, t *Task, sess platform.Session) (bool, error) {
	if m.Finder == nil {
		return false, nil
	}
	c := t.Variant.Container
	info, err := m.Finder.FindPackage(c.ManifestName, t.Variant.VersionCode, c.Signatures)
	if err != nil {
		if !stderrors.Is(err, platform.ErrUnsupported) && !stderrors.Is(err, platform.ErrPackageNotFound) {
			logger.Debug("Unable to look up package in other profiles", logger.Fields{"package": c.Name, "error": err.Error()})
		}
		return false, nil
	}
	err = fanOut(ctx, len(info.APKPaths), func(ctx context.Context, i int) error {
		return copyIntoSession(ctx, sess, info.APKPaths[i])
	})
	if err != nil {
		return false, err
	}
	metrics.ApkSources.WithLabelValues("profile").Add(float64(len(info.APKPaths)))
	logger.Info("Reused apks from another profile", logger.Fields{"package": c.Name, "version_code": info.VersionCode})
	return true, nil
}

func copyIntoSession(ctx context.Context, sess platform.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	return writeIntoSession(ctx, sess, filepath.Base(path), fi.Size(), f)
}

func (m *Manager) stageApk(ctx context.Context, t *Task, apk *catalog.Apk, sess platform.Session) error {
	item := download.Item{
		URL:  apk.DownloadURL(),
		Path: cache.ApkPath(m.Options.CacheDir, t.Variant.Name(), t.Variant.VersionCode, apk.Name),
		Size: apk.CompressedSize,
	}
	f, src, err := m.Downloader.Fetch(ctx, item, &t.downloaded)
	if err != nil {
		return fmt.Errorf("%s: %w", apk.Name, err)
	}
	defer f.Close()
	logger.Debug("Obtained apk", logger.Fields{
		"package": t.Variant.Name(), "version_code": t.Variant.VersionCode, "apk": apk.Name, "source": string(src),
	})
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return m.writeVerified(ctx, t, apk, f, sess)
}

// writeVerified inflates src into an unlinked temp file, checks it and
// only then copies it into the session.
func (m *Manager) writeVerified(ctx context.Context, t *Task, apk *catalog.Apk, src io.Reader, sess platform.Session) error {
	tmp, err := os.CreateTemp(m.Options.TempDir, "apk-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := os.Remove(tmp.Name()); err != nil {
		logger.Debug("Unable to unlink temp file", logger.Fields{"path": tmp.Name(), "error": err.Error()})
	}
	defer tmp.Close()

	if err := m.Archive.DecompressVerified(ctx, src, tmp, apk.Size, apk.SHA256); err != nil {
		return fmt.Errorf("%s of %s: %w", apk.Name, t.Variant.Name(), err)
	}
	if t.Variant.Container.NoCode {
		if err := m.Checker.CheckNoCode(tmp, t.Variant.ManifestName(), apk.Name); err != nil {
			return err
		}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return writeIntoSession(ctx, sess, apk.Name, apk.Size, tmp)
}

func (m *Manager) stageFsVeritySignature(ctx context.Context, t *Task, apk *catalog.Apk, sess platform.Session) error {
	name := apk.Name + fsVeritySuffix
	data, err := m.Downloader.FetchSmall(ctx, download.Item{
		URL:  apk.FsVeritySignatureURL(),
		Path: filepath.Join(cache.VersionDir(m.Options.CacheDir, t.Variant.Name(), t.Variant.VersionCode), name),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return writeIntoSession(ctx, sess, name, int64(len(data)), bytes.NewReader(data))
}

func writeIntoSession(ctx context.Context, sess platform.Session, name string, size int64, src io.Reader) error {
	w, err := sess.OpenWrite(name, size)
	if err != nil {
		return fmt.Errorf("open session file %s: %w", name, err)
	}
	_, err = io.Copy(w, archive.ContextReader(ctx, src))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write session file %s: %w", name, err)
	}
	return ctx.Err()
}

// fanOut runs fn for 0..n-1 concurrently and returns the first failure.
// The context given to fn is cancelled once any call fails.
func fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := fn(ctx, i); err != nil {
				once.Do(func() {
					first = err
					cancel()
				})
			}
		}(i)
	}
	wg.Wait()
	return first
}
