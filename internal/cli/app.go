package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/apkcheck"
	"github.com/grapheneos/appstore/pkg/archive"
	"github.com/grapheneos/appstore/pkg/auth"
	"github.com/grapheneos/appstore/pkg/busy"
	"github.com/grapheneos/appstore/pkg/cache"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/config"
	"github.com/grapheneos/appstore/pkg/device"
	"github.com/grapheneos/appstore/pkg/download"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	"github.com/grapheneos/appstore/pkg/hooks"
	apphttp "github.com/grapheneos/appstore/pkg/http"
	"github.com/grapheneos/appstore/pkg/install"
	"github.com/grapheneos/appstore/pkg/mainloop"
	"github.com/grapheneos/appstore/pkg/messages"
	"github.com/grapheneos/appstore/pkg/metrics"
	"github.com/grapheneos/appstore/pkg/prefs"
	"github.com/grapheneos/appstore/pkg/repository"
	"github.com/grapheneos/appstore/pkg/resolver"
	"github.com/grapheneos/appstore/pkg/session"
	"github.com/grapheneos/appstore/pkg/signature"
	"github.com/grapheneos/appstore/pkg/state"
)

// App is the application context of one command invocation. Every
// component is built once here and handed to the others explicitly.
type App struct {
	Config    *config.Config
	Loop      *mainloop.Loop
	Prefs     *prefs.Store
	Device    *device.System
	Fetcher   *repository.Fetcher
	Store     *state.Store
	Sessions  *session.Tracker
	Cache     *cache.DefaultManager
	Installer *install.Manager
	Messages  *messages.Localizer
	Hooks     *hooks.Manager

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	reports []error
}

// newApp wires the components for cfg and starts the control loop. The
// caller must Close the App.
func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	l, err := messages.New(cfg.Settings.Language)
	if err != nil {
		return nil, err
	}
	if err := fsutil.EnsureDir(cfg.Settings.StateDir); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}

	p, err := prefs.Open(cfg.DatabasePath(), isVerbose())
	if err != nil {
		return nil, err
	}
	dev, err := device.Open(device.Options{
		Root:         cfg.DeviceRoot(),
		Device:       cfg.Device,
		ReadManifest: ReadManifest,
		Debug:        isVerbose(),
	})
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	a := &App{Config: cfg, Prefs: p, Device: dev, Messages: l, Hooks: hooks.NewManager(0)}
	if err := hooks.LoadDir(a.Hooks, cfg.HooksDir()); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	verifier, err := signature.NewVerifier(cfg.Repository.PublicKey)
	if err != nil {
		return err
	}
	authenticator, err := auth.New(cfg.Repository.Auth)
	if err != nil {
		return err
	}
	client := apphttp.NewHTTPClient(apphttp.Options{
		ConnectTimeout: cfg.Settings.ConnectTimeout,
		ReadTimeout:    cfg.Settings.ReadTimeout,
		UserAgent:      cfg.Settings.UserAgent,
		Auth:           authenticator,
	})
	a.Fetcher = repository.NewFetcher(client, verifier, cfg.Device, a.Device, repository.Options{
		BaseURL:        cfg.Repository.BaseURL,
		KeyVersion:     cfg.Repository.KeyVersion,
		CachePath:      cfg.RepoCachePath(),
		ValidateSchema: cfg.Repository.ValidateSchema,
	})
	a.Cache = cache.NewManager(cfg.PackageCacheDir(), cache.Options{
		MaxSize:     cfg.Settings.CacheMaxSize,
		MaxAge:      cfg.Settings.CacheMaxAge,
		LegacyPaths: cfg.LegacyCachePaths(),
	}, a.Device, a.Prefs)

	channel, err := catalog.ParseReleaseChannel(cfg.Settings.DefaultChannel)
	if err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.ctx, a.cancel = loopCtx, cancel
	a.Loop = mainloop.New()
	a.Loop.Start(loopCtx)

	a.Store = state.NewStore(a.Loop, a.Fetcher.LoadCached(), a.Fetcher, a.Prefs, a.Device, cfg.Device, a.Cache.Run, state.Options{
		DefaultChannel:       channel,
		UpdateLoopInterval:   cfg.Settings.UpdateLoopInterval,
		RepoCheckMinInterval: cfg.Settings.RepoCheckMinInterval,
		PruneInitialDelay:    cfg.Settings.PruneInitialDelay,
		PruneInterval:        cfg.Settings.PruneInterval,
	})
	a.Sessions = session.NewTracker(a.Store, a.Device, a.Device, cfg.Settings.SessionCapacity)
	if err := a.Loop.Call(ctx, func() {
		a.Store.Init(loopCtx)
		a.Sessions.Init()
	}); err != nil {
		return err
	}

	read := ReadManifest
	if read == nil {
		read = apkcheck.ReadManifest
	}
	a.Installer = &install.Manager{
		Store:      a.Store,
		Resolver:   resolver.New(a.Store, a.Device),
		Sessions:   a.Sessions,
		Receiver:   session.NewStatusReceiver(a.Store, a.observer()),
		Installer:  a.Device,
		Packages:   a.Device,
		Policy:     a.Device,
		Finder:     a.Device,
		Ledger:     busy.NewLedger(a.Device),
		Downloader: download.NewManager(client, cfg.Settings.DownloadConcurrency),
		Archive:    archive.NewManager(),
		Checker:    apkcheck.NewCheckerWithReader(read),
		Reporter:   install.ReporterFunc(a.report),
		Hooks:      install.Hooks{OnEvent: a.onEvent},
		Options: install.Options{
			CacheDir:       cfg.PackageCacheDir(),
			TempDir:        cfg.TempDir(),
			InstallTimeout: cfg.Settings.InstallTimeout,
			AutoUpdate:     cfg.Settings.AutoUpdate,
		},
	}

	if addr := cfg.Settings.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(loopCtx, addr); err != nil {
				logger.Warn("Metrics server stopped", logger.Fields{"addr": addr, "error": err.Error()})
			}
		}()
	}
	return nil
}

// observer refreshes package states once the OS reports a result, the
// way a package-changed broadcast would.
func (a *App) observer() session.Observer {
	return session.ObserverFuncs{
		InstallSucceeded: func(req errors.InstallerRequest) {
			for _, p := range req.Packages {
				a.Store.OnPackageChanged(p.Name)
			}
			logger.Debug(a.Messages.Success(req))
		},
		InstallFailed: func(err *errors.PackageInstallerError) {
			logger.Debug("Installer reported failure", logger.Fields{"packages": err.Request.Labels(), "status": int(err.Status)})
		},
		UserActionRequired: func(req errors.InstallerRequest, packageName string, _ interface{}) {
			logger.Info("Confirmation required", logger.Fields{"package": packageName, "uninstall": req.Uninstall})
		},
	}
}

// onEvent runs the event script of a job phase.
func (a *App) onEvent(e install.Event) {
	hctx := hooks.Context{Packages: e.Packages}
	if e.Err != nil {
		hctx.Error = a.Messages.Error(e.Err)
	}
	a.Hooks.Notify(a.ctx, hooks.Event(e.Phase), hctx)
}

func (a *App) report(err error) {
	a.mu.Lock()
	a.reports = append(a.reports, err)
	a.mu.Unlock()
	logger.Warn(a.Messages.Error(err))
}

// Reports returns the errors reported by background work so far.
func (a *App) Reports() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]error(nil), a.reports...)
}

// Call runs fn on the control loop.
func (a *App) Call(ctx context.Context, fn func()) error {
	return a.Loop.Call(ctx, fn)
}

// Close stops the loop and releases the databases.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		<-a.Loop.Done()
	}
	if a.Device != nil {
		if err := a.Device.Close(); err != nil {
			logger.Debug("Unable to close device", logger.Fields{"error": err.Error()})
		}
	}
	if a.Prefs != nil {
		if err := a.Prefs.Close(); err != nil {
			logger.Debug("Unable to close preferences", logger.Fields{"error": err.Error()})
		}
	}
}

// withApp loads the config, builds an App and runs fn with it.
func withApp(ctx context.Context, fn func(ctx context.Context, a *App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}
