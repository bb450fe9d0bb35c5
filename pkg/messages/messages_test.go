package messages

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
)

func clearLocaleEnv(t *testing.T) {
	for _, k := range []string{"APPSTORE_LANG", "LC_ALL", "LC_MESSAGES", "LANG"} {
		t.Setenv(k, "")
	}
}

func newLocalizer(t *testing.T, lang string) *Localizer {
	t.Helper()
	clearLocaleEnv(t)
	l, err := New(lang)
	require.NoError(t, err)
	return l
}

func TestSelectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		override string
		env      map[string]string
		want     language.Tag
	}{
		{name: "default", want: language.English},
		{name: "override", override: "de", want: language.German},
		{name: "posix locale", env: map[string]string{"LANG": "de_DE.UTF-8"}, want: language.German},
		{name: "override wins", override: "en", env: map[string]string{"LANG": "de_DE.UTF-8"}, want: language.English},
		{name: "app variable first", env: map[string]string{"APPSTORE_LANG": "de", "LANG": "en_US"}, want: language.German},
		{name: "unsupported", override: "ja", want: language.English},
		{name: "C locale", env: map[string]string{"LC_ALL": "C"}, want: language.English},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLocaleEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, selectLanguage(tt.override))
		})
	}
}

func request(uninstall bool, labels ...string) errors.InstallerRequest {
	req := errors.InstallerRequest{Uninstall: uninstall}
	for _, l := range labels {
		req.Packages = append(req.Packages, errors.InstallerPackage{Name: "org.example." + l, Label: l})
	}
	return req
}

func TestError(t *testing.T) {
	l := newLocalizer(t, "en")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "missing dependency",
			err: &errors.DependencyResolutionError{Details: &errors.MissingDependencyError{
				Dependant: "org.example.app", Dependency: "org.example.lib", Reason: errors.ReasonMissingInRepo,
			}},
			want: "org.example.app requires org.example.lib, which is not available in the repository",
		},
		{
			name: "busy dependency",
			err:  &errors.InstallerBusyError{PkgName: "org.example.lib", RequestedPkgName: "org.example.app"},
			want: "org.example.lib, a dependency of org.example.app, is already being installed",
		},
		{
			name: "busy",
			err:  &errors.InstallerBusyError{PkgName: "org.example.app", RequestedPkgName: "org.example.app"},
			want: "org.example.app is already being installed",
		},
		{
			name: "busy elsewhere",
			err:  &errors.PackagesBusyError{PackageNames: []string{"a", "b"}},
			want: "a, b are being installed by another installer",
		},
		{
			name: "busy elsewhere single",
			err:  &errors.PackagesBusyError{PackageNames: []string{"a"}},
			want: "a is being installed by another installer",
		},
		{
			name: "download",
			err:  &errors.DownloadError{Labels: []string{"App"}, Err: errors.ErrDigestMismatch},
			want: "Unable to download App: sha256 mismatch",
		},
		{
			name: "vanished",
			err:  fmt.Errorf("x: %w", errors.ErrPackageVanished),
			want: "The update was cancelled because the app was uninstalled",
		},
		{
			name: "restricted",
			err:  &errors.DownloadError{Labels: []string{"App"}, Err: platform.ErrUserRestricted},
			want: "Installing apps is restricted for this user",
		},
		{
			name: "storage",
			err: &errors.PackageInstallerError{
				Request: request(false, "App"), Status: platform.StatusFailureStorage,
				LegacyStatus: platform.LegacyInstallFailedInsufficientStorage,
			},
			want: "Not enough free storage to install App",
		},
		{
			name: "downgrade",
			err: &errors.PackageInstallerError{
				Request: request(false, "App", "Lib"), Status: platform.StatusFailureConflict,
				LegacyStatus: platform.LegacyInstallFailedVersionDowngrade,
			},
			want: "A newer version of App, Lib is already installed",
		},
		{
			name: "uninstall restricted",
			err: &errors.PackageInstallerError{
				Request: request(true, "App"), Status: platform.StatusFailureBlocked,
				LegacyStatus: platform.LegacyDeleteFailedUserRestricted,
			},
			want: "Uninstalling apps is restricted for this user",
		},
		{
			name: "install failure",
			err:  &errors.PackageInstallerError{Request: request(false, "App"), Status: platform.StatusFailure, Message: "broken"},
			want: "Unable to install App: broken",
		},
		{
			name: "uninstall failure",
			err:  &errors.PackageInstallerError{Request: request(true, "App"), Status: platform.StatusFailure, Message: "broken"},
			want: "Unable to uninstall App: broken",
		},
		{
			name: "transient repo failure",
			err:  &errors.RepoUpdateError{Err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED)},
			want: "Unable to reach the app repository",
		},
		{
			name: "repo failure",
			err:  &errors.RepoUpdateError{Err: errors.ErrSignatureInvalid},
			want: "Unable to fetch the app list: signature verification failed",
		},
		{name: "other", err: errors.ErrCatalogParse, want: "failed to parse catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Error(tt.err))
		})
	}
	assert.Empty(t, l.Error(nil))
}

func TestGerman(t *testing.T) {
	l := newLocalizer(t, "de-DE")
	assert.Equal(t, language.German, l.Language())
	assert.Equal(t, "App installiert", l.Success(request(false, "App")))
	assert.Equal(t, "1 Update verfügbar", l.Updates(1))
	assert.Equal(t, "3 Updates verfügbar", l.Updates(3))
	assert.Equal(t, "Alle Apps sind aktuell", l.Updates(0))
	assert.Equal(t,
		"org.example.app benötigt org.example.lib, das nicht mehr installiert ist",
		l.Error(&errors.MissingDependencyError{
			Dependant: "org.example.app", Dependency: "org.example.lib", Reason: errors.ReasonUninstalledAfterInstall,
		}))
}

func TestSuccessAndUnknownIDs(t *testing.T) {
	l := newLocalizer(t, "")
	assert.Equal(t, "Installed App, Lib", l.Success(request(false, "App", "Lib")))
	assert.Equal(t, "Uninstalled App", l.Success(request(true, "App")))
	assert.Equal(t, "2 updates available", l.Updates(2))
	assert.Equal(t, "NoSuchMessage", l.T("NoSuchMessage", nil))
}
