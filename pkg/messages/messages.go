// Package messages renders the structured errors and results of the client
// in the user's language.
package messages

import (
	"embed"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
)

//go:embed locales/*.toml
var localeFS embed.FS

var localeFiles = []string{
	"locales/active.en.toml",
	"locales/active.de.toml",
}

var supported = language.NewMatcher([]language.Tag{
	language.English,
	language.German,
})

// Localizer translates message ids. The zero value is not usable.
type Localizer struct {
	tag       language.Tag
	localizer *goi18n.Localizer
}

// New loads the embedded catalogs and picks the language from lang, then
// APPSTORE_LANG, LC_ALL, LC_MESSAGES and LANG, falling back to English.
func New(lang string) (*Localizer, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, f := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	tag := selectLanguage(lang)
	return &Localizer{
		tag:       tag,
		localizer: goi18n.NewLocalizer(bundle, tag.String(), language.English.String()),
	}, nil
}

// Language is the chosen language.
func (l *Localizer) Language() language.Tag { return l.tag }

func selectLanguage(override string) language.Tag {
	var candidates []string
	if override != "" {
		candidates = append(candidates, override)
	}
	for _, key := range []string{"APPSTORE_LANG", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			candidates = append(candidates, v)
		}
	}
	var tags []language.Tag
	for _, c := range candidates {
		// en_US.UTF-8 -> en-US
		if i := strings.IndexAny(c, ".@"); i >= 0 {
			c = c[:i]
		}
		c = strings.ReplaceAll(c, "_", "-")
		if c == "C" || c == "POSIX" {
			continue
		}
		if tag, err := language.Parse(c); err == nil {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return language.English
	}
	_, i, conf := supported.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return []language.Tag{language.English, language.German}[i]
}

// T translates id. A "Count" entry in data selects the plural form.
func (l *Localizer) T(id string, data map[string]interface{}) string {
	msg, err := l.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
		PluralCount:  data["Count"],
	})
	if err != nil || msg == "" {
		return id
	}
	return msg
}

func join(labels []string) string { return strings.Join(labels, ", ") }

// Error renders err for the user. Unknown errors keep their own text.
func (l *Localizer) Error(err error) string {
	if err == nil {
		return ""
	}

	var pie *errors.PackageInstallerError
	if stderrors.As(err, &pie) {
		return l.installerError(pie)
	}
	var mde *errors.MissingDependencyError
	if stderrors.As(err, &mde) {
		return l.T("DependencyMissing", map[string]interface{}{
			"Dependant":  mde.Dependant,
			"Dependency": mde.Dependency,
			"Reason":     l.reason(mde.Reason),
		})
	}
	var busy *errors.InstallerBusyError
	if stderrors.As(err, &busy) {
		if busy.IsDependency() {
			return l.T("InstallerBusyDependency", map[string]interface{}{"Package": busy.PkgName, "Requested": busy.RequestedPkgName})
		}
		return l.T("InstallerBusy", map[string]interface{}{"Package": busy.PkgName})
	}
	var pbe *errors.PackagesBusyError
	if stderrors.As(err, &pbe) {
		return l.T("PackagesBusy", map[string]interface{}{"Packages": join(pbe.PackageNames), "Count": len(pbe.PackageNames)})
	}
	if stderrors.Is(err, errors.ErrPackageVanished) {
		return l.T("PackageVanished", nil)
	}
	if stderrors.Is(err, platform.ErrUserRestricted) {
		return l.T("InstallRestricted", nil)
	}
	var de *errors.DownloadError
	if stderrors.As(err, &de) {
		return l.T("DownloadFailed", map[string]interface{}{"Labels": join(de.Labels), "Err": de.Err.Error()})
	}
	var rue *errors.RepoUpdateError
	if stderrors.As(err, &rue) {
		if !rue.IsNotable() {
			return l.T("RepoUpdateUnreachable", nil)
		}
		return l.T("RepoUpdateFailed", map[string]interface{}{"Err": rue.Err.Error()})
	}
	return err.Error()
}

func (l *Localizer) reason(r errors.MissingDependencyReason) string {
	switch r {
	case errors.ReasonMissingInRepo:
		return l.T("ReasonMissingInRepo", nil)
	case errors.ReasonDisabledBeforeInstall:
		return l.T("ReasonDisabledBeforeInstall", nil)
	case errors.ReasonDisabledAfterInstall:
		return l.T("ReasonDisabledAfterInstall", nil)
	case errors.ReasonUninstalledAfterInstall:
		return l.T("ReasonUninstalledAfterInstall", nil)
	default:
		return r.String()
	}
}

func (l *Localizer) installerError(e *errors.PackageInstallerError) string {
	data := map[string]interface{}{"Labels": join(e.Request.Labels()), "Message": e.Message}
	switch e.LegacyStatus {
	case platform.LegacyInstallFailedInsufficientStorage:
		return l.T("InsufficientStorage", data)
	case platform.LegacyInstallFailedVersionDowngrade:
		return l.T("VersionDowngrade", data)
	case platform.LegacyDeleteFailedUserRestricted:
		if e.Request.Uninstall {
			return l.T("UninstallRestricted", data)
		}
	}
	if e.Request.Uninstall {
		return l.T("UninstallFailed", data)
	}
	return l.T("InstallFailed", data)
}

// Success renders the result of a completed request.
func (l *Localizer) Success(req errors.InstallerRequest) string {
	data := map[string]interface{}{"Labels": join(req.Labels())}
	if req.Uninstall {
		return l.T("UninstallSucceeded", data)
	}
	return l.T("InstallSucceeded", data)
}

// Updates renders the number of available updates.
func (l *Localizer) Updates(n int) string {
	if n == 0 {
		return l.T("NoUpdates", nil)
	}
	return l.T("UpdatesAvailable", map[string]interface{}{"Count": n})
}
