// Package resolver finds the packages that must be installed alongside a
// variant.
package resolver

import (
	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/catalog"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
)

// States is the resolver's view of the package state store.
type States interface {
	Catalog() *catalog.Catalog
	// PreferredChannel is the effective release channel of a package.
	PreferredChannel(name string) catalog.ReleaseChannel
	// InstalledPackage returns the OS info of name, or nil.
	InstalledPackage(name string) *platform.PackageInfo
}

// SharedLibraryLister reports installed shared libraries.
type SharedLibraryLister interface {
	SharedLibraries() ([]platform.SharedLibrary, error)
}

// Resolver walks dependency edges. It is not safe for concurrent use and
// must run where the state store is mutated.
type Resolver struct {
	states    States
	libraries SharedLibraryLister
}

// New creates a Resolver.
func New(states States, libraries SharedLibraryLister) *Resolver {
	return &Resolver{states: states, libraries: libraries}
}

// MissingDependencies returns the dependencies of v that are absent or
// outdated, deepest first.
func (r *Resolver) MissingDependencies(v *catalog.Variant, forUpdate bool) ([]*catalog.Variant, error) {
	return r.resolve(v, true, forUpdate)
}

// AllDependencies returns every transitive dependency of v, deepest first.
func (r *Resolver) AllDependencies(v *catalog.Variant) ([]*catalog.Variant, error) {
	return r.resolve(v, false, false)
}

type walk struct {
	*Resolver
	cat            *catalog.Catalog
	skipPresent    bool
	forUpdate      bool
	requireEnabled bool
	visited        map[string]struct{}
	result         []*catalog.Variant
	libs           []platform.SharedLibrary
	libsLoaded     bool
}

func (r *Resolver) resolve(v *catalog.Variant, skipPresent, forUpdate bool) ([]*catalog.Variant, error) {
	if len(v.Dependencies) == 0 {
		return nil, nil
	}

	w := &walk{
		Resolver:       r,
		cat:            r.states.Catalog(),
		skipPresent:    skipPresent,
		forUpdate:      forUpdate,
		requireEnabled: true,
		visited:        map[string]struct{}{v.Name(): {}},
	}
	if forUpdate {
		// dependencies of a disabled package may be disabled too
		if info := r.states.InstalledPackage(v.Name()); info != nil && !info.Enabled {
			w.requireEnabled = false
		}
	}

	if err := w.collect(v.Name(), v.Dependencies); err != nil {
		return nil, err
	}
	return w.result, nil
}

func (w *walk) collect(dependant string, deps []catalog.Dependency) error {
	for _, dep := range deps {
		if _, seen := w.visited[dep.PackageName]; seen {
			continue
		}
		w.visited[dep.PackageName] = struct{}{}

		container := w.cat.Container(dep.PackageName)
		if container == nil {
			if dep.Has(catalog.SkipIfMissing) {
				continue
			}
			return w.fail(dependant, dep, errors.ReasonMissingInRepo)
		}

		matching := make([]*catalog.Variant, 0, len(container.Variants))
		for _, v := range container.Variants {
			if v.VersionCode >= dep.MinVersion {
				matching = append(matching, v)
			}
		}
		if len(matching) == 0 {
			return w.fail(dependant, dep, errors.ReasonMissingInRepo)
		}

		pick := catalog.FindVariant(matching, w.states.PreferredChannel(dep.PackageName))

		if err := w.collect(dep.PackageName, pick.Dependencies); err != nil {
			return err
		}

		if w.skipPresent {
			present, err := w.present(dependant, dep, pick)
			if err != nil {
				return err
			}
			if present {
				continue
			}
		}
		w.result = append(w.result, pick)
	}
	return nil
}

func (w *walk) present(dependant string, dep catalog.Dependency, pick *catalog.Variant) (bool, error) {
	isLib := pick.Container.IsSharedLibrary
	if isLib && w.hasSharedLibrary(pick) {
		return true, nil
	}

	info := w.states.InstalledPackage(dep.PackageName)
	if info == nil {
		if w.forUpdate && !isLib {
			return false, w.fail(dependant, dep, errors.ReasonUninstalledAfterInstall)
		}
		return false, nil
	}
	if w.requireEnabled && !info.Enabled {
		reason := errors.ReasonDisabledBeforeInstall
		if w.forUpdate {
			reason = errors.ReasonDisabledAfterInstall
		}
		return false, w.fail(dependant, dep, reason)
	}
	return info.VersionCode >= pick.VersionCode, nil
}

func (w *walk) hasSharedLibrary(pick *catalog.Variant) bool {
	if !w.libsLoaded {
		w.libsLoaded = true
		if w.libraries != nil {
			libs, err := w.libraries.SharedLibraries()
			if err != nil {
				logger.Warn("unable to list shared libraries", logger.Fields{"error": err.Error()})
			}
			w.libs = libs
		}
	}
	for _, lib := range w.libs {
		if lib.PackageName == pick.Name() && lib.VersionCode == pick.VersionCode {
			return true
		}
	}
	return false
}

func (w *walk) fail(dependant string, dep catalog.Dependency, reason errors.MissingDependencyReason) error {
	return &errors.DependencyResolutionError{Details: &errors.MissingDependencyError{
		Dependant:  dependant,
		Dependency: dep.PackageName,
		MinVersion: dep.MinVersion,
		Reason:     reason,
	}}
}
