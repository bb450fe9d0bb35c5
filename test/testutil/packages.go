package testutil

import (
	"sync"

	"github.com/grapheneos/appstore/pkg/platform"
)

// FakePackages is an in-memory platform.PackageQuery.
type FakePackages struct {
	mu        sync.Mutex
	packages  map[string]platform.PackageInfo
	libraries []platform.SharedLibrary
	features  map[string]int64
}

// NewFakePackages returns an empty package set.
func NewFakePackages() *FakePackages {
	return &FakePackages{
		packages: map[string]platform.PackageInfo{},
		features: map[string]int64{},
	}
}

// Install records an installed, enabled user package.
func (f *FakePackages) Install(name string, versionCode int64) *FakePackages {
	return f.Put(platform.PackageInfo{Name: name, VersionCode: versionCode, Enabled: true})
}

// InstallSystem records an installed, enabled system package.
func (f *FakePackages) InstallSystem(name string, versionCode int64) *FakePackages {
	return f.Put(platform.PackageInfo{Name: name, VersionCode: versionCode, Enabled: true, System: true})
}

// Put stores info under info.Name.
func (f *FakePackages) Put(info platform.PackageInfo) *FakePackages {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[info.Name] = info
	return f
}

// Remove forgets name.
func (f *FakePackages) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.packages, name)
}

// AddLibrary registers a shared library.
func (f *FakePackages) AddLibrary(name string, versionCode int64) *FakePackages {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.libraries = append(f.libraries, platform.SharedLibrary{PackageName: name, VersionCode: versionCode})
	return f
}

// AddFeature registers a system feature.
func (f *FakePackages) AddFeature(name string, version int64) *FakePackages {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features[name] = version
	return f
}

func (f *FakePackages) GetPackageInfo(name string) (*platform.PackageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.packages[name]
	if !ok {
		return nil, platform.ErrPackageNotFound
	}
	return &info, nil
}

func (f *FakePackages) SharedLibraries() ([]platform.SharedLibrary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.SharedLibrary(nil), f.libraries...), nil
}

func (f *FakePackages) SystemFeatureVersion(name string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.features[name]
	return v, ok
}
