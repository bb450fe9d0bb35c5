package platform

import (
	"runtime"
	"strings"
)

// FsVerityMaxSDK is the last SDK level that consumes .fsv_sig sidecars.
const FsVerityMaxSDK = 34

// Device carries the static properties of the device the client runs on.
type Device struct {
	SDK         int      `yaml:"sdk"`
	PrimaryABI  string   `yaml:"abi"`
	Name        string   `yaml:"name"`
	DensityDPI  int      `yaml:"density_dpi"`
	Locales     []string `yaml:"locales"`
	SelfPackage string   `yaml:"self_package"`
	Privileged  bool     `yaml:"privileged"`
}

// UsesFsVeritySignatures reports whether .fsv_sig sidecars must be staged.
func (d Device) UsesFsVeritySignatures() bool {
	return d.SDK <= FsVerityMaxSDK
}

// ABI is a CPU ABI with its OS name and the qualifier used in split apk names.
type ABI struct {
	OSName         string
	SplitQualifier string
}

// KnownABIs lists every ABI a catalog may carry splits for.
var KnownABIs = []ABI{
	{OSName: "armeabi-v7a", SplitQualifier: "armeabi_v7a"},
	{OSName: "x86", SplitQualifier: "x86"},
	{OSName: "arm64-v8a", SplitQualifier: "arm64_v8a"},
	{OSName: "x86_64", SplitQualifier: "x86_64"},
}

// LookupABI finds an ABI by OS name.
func LookupABI(osName string) (ABI, bool) {
	for _, abi := range KnownABIs {
		if abi.OSName == osName {
			return abi, true
		}
	}
	return ABI{}, false
}

// IsSplitQualifier reports whether q names an ABI split.
func IsSplitQualifier(q string) bool {
	for _, abi := range KnownABIs {
		if abi.SplitQualifier == q {
			return true
		}
	}
	return false
}

// NormalizeArch maps Go and uname architecture names to an ABI OS name.
func NormalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "x86_64", "x64", "amd64":
		return "x86_64"
	case "x86", "i386", "i686", "386":
		return "x86"
	case "arm64", "aarch64", "arm64-v8a":
		return "arm64-v8a"
	case "arm", "armv7", "armv7l", "armeabi-v7a":
		return "armeabi-v7a"
	default:
		return strings.ToLower(arch)
	}
}

// CurrentABI returns the primary ABI of the running process.
func CurrentABI() string {
	return NormalizeArch(runtime.GOARCH)
}
