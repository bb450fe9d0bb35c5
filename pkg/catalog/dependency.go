package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grapheneos/appstore/internal/logger"
)

// DependencyFlag modifies how a dependency is resolved.
type DependencyFlag int

const (
	// SkipIfMissing ignores the dependency when the catalog lacks it, e.g.
	// because static constraints filtered it out.
	SkipIfMissing DependencyFlag = iota + 1
)

// Dependency is one edge "requires PackageName at version >= MinVersion".
type Dependency struct {
	PackageName string
	MinVersion  int64
	Flags       []DependencyFlag
}

// Has reports whether f is set.
func (d Dependency) Has(f DependencyFlag) bool {
	for _, x := range d.Flags {
		if x == f {
			return true
		}
	}
	return false
}

func (d Dependency) String() string {
	if d.MinVersion == 0 {
		return d.PackageName
	}
	return fmt.Sprintf("%s >= %d", d.PackageName, d.MinVersion)
}

// ParseDependency decodes "<manifestName> [<minVersion>] [<Flag1,Flag2>]".
// The name goes through translate; unknown flags are ignored.
func ParseDependency(s string, translate func(string) string) (Dependency, error) {
	parts := strings.Split(s, " ")
	if parts[0] == "" {
		return Dependency{}, fmt.Errorf("empty dependency string")
	}
	d := Dependency{PackageName: parts[0]}
	if translate != nil {
		d.PackageName = translate(parts[0])
	}
	if len(parts) > 1 {
		v, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Dependency{}, fmt.Errorf("invalid min version in dependency %q: %w", s, err)
		}
		d.MinVersion = v
	}
	if len(parts) > 2 {
		for _, flag := range strings.Split(parts[2], ",") {
			switch flag {
			case "SkipIfMissing":
				d.Flags = append(d.Flags, SkipIfMissing)
			default:
				logger.Debug("unknown dependency flag", logger.Fields{"flag": flag, "dependency": s})
			}
		}
	}
	return d, nil
}
