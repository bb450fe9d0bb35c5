package catalog

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/grapheneos/appstore/pkg/errors"
)

// staticDep is a parse-time predicate "lhs [op version]" with op one of
// >=, == and <. A bare lhs means ">= 0".
type staticDep struct {
	lhs        string
	constraint version.Constraints
}

func parseStaticDep(s string) (staticDep, error) {
	tokens := strings.Split(s, " ")
	op, ver := ">=", "0"
	switch len(tokens) {
	case 1:
	case 3:
		op, ver = tokens[1], tokens[2]
	default:
		return staticDep{}, errors.Wrapf(errors.ErrStaticDepFormat, "%q", s)
	}
	if _, err := strconv.ParseInt(ver, 10, 64); err != nil {
		return staticDep{}, errors.Wrapf(errors.ErrStaticDepFormat, "%q: %v", s, err)
	}
	switch op {
	case ">=", "<":
	case "==":
		op = "="
	default:
		return staticDep{}, errors.Wrapf(errors.ErrStaticDepFormat, "%q: unknown operator %s", s, op)
	}
	c, err := version.NewConstraint(op + " " + ver)
	if err != nil {
		return staticDep{}, errors.Wrapf(errors.ErrStaticDepFormat, "%q: %v", s, err)
	}
	return staticDep{lhs: tokens[0], constraint: c}, nil
}

func (d staticDep) check(present int64) bool {
	if present < 0 {
		return false
	}
	v, err := version.NewVersion(strconv.FormatInt(present, 10))
	if err != nil {
		return false
	}
	return d.constraint.Check(v)
}

// staticConstraints are the predicates a container or variant may carry.
type staticConstraints struct {
	SupportedDevices       *[]string `json:"supportedDevices"`
	RequiredSystemFeatures *[]string `json:"requiredSystemFeatures"`
	StaticDeps             *[]string `json:"staticDeps"`
}

func (p *parser) checkStatic(sc staticConstraints, dependentManifestName string) (bool, error) {
	if sc.SupportedDevices != nil && !contains(*sc.SupportedDevices, p.env.Device.Name) {
		return false, nil
	}

	if sc.RequiredSystemFeatures != nil {
		for _, s := range *sc.RequiredSystemFeatures {
			dep, err := parseStaticDep(s)
			if err != nil {
				return false, err
			}
			if p.env.Packages == nil {
				return false, nil
			}
			v, ok := p.env.Packages.SystemFeatureVersion(dep.lhs)
			if !ok || !dep.check(v) {
				return false, nil
			}
		}
	}

	if sc.StaticDeps != nil {
		for _, s := range *sc.StaticDeps {
			dep, err := parseStaticDep(s)
			if err != nil {
				return false, err
			}
			// No certificate checks exist for static deps, so the target must
			// be a system package unless it is this client itself.
			enforceSystem := dep.lhs != p.env.Device.SelfPackage
			if !p.checkPackageDep(dep, dependentManifestName, enforceSystem) {
				return false, nil
			}
		}
	}
	return true, nil
}

func (p *parser) checkPackageDep(dep staticDep, dependentManifestName string, enforceSystem bool) bool {
	info := p.lookup(p.cat.TranslateManifestName(dep.lhs))
	if info == nil {
		return false
	}
	if !info.Enabled && dep.lhs != dependentManifestName {
		return false
	}
	if enforceSystem && !info.System {
		return false
	}
	return dep.check(info.VersionCode)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
