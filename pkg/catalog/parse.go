package catalog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/platform"
)

// Environment is the device context a catalog is parsed against.
type Environment struct {
	Device   platform.Device
	Packages platform.PackageQuery
	BaseURL  string
}

type rawCatalog struct {
	Time     *int64                     `json:"time"`
	Packages map[string]json.RawMessage `json:"packages"`
}

type rawContainer struct {
	staticConstraints

	OriginalPackage                *string                    `json:"originalPackage"`
	Description                    *string                    `json:"description"`
	Source                         *string                    `json:"source"`
	NoCode                         *bool                      `json:"noCode"`
	IsTopLevel                     *bool                      `json:"isTopLevel"`
	ShowAutoUpdateNotifications    *bool                      `json:"showAutoUpdateNotifications"`
	IsSharedLibrary                bool                       `json:"isSharedLibrary"`
	PackagesAllowedToTriggerUpdate []string                   `json:"packagesAllowedToTriggerUpdate"`
	Signatures                     *[]string                  `json:"signatures"`
	IconType                       *string                    `json:"iconType"`
	Group                          *string                    `json:"group"`
	Deps2                          *[]string                  `json:"deps2"`
	Deps                           *[]string                  `json:"deps"`
	Variants                       map[string]json.RawMessage `json:"variants"`
	HasFsVeritySignatures          bool                       `json:"hasFsVeritySignatures"`
	RequestUpdateOwnership         *bool                      `json:"requestUpdateOwnership"`
	OptOutOfBulkUpdates            bool                       `json:"optOutOfBulkUpdates"`
}

type rawVariant struct {
	staticConstraints

	MinSdk          *int      `json:"minSdk"`
	MaxSdk          *int      `json:"maxSdk"`
	Abis            *[]string `json:"abis"`
	Label           *string   `json:"label"`
	VersionName     *string   `json:"versionName"`
	Description     *string   `json:"description"`
	ReleaseNotes    *string   `json:"releaseNotes"`
	Deps2           *[]string `json:"deps2"`
	Deps            *[]string `json:"deps"`
	Channel         *string   `json:"channel"`
	Apks            []string  `json:"apks"`
	ApkHashes       []string  `json:"apkHashes"`
	ApkSizes        []int64   `json:"apkSizes"`
	ApkGzSizes      []int64   `json:"apkGzSizes"`
	HasV4Signatures bool      `json:"hasV4Signatures"`
}

type parser struct {
	env   Environment
	cat   *Catalog
	cache map[string]*platform.PackageInfo
}

// Parse builds a catalog from verified JSON. It never returns a partial
// catalog: any structural error fails the whole parse.
func Parse(data []byte, eTag string, env Environment) (*Catalog, error) {
	var raw rawCatalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCatalogParse, err.Error())
	}
	if raw.Time == nil {
		return nil, errors.Wrap(errors.ErrCatalogParse, "missing time")
	}
	if raw.Packages == nil {
		return nil, errors.Wrap(errors.ErrCatalogParse, "missing packages")
	}

	p := &parser{
		env: env,
		cat: &Catalog{
			Timestamp: *raw.Time,
			ETag:      eTag,
			BaseURL:   strings.TrimRight(env.BaseURL, "/"),
			Packages:  make(map[string]*Container, len(raw.Packages)),
			Groups:    map[string]*Group{},
			renamed:   map[string]string{},
		},
		cache: map[string]*platform.PackageInfo{},
	}

	manifestNames := make([]string, 0, len(raw.Packages))
	for name := range raw.Packages {
		manifestNames = append(manifestNames, name)
	}
	sort.Strings(manifestNames)

	containers := make(map[string]*rawContainer, len(raw.Packages))
	for _, name := range manifestNames {
		var rc rawContainer
		if err := json.Unmarshal(raw.Packages[name], &rc); err != nil {
			return nil, errors.Wrapf(errors.ErrCatalogParse, "package %s: %v", name, err)
		}
		containers[name] = &rc
	}

	// Renames only apply to preinstalled packages.
	for _, name := range manifestNames {
		orig := containers[name].OriginalPackage
		if orig == nil {
			continue
		}
		if info := p.lookup(*orig); info != nil && info.System {
			p.cat.renamed[name] = *orig
		}
	}

	for _, manifestName := range manifestNames {
		rc := containers[manifestName]
		ok, err := p.checkStatic(rc.staticConstraints, manifestName)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCatalogParse, "package %s: %v", manifestName, err)
		}
		if !ok {
			continue
		}
		c, err := p.container(manifestName, rc)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCatalogParse, "package %s: %v", manifestName, err)
		}
		if len(c.Variants) == 0 {
			continue
		}
		p.cat.Packages[c.Name] = c
		if c.Group != nil {
			c.Group.Packages = append(c.Group.Packages, c)
		}
	}
	for name, g := range p.cat.Groups {
		if len(g.Packages) == 0 {
			delete(p.cat.Groups, name)
		}
	}

	return p.cat, nil
}

func (p *parser) lookup(name string) *platform.PackageInfo {
	if info, ok := p.cache[name]; ok {
		return info
	}
	var info *platform.PackageInfo
	if p.env.Packages != nil {
		if i, err := p.env.Packages.GetPackageInfo(name); err == nil {
			info = i
		}
	}
	p.cache[name] = info
	return info
}

func (p *parser) container(manifestName string, rc *rawContainer) (*Container, error) {
	c := &Container{
		Name:                   p.cat.TranslateManifestName(manifestName),
		ManifestName:           manifestName,
		Source:                 SourceGrapheneOSBuild,
		IsTopLevel:             true,
		IsSharedLibrary:        rc.IsSharedLibrary,
		RequestUpdateOwnership: true,
		OptOutOfBulkUpdates:    rc.OptOutOfBulkUpdates,
		// fs-verity sidecars are obsolete once the OS checks v4 signatures.
		HasFsVeritySignatures: rc.HasFsVeritySignatures && p.env.Device.UsesFsVeritySignatures(),
		baseURL:               p.cat.BaseURL,
	}
	if rc.Description != nil {
		c.Description = *rc.Description
	}
	if rc.Source != nil {
		src, ok := sourceNames[*rc.Source]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", *rc.Source)
		}
		c.Source = src
	}
	if rc.NoCode != nil {
		c.NoCode = *rc.NoCode
	}
	if rc.IsTopLevel != nil {
		c.IsTopLevel = *rc.IsTopLevel
	}
	c.ShowAutoUpdateNotifications = !c.NoCode
	if rc.ShowAutoUpdateNotifications != nil {
		c.ShowAutoUpdateNotifications = *rc.ShowAutoUpdateNotifications
	}
	if rc.RequestUpdateOwnership != nil {
		c.RequestUpdateOwnership = *rc.RequestUpdateOwnership
	}
	for _, n := range rc.PackagesAllowedToTriggerUpdate {
		c.PackagesAllowedToTriggerUpdate = append(c.PackagesAllowedToTriggerUpdate, p.cat.TranslateManifestName(n))
	}

	if rc.Signatures == nil {
		return nil, fmt.Errorf("missing signatures")
	}
	for _, s := range *rc.Signatures {
		digest, err := decodeSHA256(s)
		if err != nil {
			return nil, fmt.Errorf("signature %q: %w", s, err)
		}
		c.Signatures = append(c.Signatures, digest)
	}

	if rc.IconType != nil {
		c.IconURL = fmt.Sprintf("%s/packages/%s/icon.%s", p.cat.BaseURL, manifestName, *rc.IconType)
	}

	if rc.Group != nil {
		g, ok := p.cat.Groups[*rc.Group]
		if !ok {
			g = &Group{Name: *rc.Group}
			p.cat.Groups[*rc.Group] = g
		}
		c.Group = g
	}

	deps, err := p.dependencies(rc.Deps2, rc.Deps)
	if err != nil {
		return nil, err
	}
	c.Dependencies = deps

	if rc.Variants == nil {
		return nil, fmt.Errorf("missing variants")
	}
	if err := p.variants(c, rc.Variants); err != nil {
		return nil, err
	}
	return c, nil
}

// dependencies prefers deps2 over deps. It returns nil when neither exists.
func (p *parser) dependencies(deps2, deps *[]string) ([]Dependency, error) {
	list := deps2
	if list == nil {
		list = deps
	}
	if list == nil {
		return nil, nil
	}
	out := make([]Dependency, 0, len(*list))
	for _, s := range *list {
		d, err := ParseDependency(s, p.cat.TranslateManifestName)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *parser) variants(c *Container, raw map[string]json.RawMessage) error {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slots := make([]*Variant, len(Channels))
	for _, key := range keys {
		versionCode, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version code %q", key)
		}
		var rv rawVariant
		if err := json.Unmarshal(raw[key], &rv); err != nil {
			return fmt.Errorf("variant %s: %w", key, err)
		}

		minSdk, maxSdk := 0, math.MaxInt32
		if rv.MinSdk != nil {
			minSdk = *rv.MinSdk
		}
		if rv.MaxSdk != nil {
			maxSdk = *rv.MaxSdk
		}
		if minSdk > p.env.Device.SDK || maxSdk < p.env.Device.SDK {
			continue
		}
		// Secondary ABIs are intentionally unsupported.
		if rv.Abis != nil && !contains(*rv.Abis, p.env.Device.PrimaryABI) {
			continue
		}
		ok, err := p.checkStatic(rv.staticConstraints, c.ManifestName)
		if err != nil {
			return fmt.Errorf("variant %s: %w", key, err)
		}
		if !ok {
			continue
		}

		v, err := p.variant(c, versionCode, &rv)
		if err != nil {
			return fmt.Errorf("variant %s: %w", key, err)
		}
		if prev := slots[v.Channel]; prev != nil && prev.VersionCode > v.VersionCode {
			continue
		}
		slots[v.Channel] = v
	}

	for _, v := range slots {
		if v != nil {
			c.Variants = append(c.Variants, v)
		}
	}
	return nil
}

func (p *parser) variant(c *Container, versionCode int64, rv *rawVariant) (*Variant, error) {
	if rv.Label == nil {
		return nil, fmt.Errorf("missing label")
	}
	v := &Variant{
		Container:   c,
		VersionCode: versionCode,
		Label:       *rv.Label,
		VersionName: strconv.FormatInt(versionCode, 10),
		Description: c.Description,
		Channel:     ChannelStable,
		// v4 signatures only matter once the OS uses them for fs-verity.
		HasV4Signatures: rv.HasV4Signatures && !p.env.Device.UsesFsVeritySignatures(),
	}
	if rv.VersionName != nil {
		v.VersionName = *rv.VersionName
	}
	if rv.Description != nil {
		v.Description = *rv.Description
	}
	if rv.ReleaseNotes != nil {
		v.ReleaseNotes = *rv.ReleaseNotes
	}
	if rv.Channel != nil {
		ch, err := ParseReleaseChannel(*rv.Channel)
		if err != nil {
			return nil, err
		}
		v.Channel = ch
	}

	deps, err := p.dependencies(rv.Deps2, rv.Deps)
	if err != nil {
		return nil, err
	}
	switch {
	case deps != nil:
		v.Dependencies = deps
	case c.Dependencies != nil:
		v.Dependencies = c.Dependencies
	default:
		v.Dependencies = []Dependency{}
	}

	n := len(rv.Apks)
	if len(rv.ApkHashes) != n || len(rv.ApkSizes) != n || len(rv.ApkGzSizes) != n {
		return nil, fmt.Errorf("apk arrays have different lengths")
	}
	deviceABI, _ := platform.LookupABI(p.env.Device.PrimaryABI)
	for i, name := range rv.Apks {
		digest, err := decodeSHA256(rv.ApkHashes[i])
		if err != nil {
			return nil, fmt.Errorf("apk %s: %w", name, err)
		}
		apk := &Apk{
			Variant:        v,
			Name:           name,
			SHA256:         digest,
			Size:           rv.ApkSizes[i],
			CompressedSize: rv.ApkGzSizes[i],
		}
		apk.Type, apk.Qualifier = classifyApk(name)
		if apk.Type == ApkABI && apk.Qualifier != deviceABI.SplitQualifier {
			continue
		}
		v.Apks = append(v.Apks, apk)
	}
	return v, nil
}

// classifyApk derives the split type from a "...config.<qualifier>.apk" name.
func classifyApk(name string) (ApkType, string) {
	const sep = "config."
	idx := strings.LastIndex(name, sep)
	if idx < 0 {
		return ApkUnconditional, ""
	}
	q := strings.TrimSuffix(name[idx+len(sep):], ".apk")
	switch {
	case strings.HasSuffix(q, "dpi"):
		return ApkDensity, q
	case platform.IsSplitQualifier(q):
		return ApkABI, q
	default:
		return ApkLanguage, q
	}
}

func decodeSHA256(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("digest has %d bytes, want %d", len(b), len(out))
	}
	copy(out[:], b)
	return out, nil
}
