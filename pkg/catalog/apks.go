package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// ResourceConfig is the device configuration split selection depends on.
type ResourceConfig struct {
	DensityDPI int
	// Locales are BCP 47 tags, global first, then package-specific.
	Locales []string
}

var densityBuckets = map[string]int{
	"ldpi":    120,
	"mdpi":    160,
	"tvdpi":   213,
	"hdpi":    240,
	"xhdpi":   320,
	"xxhdpi":  480,
	"xxxhdpi": 640,
}

// CollectNeededApks picks the splits to install: unconditional and ABI
// splits always, language splits for needed locales, and one density
// bucket, the smallest at or above the device density or else the largest.
func (v *Variant) CollectNeededApks(cfg ResourceConfig) []*Apk {
	needed := neededLanguages(cfg.Locales)
	res := make([]*Apk, 0, len(v.Apks))
	byDensity := map[int][]*Apk{}

	for _, apk := range v.Apks {
		switch apk.Type {
		case ApkUnconditional, ApkABI:
			res = append(res, apk)
		case ApkLanguage:
			if needed[baseLanguage(apk.Qualifier)] {
				res = append(res, apk)
			}
		case ApkDensity:
			dpi := densityBuckets[apk.Qualifier]
			byDensity[dpi] = append(byDensity[dpi], apk)
		}
	}

	if len(byDensity) > 0 {
		keys := make([]int, 0, len(byDensity))
		for k := range byDensity {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		pick := keys[len(keys)-1]
		for _, k := range keys {
			if k >= cfg.DensityDPI {
				pick = k
				break
			}
		}
		res = append(res, byDensity[pick]...)
	}
	return res
}

func neededLanguages(tags []string) map[string]bool {
	out := make(map[string]bool, len(tags))
	for _, t := range tags {
		if b := baseLanguage(t); b != "" {
			out[b] = true
		}
	}
	return out
}

// baseLanguage reduces a tag or split qualifier such as "pt-BR" or
// "pt_rBR" to its language subtag.
func baseLanguage(tag string) string {
	tag = strings.ReplaceAll(tag, "_r", "-")
	tag = strings.ReplaceAll(tag, "_", "-")
	t, err := language.Parse(tag)
	if err != nil {
		if i := strings.IndexByte(tag, '-'); i > 0 {
			tag = tag[:i]
		}
		return strings.ToLower(tag)
	}
	b, _ := t.Base()
	return b.String()
}
