package catalog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyApk(t *testing.T) {
	tests := []struct {
		name      string
		wantType  ApkType
		qualifier string
	}{
		{"base.apk", ApkUnconditional, ""},
		{"split_config.arm64_v8a.apk", ApkABI, "arm64_v8a"},
		{"split_config.x86.apk", ApkABI, "x86"},
		{"split_config.xxhdpi.apk", ApkDensity, "xxhdpi"},
		{"split_config.tvdpi.apk", ApkDensity, "tvdpi"},
		{"split_config.pt_rBR.apk", ApkLanguage, "pt_rBR"},
		{"split_feature.config.de.apk", ApkLanguage, "de"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, q := classifyApk(tt.name)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.qualifier, q)
		})
	}
}

func variantWithSplits(qualifiers ...string) *Variant {
	v := &Variant{}
	v.Apks = append(v.Apks, &Apk{Variant: v, Name: "base.apk", Type: ApkUnconditional})
	for _, q := range qualifiers {
		name := "split_config." + q + ".apk"
		typ, qual := classifyApk(name)
		v.Apks = append(v.Apks, &Apk{Variant: v, Name: name, Type: typ, Qualifier: qual})
	}
	return v
}

func apkNames(apks []*Apk) []string {
	out := make([]string, 0, len(apks))
	for _, a := range apks {
		out = append(out, a.Name)
	}
	sort.Strings(out)
	return out
}

func TestCollectNeededApks(t *testing.T) {
	v := variantWithSplits("arm64_v8a", "de", "fr", "pt_rBR", "mdpi", "xhdpi", "xxhdpi", "xxxhdpi")

	tests := []struct {
		name string
		cfg  ResourceConfig
		want []string
	}{
		{
			name: "density rounds up",
			cfg:  ResourceConfig{DensityDPI: 420, Locales: []string{"en-US"}},
			want: []string{"base.apk", "split_config.arm64_v8a.apk", "split_config.xxhdpi.apk"},
		},
		{
			name: "exact density",
			cfg:  ResourceConfig{DensityDPI: 320},
			want: []string{"base.apk", "split_config.arm64_v8a.apk", "split_config.xhdpi.apk"},
		},
		{
			name: "density above every bucket takes the largest",
			cfg:  ResourceConfig{DensityDPI: 800},
			want: []string{"base.apk", "split_config.arm64_v8a.apk", "split_config.xxxhdpi.apk"},
		},
		{
			name: "language matches on base subtag",
			cfg:  ResourceConfig{DensityDPI: 160, Locales: []string{"de-AT", "pt-PT"}},
			want: []string{"base.apk", "split_config.arm64_v8a.apk", "split_config.de.apk", "split_config.mdpi.apk", "split_config.pt_rBR.apk"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apkNames(v.CollectNeededApks(tt.cfg)))
		})
	}
}

func TestCollectNeededApksWithoutDensitySplits(t *testing.T) {
	v := variantWithSplits("en")
	assert.Equal(t, []string{"base.apk", "split_config.en.apk"},
		apkNames(v.CollectNeededApks(ResourceConfig{DensityDPI: 420, Locales: []string{"en"}})))
}

func TestTotalSizes(t *testing.T) {
	apks := []*Apk{{Size: 10, CompressedSize: 4}, {Size: 5, CompressedSize: 2}}
	assert.Equal(t, int64(15), TotalSize(apks))
	assert.Equal(t, int64(6), TotalCompressedSize(apks))
}
