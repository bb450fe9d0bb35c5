package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"amd64", "x86_64"},
		{"x86_64", "x86_64"},
		{"386", "x86"},
		{"i686", "x86"},
		{"arm64", "arm64-v8a"},
		{"AArch64", "arm64-v8a"},
		{"arm", "armeabi-v7a"},
		{"riscv64", "riscv64"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeArch(tt.in))
		})
	}
}

func TestLookupABI(t *testing.T) {
	abi, ok := LookupABI("arm64-v8a")
	assert.True(t, ok)
	assert.Equal(t, "arm64_v8a", abi.SplitQualifier)

	_, ok = LookupABI("mips")
	assert.False(t, ok)
}

func TestIsSplitQualifier(t *testing.T) {
	assert.True(t, IsSplitQualifier("armeabi_v7a"))
	assert.True(t, IsSplitQualifier("x86_64"))
	assert.False(t, IsSplitQualifier("arm64-v8a"), "OS names are not split qualifiers")
	assert.False(t, IsSplitQualifier("en"))
}

func TestDevice_UsesFsVeritySignatures(t *testing.T) {
	assert.True(t, Device{SDK: 34}.UsesFsVeritySignatures())
	assert.False(t, Device{SDK: 35}.UsesFsVeritySignatures())
}

func TestCurrentABI(t *testing.T) {
	assert.NotEmpty(t, CurrentABI())
}
