package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.BuildMethod)
	assert.Contains(t, info.Platform, "/")
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
}

func TestGetVersionString(t *testing.T) {
	versionStr := GetVersionString()

	assert.Contains(t, versionStr, "mailsync")
	assert.Contains(t, versionStr, Version)
}

func TestGetVersionString_ShortCommit(t *testing.T) {
	old := GitCommit
	defer func() { GitCommit = old }()

	GitCommit = "0123456789abcdef"
	assert.Equal(t, "mailsync "+Version+" (01234567)", GetVersionString())
	assert.Equal(t, "make", getBuildMethod())
}

func TestGetDetailedVersionString(t *testing.T) {
	detailed := GetDetailedVersionString()

	for _, field := range []string{"mailsync", "Git commit:", "Build method:", "Go version:", "Platform:"} {
		assert.Contains(t, detailed, field)
	}
}

func TestBuildMethodDetection(t *testing.T) {
	method := getBuildMethod()
	assert.Contains(t, []string{"make", "go-install", "unknown"}, method)
}

func TestIsRelease(t *testing.T) {
	assert.NotEqual(t, IsRelease(), IsDevelopment())
}

func TestUserAgent(t *testing.T) {
	assert.True(t, strings.HasPrefix(UserAgent(), "mailsync/"+Version))
}
