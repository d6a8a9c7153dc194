package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mailsync.log")

	logger, closer, err := New(Options{File: path, Level: "debug"})
	require.NoError(t, err)
	logger.Debug().Str("view", "folder:7").Msg("list loaded")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"list loaded"`)
	assert.Contains(t, string(data), `"view":"folder:7"`)
	assert.Contains(t, string(data), `"component":"mailsync"`)
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailsync.log")

	logger, closer, err := New(Options{File: path, Level: "warn"})
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, closer, err := New(Options{Level: "loud"})
	assert.Error(t, err)
	assert.NotNil(t, closer)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a***e@e*****e.c*m"},
		{"a@b.io", "*@*.io"},
		{"not-an-email", "not-an-email"},
		{"@missing.user", "@missing.user"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskEmail(tt.in), tt.in)
	}
}

func TestRedactEmailsIn(t *testing.T) {
	got := RedactEmailsIn("Alice <alice@example.com>")
	assert.Equal(t, "Alice <a***e@e*****e.c*m>", got)
}

func TestBoundAndClean(t *testing.T) {
	assert.Equal(t, "abc", BoundAndClean(" a\x00b\nc ", 0))
	assert.Equal(t, "héll", BoundAndClean("héllo", 4))
}
