package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	b := config.Default()

	assert.Equal(t, 5*time.Second, b.Timeouts.Stop())
	assert.Equal(t, 10*time.Second, b.Timeouts.FindRole())
	assert.Equal(t, 30*time.Second, b.Timeouts.Pair())
	assert.Equal(t, 10*time.Second, b.Timeouts.ConnectProfiles())
	assert.Equal(t, 5*time.Second, b.Timeouts.Connectable())
	assert.Equal(t, collab.ParamsFast, b.AdvertisingParams())
	assert.Equal(t, collab.ParamsIdentify, b.StandaloneParams())
	assert.Equal(t, collab.ProfileA2DP|collab.ProfileHFP|collab.ProfileAVRCP, b.Profiles())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "behaviour.cue", `
behaviour: {
	timeouts: stop_ms: 1500
	advertising: "slow"
	peer_profiles: ["a2dp", "mirror"]
}
`)

	b, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, b.Timeouts.Stop())
	assert.Equal(t, 30*time.Second, b.Timeouts.Pair(), "unset fields keep defaults")
	assert.Equal(t, collab.ParamsSlow, b.AdvertisingParams())
	assert.Equal(t, collab.ProfileA2DP|collab.ProfileMirror, b.Profiles())
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "timeouts.cue", "package duet\n\nbehaviour: timeouts: pair_ms: 100\n")
	writeFile(t, dir, "ads.cue", "package duet\n\nbehaviour: standalone_advertising: \"fast\"\n")

	b, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, b.Timeouts.Pair())
	assert.Equal(t, collab.ParamsFast, b.StandaloneParams())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"negative timeout", "behaviour: timeouts: stop_ms: -1\n", config.ErrCodeInvalid},
		{"unknown param set", "behaviour: advertising: \"turbo\"\n", config.ErrCodeInvalid},
		{"unknown profile", "behaviour: peer_profiles: [\"sbc\"]\n", config.ErrCodeInvalid},
		{"syntax", "behaviour: {\n", config.ErrCodeLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "behaviour.cue", tt.content)

			_, err := config.Load(path)
			require.Error(t, err)

			var le *config.LoadError
			require.True(t, errors.As(err, &le), "got %T", err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.cue"))

	var le *config.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, config.ErrCodeNotFound, le.Code)
}
