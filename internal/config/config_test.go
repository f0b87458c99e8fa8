package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.True(t, c.Session.OptimisticLogin)
	assert.Equal(t, time.Duration(0), c.Session.StalenessThreshold.Duration)
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c := Default()
	c.ServiceURL = "https://login.example.org"
	c.Session.StalenessThreshold = Duration{6 * time.Hour}
	c.Reachability.Mode = "grpc"
	c.Reachability.Target = "id.example.org:443"
	require.NoError(t, Save(c))

	info, err := os.Stat(filepath.Join(dir, "idkeeper", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("IDKEEPER_SERVICE_URL", "https://env.example.com")
	t.Setenv("IDKEEPER_STALENESS_THRESHOLD", "90m")
	t.Setenv("IDKEEPER_OPTIMISTIC_LOGIN", "false")
	t.Setenv("IDKEEPER_KEYRING_BACKENDS", "file, pass")
	t.Setenv("IDKEEPER_REACHABILITY", "none")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", c.ServiceURL)
	assert.Equal(t, 90*time.Minute, c.Session.StalenessThreshold.Duration)
	assert.False(t, c.Session.OptimisticLogin)
	assert.Equal(t, []string{"file", "pass"}, c.Keyring.Backends)
	assert.Equal(t, "none", c.Reachability.Mode)
}

func TestEnvOverrideRejectsBadDuration(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("IDKEEPER_LOGIN_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDKEEPER_LOGIN_TIMEOUT")
}

func TestDurationJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"1m30s"`, want: 90 * time.Second},
		{name: "seconds", input: `45`, want: 45 * time.Second},
		{name: "bad string", input: `"later"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty service url", mutate: func(c *Config) { c.ServiceURL = " " }},
		{name: "empty access group", mutate: func(c *Config) { c.Keyring.AccessGroup = "" }},
		{name: "negative staleness", mutate: func(c *Config) { c.Session.StalenessThreshold = Duration{-time.Second} }},
		{name: "unknown reachability", mutate: func(c *Config) { c.Reachability.Mode = "carrier-pigeon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
