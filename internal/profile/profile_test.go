package profile

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idkeeper/cli/internal/eventbus"
	"idkeeper/cli/internal/session"
)

func TestLoadMissing(t *testing.T) {
	c := NewCache(t.TempDir())
	_, ok, err := c.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Clear(), "clearing an empty cache")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := NewCache(t.TempDir())
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	want := Profile{
		Identifier:  "alice",
		Info:        &session.AccountInformation{UID: "u-1", DisplayName: "Alice", Email: "alice@example.org"},
		ValidatedAt: at,
		UpdatedAt:   at,
	}
	require.NoError(t, c.Save(want))

	got, ok, err := c.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Identifier, got.Identifier)
	assert.Equal(t, want.Info.DisplayName, got.Info.DisplayName)
	assert.True(t, at.Equal(got.ValidatedAt))

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(c.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}
}

func TestLoadCorrupt(t *testing.T) {
	c := NewCache(t.TempDir())
	require.NoError(t, os.WriteFile(c.Path(), []byte("{"), 0o600))
	_, _, err := c.Load()
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	c := NewCache(t.TempDir())
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	info := &session.AccountInformation{DisplayName: "Alice"}

	require.NoError(t, c.Apply(session.Event{Kind: session.SessionOpened, Identifier: "alice", Info: info, At: t0}))
	p, ok, err := c.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, t0.Equal(p.ValidatedAt))

	// An unvalidated renewal for the same identity keeps the known details.
	t1 := t0.Add(time.Hour)
	require.NoError(t, c.Apply(session.Event{Kind: session.SessionOpened, Identifier: "alice", At: t1}))
	p, _, err = c.Load()
	require.NoError(t, err)
	require.NotNil(t, p.Info)
	assert.Equal(t, "Alice", p.Info.DisplayName)
	assert.True(t, t0.Equal(p.ValidatedAt))
	assert.True(t, t1.Equal(p.UpdatedAt))

	require.NoError(t, c.Apply(session.Event{Kind: session.SessionLoginFailed, FailureReason: session.FailureTimeout}))
	_, ok, _ = c.Load()
	assert.True(t, ok, "a failed login leaves the cache alone")

	require.NoError(t, c.Apply(session.Event{Kind: session.SessionClosed, Identifier: "alice", CloseReason: session.CloseRevoked}))
	_, ok, _ = c.Load()
	assert.False(t, ok)
}

func TestFollow(t *testing.T) {
	c := NewCache(t.TempDir())
	bus := eventbus.New[session.Event]()
	sub := bus.Subscribe()
	done := make(chan error, 1)
	go func() { done <- c.Follow(context.Background(), sub) }()

	bus.Publish(session.Event{Kind: session.SessionOpened, Identifier: "bob", At: time.Now()})
	bus.Close()
	require.NoError(t, <-done)

	p, ok, err := c.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", p.Identifier)
}
