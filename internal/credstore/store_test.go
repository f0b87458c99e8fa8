package credstore

import (
	"errors"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/keychain"
	"idkeeper/cli/internal/session"
)

func newStore(t *testing.T) (*Store, *keychain.Manager) {
	t.Helper()
	km := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	return New(km, "default"), km
}

type brokenSecrets struct{ err error }

func (b brokenSecrets) Set(string, []byte, string) error { return b.err }
func (b brokenSecrets) Get(string) ([]byte, error)       { return nil, b.err }
func (b brokenSecrets) Remove(string) error              { return b.err }

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sess, err := session.New("user-1", "tok-abc", issued, map[string]string{"tier": "gold"})
	require.NoError(t, err)

	require.NoError(t, store.Save(sess))
	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.Identifier)
	assert.Equal(t, "tok-abc", got.Token)
	assert.True(t, issued.Equal(got.IssuedAt))
	assert.Equal(t, "gold", got.Raw["tier"])
}

func TestSaveReplacesPreviousSession(t *testing.T) {
	store, _ := newStore(t)
	first, _ := session.New("a", "t1", time.Now(), nil)
	second, _ := session.New("b", "t2", time.Now(), nil)
	require.NoError(t, store.Save(first))
	require.NoError(t, store.Save(second))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", got.Identifier)
	assert.Equal(t, "t2", got.Token)
}

func TestLoadEmptyStoreReturnsNil(t *testing.T) {
	store, _ := newStore(t)
	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClearIsIdempotent(t *testing.T) {
	store, _ := newStore(t)
	sess, _ := session.New("a", "t", time.Now(), nil)
	require.NoError(t, store.Save(sess))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadRejectsDamagedRecords(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{{{"},
		{name: "missing token", data: `{"identifier":"a","issued_at":"2025-01-01T00:00:00Z"}`},
		{name: "missing identifier", data: `{"token":"t","issued_at":"2025-01-01T00:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, km := newStore(t)
			require.NoError(t, km.Set(store.Key(), []byte(tt.data), "test"))

			got, err := store.Load()
			assert.Nil(t, got)
			assert.True(t, apperrors.Is(err, apperrors.Unavailable), "got %v", err)
		})
	}
}

func TestLoadToleratesUnknownPayloadKeys(t *testing.T) {
	store, km := newStore(t)
	data := `{"identifier":"a","token":"t","issued_at":"2025-01-01T00:00:00Z",` +
		`"raw_payload":{"future_field":"x"},"extra":true}`
	require.NoError(t, km.Set(store.Key(), []byte(data), "test"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "x", got.Raw["future_field"])
}

func TestBackendFailuresAreUnavailable(t *testing.T) {
	store := New(brokenSecrets{err: errors.New("dbus: no session bus")}, "default")
	sess, _ := session.New("a", "t", time.Now(), nil)

	tests := []struct {
		name string
		op   func() error
	}{
		{name: "save", op: func() error { return store.Save(sess) }},
		{name: "load", op: func() error { _, err := store.Load(); return err }},
		{name: "clear", op: store.Clear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apperrors.Is(tt.op(), apperrors.Unavailable))
		})
	}
}

func TestAccessGroupsAreIsolated(t *testing.T) {
	km := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	work := New(km, "work")
	home := New(km, "home")
	sess, _ := session.New("a", "t", time.Now(), nil)
	require.NoError(t, work.Save(sess))

	got, err := home.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}
