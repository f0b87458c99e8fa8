package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fallback = HTTPEndpoints{
	Login:    "/login",
	Validate: "/api/v1/session/validate",
	Account:  "/api/v1/account",
	Revoke:   "/api/v1/session/logout",
}

func TestResolveMergesDiscoveredPaths(t *testing.T) {
	ClearCache()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, WellKnownPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"version": 1,
			"issuer": "https://id.example.org",
			"http": {"session_validate": "/v2/validate", "account": "/v2/me"},
			"grpc": {"health_origin": "grpc://127.0.0.1:9090"}
		}`))
	}))
	defer srv.Close()

	eps, m, err := Resolve(context.Background(), srv.Client(), srv.URL, fallback)
	require.NoError(t, err)
	assert.Equal(t, "/v2/validate", eps.Validate)
	assert.Equal(t, "/v2/me", eps.Account)
	assert.Equal(t, "/login", eps.Login)
	assert.Equal(t, "/api/v1/session/logout", eps.Revoke)
	assert.Equal(t, "127.0.0.1:9090", m.GRPCAddress())
	assert.True(t, m.Plaintext())

	_, _, err = Resolve(context.Background(), srv.Client(), srv.URL+"/", fallback)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup must come from the cache")
}

func TestResolveFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "not found", status: http.StatusNotFound, wantErr: "status 404"},
		{name: "bad json", status: http.StatusOK, body: "<html>", wantErr: "parse manifest"},
		{name: "missing version", status: http.StatusOK, body: `{"http":{"session_validate":"/v"}}`, wantErr: "missing version"},
		{name: "missing validate", status: http.StatusOK, body: `{"version":1}`, wantErr: "session_validate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ClearCache()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			eps, m, err := Resolve(context.Background(), srv.Client(), srv.URL, fallback)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, m)
			assert.Equal(t, fallback, eps)
			assert.Nil(t, GetCached(srv.URL))
		})
	}
}

func TestGRPCAddressEmptyWithoutOrigin(t *testing.T) {
	m := &Manifest{}
	assert.Equal(t, "", m.GRPCAddress())
	m.GRPC.Health = "grpcs://id.example.org:443"
	assert.Equal(t, "id.example.org:443", m.GRPCAddress())
	assert.False(t, m.Plaintext())
}
