package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheneos/appstore/pkg/auth"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      auth.Config
		wantType auth.Type
		wantNil  bool
		wantErr  bool
	}{
		{name: "no credentials", cfg: auth.Config{}, wantNil: true},
		{name: "basic", cfg: auth.Config{Type: "basic", Username: "user", Password: "pass"}, wantType: auth.BasicAuthType},
		{name: "bearer", cfg: auth.Config{Type: "bearer", Token: "t"}, wantType: auth.BearerAuthType},
		{name: "bearer without token", cfg: auth.Config{Type: "bearer"}, wantErr: true},
		{name: "header", cfg: auth.Config{Type: "header", Headers: map[string]string{"X-Api-Key": "k"}}, wantType: auth.HeaderAuthType},
		{name: "header without headers", cfg: auth.Config{Type: "header"}, wantErr: true},
		{name: "unknown", cfg: auth.Config{Type: "digest"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := auth.New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, a)
				return
			}
			require.NotNil(t, a)
			assert.Equal(t, tt.wantType, a.Type())
		})
	}

	_, err := auth.New(auth.Config{Type: "digest"})
	assert.ErrorIs(t, err, auth.ErrAuthType)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		auth   auth.Authenticator
		expect map[string]string
	}{
		{
			name:   "basic",
			auth:   auth.BasicAuth{Username: "user", Password: "pass"},
			expect: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
		},
		{
			name:   "empty basic",
			auth:   auth.BasicAuth{},
			expect: map[string]string{"Authorization": "Basic Og=="},
		},
		{
			name:   "bearer",
			auth:   auth.BearerAuth{Token: "test-token-123"},
			expect: map[string]string{"Authorization": "Bearer test-token-123"},
		},
		{
			name: "headers are canonicalized",
			auth: auth.HeaderAuth{Headers: map[string]string{"X-API-Key": "test-key", "X-Client-ID": "client-123"}},
			expect: map[string]string{
				"X-Api-Key":   "test-key",
				"X-Client-Id": "client-123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
			require.NoError(t, err)
			require.NoError(t, tt.auth.Apply(req))
			for k, v := range tt.expect {
				assert.Equal(t, v, req.Header.Get(k))
			}
		})
	}
}
