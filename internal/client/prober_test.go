package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProberExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/present.mp4":
			w.WriteHeader(http.StatusOK)
		case "/forbidden.mp4":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHTTPProber()

	exists, err := p.Exists(context.Background(), srv.URL+"/present.mp4")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.Exists(context.Background(), srv.URL+"/missing.mp4")
	require.NoError(t, err)
	assert.False(t, exists)

	// Forbidden means the object is not retrievable; treat as absent
	exists, err = p.Exists(context.Background(), srv.URL+"/forbidden.mp4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHTTPProberAmbiguousStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProber()

	_, err := p.Exists(context.Background(), srv.URL+"/whatever.mp4")
	assert.Error(t, err)
}
