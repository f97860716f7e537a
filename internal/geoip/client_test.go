package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountryCode_Success(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"US","query":"203.0.113.9"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	code, err := client.CountryCode(context.Background(), "203.0.113.9")

	require.NoError(t, err)
	assert.Equal(t, "US", code)
	assert.Equal(t, "/json/203.0.113.9", gotPath)
	assert.Equal(t, "fields=status,countryCode,query", gotQuery)
}

func TestCountryCode_ProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","query":"10.0.0.1"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.CountryCode(context.Background(), "10.0.0.1")

	assert.ErrorIs(t, err, ErrLookupFailed)
}

func TestCountryCode_EmptyCountryCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"","query":"203.0.113.9"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.CountryCode(context.Background(), "203.0.113.9")

	assert.ErrorIs(t, err, ErrLookupFailed)
}

func TestCountryCode_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.CountryCode(context.Background(), "203.0.113.9")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLookupFailed)
}

func TestCountryCode_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.CountryCode(context.Background(), "203.0.113.9")

	require.Error(t, err)
}

func TestCountryCode_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.CountryCode(context.Background(), "203.0.113.9")

	require.Error(t, err)
}
