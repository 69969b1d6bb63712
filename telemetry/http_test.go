package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracedHTTPClientDefaultsNilBase(t *testing.T) {
	client := TracedHTTPClient(nil)
	require.NotNil(t, client)
	assert.NotNil(t, client.Transport)
}

func TestTracedHTTPClientPreservesOtherClientFields(t *testing.T) {
	base := &http.Client{Timeout: 0}
	client := TracedHTTPClient(base)
	assert.Equal(t, base.Timeout, client.Timeout)
	assert.NotSame(t, base, client, "wrapping must not mutate the caller's client")
}

func TestTracedHTTPClientStillPerformsSuccessfulRoundTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := TracedHTTPClient(&http.Client{})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTracedHTTPClientWrapsExistingTransport(t *testing.T) {
	var called bool
	base := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: make(http.Header)}, nil
	})}

	client := TracedHTTPClient(base)
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.NoError(t, err)
	assert.True(t, called, "the wrapped transport must still be invoked")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
