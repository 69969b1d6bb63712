package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRemoteCapabilityFetchesDescribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/describe", r.URL.Path)
		_ = json.NewEncoder(w).Encode(remoteDescribeResponse{
			Name:        "weather",
			Description: "looks up weather",
			Functions:   []FunctionSpec{{Name: "lookup", Description: "lookup a city"}},
		})
	}))
	defer srv.Close()

	rc, err := NewRemoteCapability(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "weather", rc.Name())
	assert.Equal(t, "looks up weather", rc.Description())
	require.Len(t, rc.Functions(), 1)
	assert.Equal(t, "lookup", rc.Functions()[0].Name)
}

func TestNewRemoteCapabilityNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRemoteCapability(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}

func TestNewRemoteCapabilityBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewRemoteCapability(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}

func newTestRemote(t *testing.T, doHandler http.HandlerFunc) *RemoteCapability {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/describe", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(remoteDescribeResponse{Name: "weather"})
	})
	mux.HandleFunc("/do", doHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	rc, err := NewRemoteCapability(context.Background(), srv.URL, srv.Client())
	require.NoError(t, err)
	return rc
}

func TestRemoteCapabilityExecuteSuccess(t *testing.T) {
	rc := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		var req remoteDoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "lookup", req.Function)
		_ = json.NewEncoder(w).Encode(remoteDoResponse{Result: "sunny"})
	})

	out, err := rc.Execute(context.Background(), "lookup", map[string]interface{}{"city": "nyc"})
	require.NoError(t, err)
	assert.Equal(t, "sunny", out)
}

func TestRemoteCapabilityExecuteServerError(t *testing.T) {
	rc := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(remoteDoResponse{Error: "city not found"})
	})

	_, err := rc.Execute(context.Background(), "lookup", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "city not found")
}

func TestRemoteCapabilityExecuteNonJSONBodyPassthrough(t *testing.T) {
	rc := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text result"))
	})

	out, err := rc.Execute(context.Background(), "lookup", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text result", out)
}
