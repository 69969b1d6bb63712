package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fluxweave/conductor/conductorerr"
)

// remoteDescribeResponse is the wire shape a remote capability's
// GET /describe endpoint returns.
type remoteDescribeResponse struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Functions   []FunctionSpec `json:"functions"`
}

type remoteDoRequest struct {
	Function string                 `json:"function"`
	Args     map[string]interface{} `json:"args"`
}

type remoteDoResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// RemoteCapability proxies a capability that lives in another process,
// implementing the documented wire contract: GET {baseURL}/describe to
// fetch its name/description/functions, POST {baseURL}/do to execute.
// Describe is fetched once and cached; construct a new RemoteCapability to
// refresh it.
type RemoteCapability struct {
	baseURL    string
	httpClient *http.Client
	described  remoteDescribeResponse
}

// NewRemoteCapability fetches the capability's description from baseURL
// and returns a ready-to-register Capability. httpClient may be a
// telemetry.TracedHTTPClient wrapper; pass nil for http.DefaultClient.
func NewRemoteCapability(ctx context.Context, baseURL string, httpClient *http.Client) (*RemoteCapability, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/describe", nil)
	if err != nil {
		return nil, fmt.Errorf("remote capability: building describe request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote capability: describe request to %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote capability: describe returned status %d", resp.StatusCode)
	}

	var described remoteDescribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&described); err != nil {
		return nil, fmt.Errorf("remote capability: decoding describe response: %w", err)
	}

	return &RemoteCapability{
		baseURL:    baseURL,
		httpClient: httpClient,
		described:  described,
	}, nil
}

func (r *RemoteCapability) Name() string                { return r.described.Name }
func (r *RemoteCapability) Description() string          { return r.described.Description }
func (r *RemoteCapability) Functions() []FunctionSpec    { return r.described.Functions }

func (r *RemoteCapability) Execute(ctx context.Context, function string, args map[string]interface{}) (string, error) {
	body, err := json.Marshal(remoteDoRequest{Function: function, Args: args})
	if err != nil {
		return "", fmt.Errorf("remote capability: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/do", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("remote capability: building do request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote capability: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("remote capability: reading response: %w", err)
	}

	var parsed remoteDoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw), nil
	}
	if parsed.Error != "" {
		return "", conductorerr.New("remote.Execute", "capability", fmt.Errorf("%s", parsed.Error)).WithID(function)
	}
	return parsed.Result, nil
}
