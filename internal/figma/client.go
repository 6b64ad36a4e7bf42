package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher supplies a complete remote snapshot for a Figma file.
//
// Implementations must return either a full snapshot or an error, never a
// partial snapshot. A failed fetch aborts a sync run before any mutation.
type Fetcher interface {
	// FetchSnapshot retrieves all variable collections and variables for
	// the given file key.
	FetchSnapshot(ctx context.Context, fileKey string) (*Snapshot, error)
}

// RemoteFetchError wraps any failure to obtain a remote snapshot.
type RemoteFetchError struct {
	FileKey    string
	StatusCode int // 0 when the request itself failed
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote fetch failed for file %s: status %d", e.FileKey, e.StatusCode)
	}
	return fmt.Sprintf("remote fetch failed for file %s: %v", e.FileKey, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// DefaultBaseURL is the Figma REST API endpoint.
const DefaultBaseURL = "https://api.figma.com"

// Client fetches variable snapshots from the Figma REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Figma API client using the given personal access
// token. If httpClient is nil, a client with a 30 second timeout is used.
func NewClient(accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: DefaultBaseURL,
		token:   accessToken,
		http:    httpClient,
	}
}

// variablesResponse matches GET /v1/files/{key}/variables/local.
type variablesResponse struct {
	Error   bool   `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Meta    struct {
		Variables   map[string]Variable   `json:"variables"`
		Collections map[string]Collection `json:"variableCollections"`
	} `json:"meta"`
}

// FetchSnapshot implements Fetcher against the local-variables endpoint.
func (c *Client) FetchSnapshot(ctx context.Context, fileKey string) (*Snapshot, error) {
	url := fmt.Sprintf("%s/v1/files/%s/variables/local", c.baseURL, fileKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RemoteFetchError{FileKey: fileKey, Err: err}
	}
	req.Header.Set("X-Figma-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteFetchError{FileKey: fileKey, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &RemoteFetchError{FileKey: fileKey, StatusCode: resp.StatusCode}
	}

	var parsed variablesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &RemoteFetchError{FileKey: fileKey, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if parsed.Error {
		return nil, &RemoteFetchError{FileKey: fileKey, StatusCode: parsed.Status, Err: fmt.Errorf("%s", parsed.Message)}
	}

	snap := &Snapshot{
		Collections: parsed.Meta.Collections,
		Variables:   parsed.Meta.Variables,
	}
	if snap.Collections == nil {
		snap.Collections = map[string]Collection{}
	}
	if snap.Variables == nil {
		snap.Variables = map[string]Variable{}
	}

	return snap, nil
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}
