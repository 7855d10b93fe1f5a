// Package httpclient is the SDK's outbound HTTP side: a signed JSON client
// generalizing the bare *http.Client use the teacher reaches for when
// fetching a third party URL (see server/linkpreview.go) into a reusable
// client that knows the server's envelope shape and error idiom.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// defaultTimeout bounds every call; the server is expected on the same
// network as the embedding application, so this is generous rather than tight.
const defaultTimeout = 15 * time.Second

// envelope is the `{errCode, errMsg, data}` shape every endpoint replies
// with, per spec §6. errCode != 0 is always fatal for the call.
type envelope struct {
	ErrCode int             `json:"errCode"`
	ErrMsg  string          `json:"errMsg"`
	Data    json.RawMessage `json:"data"`
}

// APIError is the single error type every non-success HTTP-call outcome is
// reported as, matching jsonErrorHandler's "always one consistent shape"
// idiom from server/api.go, mirrored here for the client-calling side.
type APIError struct {
	Status  int
	ErrCode int
	ErrMsg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("httpclient: status=%d errCode=%d errMsg=%q", e.Status, e.ErrCode, e.ErrMsg)
}

// Client is a signed POST-JSON client: every call injects Content-Type,
// operationID, and token headers and unwraps the envelope automatically.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New constructs a Client pointed at baseURL. Token may be empty before
// login; call SetToken once login succeeds.
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
	}
}

// SetToken updates the bearer token attached to every subsequent call.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Post issues a signed POST to path with body marshaled as JSON, and
// unmarshals the envelope's data field into out (which may be nil for
// endpoints that return an empty object).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("operationID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: do %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, ErrMsg: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("httpclient: decode envelope %s: %w", path, err)
	}
	if env.ErrCode != 0 {
		return &APIError{Status: resp.StatusCode, ErrCode: env.ErrCode, ErrMsg: env.ErrMsg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("httpclient: decode data %s: %w", path, err)
	}
	return nil
}
