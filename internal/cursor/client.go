// Package cursor drives single exchanges against the cursor.com web chat
// endpoint and parses its event stream.
package cursor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/dvcrn/cursor-web-proxy/internal/humancheck"
	"github.com/rs/zerolog"
)

const (
	DefaultUpstreamURL = "https://cursor.com/api/chat"

	cloudflareMarker  = "Attention Required! | Cloudflare"
	maxErrorBodySize  = 1 << 20
	eventStreamMedium = "text/event-stream"
)

// Client performs upstream attempts. It is safe for concurrent use.
type Client struct {
	httpClient  humancheck.HTTPClient
	upstreamURL string
	tokens      humancheck.Provider
	fingerprint humancheck.Fingerprint
	logger      zerolog.Logger
}

func NewClient(httpClient humancheck.HTTPClient, upstreamURL string, tokens humancheck.Provider, fp humancheck.Fingerprint, logger zerolog.Logger) *Client {
	if upstreamURL == "" {
		upstreamURL = DefaultUpstreamURL
	}
	return &Client{
		httpClient:  httpClient,
		upstreamURL: upstreamURL,
		tokens:      tokens,
		fingerprint: fp,
		logger:      logger,
	}
}

// Exchange runs one attempt for req. Nothing is sent until the sequence is
// iterated. The response body is closed when iteration ends.
func (c *Client) Exchange(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error] {
	return func(yield func(chat.Event, error) bool) {
		resp, err := c.open(ctx, req)
		if err != nil {
			yield(chat.Event{}, err)
			return
		}
		defer resp.Body.Close()

		for ev, err := range ParseEvents(resp.Body, resp.StatusCode) {
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

func (c *Client) open(ctx context.Context, req *chat.Request) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		te := &TransportError{Message: "failed to acquire x-is-human token", Err: err}
		var hcErr *humancheck.Error
		if errors.As(err, &hcErr) {
			te.StatusCode = hcErr.StatusCode
		}
		return nil, te
	}

	payload := newRequestBody(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Message: "failed to encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Message: "failed to create request", Err: err}
	}
	c.setHeaders(httpReq.Header, token)

	c.logger.Debug().
		Str("model", req.Model).
		Str("chat_id", payload.ID).
		Int("message_count", len(payload.Messages)).
		Msg("Sending upstream request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Message: "request failed", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		text := readErrorBody(resp.Body)
		if strings.Contains(text, cloudflareMarker) {
			text = "blocked by Cloudflare challenge"
		}
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("body", text).
			Msg("Upstream returned non-200 status")
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: text}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, eventStreamMedium) {
		defer resp.Body.Close()
		text := readErrorBody(resp.Body)
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("response is not an event stream (content-type %q): %s", ct, text),
		}
	}

	return resp, nil
}

func (c *Client) setHeaders(h http.Header, token string) {
	humancheck.SetBrowserHeaders(h, c.fingerprint)
	h.Set("Content-Type", "application/json")
	h.Set("x-path", "/api/chat")
	h.Set("x-method", "POST")
	h.Set("x-is-human", token)
	h.Set("origin", "https://cursor.com")
	h.Set("sec-fetch-mode", "cors")
	h.Set("sec-fetch-dest", "empty")
	h.Set("priority", "u=1, i")
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil && len(b) == 0 {
		return "failed to read response body: " + err.Error()
	}
	return strings.TrimSpace(string(b))
}
