package humancheck

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const maxScriptSize = 8 << 20

// ServerProvider downloads the challenge script and delegates its evaluation
// to an external token server.
type ServerProvider struct {
	httpClient  HTTPClient
	scriptURL   string
	serverURL   string
	fingerprint Fingerprint
	logger      zerolog.Logger
}

func NewServerProvider(httpClient HTTPClient, scriptURL, serverURL string, fp Fingerprint, logger zerolog.Logger) *ServerProvider {
	return &ServerProvider{
		httpClient:  httpClient,
		scriptURL:   scriptURL,
		serverURL:   serverURL,
		fingerprint: fp,
		logger:      logger,
	}
}

type tokenRequest struct {
	JSCode string      `json:"jscode"`
	FP     Fingerprint `json:"fp"`
}

// Token fetches a fresh token. The whole token server reply is the header
// value; it must be JSON carrying a non-empty "s" field.
func (p *ServerProvider) Token(ctx context.Context) (string, error) {
	script, err := p.fetchScript(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(tokenRequest{
		JSCode: base64.StdEncoding.EncodeToString(script),
		FP:     p.fingerprint,
	})
	if err != nil {
		return "", &Error{Message: "failed to encode token server request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Message: "failed to create token server request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: "token server request failed", Err: err}
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Message: "failed to read token server reply", Err: err}
	}

	text := strings.TrimSpace(string(reply))
	if !gjson.Valid(text) || gjson.Get(text, "s").String() == "" {
		return "", &Error{StatusCode: resp.StatusCode, Message: "token server returned an invalid result: " + text}
	}

	p.logger.Debug().
		Int("status_code", resp.StatusCode).
		Int("token_length", len(text)).
		Msg("Acquired x-is-human token")
	return text, nil
}

func (p *ServerProvider) fetchScript(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.scriptURL, nil)
	if err != nil {
		return nil, &Error{Message: "failed to create script request", Err: err}
	}
	SetBrowserHeaders(req.Header, p.fingerprint)
	req.Header.Set("sec-fetch-mode", "no-cors")
	req.Header.Set("sec-fetch-dest", "script")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: "challenge script request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("challenge script returned status %d", resp.StatusCode)}
	}

	script, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "failed to read challenge script", Err: err}
	}
	return script, nil
}
