// Package humancheck acquires the anti-bot token the cursor web backend
// expects in the x-is-human request header.
package humancheck

import (
	"context"
	"fmt"
	"net/http"
)

// Provider returns an opaque header value for one upstream attempt.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// HTTPClient is the subset of *http.Client used by the providers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Error is a classified token acquisition failure. StatusCode is the status
// of the response that failed, or 0 when no response was received.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("x-is-human token: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("x-is-human token: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
