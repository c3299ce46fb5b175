//go:build !js || !wasm

package cursor

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// NewHTTPClient returns a client whose Timeout bounds one whole attempt,
// streaming included. proxyURL routes all traffic through an HTTP proxy when
// set.
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
