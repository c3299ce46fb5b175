//go:build js && wasm

package cursor

import (
	"fmt"
	"net/http"
	"time"
)

// NewHTTPClient returns a fetch backed client. Outbound proxies are not
// available inside a worker.
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	if proxyURL != "" {
		return nil, fmt.Errorf("outbound proxy is not supported in js/wasm builds")
	}
	return &http.Client{Timeout: timeout}, nil
}
