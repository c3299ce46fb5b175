//go:build !js || !wasm

package cursor

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient(5*time.Second, "http://127.0.0.1:3128")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	req, _ := http.NewRequest(http.MethodGet, "https://cursor.com", nil)
	proxy, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3128", proxy.Host)

	_, err = NewHTTPClient(time.Second, "://bad")
	assert.Error(t, err)
}
