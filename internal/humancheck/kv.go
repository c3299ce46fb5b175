//go:build !js || !wasm

package humancheck

import "errors"

// NewKVProvider is only available in Cloudflare Workers builds.
func NewKVProvider(binding, key string) (Provider, error) {
	return nil, errors.New("KV token storage is only available in js/wasm builds")
}
