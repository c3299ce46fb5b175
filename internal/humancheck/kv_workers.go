//go:build js && wasm

package humancheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/syumai/workers/cloudflare/kv"
)

// KVProvider reads a token that an external job keeps fresh in a Cloudflare
// KV namespace.
type KVProvider struct {
	namespace *kv.Namespace
	key       string
}

// NewKVProvider opens the KV namespace bound as binding in wrangler.toml.
func NewKVProvider(binding, key string) (Provider, error) {
	ns, err := kv.NewNamespace(binding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace %q: %w", binding, err)
	}
	return &KVProvider{namespace: ns, key: key}, nil
}

func (p *KVProvider) Token(ctx context.Context) (string, error) {
	value, err := p.namespace.GetString(p.key, nil)
	if err != nil {
		return "", &Error{Message: "failed to read token from KV", Err: err}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &Error{Message: fmt.Sprintf("no token stored in KV under %q", p.key)}
	}
	return value, nil
}
