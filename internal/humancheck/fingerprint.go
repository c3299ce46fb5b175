package humancheck

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Fingerprint is the browser identity presented to the challenge script.
type Fingerprint struct {
	UnmaskedVendorWebGL   string `json:"UNMASKED_VENDOR_WEBGL"`
	UnmaskedRendererWebGL string `json:"UNMASKED_RENDERER_WEBGL"`
	UserAgent             string `json:"userAgent"`
}

// DecodeFingerprint parses base64url encoded fingerprint JSON. Padding is
// optional and the standard alphabet is accepted as well.
func DecodeFingerprint(encoded string) (Fingerprint, error) {
	s := strings.TrimSpace(encoded)
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to decode fingerprint: %w", err)
	}

	var fp Fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to parse fingerprint JSON: %w", err)
	}
	if fp.UserAgent == "" {
		return Fingerprint{}, fmt.Errorf("fingerprint is missing userAgent")
	}
	return fp, nil
}
