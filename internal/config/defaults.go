package config

import "github.com/dvcrn/cursor-web-proxy/internal/resilience"

const (
	defaultPort    = 8000
	defaultEnv     = "development"
	defaultLevel   = "info"
	defaultAPIKey  = "aaa"
	defaultTimeout = 60

	defaultContinueMaxRetries = 3
	defaultKVKey              = "x_is_human"

	defaultUpstreamURL = "https://cursor.com/api/chat"
	defaultScriptURL   = "https://cursor.com/149e9513-01fa-4fb0-aad4-566afd725d1b/2d206a39-8ed7-437e-a3be-862e0f06eea3/a-4-a/c.js?i=0&v=3&h=cursor.com"

	defaultModels = "gpt-5,gpt-5-codex,gpt-5-mini,gpt-5-nano,gpt-4.1,gpt-4o," +
		"claude-3.5-sonnet,claude-3.5-haiku,claude-3.7-sonnet,claude-4-sonnet,claude-4-opus,claude-4.1-opus," +
		"gemini-2.5-pro,gemini-2.5-flash,o3,o4-mini,deepseek-r1,deepseek-v3.1,kimi-k2-instruct," +
		"grok-3,grok-3-mini,grok-4,code-supernova-1-million"

	// DefaultFingerprint is a desktop Chrome on Windows with Intel graphics.
	DefaultFingerprint = "eyJVTk1BU0tFRF9WRU5ET1JfV0VCR0wiOiJHb29nbGUgSW5jLiAoSW50ZWwpIiwiVU5NQVNLRURfUkVOREVSRVJfV0VCR0wiOiJBTkdMRSAoSW50ZWwsIEludGVsKFIpIFVIRCBHcmFwaGljcyAoMHgwMDAwOUJBNCkgRGlyZWN0M0QxMSB2c181XzAgcHNfNV8wLCBEM0QxMS0yNi4yMC4xMDAuNzk4NSkiLCJ1c2VyQWdlbnQiOiJNb3ppbGxhLzUuMCAoV2luZG93cyBOVCAxMC4wOyBXaW42NDsgeDY0KSBBcHBsZVdlYktpdC81MzcuMzYgKEtIVE1MLCBsaWtlIEdlY2tvKSBDaHJvbWUvMTM5LjAuMC4wIFNhZmFyaS81MzcuMzYifQ=="
)

// NewDefaultConfig returns the configuration used when nothing is overridden.
func NewDefaultConfig() *Config {
	return &Config{
		Port:               defaultPort,
		Env:                defaultEnv,
		LogLevel:           defaultLevel,
		APIKey:             defaultAPIKey,
		Models:             defaultModels,
		TimeoutSeconds:     defaultTimeout,
		MaxRetries:         0,
		ContinueMaxRetries: defaultContinueMaxRetries,
		TokenCeiling:       resilience.DefaultTokenCeiling,
		OverlapWindow:      resilience.DefaultAnchorLength,
		OverlapSlack:       resilience.DefaultSlackLength,
		UpstreamURL:        defaultUpstreamURL,
		ScriptURL:          defaultScriptURL,
		XIsHumanKVKey:      defaultKVKey,
		Fingerprint:        DefaultFingerprint,
	}
}
