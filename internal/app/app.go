package app

import (
	"fmt"

	"github.com/dvcrn/cursor-web-proxy/internal/config"
	"github.com/dvcrn/cursor-web-proxy/internal/cursor"
	"github.com/dvcrn/cursor-web-proxy/internal/humancheck"
	"github.com/dvcrn/cursor-web-proxy/internal/resilience"
	"github.com/dvcrn/cursor-web-proxy/internal/server"
	"github.com/rs/zerolog"
)

// NewServer wires the upstream client, token provider and resilience
// pipeline described by cfg into an HTTP server.
func NewServer(cfg *config.Config, logger zerolog.Logger) (*server.Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	fp, err := cfg.DecodeFingerprint()
	if err != nil {
		return nil, err
	}

	httpClient, err := cursor.NewHTTPClient(cfg.Timeout(), cfg.Proxy)
	if err != nil {
		return nil, err
	}

	tokens, err := newTokenProvider(cfg, httpClient, fp, logger)
	if err != nil {
		return nil, err
	}
	client := cursor.NewClient(httpClient, cfg.UpstreamURL, tokens, fp, logger)

	pipeline := &resilience.Pipeline{
		Exchange:        client.Exchange,
		EmptyRetries:    cfg.MaxRetries,
		ContinueRetries: cfg.ContinueMaxRetries,
		Continuation: &resilience.Continuation{
			TokenCeiling: cfg.TokenCeiling,
			AnchorLength: cfg.OverlapWindow,
			SlackLength:  cfg.OverlapSlack,
			Logger:       logger,
		},
		Logger: logger,
	}

	logger.Info().
		Str("upstream", cfg.UpstreamURL).
		Bool("token_server", cfg.XIsHumanServerURL != "").
		Bool("token_kv", cfg.XIsHumanKV != "").
		Bool("proxy", cfg.Proxy != "").
		Int("max_retries", cfg.MaxRetries).
		Int("continue_max_retries", cfg.ContinueMaxRetries).
		Int("models", len(cfg.ModelList())).
		Msg("Configured completion pipeline")

	return server.New(logger, pipeline, server.Options{
		APIKey:             cfg.APIKey,
		Models:             cfg.ModelList(),
		SystemPromptInject: cfg.SystemPromptInject,
		UserPromptInject:   cfg.UserPromptInject,
	}), nil
}

// newTokenProvider prefers the token server, then the static header value,
// then a KV namespace.
func newTokenProvider(cfg *config.Config, httpClient humancheck.HTTPClient, fp humancheck.Fingerprint, logger zerolog.Logger) (humancheck.Provider, error) {
	switch {
	case cfg.XIsHumanServerURL != "":
		return humancheck.NewServerProvider(httpClient, cfg.ScriptURL, cfg.XIsHumanServerURL, fp, logger), nil
	case cfg.XIsHuman != "":
		return humancheck.NewStaticProvider(cfg.XIsHuman), nil
	default:
		return humancheck.NewKVProvider(cfg.XIsHumanKV, cfg.XIsHumanKVKey)
	}
}
