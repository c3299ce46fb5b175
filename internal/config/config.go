// Package config loads the proxy configuration from defaults, an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvcrn/cursor-web-proxy/internal/humancheck"
)

type Config struct {
	Port     int    `mapstructure:"port"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	APIKey string `mapstructure:"api_key"`
	Models string `mapstructure:"models"`

	SystemPromptInject string `mapstructure:"system_prompt_inject"`
	UserPromptInject   string `mapstructure:"user_prompt_inject"`

	TimeoutSeconds int    `mapstructure:"timeout"`
	Proxy          string `mapstructure:"proxy"`

	MaxRetries         int `mapstructure:"max_retries"`
	ContinueMaxRetries int `mapstructure:"continue_max_retries"`
	TokenCeiling       int `mapstructure:"token_ceiling"`
	OverlapWindow      int `mapstructure:"overlap_window"`
	OverlapSlack       int `mapstructure:"overlap_slack"`

	UpstreamURL       string `mapstructure:"upstream_url"`
	ScriptURL         string `mapstructure:"script_url"`
	XIsHumanServerURL string `mapstructure:"x_is_human_server_url"`
	XIsHuman          string `mapstructure:"x_is_human"`
	XIsHumanKV        string `mapstructure:"x_is_human_kv"`
	XIsHumanKVKey     string `mapstructure:"x_is_human_kv_key"`
	Fingerprint       string `mapstructure:"fp"`
}

// ModelList returns the advertised model ids, trimmed and without empties.
func (c *Config) ModelList() []string {
	var models []string
	for _, m := range strings.Split(c.Models, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DecodeFingerprint parses the configured browser fingerprint.
func (c *Config) DecodeFingerprint() (humancheck.Fingerprint, error) {
	return humancheck.DecodeFingerprint(c.Fingerprint)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY must not be empty"))
	}
	if c.XIsHuman == "" && c.XIsHumanServerURL == "" && c.XIsHumanKV == "" {
		errs = append(errs, errors.New("one of X_IS_HUMAN_SERVER_URL, X_IS_HUMAN or X_IS_HUMAN_KV must be set"))
	}
	if c.XIsHumanKV != "" && c.XIsHumanKVKey == "" {
		errs = append(errs, errors.New("X_IS_HUMAN_KV_KEY is required when X_IS_HUMAN_KV is set"))
	}
	if c.XIsHumanServerURL != "" && c.ScriptURL == "" {
		errs = append(errs, errors.New("SCRIPT_URL is required when X_IS_HUMAN_SERVER_URL is set"))
	}
	if _, err := c.DecodeFingerprint(); err != nil {
		errs = append(errs, fmt.Errorf("FP: %w", err))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("TIMEOUT must be positive"))
	}
	if c.MaxRetries < 0 || c.ContinueMaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRIES and CONTINUE_MAX_RETRIES must not be negative"))
	}
	if c.TokenCeiling <= 0 {
		errs = append(errs, errors.New("TOKEN_CEILING must be positive"))
	}
	if c.OverlapWindow <= 0 {
		errs = append(errs, errors.New("OVERLAP_WINDOW must be positive"))
	}
	if c.OverlapSlack < c.OverlapWindow {
		errs = append(errs, errors.New("OVERLAP_SLACK must be at least OVERLAP_WINDOW"))
	}
	if len(c.ModelList()) == 0 {
		errs = append(errs, errors.New("MODELS must list at least one model"))
	}
	return errors.Join(errs...)
}
