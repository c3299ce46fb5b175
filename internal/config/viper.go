package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NewViper returns a viper instance with defaults registered, the config file
// read and the environment bound.
//
// Precedence, highest first: bound flags, environment variables (API_KEY,
// MODELS, ...), config file, defaults. configFile may be empty, in which case
// config.toml is looked up in the working directory and is optional.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if configFile != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.AutomaticEnv()
	return v, nil
}

// FromViper decodes v into a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Load reads the configuration without any flag bindings.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// LoadFromLookup reads the configuration from lookup, keyed by the upper-case
// environment variable names. Workers have no process environment, so the
// worker entry passes its bindings here.
func LoadFromLookup(lookup func(string) string) (*Config, error) {
	v := viper.New()
	setViperDefaults(v)
	for _, key := range v.AllKeys() {
		if value := lookup(strings.ToUpper(key)); value != "" {
			v.Set(key, value)
		}
	}
	return FromViper(v)
}

func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("port", d.Port)
	v.SetDefault("env", d.Env)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("models", d.Models)
	v.SetDefault("system_prompt_inject", d.SystemPromptInject)
	v.SetDefault("user_prompt_inject", d.UserPromptInject)

	v.SetDefault("timeout", d.TimeoutSeconds)
	v.SetDefault("proxy", d.Proxy)

	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("continue_max_retries", d.ContinueMaxRetries)
	v.SetDefault("token_ceiling", d.TokenCeiling)
	v.SetDefault("overlap_window", d.OverlapWindow)
	v.SetDefault("overlap_slack", d.OverlapSlack)

	v.SetDefault("upstream_url", d.UpstreamURL)
	v.SetDefault("script_url", d.ScriptURL)
	v.SetDefault("x_is_human_server_url", d.XIsHumanServerURL)
	v.SetDefault("x_is_human", d.XIsHuman)
	v.SetDefault("x_is_human_kv", d.XIsHumanKV)
	v.SetDefault("x_is_human_kv_key", d.XIsHumanKVKey)
	v.SetDefault("fp", d.Fingerprint)
}
