package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/dvcrn/cursor-web-proxy/internal/app"
	"github.com/dvcrn/cursor-web-proxy/internal/config"
	"github.com/dvcrn/cursor-web-proxy/internal/logger"
	"github.com/spf13/cobra"
)

const longDesc string = `cursor-proxy serves an OpenAI compatible chat completions API backed by
the cursor.com web chat.

Configuration is read from flags, environment variables (API_KEY, MODELS,
X_IS_HUMAN_SERVER_URL, ...), an optional config.toml and built-in defaults,
in that order of precedence.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cursor-proxy",
		Short:        "OpenAI compatible proxy for the cursor.com web chat",
		Long:         longDesc,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			v, err := config.NewViper(configFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
				return fmt.Errorf("binding port flag: %w", err)
			}

			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.LogLevel = "debug"
			}

			log := logger.New(cfg.Env, cfg.LogLevel)

			srv, err := app.NewServer(cfg, log)
			if err != nil {
				return err
			}

			log.Info().Str("addr", cfg.Addr()).Msg("Starting server")
			return http.ListenAndServe(cfg.Addr(), srv)
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to a config file (default: ./config.toml when present)")
	cmd.Flags().IntP("port", "p", config.NewDefaultConfig().Port, "Port to listen on")
	cmd.Flags().BoolP("debug", "d", false, "Enable debug logging")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
