//go:build js && wasm

package main

import (
	"github.com/dvcrn/cursor-web-proxy/internal/app"
	"github.com/dvcrn/cursor-web-proxy/internal/config"
	"github.com/dvcrn/cursor-web-proxy/internal/logger"
	"github.com/syumai/workers"
	"github.com/syumai/workers/cloudflare"
)

func main() {
	cfg, err := config.LoadFromLookup(cloudflare.Getenv)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Env, cfg.LogLevel)

	srv, err := app.NewServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	log.Info().
		Bool("token_kv", cfg.XIsHumanKV != "").
		Msg("Serving through Cloudflare Workers")
	workers.Serve(srv)
}
