package main

import (
	"github.com/shopspring/decimal"

	"card-compare-engine/internal/app/server"
	"card-compare-engine/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel, cfg.Server.LogJSON)

	// amounts go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	server.Run(cfg)
}
