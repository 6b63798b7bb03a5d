package main

import (
	"flag"

	"github.com/ariefcatur/go-live-orders/internal/config"
	"github.com/ariefcatur/go-live-orders/internal/logging"
	"github.com/ariefcatur/go-live-orders/internal/postgres"
	"github.com/rs/zerolog/log"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.ServiceName+"-migrate", cfg.Production())

	if *down > 0 {
		if err := postgres.MigrateDown(cfg.PostgresDSN, *down); err != nil {
			log.Fatal().Err(err).Msg("migrate down")
		}
		log.Info().Int("steps", *down).Msg("migrations rolled back")
		return
	}
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("migrate up")
	}
}
