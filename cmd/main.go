// Command dobswap runs the swap client against a configured Soroban
// environment: it keeps the consolidated state snapshot fresh, serves the
// read-side HTTP API and executes contract mutations through the
// transaction lifecycle manager.
//
// Usage:
//
//	dobswap --config config.yaml
//	dobswap --setup (interactive configuration wizard)
//
// Optional environment variables:
//
//	DOBSWAP_SECRET_SEED: S... seed for the local signing key. Without it
//	the client runs read-only and every mutation is rejected at the
//	signing step.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dobfi/dobswap/config"
	"github.com/dobfi/dobswap/internal"
	"github.com/dobfi/dobswap/internal/services/signer"
	"github.com/dobfi/dobswap/internal/setup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml config")
	runSetup := flag.Bool("setup", false, "run the interactive configuration wizard")
	flag.Parse()

	if *runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	var sgn signer.Signer
	if seed := os.Getenv("DOBSWAP_SECRET_SEED"); seed != "" {
		local, err := signer.NewLocalSigner(seed)
		if err != nil {
			log.Fatal(err)
		}
		sgn = local
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	app, err := internal.New(cfg, sgn, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
