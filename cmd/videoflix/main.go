package main

import (
	"flag"
	"log"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/SaschaGerspach/videoflix/internal/app"
	"github.com/SaschaGerspach/videoflix/internal/config"
)

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	configFile := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg := config.NewConfig()
	err := cfg.Read(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	err = initSentry(&cfg.Sentry, "v1")
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}

	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	app, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
