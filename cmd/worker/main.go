// The worker binary consumes the transcode stream. Run it alongside the API
// for steady-state processing, or with -burst from cron to drain the backlog
// once and exit.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/SaschaGerspach/videoflix/cmd/migrate"
	"github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/mirror"
	"github.com/SaschaGerspach/videoflix/internal/queue"
	"github.com/SaschaGerspach/videoflix/internal/redisclient"
	"github.com/SaschaGerspach/videoflix/internal/repository/storage"
	"github.com/SaschaGerspach/videoflix/internal/transcoder"
)

func main() {
	configFile := flag.String("config", "config.json", "path to the JSON config file")
	burst := flag.Bool("burst", false, "drain the backlog once and exit")
	flag.Parse()

	cfg := config.NewConfig()
	if err := cfg.Read(*configFile); err != nil {
		log.Fatal(err)
	}
	if *burst {
		cfg.Queue.Burst = true
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.SentryDSN,
		Environment: cfg.Sentry.Environment,
		Release:     "v1",
	}); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
		log.Fatal(err)
	}

	_, renditions, _, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal(err)
	}

	holder, err := redisclient.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer holder.Close()

	var exec queue.Executor = transcoder.NewFFmpeg(cfg.Media.Root)
	if cfg.Mirror.Enabled {
		m, err := mirror.NewStorage(&cfg.Mirror, cfg.Media.Root)
		if err != nil {
			log.Fatal(err)
		}
		defer m.Close()
		exec = mirror.WrapExecutor(exec, m)
	}

	w := queue.NewWorker(holder.Get(), cfg.Queue, exec, renditions)
	if err := w.Start(ctx); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}
