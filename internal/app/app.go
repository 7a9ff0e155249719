package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/SaschaGerspach/videoflix/cmd/migrate"
	"github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/debounce"
	"github.com/SaschaGerspach/videoflix/internal/delivery"
	"github.com/SaschaGerspach/videoflix/internal/events"
	"github.com/SaschaGerspach/videoflix/internal/ingest"
	"github.com/SaschaGerspach/videoflix/internal/mirror"
	"github.com/SaschaGerspach/videoflix/internal/planner"
	"github.com/SaschaGerspach/videoflix/internal/probe"
	"github.com/SaschaGerspach/videoflix/internal/queue"
	"github.com/SaschaGerspach/videoflix/internal/redisclient"
	"github.com/SaschaGerspach/videoflix/internal/repository/storage"
	"github.com/SaschaGerspach/videoflix/internal/scheduler"
	"github.com/SaschaGerspach/videoflix/internal/thumbs"
	"github.com/SaschaGerspach/videoflix/internal/transcoder"
	"github.com/SaschaGerspach/videoflix/internal/transport/handler"
	"github.com/SaschaGerspach/videoflix/internal/transport/router"
)

type App struct {
	HttpServer *http.Server
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations)
	if err != nil {
		return nil, err
	}

	videos, renditions, segments, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	holder, err := redisclient.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rc := holder.Get()

	var exec queue.Executor = transcoder.NewFFmpeg(cfg.Media.Root)
	if cfg.Mirror.Enabled {
		m, err := mirror.NewStorage(&cfg.Mirror, cfg.Media.Root)
		if err != nil {
			return nil, err
		}
		exec = mirror.WrapExecutor(exec, m)
	}

	producer := queue.NewProducer(rc, cfg.Queue.Stream, cfg.Queue.MaxLen)
	adapter := queue.NewAdapter(producer, exec, renditions)

	deb := debounce.NewStore("videoflix", cfg.Debounce.TTL(), rc)
	sched := scheduler.New(deb, adapter, renditions)

	bus := events.NewBus()
	thumbGen := thumbs.NewGenerator(cfg.Media.Root, cfg.Thumbnails.Width, cfg.Thumbnails.Height)

	// A committed source immediately plans and schedules its renditions;
	// the debounce gate absorbs any manual re-trigger racing this.
	bus.SubscribeSourceCommitted(func(ctx context.Context, ev events.SourceCommitted) {
		if _, err := sched.Schedule(ctx, ev.VideoID, planner.Plan(ev.Height)); err != nil {
			log.Printf("[app] schedule on source commit failed: video_id=%d, error=%v", ev.VideoID, err)
			sentry.CaptureException(err)
		}
		if err := thumbGen.Generate(ctx, ev.VideoID); err != nil {
			log.Printf("[app] thumbnail generation failed: video_id=%d, error=%v", ev.VideoID, err)
		}
	})

	ing := ingest.NewService(cfg.Media.Root, videos, probe.NewFFprobe(), bus)
	del := delivery.NewService(cfg.Media.Root, videos, renditions, segments)
	inspector := queue.NewInspector(rc, cfg.Queue)

	h := handler.New(ing, sched, del, videos, renditions, inspector, cfg)
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		HttpServer: s,
	}, nil
}

func (a *App) Run() error {
	log.Printf("starting server")
	return a.HttpServer.ListenAndServe()
}
