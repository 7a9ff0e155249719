// The maintenance binary reconciles tracking records with the media root.
// Each run performs exactly one operation:
//
//	maintenance -scan                    classify every planned rendition
//	maintenance -heal                    rewrite records from storage
//	maintenance -enqueue-missing         schedule absent renditions
//	maintenance -prune-orphans -confirm  delete directories no video owns
//
// -video and -res narrow the run; -json switches the output format.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/SaschaGerspach/videoflix/cmd/migrate"
	"github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/debounce"
	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/maintenance"
	"github.com/SaschaGerspach/videoflix/internal/queue"
	"github.com/SaschaGerspach/videoflix/internal/redisclient"
	"github.com/SaschaGerspach/videoflix/internal/repository/storage"
	"github.com/SaschaGerspach/videoflix/internal/scheduler"
	"github.com/SaschaGerspach/videoflix/internal/thumbs"
	"github.com/SaschaGerspach/videoflix/internal/transcoder"
)

func main() {
	configFile := flag.String("config", "config.json", "path to the JSON config file")
	scan := flag.Bool("scan", false, "report rendition state without mutating anything")
	heal := flag.Bool("heal", false, "rewrite tracking records from storage")
	enqueueMissing := flag.Bool("enqueue-missing", false, "schedule renditions absent from storage")
	pruneOrphans := flag.Bool("prune-orphans", false, "remove directories no video owns")
	confirm := flag.Bool("confirm", false, "actually delete during -prune-orphans")
	jsonOut := flag.Bool("json", false, "print results as JSON")
	videoList := flag.String("video", "", "comma-separated video ids to restrict the run to")
	resList := flag.String("res", "", "comma-separated resolutions to restrict the run to")
	flag.Parse()

	ops := 0
	for _, v := range []bool{*scan, *heal, *enqueueMissing, *pruneOrphans} {
		if v {
			ops++
		}
	}
	if ops != 1 {
		log.Fatal("exactly one of -scan, -heal, -enqueue-missing, -prune-orphans is required")
	}

	filter, err := parseFilter(*videoList, *resList)
	if err != nil {
		log.Fatal(err)
	}

	cfg := config.NewConfig()
	if err := cfg.Read(*configFile); err != nil {
		log.Fatal(err)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.SentryDSN,
		Environment: cfg.Sentry.Environment,
		Release:     "v1",
	}); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx := context.Background()

	if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
		log.Fatal(err)
	}

	videos, renditions, segments, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal(err)
	}

	holder, err := redisclient.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer holder.Close()
	rc := holder.Get()

	// Enqueueing goes through the same debounced path as the API, so a
	// maintenance run racing a user action cannot double-dispatch.
	exec := transcoder.NewFFmpeg(cfg.Media.Root)
	producer := queue.NewProducer(rc, cfg.Queue.Stream, cfg.Queue.MaxLen)
	adapter := queue.NewAdapter(producer, exec, renditions)
	deb := debounce.NewStore("videoflix", cfg.Debounce.TTL(), rc)
	sched := scheduler.New(deb, adapter, renditions)

	runner := maintenance.NewRunner(cfg.Media.Root, videos, renditions, segments, sched).
		WithThumbnails(thumbs.NewGenerator(cfg.Media.Root, cfg.Thumbnails.Width, cfg.Thumbnails.Height))

	switch {
	case *scan:
		report, err := runner.Scan(ctx, filter)
		if err != nil {
			log.Fatal(err)
		}
		emit(*jsonOut, report, func() {
			log.Printf("scan: ok=%d heal=%d missing=%d stale=%d orphans=%d",
				len(report.OK), len(report.Heal), len(report.Missing), len(report.Stale), len(report.Orphans))
		})

	case *heal:
		sum, err := runner.Heal(ctx, filter)
		if err != nil {
			log.Fatal(err)
		}
		emit(*jsonOut, sum, func() {
			log.Printf("heal: healed=%d degraded=%d", sum.Healed, sum.Degraded)
		})

	case *enqueueMissing:
		sum, err := runner.EnqueueMissing(ctx, filter)
		if err != nil {
			log.Fatal(err)
		}
		emit(*jsonOut, sum, func() {
			log.Printf("enqueue-missing: enqueued=%d", sum.Enqueued)
		})

	case *pruneOrphans:
		report, sum, err := runner.PruneOrphans(ctx, filter, *confirm)
		if err != nil {
			log.Fatal(err)
		}
		out := struct {
			Orphans []maintenance.Orphan `json:"orphans"`
			Pruned  int                  `json:"pruned"`
			DryRun  bool                 `json:"dry_run"`
		}{report.Orphans, sum.Pruned, !*confirm}
		emit(*jsonOut, out, func() {
			if !*confirm {
				log.Printf("prune-orphans (dry run): candidates=%d; re-run with -confirm to delete", len(report.Orphans))
				return
			}
			log.Printf("prune-orphans: pruned=%d", sum.Pruned)
		})
	}
}

func emit(asJSON bool, v any, plain func()) {
	if !asJSON {
		plain()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal(err)
	}
}

func parseFilter(videoList, resList string) (maintenance.Filter, error) {
	var f maintenance.Filter

	if videoList != "" {
		for _, part := range strings.Split(videoList, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return f, err
			}
			f.VideoIDs = append(f.VideoIDs, id)
		}
	}

	if resList != "" {
		for _, part := range strings.Split(resList, ",") {
			res := entities.Resolution(strings.TrimSpace(part))
			if !res.Valid() {
				return f, fmt.Errorf("unknown resolution %q", res)
			}
			f.Resolutions = append(f.Resolutions, res)
		}
	}
	return f, nil
}
