// Command pipeline runs one prediction job and exits. It shares the server's
// configuration and run lock, so it is safe to invoke from an external
// scheduler while the server is up.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/app"
	"github.com/propsight/prediction-api/internal/config"
	"github.com/propsight/prediction-api/internal/pipeline"
)

func main() {
	job := flag.String("job", "run", "job to execute: run, actuals or purge")
	sport := flag.String("sport", "", "limit the job to one sport")
	days := flag.Int("days", 0, "days ahead to predict (run only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := execute(ctx, cfg, logger, *job, *sport, *days)
	if err != nil {
		logger.Error("Job failed", zap.String("job", *job), zap.Error(err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("Failed to write result", zap.Error(err))
		os.Exit(1)
	}
}

func execute(ctx context.Context, cfg *config.Config, logger *zap.Logger, job, sport string, days int) (any, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	switch job {
	case "run":
		return a.Pipeline.Run(ctx, pipeline.RunRequest{Sport: sport, DaysAhead: days})
	case "actuals":
		return a.Pipeline.CollectActuals(ctx, sport)
	case "purge":
		deleted, err := a.Pipeline.Purge(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": deleted}, nil
	default:
		return nil, fmt.Errorf("unknown job %q", job)
	}
}
