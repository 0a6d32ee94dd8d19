package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/moltiarena/core/internal/cli"
	"github.com/moltiarena/core/internal/config"
	"github.com/moltiarena/core/internal/svc"
)

// aggregatorInterval is how often the Market Aggregator folds its per-tick
// counters into a snapshot. This runs on its own cadence, independent of
// the Tick Engine's decision interval (spec.md §5: three independent
// loops sharing only the snapshot read path).
const aggregatorInterval = 5 * time.Second

// shutdownTimeout bounds how long in-flight work gets to finish once a
// shutdown signal arrives before the process exits anyway.
const shutdownTimeout = 15 * time.Second

func main() {
	flag.Parse()

	c, err := config.Load(config.ConfigFile())
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}

	logx.MustSetup(logx.LogConf{})
	defer logx.Close()
	cli.LogConfigSummary(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx := svc.NewServiceContext(ctx, *c)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runAggregatorLoop(ctx, svcCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svcCtx.Engine.Run(ctx, c.Engine.TickInterval); err != nil && err != context.Canceled {
			logx.Errorf("engine: tick loop exited: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svcCtx.Epoch.Run(ctx); err != nil && err != context.Canceled {
			logx.Errorf("epoch: scheduler exited: %v", err)
		}
	}()

	if svcCtx.Ingest != nil && strings.TrimSpace(c.Ingest.URL) != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svcCtx.Ingest.Run(ctx)
		}()
	} else {
		logx.Info("engine: no ingest.url configured, market aggregator runs with no live feed")
	}

	logx.Infof("moltiarena engine started env=%s arena=%s tick=%s",
		c.Env, c.Chain.ArenaAddress, c.Engine.TickInterval)

	<-ctx.Done()
	logx.Info("shutdown signal received, waiting for loops to drain")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("moltiarena engine stopped cleanly")
	case <-time.After(shutdownTimeout):
		logx.Error("shutdown timed out, exiting anyway")
	}
}

// runAggregatorLoop folds ingest events into per-token snapshots on a fixed
// cadence, decoupled from both the ingest feed's own pace and the Tick
// Engine's decision interval.
func runAggregatorLoop(ctx context.Context, svcCtx *svc.ServiceContext) {
	ticker := time.NewTicker(aggregatorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshots := svcCtx.Aggregator.Tick(ctx)
			logx.WithContext(ctx).Debugf("aggregator: tick produced %d snapshots", len(snapshots))
		}
	}
}
