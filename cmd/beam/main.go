package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/beam/api"
	"github.com/zsiec/beam/config"
	"github.com/zsiec/beam/encoder"
	"github.com/zsiec/beam/link"
	srtlink "github.com/zsiec/beam/link/srt"
	wslink "github.com/zsiec/beam/link/ws"
	"github.com/zsiec/beam/metrics"
	"github.com/zsiec/beam/monitor"
	"github.com/zsiec/beam/stream"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Load()

	slog.Info("beam starting",
		"version", version,
		"api", cfg.APIAddr,
		"link", cfg.LinkURL,
		"fps", cfg.FPS,
		"bitrate_kbps", cfg.InitialBitrateKbps,
	)

	lnk, err := dialLink(cfg)
	if err != nil {
		slog.Error("link dial failed", "error", err)
		os.Exit(1)
	}
	defer lnk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	engine := stream.New(stream.Config{
		Link:               lnk,
		InitialBitrateKbps: cfg.InitialBitrateKbps,
		Callbacks: stream.Callbacks{
			OnStreamError: func(err error) {
				slog.Warn("stream error", "error", err)
			},
			OnBandwidthUpdate: func(kbps int) {
				slog.Debug("bandwidth", "kbps", kbps)
			},
			OnCongestionDetected: func() {
				slog.Warn("congestion detected")
			},
			OnBitrateChange: func(kbps int) {
				slog.Info("encoder bitrate target changed", "kbps", kbps)
			},
		},
	})

	mon := monitor.New(engine, float64(cfg.FPS), nil)
	prometheus.MustRegister(metrics.NewCollector(engine))

	apiSrv := api.New(api.Config{
		Addr:    cfg.APIAddr,
		Engine:  engine,
		Monitor: mon,
	})

	if err := engine.Start(); err != nil {
		slog.Error("engine start failed", "error", err)
		os.Exit(1)
	}
	defer engine.Stop()

	source := encoder.New(engine, cfg.FPS, cfg.GOPLength, nil)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiSrv.Run(ctx) })
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error { return source.Run(ctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("beam exited", "error", err)
		os.Exit(1)
	}
	slog.Info("beam stopped")
}

// dialLink selects the device link by URL scheme. An empty URL yields the
// local discard link for bring-up without a peer.
func dialLink(cfg *config.Config) (link.Link, error) {
	switch {
	case cfg.LinkURL == "":
		slog.Info("no LINK_URL, using discard link")
		return link.NewDiscard(), nil
	case strings.HasPrefix(cfg.LinkURL, "srt://"):
		return srtlink.Dial(strings.TrimPrefix(cfg.LinkURL, "srt://"), cfg.StreamID, nil)
	case strings.HasPrefix(cfg.LinkURL, "ws://"), strings.HasPrefix(cfg.LinkURL, "wss://"):
		return wslink.Dial(cfg.LinkURL, nil, nil)
	default:
		return nil, fmt.Errorf("unsupported link URL %q", cfg.LinkURL)
	}
}
