// Package main implements the blissdata bridge: it subscribes to bluesky
// scan lifecycle documents and republishes them into a remote time-series
// store as typed append-only streams plus scan metadata.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udaisingh93/bluesky-blissdata/blissdata"
	"github.com/udaisingh93/bluesky-blissdata/blissdata/influxstore"
	"github.com/udaisingh93/bluesky-blissdata/blissdata/natsstore"
	"github.com/udaisingh93/bluesky-blissdata/config"
	"github.com/udaisingh93/bluesky-blissdata/dispatcher"
	"github.com/udaisingh93/bluesky-blissdata/metric"
	"github.com/udaisingh93/bluesky-blissdata/natsclient"
	"github.com/udaisingh93/bluesky-blissdata/subscriber"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "blissdata-bridge"
)

const shutdownTimeout = 10 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("bridge failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, cli)

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cli.Validate {
		fmt.Println("configuration OK")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := buildNATSClient(cfg, logger)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("nats close failed", "error", err)
		}
	}()

	store, cleanup, err := buildStore(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := metric.NewRegistry()
	disp := dispatcher.New(store,
		dispatcher.WithLogger(logger),
		dispatcher.WithMetrics(registry.Metrics),
	)
	sub := subscriber.New(client, disp,
		subscriber.WithLogger(logger),
		subscriber.WithSubject(cfg.Bridge.Subject),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Port, registry)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			return srv.Stop()
		})
		logger.Info("metrics server enabled", "address", srv.Address())
	}

	if err := sub.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return sub.Stop(stopCtx)
	})

	logger.Info("bridge running",
		"store", cfg.Store,
		"subject", cfg.Bridge.Subject,
		"nats_url", cfg.NATS.URL)

	return g.Wait()
}

func buildNATSClient(cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.Option{
		natsclient.WithLogger(logger),
		natsclient.WithClientName(cfg.NATS.ClientName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.Timeout),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithUserInfo(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	return natsclient.NewClient(cfg.NATS.URL, opts...)
}

func buildStore(
	ctx context.Context,
	cfg *config.Config,
	client *natsclient.Client,
	logger *slog.Logger,
) (blissdata.Store, func(), error) {
	switch cfg.Store {
	case config.StoreInflux:
		store, err := influxstore.Connect(ctx, cfg.Influx, influxstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := natsstore.New(client,
			natsstore.WithLogger(logger),
			natsstore.WithInfoBucket(cfg.Bridge.InfoBucket),
			natsstore.WithStreamPrefix(cfg.Bridge.StreamPrefix),
		)
		return store, func() {}, nil
	}
}
