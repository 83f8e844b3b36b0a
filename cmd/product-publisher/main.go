package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lakewright/product-publisher/internal/catalog"
	"github.com/lakewright/product-publisher/internal/config"
	"github.com/lakewright/product-publisher/internal/contract"
	"github.com/lakewright/product-publisher/internal/history"
	"github.com/lakewright/product-publisher/internal/logging"
	"github.com/lakewright/product-publisher/internal/metrics"
	"github.com/lakewright/product-publisher/internal/publisher"
	"github.com/lakewright/product-publisher/internal/telemetry"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

func main() {
	cfg := config.MustLoad()
	logging.Setup(logging.Config(cfg.Logging))

	log := logging.Component("main")
	log.Info("product publisher starting", "version", Version, "git_sha", GitSHA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal, cancelling attempt", "signal", sig.String())
		cancel()
	}()

	var met *metrics.Metrics
	if cfg.Metrics.Enabled {
		met = metrics.Init("product_publisher")
		go func() {
			if err := metrics.Serve(metrics.Config(cfg.Metrics)); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	cat, exec, err := buildCatalog(cfg)
	if err != nil {
		log.Error("failed to create catalog client", "error", err)
		os.Exit(1)
	}

	hist := history.NewWriter(history.Config(cfg.History))
	defer hist.Close()

	emit := telemetry.NewEmitter(telemetry.Config(cfg.Telemetry))
	defer emit.Close()

	pub := publisher.New(publisher.Config{
		ContractSource: cfg.Contract.Source,
		ProjectRoot:    cfg.Contract.ProjectRoot,
		User:           cfg.Catalog.User,
		Parameter:      cfg.Contract.Parameter,
		RunTimeout:     cfg.Catalog.RunTimeout(),
	}, publisher.Deps{
		Loader:    contract.NewLoader(cfg.Contract.InputNamespace),
		Catalog:   cat,
		Executor:  exec,
		History:   hist,
		Telemetry: emit,
		Metrics:   met,
	})

	if interval := cfg.Schedule.Interval(); interval > 0 {
		runLoop(ctx, pub, interval)
		return
	}

	if !pub.Trigger(ctx) {
		log.Error("publish attempt did not merge")
		os.Exit(1)
	}

	log.Info("publish attempt merged cleanly")
}

// runLoop triggers attempts on an interval until the context is
// cancelled. Intended for local and dev runs; production uses an
// external scheduler and the run-once path.
func runLoop(ctx context.Context, pub *publisher.Publisher, interval time.Duration) {
	log := logging.Component("main")
	log.Info("triggering on an interval", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pub.Trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			pub.Trigger(ctx)
		}
	}
}

// buildCatalog wires the catalog client and executor for the configured
// mode. In http mode one client serves both roles.
func buildCatalog(cfg config.Config) (catalog.Client, catalog.Executor, error) {
	switch cfg.Catalog.Mode {
	case "local":
		local, err := catalog.NewLocalCatalog(cfg.Catalog.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	default:
		client := catalog.NewHTTPClient(catalog.HTTPConfig{
			Endpoint: cfg.Catalog.Endpoint,
			APIKey:   cfg.Catalog.APIKey,
			User:     cfg.Catalog.User,
		})
		return client, client, nil
	}
}
