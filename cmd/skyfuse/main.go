// SkyFuse daemon: polls the coarse traffic source, enriches the closest
// aircraft from the paid detail source, and serves fused snapshots over
// HTTP and WebSocket.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/skyfuse/skyfuse/internal/api"
	"github.com/skyfuse/skyfuse/internal/db"
	"github.com/skyfuse/skyfuse/internal/fusion"
	"github.com/skyfuse/skyfuse/pkg/aeroapi"
	"github.com/skyfuse/skyfuse/pkg/config"
	"github.com/skyfuse/skyfuse/pkg/geo"
	"github.com/skyfuse/skyfuse/pkg/opensky"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	flag.Parse()

	log.Println("===========================================")
	log.Println("  SkyFuse Aircraft Tracker")
	log.Println("===========================================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded from: %s", *configPath)
	log.Printf("Home: %.4f°, %.4f°", cfg.Home.Latitude, cfg.Home.Longitude)
	log.Printf("Tracking radius: %.0f km, poll interval: %s",
		cfg.Engine.RadiusKm, cfg.Engine.PollInterval())

	home := geo.Position{
		Latitude:  cfg.Home.Latitude,
		Longitude: cfg.Home.Longitude,
	}
	store := fusion.NewStore(home, cfg.Engine.ApproachToleranceDeg)

	// Coarse source
	coarseOpts := []opensky.ClientOption{}
	if cfg.OpenSky.ClientID != "" && cfg.OpenSky.ClientSecret != "" {
		coarseOpts = append(coarseOpts,
			opensky.WithClientCredentials(cfg.OpenSky.ClientID, cfg.OpenSky.ClientSecret))
		log.Println("✓ Coarse source: OpenSky (authenticated)")
	} else {
		log.Println("✓ Coarse source: OpenSky (anonymous, reduced rate limits)")
	}
	if cfg.OpenSky.BaseURL != "" {
		coarseOpts = append(coarseOpts, opensky.WithBaseURL(cfg.OpenSky.BaseURL))
	}
	coarse := opensky.NewClient(coarseOpts...)

	poller := fusion.NewPoller(coarse, store, fusion.PollerConfig{
		RadiusKm: cfg.Engine.RadiusKm,
		Interval: cfg.Engine.PollInterval(),
		Timeout:  cfg.Engine.PollTimeout(),
	}, log.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return poller.Run(gctx) })

	// Supplemental fetcher, optional
	var fetcher *fusion.Fetcher
	if cfg.AeroAPI.Enabled {
		if cfg.AeroAPI.APIKey == "" {
			log.Fatal("AeroAPI is enabled but no API key is configured (set SKYFUSE_AEROAPI_KEY)")
		}

		detail := aeroapi.NewClient(aeroapi.Config{
			APIKey:          cfg.AeroAPI.APIKey,
			RequestsPerHour: cfg.AeroAPI.RequestsPerHour,
			Timeout:         cfg.AeroAPI.FetchTimeout(),
			BaseURL:         cfg.AeroAPI.BaseURL,
		})

		var cache fusion.DetailCache
		if cfg.Cache.Enabled {
			database, err := db.Connect(cfg.Cache)
			if err != nil {
				log.Fatalf("Failed to connect to detail cache: %v", err)
			}
			defer database.Close()

			if err := database.InitSchema(ctx); err != nil {
				log.Fatalf("Failed to initialize cache schema: %v", err)
			}
			cache = db.NewDetailRepository(database, cfg.Cache.TTL())
			log.Printf("✓ Detail cache: postgres://%s:%d/%s (TTL %s)",
				cfg.Cache.Host, cfg.Cache.Port, cfg.Cache.Database, cfg.Cache.TTL())
		}

		fetcher = fusion.NewFetcher(detail, cache, store, fusion.FetcherConfig{
			Concurrency:     cfg.AeroAPI.Concurrency,
			ScanInterval:    cfg.Engine.PollInterval(),
			FetchTimeout:    cfg.AeroAPI.FetchTimeout(),
			FailureCooldown: cfg.AeroAPI.FailureCooldown(),
			QuotaBackoff:    cfg.AeroAPI.QuotaBackoff(),
		}, log.Default())

		g.Go(func() error { return fetcher.Run(gctx) })
		log.Printf("✓ Supplemental source: AeroAPI (%d req/h, %d workers)",
			cfg.AeroAPI.RequestsPerHour, cfg.AeroAPI.Concurrency)
	} else {
		log.Println("Supplemental enrichment disabled")
	}

	// HTTP surface, optional
	if cfg.Server.Enabled {
		var requester api.DetailRequester
		if fetcher != nil {
			requester = fetcher
		}
		server := api.NewServer(store, requester, api.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			PushInterval: cfg.Engine.PollInterval() / 10,
		}, log.Default())

		g.Go(func() error { return server.Run(gctx) })
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("===========================================")
	log.Println("  SkyFuse started, press Ctrl+C to stop")
	log.Println("===========================================")

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, shutting down...", sig)
		cancel()
	}()

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("Shutdown with error: %v", err)
	}
	log.Println("✓ SkyFuse stopped")
}
