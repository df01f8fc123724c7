// README: serve command; wires services, starts the HTTP server and background tickers.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httptransport "freshcart/internal/http"
	"freshcart/internal/infra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Firebase.ProjectID == "" {
			return errors.New("FRESH_FIREBASE_PROJECT_ID is required")
		}
		fb, err := infra.NewFirebase(ctx, cfg.Firebase)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, fb)
		if err != nil {
			return err
		}
		defer a.Close()

		nrApp, err := infra.NewNewRelic(cfg.NewRelic.AppName, cfg.NewRelic.LicenseKey)
		if err != nil {
			log.Printf("newrelic disabled: %v", err)
		}
		if nrApp != nil {
			defer nrApp.Shutdown(shutdownTimeout)
		}

		go func() {
			if err := a.evaluator.Run(ctx, a.stores.geofence); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("geofence: watcher stopped: %v", err)
			}
		}()
		if cfg.Partner.CleanupInterval > 0 {
			go a.partners.RunCleanupTicker(ctx, cfg.Partner.CleanupInterval)
		}
		if cfg.ETA.ServerRefresh {
			go a.tracking.RunRefresher(ctx, cfg.ETA.RefreshInterval)
		}

		server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
			Order:    a.orders,
			Partner:  a.partners,
			Location: a.tracking,
			Geofence: a.geofence,
			Routes:   a.routes,
			Matching: a.matching,
			Feed:     a.feedSub,
			Verifier: fb.Verifier,
			Redis:    a.redis,
			NewRelic: nrApp,
		})
		return server.Run(ctx)
	},
}
