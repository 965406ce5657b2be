package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/api"
	"crosspromo-engine/internal/config"
	"crosspromo-engine/internal/freshness"
	"crosspromo-engine/internal/icons"
	"crosspromo-engine/internal/scheduler"
	"crosspromo-engine/internal/source"
	"crosspromo-engine/internal/store"
	"crosspromo-engine/internal/storefront"
	"crosspromo-engine/internal/verify"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storefront access
	catalog, err := storefront.LoadCatalog(cfg.Storefront.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load storefront catalog")
	}
	client := storefront.NewClient(cfg.IconTimeout(), cfg.IconMinInterval())

	// Persistence
	files := store.New(cfg.BackupPath())
	records := verify.NewRecordStore(cfg.VerificationPath())

	// Services
	fresh := freshness.New()
	iconSvc := icons.NewService(icons.Config{
		Dir:        cfg.IconDir(),
		FetchDelay: cfg.IconFetchDelay(),
	}, client, catalog)

	resolver := source.NewResolver(source.Config{
		APIBaseURL: cfg.API.BaseURL,
		ProjectID:  cfg.API.ProjectID,
		Token:      cfg.API.Token,
		Timeout:    cfg.APITimeout(),
	}, files, iconSvc, fresh)

	verifier := verify.NewService(verify.Config{
		Debounce:     cfg.VerifyDebounce(),
		CheckTimeout: cfg.VerifyTimeout(),
	}, verify.NewStoreChecker(client, catalog), records)
	defer verifier.Close()
	verifier.OnNameHarvest = resolver.SetCampaignNameIfEmpty
	iconSvc.ArtworkHint = verifier.ArtworkURL

	// Snapshot bootstrap: persisted backup first, then a best-effort
	// initial sync. Startup succeeds either way; the scheduler keeps
	// retrying.
	if resolver.Bootstrap() {
		log.Info().Msg("restored campaign snapshot from backup")
	}
	if _, err := resolver.Sync(rootCtx); err != nil {
		log.Warn().Err(err).Msg("initial sync failed; serving cached data if any")
	}

	// HTTP
	kick := make(chan struct{}, 1)
	h := api.NewHandler(resolver, verifier, iconSvc, fresh)
	h.SyncKick = kick
	r := api.Router(h)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Periodic re-sync
	go scheduler.Run(rootCtx, resolver, scheduler.Config{
		Interval: cfg.SyncInterval(),
		Backoff:  cfg.SyncBackoff(),
		Debounce: cfg.SyncDebounce(),
	}, kick)

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
