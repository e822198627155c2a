// Package main is the gateway's entry point: load configuration, wire the
// identity store, token pool, retry dispatcher and upstream client, start
// the background refresh/quota schedulers and the config file watcher, and
// serve the gin router until a shutdown signal arrives. Grounded on the
// teacher's cmd/server/main.go flag-parsing and graceful-shutdown idiom,
// reduced to this gateway's single antigravity provider (no multi-provider
// login flows, no TUI, no git/object/postgres token-store auto-detection
// beyond what SPEC_FULL's Config.IdentityStore/UsageSink drivers name).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/antigravity-proxy/gatewaycore/internal/api"
	"github.com/antigravity-proxy/gatewaycore/internal/config"
	"github.com/antigravity-proxy/gatewaycore/internal/dispatch"
	"github.com/antigravity-proxy/gatewaycore/internal/identity"
	"github.com/antigravity-proxy/gatewaycore/internal/logging"
	"github.com/antigravity-proxy/gatewaycore/internal/oauthclient"
	"github.com/antigravity-proxy/gatewaycore/internal/tokenpool"
	"github.com/antigravity-proxy/gatewaycore/internal/upstream"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const shutdownGrace = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	store, err := buildIdentityStore(cfg.IdentityStore)
	if err != nil {
		log.WithError(err).Fatal("identity store init failed")
	}

	usageSink, err := buildUsageSink(cfg.UsageSink)
	if err != nil {
		log.WithError(err).Fatal("usage sink init failed")
	}

	upstreamClient := upstream.New()
	oauthAPI := oauthclient.New(&http.Client{Timeout: 30 * time.Second})
	pool := tokenpool.New(store, oauthAPI, upstreamClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := pool.Load(ctx)
	if err != nil {
		log.WithError(err).Fatal("loading identities failed")
	}
	log.WithField("count", n).Info("identity pool loaded")

	go pool.RunRefreshScheduler(ctx)
	go pool.RunQuotaScheduler(ctx)

	watcher, err := config.NewWatcher(configPath, cfg, func(reloaded *config.Config) {
		log.Info("config hot-reloaded")
	})
	if err != nil {
		log.WithError(err).Warn("config watcher not started; api-keys/model-aliases require a restart to change")
	} else {
		defer watcher.Close()
	}

	dispatcher := dispatch.New(pool)
	server := api.New(cfg, dispatcher, upstreamClient, usageSink)
	router := api.NewRouter(server)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}

	go func() {
		log.WithField("addr", cfg.Listen).Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received, draining in-flight requests")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown did not complete cleanly")
	}
	cancel()

	if closer, ok := usageSink.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func buildIdentityStore(cfg config.IdentityStoreConfig) (identity.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return identity.NewPostgresStore(context.Background(), cfg.DSN)
	default:
		return identity.NewFileStore(cfg.BaseDir)
	}
}

func buildUsageSink(cfg config.UsageSinkConfig) (identity.UsageSink, error) {
	switch cfg.Driver {
	case "object":
		minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return identity.NewObjectUsageSink(minioClient, cfg.Bucket, cfg.Prefix), nil
	default:
		return identity.NewFileUsageSink(cfg.Path, 100), nil
	}
}
