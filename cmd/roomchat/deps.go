package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/roomchat/roomchat/internal/credential"
	"github.com/roomchat/roomchat/internal/directory"
	"github.com/roomchat/roomchat/internal/metrics"
)

// openCredentials picks the credential store: an explicit token wins, then
// Redis when configured, else an empty in-memory store.
func openCredentials() (credential.Store, func(), error) {
	if cfg.Token != "" {
		return credential.NewMemoryStore(cfg.Token), func() {}, nil
	}
	if cfg.RedisAddr == "" {
		return credential.NewMemoryStore(""), func() {}, nil
	}
	store, err := credential.NewRedisStore(cfg.RedisAddr, cfg.Profile)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("[credential] close failed")
		}
	}, nil
}

// openDirectory returns a directory client and the credential store it
// reads from.
func openDirectory() (*directory.Client, credential.Store, func(), error) {
	creds, closeCreds, err := openCredentials()
	if err != nil {
		return nil, nil, nil, err
	}
	return directory.NewClient(cfg.Directory, creds), creds, closeCreds, nil
}

// serveMetrics exposes /metrics until ctx is done. It is a no-op without a
// configured address.
func serveMetrics(ctx context.Context) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("[metrics] serving /metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("[metrics] listener stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
}
