package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"smartair-guardian/internal/api"
	"smartair-guardian/internal/cfg"
	"smartair-guardian/internal/ingest"
	"smartair-guardian/internal/metrics"
	"smartair-guardian/internal/ml"
	"smartair-guardian/internal/readings"
	"smartair-guardian/internal/storage"
	"smartair-guardian/internal/stream"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if level, err := zerolog.ParseLevel(c.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	registry := ml.NewRegistry(ml.DirLoader(c.ModelsDir), mw)
	loadModels(ctx, registry, c)
	engine := ml.NewEngine(registry, ml.EngineConfig{CacheTTL: c.PredictionCacheTTL}, mw)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	hub := stream.NewHub(mw)
	defer hub.Close()

	recent := readings.New(c.ReadingsCapacity)
	svc := ingest.NewService(engine, recent, ingest.WithMetrics(mw), ingest.WithBroadcaster(hub))

	subscriber := startMQTTSubscriber(ctx, c, svc, mw)
	if subscriber != nil {
		defer subscriber.Stop()
	}

	opts := []api.Option{api.WithStream(hub), api.WithMetrics(mw)}
	if store != nil {
		opts = append(opts, api.WithRunHistory(store))
	}
	server := api.New(api.Config{DefaultLimit: c.ReadingsLimit}, svc, recent, registry, opts...)

	var wg sync.WaitGroup
	startHTTPServer(ctx, &wg, "api", c.HTTPPort, server, cancel)
	startHTTPServer(ctx, &wg, "metrics", c.MetricsPort, metricsHandler(), cancel)

	log.Info().
		Int("http_port", c.HTTPPort).
		Int("metrics_port", c.MetricsPort).
		Str("models_dir", c.ModelsDir).
		Bool("mqtt", subscriber != nil).
		Msg("SmartAir Guardian started")

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, &wg)
	log.Info().Int("readings", recent.Count()).Float64("reject_rate", m.GetErrorRate()).Msg("SmartAir Guardian stopped")
}

// loadModels performs the eager startup load. Without lazy loading a failure is fatal.
func loadModels(ctx context.Context, registry *ml.Registry, c cfg.Settings) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := registry.Models(loadCtx); err != nil {
		if !c.LazyModelLoad {
			log.Fatal().Err(err).Str("models_dir", c.ModelsDir).Msg("model load failed, run cmd/train first")
		}
		log.Warn().Err(err).Str("models_dir", c.ModelsDir).Msg("models unavailable, serving 503 until artifacts appear")
	}
}

// initializeStorage opens training history if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without training history")
			return nil
		}
		return store
	}
	return nil
}

func startMQTTSubscriber(ctx context.Context, c cfg.Settings, svc *ingest.Service, mw *metrics.MetricsWrapper) *ingest.Subscriber {
	if !c.MQTTEnabled() {
		return nil
	}
	sub := ingest.NewSubscriber(ingest.MQTTConfig{
		Broker:   c.MQTT.Broker,
		Topic:    c.MQTT.Topic,
		ClientID: c.MQTT.ClientID,
	}, svc, mw)
	if err := sub.Start(ctx); err != nil {
		log.Error().Err(err).Msg("MQTT ingestion disabled")
		return nil
	}
	return sub
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// startHTTPServer serves handler on port until ctx is cancelled. A listen failure cancels ctx.
func startHTTPServer(ctx context.Context, wg *sync.WaitGroup, name string, port int, handler http.Handler, cancel context.CancelFunc) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("server", name).Msg("failed to shutdown server")
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("server", name).Msg("server failed")
			cancel()
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all servers stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
