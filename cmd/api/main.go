package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"freedesk/services/support/internal/ai"
	"freedesk/services/support/internal/analytics"
	"freedesk/services/support/internal/api"
	"freedesk/services/support/internal/config"
	"freedesk/services/support/internal/exports"
	"freedesk/services/support/internal/hub"
	"freedesk/services/support/internal/queue"
	"freedesk/services/support/internal/smartreply"
	"freedesk/services/support/internal/store"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()

	var ticketStore store.Store
	if cfg.DatabaseURL != "" {
		db, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		ticketStore = db
	} else {
		log.Printf("no DATABASE_URL configured, using in-memory ticket store")
		ticketStore = store.NewMemory()
	}
	defer ticketStore.Close()

	var producer queue.Producer = queue.NewNoopProducer()
	if cfg.RedisAddr != "" {
		redisProducer, err := queue.NewRedisProducer(cfg.RedisAddr, cfg.RetentionAlertStream)
		if err != nil {
			log.Printf("retention alert stream unavailable (%v), continuing with noop producer", err)
		} else {
			producer = redisProducer
		}
	}
	defer producer.Close()

	var archive exports.Archive = exports.NewNoopArchive()
	if cfg.S3ExportBucket != "" {
		s3Archive, err := exports.NewS3Archive(
			ctx, cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3ExportBucket,
		)
		if err != nil {
			log.Printf("export archive unavailable (%v), continuing with noop archive", err)
		} else {
			if cfg.ExportRetentionDays > 0 {
				if err := s3Archive.EnsureLifecyclePolicy(ctx, cfg.ExportRetentionDays, "exports/"); err != nil {
					log.Printf("export lifecycle policy not applied: %v", err)
				}
			}
			archive = s3Archive
		}
	}
	defer archive.Close()

	chat, analyzerClient := newChatClients(cfg)

	eventHub := hub.New()
	handler := api.NewHandler(
		ticketStore,
		chat,
		analytics.NewAnalyzer(analyzerClient),
		smartreply.NewMatcher(),
		eventHub,
		producer,
		archive,
		cfg.CORSAllowedOrigins,
		cfg.AgentAPIKey,
		cfg.TicketsPerHour,
		cfg.MessagesPerMinute,
	)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startMaintenanceLoops(
		shutdownCtx,
		ticketStore,
		eventHub,
		time.Duration(cfg.AutoCloseIntervalMinutes)*time.Minute,
		cfg.AutoCloseIdleDays,
	)

	go func() {
		log.Printf("support api listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxTimeout); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// newChatClients wires the upstream AI client when an API key is present.
// Both returns stay nil otherwise, and the handler degrades to the
// fallback copy the same way the noop producer and archive do.
func newChatClients(cfg config.Config) (api.ChatClient, analytics.ChatClient) {
	if cfg.MistralAPIKey == "" {
		log.Printf("no MISTRAL_API_KEY configured, automated replies degrade to the fallback copy")
		return nil, nil
	}
	client, err := ai.NewClient(ai.Config{
		APIURL:           cfg.MistralAPIURL,
		APIKey:           cfg.MistralAPIKey,
		DefaultModel:     cfg.MistralModel,
		FallbackModels:   cfg.MistralFallbackModels,
		MaxConcurrency:   int64(cfg.AIMaxConcurrency),
		MaxRetries:       cfg.AIMaxRetries,
		BackoffBase:      cfg.AIBackoffBase,
		FailureThreshold: cfg.AIFailureThreshold,
		RecoveryWindow:   cfg.AIRecoveryWindow,
	})
	if err != nil {
		log.Printf("ai client unavailable (%v), automated replies degrade to the fallback copy", err)
		return nil, nil
	}
	return client, client
}
