package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/accounts"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/app"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/config"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/email"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/export"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/filestore"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/search"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/session"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/snapshots"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if strings.TrimSpace(cfg.TokenSecret) == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("generate token secret: %v", err)
		}
		cfg.TokenSecret = hex.EncodeToString(buf)
		log.Printf("B404_TOKEN_SECRET not set; using an ephemeral key, sessions will not survive restarts")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	snapService := snapshots.New(cfg.SnapshotsDir)
	accountService := accounts.NewService(dataStore)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgSearch(db))
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	var fileStore *filestore.MinioStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		fileStore, err = filestore.NewMinioStore(ctx, filestore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		log.Printf("File attachments stored in MinIO bucket %s", cfg.MinioBucket)
	} else {
		log.Printf("MINIO_ENDPOINT not set; file attachments disabled")
	}

	emailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	opts := app.Options{
		Search:   searchService,
		Snaps:    snapService,
		Exporter: export.NewService(),
		Emailer:  emailer,
		Files:    fileStore,
	}

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.New(cfg, dataStore, redisStore, accountService, opts)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		service = app.New(cfg, dataStore, dataStore, accountService, opts)
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("b404 API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
