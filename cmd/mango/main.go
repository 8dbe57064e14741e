package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"mango/internal/app"
	"mango/internal/authpw"
	"mango/internal/cache"
	"mango/internal/config"
	"mango/internal/email"
	"mango/internal/export"
	"mango/internal/moderation"
	"mango/internal/reaper"
	"mango/internal/search"
	"mango/internal/session"
	"mango/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	users := store.NewUserStore(db)

	// Moderation core plus one workflow per entity kind.
	core := moderation.NewCore(db)
	orgWF := moderation.NewWorkflow(core, store.Orgs)
	eventWF := moderation.NewWorkflow(core, store.Events)
	addressWF := moderation.NewWorkflow(core, store.Addresses)
	contactWF := moderation.NewWorkflow(core, store.Contacts)
	noteWF := moderation.NewWorkflow(core, store.Notes)
	tagWF := moderation.NewWorkflow(core, store.Tags)
	for _, kind := range store.AllLinkKinds {
		core.RegisterLink(store.NewLinkStore(kind))
	}

	// Redis backs both the refresh sessions and the entity cache. Without
	// it sessions fall back to Postgres and the cache is skipped.
	var service *app.Service

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url invalid: %v", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("WARNING: redis unreachable, falling back to postgres sessions: %v", err)
			redisClient = nil
		}
	}

	if redisClient != nil {
		log.Printf("Using Redis for refresh sessions and the entity cache")
		defer redisClient.Close()
		service = app.New(cfg, db, users, session.NewRedisStoreWithClient(redisClient), core)
		entityCache := cache.NewRedisWithClient(redisClient)
		service.SetCache(entityCache)
		core.RegisterHook(entityCache)
	} else {
		log.Printf("Using PostgreSQL for refresh sessions")
		service = app.New(cfg, db, users, app.PGSessionStore{Users: users}, core)
	}

	app.RegisterEntity(service, orgWF)
	app.RegisterEntity(service, eventWF)
	app.RegisterEntity(service, addressWF)
	app.RegisterEntity(service, contactWF)
	app.RegisterEntity(service, noteWF)
	app.RegisterEntity(service, tagWF)

	service.SetPasswordAuth(authpw.NewService(users))

	// Search: Meilisearch when configured, Postgres FTS as fallback.
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	service.SetSearch(searchService)
	core.RegisterHook(search.NewLiveHook(db, searchService))
	go searchService.ReindexAllFromPG(ctx)

	// Email notifications.
	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	service.SetMailer(mail)

	// Public data dumps to object storage.
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		uploader, err := export.NewMinioUploader(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: object store unavailable, dumps disabled: %v", err)
		} else {
			service.SetExporter(export.NewService(export.NewStoreLoader(db), uploader))
		}
	}

	// Background sweep of stale anonymous accounts.
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go reaper.New(users, cfg.ReaperMaxAge, cfg.ReaperInterval).Run(reaperCtx)

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
		log.Printf("Mango API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopReaper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
