package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-research-cms/internal/auth"
	"go-research-cms/internal/cache"
	"go-research-cms/internal/config"
	"go-research-cms/internal/data"
	"go-research-cms/internal/handler"
	"go-research-cms/internal/images"
	"go-research-cms/internal/logger"
	"go-research-cms/internal/mailing"
	"go-research-cms/internal/middleware"
	"go-research-cms/internal/search"
	"go-research-cms/internal/service"
	"go-research-cms/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
	// --- Configuration Loading ---
	// A local .env file is optional; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		// Use fmt.Printf here because the logger is not yet initialized.
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Initialization ---
	log := logger.New(cfg.Log)

	// --- Database Initialization and Migration ---
	log.Info("Applying database migrations...")
	if err := data.ApplyMigrations(cfg.DB.DSN, "migrations"); err != nil {
		log.Fatal(err, "Failed to apply migrations")
	}
	log.Info("Migrations applied successfully.")

	log.Info("Connecting to the database...")
	db, err := data.NewDB(cfg.DB.DSN)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()
	log.Info("Database connection successful.")

	// --- Authorization Setup ---
	log.Info("Initializing authorization...")
	enforcer, err := auth.NewEnforcer("mysql", cfg.DB.DSN, cfg.Auth.ModelPath)
	if err != nil {
		log.Fatal(err, "Failed to initialize enforcer")
	}
	auth.SeedDefaultPolicies(enforcer, log)

	// --- Cache Initialization ---
	log.Info("Initializing SQLite cache...")
	feedCache, err := cache.New(cfg.Cache)
	if err != nil {
		log.Fatal(err, "Failed to initialize cache")
	}
	defer feedCache.Close()

	// --- Search Mirror ---
	var searchMirror service.SearchMirror
	var authorMirror service.AuthorSearchMirror
	var categoryMirror service.CategorySearchMirror
	if cfg.Search.Enabled {
		log.Info("Connecting to the search cluster...")
		indexer, err := search.NewIndexer(context.Background(), cfg.Search, log)
		if err != nil {
			log.Fatal(err, "Failed to initialize search indexer")
		}
		searchMirror = indexer
		authorMirror = indexer
		categoryMirror = indexer
	} else {
		log.Warn("Search mirroring disabled.")
	}

	// --- Mail Platform and SMTP ---
	var platform service.SubscriberPlatform
	if cfg.Mail.Platform.APIKey != "" {
		client, err := mailing.NewPlatformClient(cfg.Mail.Platform, log)
		if err != nil {
			log.Fatal(err, "Failed to initialize mail platform client")
		}
		platform = client
	} else {
		log.Warn("Mail platform sync disabled: no API key configured.")
	}
	smtpSender := mailing.NewSMTPSender(cfg.Mail.SMTP)

	// --- Dependency Injection and Handler Initialization ---
	articleRepository := data.NewSQLArticleRepository(db)
	categoryRepository := data.NewCategoryRepository(db)
	authorRepository := data.NewAuthorRepository(db)
	subscriberRepository := data.NewSubscriberRepository(db)
	newsletterRepository := data.NewNewsletterRepository(db)
	redirectRepository := data.NewRedirectRepository(db)

	articleService := service.NewArticleService(articleRepository, searchMirror, log)
	categoryService := service.NewCategoryService(categoryRepository, categoryMirror, log)
	authorService := service.NewAuthorService(authorRepository, authorMirror, log)
	subscriberService := service.NewSubscriberService(subscriberRepository, platform, log)
	newsletterService := service.NewNewsletterService(newsletterRepository, subscriberRepository, smtpSender, cfg.Site.BaseURL, log)

	redirects, err := redirectRepository.GetAll(context.Background())
	if err != nil {
		log.Fatal(err, "Failed to load legacy redirects")
	}

	router := handler.NewRouter(handler.RouterDeps{
		Articles:   handler.NewArticleHandler(articleService, log),
		Categories: handler.NewCategoryHandler(categoryService, log),
		Authors:    handler.NewAuthorHandler(authorService, articleService, log),
		Newsletter: handler.NewNewsletterHandler(subscriberService, newsletterService, log),
		Feeds:      handler.NewFeedHandler(articleService, feedCache, cfg.Site, log),
		Uploads:    handler.NewUploadHandler(images.NewUploader(cfg.Images), log),
		Redirects:  redirects,
		Authorizer: middleware.Authorizer(enforcer, cfg.Auth.APIKeys),
		Log:        log,
	})

	// --- Background Worker ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	sweeper := worker.NewSweeper(articleService, newsletterService, subscriberService, cfg.Jobs, log)
	sweeper.Start(workerCtx)

	// --- Server Initialization and Graceful Shutdown ---
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		if cfg.Server.TLS.Enabled {
			log.Info(fmt.Sprintf("Starting HTTPS server on %s", server.Addr))
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTPS server")
			}
		} else {
			log.Info(fmt.Sprintf("Starting HTTP server on %s", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTP server")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Warn("Shutting down server...")

	stopWorkers()
	sweeper.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal(err, "Server forced to shutdown")
	}
	log.Info("Server exiting")
}
