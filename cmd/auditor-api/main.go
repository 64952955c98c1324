package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/storefront-auditor/internal/api"
	"github.com/maltedev/storefront-auditor/internal/browser"
	"github.com/maltedev/storefront-auditor/internal/config"
	"github.com/maltedev/storefront-auditor/internal/database"
	"github.com/maltedev/storefront-auditor/internal/events"
	"github.com/maltedev/storefront-auditor/internal/jobs"
	"github.com/maltedev/storefront-auditor/internal/mockup"
	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/parser"
	"github.com/maltedev/storefront-auditor/internal/pipeline"
	"github.com/maltedev/storefront-auditor/internal/ratelimit"
	"github.com/maltedev/storefront-auditor/internal/report"
	"github.com/maltedev/storefront-auditor/internal/scraper"
	"github.com/maltedev/storefront-auditor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := browser.New(&browser.Options{
		Headless:         cfg.Browser.Headless,
		Timeout:          cfg.Browser.Timeout,
		UserAgent:        cfg.Browser.UserAgent,
		ViewportWidth:    cfg.Browser.ViewportWidth,
		ViewportHeight:   cfg.Browser.ViewportHeight,
		AcceptLanguage:   cfg.Browser.AcceptLanguage,
		TimezoneID:       cfg.Browser.TimezoneID,
		Locale:           cfg.Browser.Locale,
		ProxyServer:      cfg.Browser.ProxyServer,
		MaxRetries:       cfg.Scraper.MaxRetries,
		SettleDelay:      time.Second,
		ConsentSelectors: browser.DefaultOptions().ConsentSelectors,
	})
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.WaitMin, cfg.Scraper.WaitMax)
	s := scraper.NewStorefrontScraper(b, parser.NewStorefrontParser(), limiter, scraper.Options{
		MaxPages:    cfg.Scraper.MaxPages,
		MaxProducts: cfg.Scraper.MaxProducts,
		MaxRetries:  cfg.Scraper.MaxRetries,
		Workers:     cfg.Scraper.Workers,
	})
	collect := func(ctx context.Context, sellerURL string, progress func(done, total int)) ([]models.RawProduct, error) {
		return s.WithProgress(progress).Collect(ctx, sellerURL)
	}

	detector := mockup.NewDetector()
	annotator := pipeline.NewAnnotator(detector, cfg.Report.ExpectedSizes, 0)
	assembler := report.NewAssembler(cfg.Report.ExpectedSizes)

	jobOpts := []jobs.Option{
		jobs.WithLogger(logger),
		jobs.WithMaxConcurrent(cfg.Server.MaxConcurrent),
		jobs.WithStream(cfg.Redis.Stream),
	}
	var handlerOpts []api.Option

	// Database connection (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}

		repo := database.NewAuditRepository(db)
		jobOpts = append(jobOpts, jobs.WithStore(repo))
		handlerOpts = append(handlerOpts, api.WithRuns(repo))
	}

	// Redis: the relay drains the outbox when a database is configured,
	// otherwise events are published directly.
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		if db != nil {
			relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
				PollInterval: 5 * time.Second,
				BatchSize:    100,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
			handlerOpts = append(handlerOpts, api.WithBacklog(relay))
		} else {
			jobOpts = append(jobOpts, jobs.WithPublisher(events.NewStreamPublisher(redisClient, cfg.Redis.Stream, logger)))
		}
	}

	jobManager := jobs.NewManager(collect, annotator, assembler, cfg.Report.ExpectedSizes, jobOpts...)

	handlers := api.NewHandlers(detector, annotator, assembler, jobManager, logger, handlerOpts...)
	router := api.NewRouter(handlers, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		if err := jobManager.Shutdown(shutdownCtx); err != nil {
			logger.Error("audit jobs did not stop in time", "error", err)
		}
		cancel()
	}()

	logger.Info("server starting", "addr", server.Addr, "database", db != nil, "redis", cfg.Redis.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped")
}
