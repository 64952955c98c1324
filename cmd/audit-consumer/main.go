package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/storefront-auditor/internal/config"
	"github.com/maltedev/storefront-auditor/internal/events"
	"github.com/maltedev/storefront-auditor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	handler := printAudit
	if cfg.Notify.WebhookURL != "" {
		notifier := events.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout, cfg.Notify.MaxRetries, logger)
		handler = func(ctx context.Context, p *events.AuditCompletedPayload) error {
			if err := printAudit(ctx, p); err != nil {
				return err
			}
			return notifier.Notify(ctx, p)
		}
	}

	consumer := events.NewConsumer(rdb, events.ConsumerConfig{
		Stream:   cfg.Redis.Stream,
		Group:    cfg.Redis.ConsumerGroup,
		Consumer: cfg.Redis.ConsumerName,
	}, handler, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Consumer error: %v", err)
	}
}

// printAudit writes a short summary of a completed audit to stdout.
func printAudit(_ context.Context, p *events.AuditCompletedPayload) error {
	fmt.Printf("\nAudit %s completed for %s at %s\n", p.RunID, p.SellerURL, p.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Products: %d  Failed: %d  Images: %d  Mockups: %d\n",
		p.ProductCount, p.FailedCount, p.ImageCount, p.MockupCount)

	sizes := make([]string, 0, len(p.MissingSizes))
	for size := range p.MissingSizes {
		sizes = append(sizes, size)
	}
	sort.Strings(sizes)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Size", "Products Missing Size"})
	for _, size := range sizes {
		if err := table.Append([]string{size, strconv.Itoa(p.MissingSizes[size])}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
