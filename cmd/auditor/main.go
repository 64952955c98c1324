package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/maltedev/storefront-auditor/internal/browser"
	"github.com/maltedev/storefront-auditor/internal/config"
	"github.com/maltedev/storefront-auditor/internal/export"
	"github.com/maltedev/storefront-auditor/internal/mockup"
	"github.com/maltedev/storefront-auditor/internal/parser"
	"github.com/maltedev/storefront-auditor/internal/pipeline"
	"github.com/maltedev/storefront-auditor/internal/ratelimit"
	"github.com/maltedev/storefront-auditor/internal/report"
	"github.com/maltedev/storefront-auditor/internal/scraper"
	"github.com/maltedev/storefront-auditor/internal/storage"
	"github.com/maltedev/storefront-auditor/pkg/logger"
)

func main() {
	var (
		sellerURL   = flag.String("url", "", "Seller storefront URL, e.g. https://www.trendyol.com/magaza/<shop>-m-<id>")
		force       = flag.Bool("force", false, "Audit the URL even if it does not look like a seller storefront")
		outputDir   = flag.String("output", "", "Output directory (default REPORT_OUTPUT_DIR)")
		maxProducts = flag.Int("max-products", 0, "Maximum number of products to audit (default SCRAPER_MAX_PRODUCTS)")
		headless    = flag.Bool("headless", true, "Run browser in headless mode")
		detailed    = flag.Bool("detailed", true, "Also write the per-product detailed workbook")
		csvOut      = flag.Bool("csv", false, "Also write every report table as CSV")
	)
	flag.Parse()

	if *sellerURL == "" && flag.NArg() > 0 {
		*sellerURL = flag.Arg(0)
	}
	if *sellerURL == "" {
		fmt.Println("No seller URL given. Use -url to specify the storefront to audit.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}
	if *maxProducts > 0 {
		cfg.Scraper.MaxProducts = *maxProducts
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	base := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(base)
	logger := base.With("component", "auditor")

	if !scraper.LooksLikeStorefront(*sellerURL) && !*force {
		fmt.Printf("%s does not look like a seller storefront URL. Re-run with -force to audit it anyway.\n", *sellerURL)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	b, err := browser.New(&browser.Options{
		Headless:         *headless && cfg.Browser.Headless,
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
		logger.Error("Failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	var limiter ratelimit.RateLimiter = ratelimit.NewHumanRateLimiter(cfg.Scraper.WaitMin, cfg.Scraper.WaitMax)
	if cfg.Scraper.Adaptive {
		limiter = ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.WaitMin, cfg.Scraper.WaitMax)
	}

	s := scraper.NewStorefrontScraper(b, parser.NewStorefrontParser(), limiter, scraper.Options{
		MaxPages:    cfg.Scraper.MaxPages,
		MaxProducts: cfg.Scraper.MaxProducts,
		MaxRetries:  cfg.Scraper.MaxRetries,
		Workers:     cfg.Scraper.Workers,
		Progress: func(done, total int) {
			fmt.Printf("\rScraping products: %d/%d", done, total)
			if done == total {
				fmt.Println()
			}
		},
	})

	logger.Info("Starting storefront audit", "url", *sellerURL, "max_products", cfg.Scraper.MaxProducts)
	start := time.Now()

	raws, err := s.Collect(ctx, *sellerURL)
	if err != nil {
		if errors.Is(err, scraper.ErrNoProductLinks) {
			fmt.Println("No products found. Check the URL.")
		}
		logger.Error("Collection failed", "error", err)
		os.Exit(1)
	}

	annotator := pipeline.NewAnnotator(mockup.NewDetector(), cfg.Report.ExpectedSizes, 0)
	products, err := annotator.Annotate(ctx, raws)
	if err != nil {
		logger.Error("Annotation failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Report.OutputDir, 0o755); err != nil {
		logger.Error("Failed to create output directory", "error", err)
		os.Exit(1)
	}

	dump := storage.NewDumpStorage(cfg.Report.DumpPath())
	if err := dump.Save(products); err != nil {
		logger.Error("Failed to save products", "error", err)
		os.Exit(1)
	}

	assembler := report.NewAssembler(cfg.Report.ExpectedSizes)
	rep := assembler.Build(products)
	if err := export.SaveWorkbook(rep, cfg.Report.ReportPath()); err != nil {
		logger.Error("Failed to write report", "error", err)
		os.Exit(1)
	}

	written := []string{dump.Path(), cfg.Report.ReportPath()}

	if *detailed {
		if err := export.SaveWorkbook(assembler.BuildDetailed(products), cfg.Report.DetailedReportPath()); err != nil {
			logger.Error("Failed to write detailed report", "error", err)
			os.Exit(1)
		}
		written = append(written, cfg.Report.DetailedReportPath())
	}

	if *csvOut {
		files, err := export.SaveCSVDir(rep, filepath.Join(cfg.Report.OutputDir, "csv"))
		if err != nil {
			logger.Error("Failed to write CSV tables", "error", err)
			os.Exit(1)
		}
		written = append(written, files...)
	}

	logger.Info("Audit completed",
		"products", len(products),
		"duration", time.Since(start).Round(time.Second))

	printSummary(rep, written)
}

func printSummary(rep *report.Report, written []string) {
	for _, name := range []string{report.SheetSummary, report.SheetMissingSizes} {
		t, ok := rep.Table(name)
		if !ok {
			continue
		}
		fmt.Printf("\n%s\n", name)
		if err := export.PrintTable(os.Stdout, t); err != nil {
			fmt.Fprintf(os.Stderr, "failed to print %s: %v\n", name, err)
		}
	}

	fmt.Println("\nFiles written:")
	for _, f := range written {
		fmt.Printf("  %s\n", f)
	}
}
