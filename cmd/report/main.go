package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maltedev/storefront-auditor/internal/config"
	"github.com/maltedev/storefront-auditor/internal/export"
	"github.com/maltedev/storefront-auditor/internal/pipeline"
	"github.com/maltedev/storefront-auditor/internal/report"
	"github.com/maltedev/storefront-auditor/internal/sizes"
	"github.com/maltedev/storefront-auditor/internal/storage"
	"github.com/maltedev/storefront-auditor/pkg/logger"
)

func main() {
	var (
		input     = flag.String("input", "", "JSON dump to rebuild the report from (default REPORT_OUTPUT_DIR/REPORT_DUMP_FILE)")
		outputDir = flag.String("output", "", "Output directory (default REPORT_OUTPUT_DIR)")
		expected  = flag.String("sizes", "", "Comma-separated expected sizes (default EXPECTED_SIZES)")
		annotate  = flag.Bool("annotate", false, "Recompute mockups and missing sizes instead of using the stored values")
		detailed  = flag.Bool("detailed", false, "Also write the per-product detailed workbook")
		csvOut    = flag.Bool("csv", false, "Also write every report table as CSV")
		quiet     = flag.Bool("quiet", false, "Do not print the summary tables")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}
	if catalog := sizes.ParseCatalog(*expected); len(catalog) > 0 {
		cfg.Report.ExpectedSizes = catalog
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	base := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(base)
	logger := base.With("component", "report")

	path := *input
	if path == "" {
		path = cfg.Report.DumpPath()
	}

	dump := storage.NewDumpStorage(path)
	if !dump.Exists() {
		fmt.Printf("%s not found. Run the auditor first or pass -input.\n", path)
		os.Exit(1)
	}

	products, err := dump.Load()
	if err != nil {
		logger.Error("Failed to load products", "path", path, "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded products", "path", path, "count", len(products))

	if *annotate {
		annotator := pipeline.NewAnnotator(nil, cfg.Report.ExpectedSizes, 0)
		products, err = annotator.Reannotate(context.Background(), products)
		if err != nil {
			logger.Error("Failed to annotate products", "error", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(cfg.Report.OutputDir, 0o755); err != nil {
		logger.Error("Failed to create output directory", "error", err)
		os.Exit(1)
	}

	assembler := report.NewAssembler(cfg.Report.ExpectedSizes)
	rep := assembler.Build(products)
	if err := export.SaveWorkbook(rep, cfg.Report.ReportPath()); err != nil {
		logger.Error("Failed to write report", "error", err)
		os.Exit(1)
	}
	written := []string{cfg.Report.ReportPath()}

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

	stats := storage.Stats(products)
	logger.Info("Report written",
		"total", stats["total"],
		"with_mockups", stats["with_mockups"],
		"with_missing_sizes", stats["with_missing_sizes"],
		"without_images", stats["without_images"])

	if !*quiet {
		for _, name := range []string{report.SheetSummary, report.SheetMissingSizes, report.SheetSizeCoverage} {
			t, _ := rep.Table(name)
			fmt.Printf("\n%s\n", name)
			if err := export.PrintTable(os.Stdout, t); err != nil {
				fmt.Fprintf(os.Stderr, "failed to print %s: %v\n", name, err)
			}
		}
	}

	fmt.Println("\nFiles written:")
	for _, f := range written {
		fmt.Printf("  %s\n", f)
	}
}
