// Command pipeline runs the daily warehouse reporting cycle: it requests
// the five source reports from the WMS API, downloads the finished
// extracts, runs the order summary, inventory summary and closing stock
// processors, and uploads the derived artifacts to S3.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"wmsreports/internal/config"
	"wmsreports/internal/dataprocessing"
	wmserrors "wmsreports/internal/errors"
	"wmsreports/internal/exporter"
	"wmsreports/internal/fetch"
	"wmsreports/internal/infrastructure"
	"wmsreports/internal/storage"
)

// reportPatterns match report listing names, case-insensitively, per
// report type.
var reportPatterns = map[string]string{
	fetch.ReportOrderSummary:   "order summary",
	fetch.ReportSalesReturn:    "sales return",
	fetch.ReportBatchInventory: "batch inventory",
	fetch.ReportOpenOrders:     "open order",
	fetch.ReportClosingStock:   "store inventory",
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	dateStr := flag.String("date", "", "report date as YYYY-MM-DD (defaults to yesterday)")
	upload := flag.Bool("upload", true, "upload artifacts to S3 (false writes them to -out)")
	outDir := flag.String("out", "data/reports", "local output directory used when -upload=false")
	wait := flag.Duration("wait", 30*time.Minute, "how long to wait for report generation")
	skip := flag.String("skip-processors", "", "comma-separated processors to skip: orders,inventory,closing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	// Reports cover the previous business day.
	day := time.Now().AddDate(0, 0, -1)
	if *dateStr != "" {
		day, err = time.Parse("2006-01-02", *dateStr)
		if err != nil {
			logger.Error("invalid -date", slog.String("value", *dateStr), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	ctx, runID := infrastructure.NewRunContext(context.Background())
	logger.InfoContext(ctx, "starting pipeline run",
		slog.String("run_id", runID),
		slog.String("report_date", day.Format("2006-01-02")),
		slog.Bool("upload", *upload))

	p := &pipeline{
		cfg:    cfg,
		logger: logger,
		day:    day,
		upload: *upload,
		outDir: *outDir,
		skip:   skipSet(*skip),
	}

	if p.upload {
		p.store, err = storage.New(ctx, cfg.Storage, logger)
		if err != nil {
			logger.ErrorContext(ctx, "failed to initialize storage", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	extracts, err := p.fetchExtracts(ctx, *wait)
	if err != nil {
		logger.ErrorContext(ctx, "fetch stage failed", slog.String("error", err.Error()))
		os.Exit(2)
	}

	if err := p.runProcessors(ctx, extracts); err != nil {
		logger.ErrorContext(ctx, "processing stage failed", slog.String("error", err.Error()))
		var schemaErr *wmserrors.SchemaError
		if errors.As(err, &schemaErr) {
			os.Exit(3)
		}
		os.Exit(4)
	}

	logger.InfoContext(ctx, "pipeline run complete", slog.String("run_id", runID))
}

// pipeline holds the run-scoped dependencies and settings.
type pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.Store
	day    time.Time
	upload bool
	outDir string
	skip   map[string]bool
}

// extracts bundles the five downloaded source tables.
type extracts struct {
	orders       dataprocessing.Table
	salesReturns dataprocessing.Table
	inventory    dataprocessing.Table
	openOrders   dataprocessing.Table
	closingStock dataprocessing.Table
}

// fetchExtracts requests generation of all five reports and downloads them
// concurrently. Each download polls the listing under its own deadline.
func (p *pipeline) fetchExtracts(ctx context.Context, wait time.Duration) (*extracts, error) {
	client := fetch.NewClient(ctx, p.cfg.API, p.logger)

	var out extracts
	targets := []struct {
		reportType string
		dest       *dataprocessing.Table
	}{
		{fetch.ReportOrderSummary, &out.orders},
		{fetch.ReportSalesReturn, &out.salesReturns},
		{fetch.ReportBatchInventory, &out.inventory},
		{fetch.ReportOpenOrders, &out.openOrders},
		{fetch.ReportClosingStock, &out.closingStock},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			if err := client.GenerateReport(gctx, target.reportType, p.day); err != nil {
				return err
			}
			pollCtx, cancel := context.WithTimeout(gctx, wait)
			defer cancel()
			table, err := client.DownloadLatestCompleted(pollCtx, reportPatterns[target.reportType])
			if err != nil {
				return fmt.Errorf("download %s: %w", target.reportType, err)
			}
			p.logger.InfoContext(gctx, "extract downloaded",
				slog.String("report_type", target.reportType),
				slog.Int("rows", table.Len()))
			*target.dest = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wmserrors.NewStageError("fetch", wmserrors.CodeFetchFailed, "report download failed", err)
	}

	if err := p.archiveRaw(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// archiveRaw stores the unprocessed extracts so a failed run can be
// replayed without hitting the report API again.
func (p *pipeline) archiveRaw(ctx context.Context, e *extracts) error {
	raws := []struct {
		prefix   string
		basename string
		table    dataprocessing.Table
	}{
		{p.cfg.Storage.OrderRawPrefix, "order_summary", e.orders},
		{p.cfg.Storage.OrderRawPrefix, "sales_return", e.salesReturns},
		{p.cfg.Storage.InventoryRawPrefix, "batch_inventory", e.inventory},
		{p.cfg.Storage.InventoryRawPrefix, "open_orders", e.openOrders},
		{p.cfg.Storage.ClosingRawPrefix, "closing_stock", e.closingStock},
	}
	for _, raw := range raws {
		artifact, err := exporter.CSVArtifact("raw", raw.basename, p.day, raw.table)
		if err != nil {
			return err
		}
		if err := p.persist(ctx, raw.prefix, artifact); err != nil {
			return wmserrors.NewStageError("archive", wmserrors.CodeStorageFailed, "raw extract archive failed", err)
		}
	}
	return nil
}

// runProcessors executes the three processors in order. Each processor is
// independent: a failure in one does not stop the others, but any failure
// fails the run.
func (p *pipeline) runProcessors(ctx context.Context, e *extracts) error {
	var errs []error

	if !p.skip["orders"] {
		if err := p.runOrders(ctx, e); err != nil {
			errs = append(errs, wmserrors.NewStageError("order_summary", wmserrors.CodeStageFailed, "processor failed", err))
		}
	}
	if !p.skip["inventory"] {
		if err := p.runInventory(ctx, e); err != nil {
			errs = append(errs, wmserrors.NewStageError("inventory_summary", wmserrors.CodeStageFailed, "processor failed", err))
		}
	}
	if !p.skip["closing"] {
		if err := p.runClosingStock(ctx, e); err != nil {
			errs = append(errs, wmserrors.NewStageError("closing_stock", wmserrors.CodeStageFailed, "processor failed", err))
		}
	}

	return errors.Join(errs...)
}

func (p *pipeline) runOrders(ctx context.Context, e *extracts) error {
	processor, err := dataprocessing.NewOrderSummaryProcessor(p.logger, dataprocessing.OrderConfig{
		WarehousePattern:   p.cfg.Processing.WarehousePattern,
		ExcludedCategories: p.cfg.Processing.ExcludedCategories,
		RegionMapping:      regionMapping(p.cfg.Processing.RegionMapping),
		NumericPolicy:      numericPolicy(p.cfg.Processing.NumericPolicy),
	})
	if err != nil {
		return err
	}

	existing := p.loadMTDWorkbook(ctx)

	result, err := processor.ProcessCompletePipeline(e.orders, e.salesReturns, p.day, existing)
	if err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "order summary processed",
		slog.Int("complete_rows", result.Complete.Len()),
		slog.Int("up_rows", result.UP.Len()),
		slog.Int("hr_rows", result.HR.Len()),
		slog.Int("skipped", result.Skipped),
		slog.Int("unmatched_returns", result.UnmatchedReturns),
		slog.Int("region_unmapped", result.RegionUnmapped),
		slog.Int("warnings", len(result.Warnings)))

	outputs := []struct {
		key      string
		basename string
		table    dataprocessing.Table
	}{
		{"complete", "complete_sales", result.Complete},
		{"up", "up_sales", result.UP},
		{"hr", "hr_sales", result.HR},
	}
	for _, output := range outputs {
		artifact, err := exporter.CSVArtifact(output.key, output.basename, p.day, output.table)
		if err != nil {
			return err
		}
		if err := p.persist(ctx, p.cfg.Storage.OrderOutputPrefix, artifact); err != nil {
			return err
		}
	}

	workbook := exporter.WorkbookArtifact("mtd", p.day, result.MTDWorkbook)
	return p.persist(ctx, p.cfg.Storage.OrderMTDPrefix, workbook)
}

// loadMTDWorkbook fetches the month's workbook if one exists. A missing
// workbook is normal on the first run of a month.
func (p *pipeline) loadMTDWorkbook(ctx context.Context) []byte {
	name := exporter.MTDWorkbookName(p.day)

	if !p.upload {
		data, err := os.ReadFile(filepath.Join(p.outDir, name))
		if err != nil {
			return nil
		}
		return data
	}

	key := storage.JoinKey(p.cfg.Storage.OrderMTDPrefix, name)
	data, err := p.store.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.logger.InfoContext(ctx, "no existing MTD workbook, starting fresh",
				slog.String("key", key))
		} else {
			p.logger.WarnContext(ctx, "failed to load MTD workbook, starting fresh",
				slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil
	}
	return data
}

func (p *pipeline) runInventory(ctx context.Context, e *extracts) error {
	processor := dataprocessing.NewInventorySummaryProcessor(p.logger, dataprocessing.InventoryConfig{
		ExcludedCategories:    p.cfg.Processing.ExcludedCategories,
		ExcludedZoneKeywords:  p.cfg.Processing.ExcludedZoneKeywords,
		PriceRule:             dataprocessing.PriceRuleFirst,
		ClampNegativeFinalQty: p.cfg.Processing.ClampNegativeFinalQty,
		NumericPolicy:         numericPolicy(p.cfg.Processing.NumericPolicy),
	})

	result, err := processor.ProcessCompletePipeline(e.inventory, e.openOrders)
	if err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "inventory summary processed",
		slog.Int("sku_count", result.SKUCount),
		slog.Int("skipped", result.Skipped),
		slog.Int("missing_price", result.MissingPrice))

	artifact, err := exporter.CSVArtifact("summary", "inventory_summary", p.day, result.Summary)
	if err != nil {
		return err
	}
	return p.persist(ctx, p.cfg.Storage.InventoryOutPrefix, artifact)
}

func (p *pipeline) runClosingStock(ctx context.Context, e *extracts) error {
	processor, err := dataprocessing.NewClosingStockProcessor(p.logger, dataprocessing.ClosingStockConfig{
		WarehousePattern:     p.cfg.Processing.WarehousePattern,
		ExcludedCategories:   p.cfg.Processing.ExcludedCategories,
		ExcludedZoneKeywords: p.cfg.Processing.ExcludedZoneKeywords,
		AllowedCategories:    p.cfg.Processing.AllowedCategories,
		AllowedZones:         p.cfg.Processing.AllowedZones,
		RegionMapping:        regionMapping(p.cfg.Processing.RegionMapping),
		NumericPolicy:        numericPolicy(p.cfg.Processing.NumericPolicy),
	})
	if err != nil {
		return err
	}

	result, err := processor.ProcessCompletePipeline(e.closingStock)
	if err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "closing stock processed",
		slog.Int("rows", result.Filtered.Table.Len()),
		slog.Float64("grand_total", result.Filtered.GrandTotal),
		slog.Float64("up_total", result.UP.GrandTotal),
		slog.Float64("hr_total", result.HR.GrandTotal),
		slog.Int("skipped", result.Skipped),
		slog.Int("filtered_out", result.FilteredOut),
		slog.Int("region_unmapped", result.RegionUnmapped))

	outputs := []struct {
		key      string
		basename string
		table    dataprocessing.Table
	}{
		{"filtered", "closing_stock", result.Filtered.Table},
		{"up", "closing_stock_up", result.UP.Table},
		{"hr", "closing_stock_hr", result.HR.Table},
	}
	for _, output := range outputs {
		artifact, err := exporter.CSVArtifact(output.key, output.basename, p.day, output.table)
		if err != nil {
			return err
		}
		if err := p.persist(ctx, p.cfg.Storage.ClosingOutputPrefix, artifact); err != nil {
			return err
		}
	}
	return nil
}

// persist uploads an artifact, or writes it under the local output
// directory when uploading is disabled.
func (p *pipeline) persist(ctx context.Context, prefix string, artifact exporter.Artifact) error {
	if p.upload {
		return p.store.PutArtifact(ctx, prefix, p.day, artifact)
	}

	if err := os.MkdirAll(p.outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(p.outDir, artifact.Filename)
	if err := os.WriteFile(path, artifact.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	p.logger.InfoContext(ctx, "artifact written",
		slog.String("path", path),
		slog.Int("bytes", len(artifact.Data)))
	return nil
}

func skipSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
			set[name] = true
		}
	}
	return set
}

func numericPolicy(s string) dataprocessing.NumericPolicy {
	if strings.EqualFold(s, "drop") {
		return dataprocessing.NumericDropRow
	}
	return dataprocessing.NumericZero
}

func regionMapping(m map[string]string) dataprocessing.RegionMapping {
	mapping := make(dataprocessing.RegionMapping, len(m))
	for code, region := range m {
		mapping[strings.ToUpper(code)] = dataprocessing.Region(strings.ToUpper(region))
	}
	return mapping
}
