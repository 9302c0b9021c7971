// Package fetch talks to the WMS report API: it authenticates with client
// credentials, requests report generation, polls for completion and
// downloads the finished CSV extracts as tables.
package fetch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"wmsreports/internal/config"
	"wmsreports/internal/dataprocessing"
)

// Report types the pipeline requests. Keys into the configured endpoint
// map.
const (
	ReportOrderSummary   = "order_summary"
	ReportSalesReturn    = "sales_return"
	ReportBatchInventory = "batch_inventory"
	ReportOpenOrders     = "open_order_summary"
	ReportClosingStock   = "closing_stock"
)

// orderSummaryColumns is the column selection sent with order summary
// generation requests. The report service emits only what is asked for.
var orderSummaryColumns = []string{
	"OrderStatus", "Order Reference", "Order Date",
	"SKU Desc", "SKU Code", "SKU Category", "SKU Sub Category",
	"Invoice Number", "Invoice_quantity", "InvoiceAmount",
	"UnfulfilledQuantity", "Unit Price", "Mrp", "Discount",
}

// ReportInfo is one entry of the report listing.
type ReportInfo struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url"`
}

// Client is the WMS report API client. All calls reuse one authenticated
// HTTP client; polling is rate limited.
type Client struct {
	http      *http.Client
	baseURL   string
	reports   string
	endpoints map[string]string
	warehouse string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient builds a client from cfg. The returned client owns token
// refresh; callers never see credentials.
func NewClient(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + cfg.AuthEndpoint,
	}
	httpClient := cc.Client(ctx)
	httpClient.Transport = &warehouseTransport{
		base:      httpClient.Transport,
		warehouse: cfg.Warehouse,
	}
	httpClient.Timeout = 5 * time.Minute

	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		reports:   cfg.ReportsPath,
		endpoints: cfg.Endpoints,
		warehouse: cfg.Warehouse,
		limiter:   rate.NewLimiter(rate.Limit(cfg.PollRPS), 1),
		logger:    logger,
	}
}

// warehouseTransport stamps the session warehouse header onto every
// request, as the report service requires.
type warehouseTransport struct {
	base      http.RoundTripper
	warehouse string
}

func (t *warehouseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("warehouse", t.warehouse)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// GenerateReport asks the service to build a report covering fromDate.
// Order summary requests carry their column and warehouse selection as
// query parameters; the other report types take a JSON body.
func (c *Client) GenerateReport(ctx context.Context, reportType string, fromDate time.Time) error {
	endpoint, ok := c.endpoints[reportType]
	if !ok {
		return fmt.Errorf("report type %q has no configured endpoint", reportType)
	}

	c.logger.InfoContext(ctx, "requesting report generation",
		slog.String("report_type", reportType),
		slog.String("from_date", fromDate.Format("2006-01-02")))

	var req *http.Request
	var err error
	if reportType == ReportOrderSummary {
		params := url.Values{}
		params.Set("id", "100")
		params.Set("From Date", fromDate.Format("2006-01-02"))
		for _, col := range orderSummaryColumns {
			params.Add("columns", col)
		}
		for _, wh := range config.ReportWarehouses() {
			params.Add("Warehouse", wh)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+endpoint+"?"+params.Encode(), nil)
	} else {
		body := fmt.Sprintf(`{"From Date":%q}`, fromDate.Format("2006-01-02"))
		req, err = http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+endpoint, strings.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("build %s request: %w", reportType, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("generate %s: %w", reportType, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("generate %s: unexpected status %s", reportType, resp.Status)
	}
	return nil
}

// ListReports fetches the available-report listing.
func (c *Client) ListReports(ctx context.Context) ([]ReportInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.reports, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list reports: unexpected status %s", resp.Status)
	}

	var payload struct {
		Reports []ReportInfo `json:"reports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode report listing: %w", err)
	}
	return payload.Reports, nil
}

// DownloadLatestCompleted polls the listing until a completed report whose
// name contains namePattern appears, then downloads and decodes it. The
// deadline comes from ctx; polls are rate limited.
func (c *Client) DownloadLatestCompleted(ctx context.Context, namePattern string) (dataprocessing.Table, error) {
	pattern := strings.ToLower(namePattern)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return dataprocessing.Table{}, fmt.Errorf("poll for %s: %w", namePattern, err)
		}

		reports, err := c.ListReports(ctx)
		if err != nil {
			return dataprocessing.Table{}, err
		}
		for _, report := range reports {
			if !strings.Contains(strings.ToLower(report.Name), pattern) {
				continue
			}
			if !strings.EqualFold(report.Status, "completed") {
				continue
			}
			c.logger.InfoContext(ctx, "downloading completed report",
				slog.String("report_name", report.Name))
			return c.downloadCSV(ctx, report.DownloadURL)
		}

		c.logger.DebugContext(ctx, "report not ready yet",
			slog.String("pattern", namePattern))
	}
}

func (c *Client) downloadCSV(ctx context.Context, downloadURL string) (dataprocessing.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return dataprocessing.Table{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return dataprocessing.Table{}, fmt.Errorf("download report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return dataprocessing.Table{}, fmt.Errorf("download report: unexpected status %s", resp.Status)
	}
	return DecodeCSV(resp.Body)
}

// DecodeCSV reads a CSV stream into a table. The first record is the
// header; a UTF-8 BOM on the first column is tolerated.
func DecodeCSV(r io.Reader) (dataprocessing.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return dataprocessing.Table{}, fmt.Errorf("read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := dataprocessing.NewTable(header...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return dataprocessing.Table{}, fmt.Errorf("read CSV record: %w", err)
		}
		row := make(dataprocessing.Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		table.Append(row)
	}
	return table, nil
}
