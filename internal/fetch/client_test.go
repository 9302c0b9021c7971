package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmsreports/internal/config"
)

func testAPIConfig(serverURL string) config.APIConfig {
	return config.APIConfig{
		BaseURL:      serverURL,
		AuthEndpoint: "/oauth/token",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		ReportsPath:  "/reports",
		Endpoints: map[string]string{
			ReportOrderSummary: "/order-summary",
			ReportSalesReturn:  "/sales-return",
		},
		Warehouse: "up108_kum_ls1",
		PollRPS:   100,
	}
}

func tokenHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token": "test-token",
		"token_type":   "bearer",
	})
}

func TestGenerateReport_OrderSummaryQueryParams(t *testing.T) {
	var captured *http.Request
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler)
	mux.HandleFunc("/order-summary", func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testAPIConfig(server.URL), nil)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	require.NoError(t, client.GenerateReport(context.Background(), ReportOrderSummary, day))

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, "up108_kum_ls1", captured.Header.Get("warehouse"))
	assert.Equal(t, "Bearer test-token", captured.Header.Get("Authorization"))

	query := captured.URL.Query()
	assert.Equal(t, "2026-08-25", query.Get("From Date"))
	assert.Contains(t, query["columns"], "SKU Code")
	assert.NotEmpty(t, query["Warehouse"])
}

func TestGenerateReport_OthersPostJSONBody(t *testing.T) {
	var body string
	var method, contentType string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler)
	mux.HandleFunc("/sales-return", func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		body = string(buf)
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testAPIConfig(server.URL), nil)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	require.NoError(t, client.GenerateReport(context.Background(), ReportSalesReturn, day))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", contentType)
	assert.JSONEq(t, `{"From Date":"2026-08-25"}`, body)
}

func TestGenerateReport_UnknownTypeRejected(t *testing.T) {
	client := NewClient(context.Background(), testAPIConfig("http://127.0.0.1:0"), nil)
	err := client.GenerateReport(context.Background(), "nonexistent", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configured endpoint")
}

func TestDownloadLatestCompleted_PollsUntilReady(t *testing.T) {
	var listings int
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler)
	mux.HandleFunc("/reports", func(w http.ResponseWriter, r *http.Request) {
		listings++
		reports := []ReportInfo{{Name: "Order Summary 20260825", Status: "pending"}}
		if listings >= 3 {
			reports[0].Status = "completed"
			reports[0].DownloadURL = "http://" + r.Host + "/download/1"
		}
		json.NewEncoder(w).Encode(map[string][]ReportInfo{"reports": reports})
	})
	mux.HandleFunc("/download/1", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("SKU Code,Invoice quantity\nA1,5\n"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testAPIConfig(server.URL), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table, err := client.DownloadLatestCompleted(ctx, "order summary")
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "A1", table.Rows[0].Get("SKU Code"))
	assert.GreaterOrEqual(t, listings, 3)
}

func TestDownloadLatestCompleted_TimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler)
	mux.HandleFunc("/reports", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string][]ReportInfo{"reports": {}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(context.Background(), testAPIConfig(server.URL), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := client.DownloadLatestCompleted(ctx, "order summary")
	require.Error(t, err)
}

func TestDecodeCSV(t *testing.T) {
	input := "\ufeffSKU Code,Invoice quantity\nA1,5\nB2\n"
	table, err := DecodeCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"SKU Code", "Invoice quantity"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "5", table.Rows[0].Get("Invoice quantity"))

	// Short records leave trailing cells empty rather than failing.
	assert.Equal(t, "B2", table.Rows[1].Get("SKU Code"))
	assert.Equal(t, "", table.Rows[1].Get("Invoice quantity"))
}

func TestDecodeCSV_EmptyInput(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader(""))
	require.Error(t, err)
}
