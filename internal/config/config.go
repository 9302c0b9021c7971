// Package config loads the pipeline configuration once at startup from a
// YAML file merged with WMS_-prefixed environment variables. Everything the
// processors need arrives as plain values through their constructors; no
// other package reads the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete pipeline configuration.
type Config struct {
	API        APIConfig        `yaml:"api" envconfig:"API"`
	Storage    StorageConfig    `yaml:"storage" envconfig:"STORAGE"`
	Processing ProcessingConfig `yaml:"processing" envconfig:"PROCESSING"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
}

// APIConfig configures the WMS report API client.
type APIConfig struct {
	BaseURL      string            `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	AuthEndpoint string            `yaml:"auth_endpoint" envconfig:"AUTH_ENDPOINT"`
	ClientID     string            `yaml:"client_id" envconfig:"CLIENT_ID" validate:"required"`
	ClientSecret string            `yaml:"client_secret" envconfig:"CLIENT_SECRET" validate:"required"`
	ReportsPath  string            `yaml:"reports_path" envconfig:"REPORTS_PATH"`
	Endpoints    map[string]string `yaml:"endpoints"`
	// Warehouse is sent as a header on every request; the report service
	// scopes sessions to a home warehouse.
	Warehouse string `yaml:"warehouse" envconfig:"WAREHOUSE"`
	// PollRPS limits report-status polling.
	PollRPS float64 `yaml:"poll_rps" envconfig:"POLL_RPS"`
}

// StorageConfig configures the S3 object store.
type StorageConfig struct {
	Bucket          string `yaml:"bucket" envconfig:"BUCKET" validate:"required"`
	Region          string `yaml:"region" envconfig:"REGION"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"SECRET_ACCESS_KEY"`

	OrderRawPrefix       string `yaml:"order_raw_prefix" envconfig:"ORDER_RAW_PREFIX"`
	OrderOutputPrefix    string `yaml:"order_output_prefix" envconfig:"ORDER_OUTPUT_PREFIX"`
	OrderMTDPrefix       string `yaml:"order_mtd_prefix" envconfig:"ORDER_MTD_PREFIX"`
	InventoryRawPrefix   string `yaml:"inventory_raw_prefix" envconfig:"INVENTORY_RAW_PREFIX"`
	InventoryOutPrefix   string `yaml:"inventory_output_prefix" envconfig:"INVENTORY_OUTPUT_PREFIX"`
	ClosingRawPrefix     string `yaml:"closing_raw_prefix" envconfig:"CLOSING_RAW_PREFIX"`
	ClosingOutputPrefix  string `yaml:"closing_output_prefix" envconfig:"CLOSING_OUTPUT_PREFIX"`
}

// ProcessingConfig carries every knob the processors consume: region
// mapping, warehouse whitelist, filter sets and the row-level policies.
type ProcessingConfig struct {
	WarehousePattern     string   `yaml:"warehouse_pattern" envconfig:"WAREHOUSE_PATTERN"`
	ExcludedCategories   []string `yaml:"excluded_categories" envconfig:"EXCLUDED_CATEGORIES"`
	ExcludedZoneKeywords []string `yaml:"excluded_zone_keywords" envconfig:"EXCLUDED_ZONE_KEYWORDS"`
	AllowedCategories    []string `yaml:"allowed_categories" envconfig:"ALLOWED_CATEGORIES"`
	AllowedZones         []string `yaml:"allowed_zones" envconfig:"ALLOWED_ZONES"`
	// RegionMapping maps warehouse codes to "UP" or "HR". Empty means
	// DefaultRegionMapping.
	RegionMapping map[string]string `yaml:"region_mapping"`
	// NumericPolicy is "zero" (coerce unparseable to zero) or "drop".
	NumericPolicy string `yaml:"numeric_policy" envconfig:"NUMERIC_POLICY" validate:"oneof=zero drop"`
	// ClampNegativeFinalQty floors inventory final quantity at zero.
	ClampNegativeFinalQty bool `yaml:"clamp_negative_final_qty" envconfig:"CLAMP_NEGATIVE_FINAL_QTY"`
}

// LoggingConfig configures the slog setup.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// Load reads the optional YAML file at path, overlays WMS_-prefixed
// environment variables, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Env overlays file values.
	if err := envconfig.Process("WMS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills every setting left unset by both the file and the
// environment.
func (c *Config) applyDefaults() {
	setIfEmpty := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}

	setIfEmpty(&c.API.AuthEndpoint, "/oauth/token")
	setIfEmpty(&c.API.ReportsPath, "/reports")
	setIfEmpty(&c.API.Warehouse, "up108_kum_ls1")
	if c.API.PollRPS <= 0 {
		c.API.PollRPS = 1
	}

	setIfEmpty(&c.Storage.Region, "ap-south-1")
	setIfEmpty(&c.Storage.OrderRawPrefix, "rzn1/order_summary/raw")
	setIfEmpty(&c.Storage.OrderOutputPrefix, "rzn1/order_summary/processed")
	setIfEmpty(&c.Storage.OrderMTDPrefix, "rzn1/order_summary/mtd")
	setIfEmpty(&c.Storage.InventoryRawPrefix, "rzn1/inventory_summary/raw")
	setIfEmpty(&c.Storage.InventoryOutPrefix, "rzn1/inventory_summary/processed")
	setIfEmpty(&c.Storage.ClosingRawPrefix, "rzn1/closing_stock/raw")
	setIfEmpty(&c.Storage.ClosingOutputPrefix, "rzn1/closing_stock/processed")

	setIfEmpty(&c.Processing.WarehousePattern, "hm1|ls1")
	setIfEmpty(&c.Processing.NumericPolicy, "zero")

	setIfEmpty(&c.Logging.Level, "info")
	setIfEmpty(&c.Logging.Output, "console")
	setIfEmpty(&c.Logging.FilePath, "logs/pipeline.log")

	if len(c.Processing.ExcludedCategories) == 0 {
		c.Processing.ExcludedCategories = DefaultExcludedCategories()
	}
	if len(c.Processing.ExcludedZoneKeywords) == 0 {
		c.Processing.ExcludedZoneKeywords = DefaultExcludedZoneKeywords()
	}
	if len(c.Processing.RegionMapping) == 0 {
		c.Processing.RegionMapping = DefaultRegionMapping()
	}
	if len(c.API.Endpoints) == 0 {
		c.API.Endpoints = DefaultReportEndpoints()
	}
}

// DefaultExcludedCategories are the non-FMCG categories dropped from every
// dataset.
func DefaultExcludedCategories() []string {
	return []string{
		"Accessories", "Apparel", "Asset", "Capex",
		"Clothing And Accessories", "Consumables", "Footwears",
		"Rajeev Colony_CxEC Lite",
	}
}

// DefaultExcludedZoneKeywords mark quarantine zones whose stock is not
// sellable.
func DefaultExcludedZoneKeywords() []string {
	return []string{"damage", "expiry", "expire", "qc", "short"}
}

// DefaultReportEndpoints maps report types to their generation endpoints.
func DefaultReportEndpoints() map[string]string {
	return map[string]string{
		"order_summary":      "/order-summary",
		"sales_return":       "/sales-return",
		"batch_inventory":    "/mati-inventory",
		"open_order_summary": "/mati-open-orders",
		"closing_stock":      "/store-inventory",
	}
}

// knownWarehouses is the fleet the report API is queried for. The region
// mapping derives from it: codes are assigned by their state prefix.
var knownWarehouses = []string{
	"hr007_rjv_ls1", "hr009_pla_ls1",
	"up043_gau_ls1", "up044_jas_ls1", "up051_has_ls1", "up054_kur_ls1",
	"up057_lam_ls1", "up061_kur_ls1", "up064_bha_ls1", "up067_jag_ls1",
	"up069_mah_ls1", "up070_tik_ls1", "up073_gbx_ls1", "up075_ran_ls1",
	"up076_hai_ls1", "up077_bik_ls1", "up079_bhi_ls1", "up080_tar_ls1",
	"up081_hat_ls1", "up082_mus_ls1", "up083_fat_ls1", "up087_maw_ls1",
	"up090_lko_mat", "up096_bab_ls1", "up097_ali_ls1", "up098_sag_ls1",
	"up099_ban_ls1", "up100_aso_ls1", "up101_ach_ls1", "up102_man_ls1",
	"up103_shi_ls1", "up104_der_ls1", "up105_dos_ls1", "up106_miy_ls1",
	"up107_jac_ls1", "up108_kum_ls1", "up109_rac_ls1", "up110_lal_hm1",
	"up111_bel_hm1", "up112_gos_hm1",
}

// DefaultRegionMapping builds the exact-match warehouse-to-region table
// from the known fleet.
func DefaultRegionMapping() map[string]string {
	mapping := make(map[string]string, len(knownWarehouses))
	for _, wh := range knownWarehouses {
		code := strings.ToUpper(wh)
		switch {
		case strings.HasPrefix(code, "UP"):
			mapping[code] = "UP"
		case strings.HasPrefix(code, "HR"):
			mapping[code] = "HR"
		}
	}
	return mapping
}

// ReportWarehouses returns the fleet list sent with order summary
// generation requests.
func ReportWarehouses() []string {
	return append([]string(nil), knownWarehouses...)
}
