package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
api:
  base_url: https://wms.example.com
  client_id: test-client
  client_secret: test-secret
storage:
  bucket: reports-bucket
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "/oauth/token", cfg.API.AuthEndpoint)
	assert.Equal(t, "/reports", cfg.API.ReportsPath)
	assert.Equal(t, "up108_kum_ls1", cfg.API.Warehouse)
	assert.InDelta(t, 1.0, cfg.API.PollRPS, 1e-9)

	assert.Equal(t, "ap-south-1", cfg.Storage.Region)
	assert.Equal(t, "rzn1/order_summary/raw", cfg.Storage.OrderRawPrefix)
	assert.Equal(t, "rzn1/closing_stock/processed", cfg.Storage.ClosingOutputPrefix)

	assert.Equal(t, "hm1|ls1", cfg.Processing.WarehousePattern)
	assert.Equal(t, "zero", cfg.Processing.NumericPolicy)
	assert.NotEmpty(t, cfg.Processing.ExcludedCategories)
	assert.NotEmpty(t, cfg.Processing.ExcludedZoneKeywords)
	assert.NotEmpty(t, cfg.Processing.RegionMapping)
	assert.NotEmpty(t, cfg.API.Endpoints)

	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileValuesSurviveDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig+`
processing:
  warehouse_pattern: ls1
  numeric_policy: drop
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "ls1", cfg.Processing.WarehousePattern)
	assert.Equal(t, "drop", cfg.Processing.NumericPolicy)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("WMS_API_CLIENT_ID", "env-client")
	t.Setenv("WMS_STORAGE_BUCKET", "env-bucket")

	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.API.ClientID)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
}

func TestLoad_ValidationRejectsMissingCredentials(t *testing.T) {
	_, err := Load(writeConfigFile(t, `
api:
  base_url: https://wms.example.com
storage:
  bucket: reports-bucket
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoad_InvalidNumericPolicyRejected(t *testing.T) {
	_, err := Load(writeConfigFile(t, minimalConfig+`
processing:
  numeric_policy: explode
`))
	require.Error(t, err)
}

func TestLoad_MissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("WMS_API_BASE_URL", "https://wms.example.com")
	t.Setenv("WMS_API_CLIENT_ID", "env-client")
	t.Setenv("WMS_API_CLIENT_SECRET", "env-secret")
	t.Setenv("WMS_STORAGE_BUCKET", "env-bucket")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-client", cfg.API.ClientID)
}

func TestDefaultRegionMapping_CoversFleetByPrefix(t *testing.T) {
	mapping := DefaultRegionMapping()
	require.NotEmpty(t, mapping)

	assert.Equal(t, "UP", mapping["UP108_KUM_LS1"])
	assert.Equal(t, "HR", mapping["HR007_RJV_LS1"])
	for code, region := range mapping {
		assert.Contains(t, []string{"UP", "HR"}, region, code)
	}
}

func TestReportWarehouses_ReturnsACopy(t *testing.T) {
	first := ReportWarehouses()
	require.NotEmpty(t, first)
	first[0] = "mutated"
	assert.NotEqual(t, "mutated", ReportWarehouses()[0])
}
