package bots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCatalogRoundTrip(t *testing.T) {
	reg := NewRegistry()
	data, err := reg.ExportCatalog()
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Bot catalog overrides")

	o, err := ImportCatalog(data)
	require.NoError(t, err)
	assert.Equal(t, CatalogSchemaVersion, o.Version)
	require.Len(t, o.Bots, reg.Len())
	for _, b := range o.Bots {
		require.NotNil(t, b.Enabled, b.Name)
		assert.True(t, *b.Enabled, b.Name)
		assert.NotEmpty(t, b.Category, b.Name)
	}
}

func TestExportReflectsAppliedOverrides(t *testing.T) {
	reg := NewRegistry()
	off := false
	require.NoError(t, reg.ApplyOverrides(&CatalogOverrides{
		Version: CatalogSchemaVersion,
		Bots:    []BotOverride{{Name: "macd_trend", Enabled: &off}},
	}))

	data, err := reg.ExportCatalog()
	require.NoError(t, err)
	o, err := ImportCatalog(data)
	require.NoError(t, err)

	var found bool
	for _, b := range o.Bots {
		if b.Name == "macd_trend" {
			found = true
			require.NotNil(t, b.Enabled)
			assert.False(t, *b.Enabled)
		}
	}
	assert.True(t, found)
}

func TestImportCatalogYAML(t *testing.T) {
	doc := []byte(`
version: 1
bots:
  - name: rsi_reversal
    enabled: false
    note: benched after the march drawdown
  - name: golden_cross
`)
	o, err := ImportCatalog(doc)
	require.NoError(t, err)
	require.Len(t, o.Bots, 2)

	require.NotNil(t, o.Bots[0].Enabled)
	assert.False(t, *o.Bots[0].Enabled)
	assert.Equal(t, "benched after the march drawdown", o.Bots[0].Note)
	assert.Nil(t, o.Bots[1].Enabled, "no enabled key means leave the default")

	reg := NewRegistry()
	require.NoError(t, reg.ApplyOverrides(o))
	assert.Len(t, reg.Enabled(nil), reg.Len()-1)
}

func TestImportCatalogJSON(t *testing.T) {
	doc := []byte(`{"version":1,"bots":[{"name":"macd_trend","enabled":false}]}`)
	o, err := ImportCatalog(doc)
	require.NoError(t, err)
	require.Len(t, o.Bots, 1)
	assert.Equal(t, "macd_trend", o.Bots[0].Name)
}

func TestImportCatalogRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "future schema", data: "version: 99\nbots: []\n"},
		{name: "zero version", data: "bots:\n  - name: rsi_reversal\n"},
		{name: "nameless entry", data: "version: 1\nbots:\n  - enabled: false\n"},
		{name: "not yaml at all", data: ":\n:::{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportCatalog([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestImportCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nbots:\n  - name: vwap_deviation\n    enabled: false\n"), 0o600))

	o, err := ImportCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, o.Bots, 1)
	assert.Equal(t, "vwap_deviation", o.Bots[0].Name)

	_, err = ImportCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
