package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
log:
  level: debug
data:
  duckdb_path: data/history.duckdb
window:
  start: 2025-06-01T00:00:00Z
  end: 2025-06-30T23:59:00Z
  partition: 2025-06
simulation:
  start_cash: 25000
  seed: 7
  sample_fills: true
strategies:
  - name: baseline
    type: noop
  - name: favs
    type: favorites
    category: Sports
    min_price: 0.85
    quantity: 10
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "data/history.duckdb", cfg.Data.DuckDBPath)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), cfg.Window.Start)
	assert.Equal(t, "2025-06", cfg.Window.Partition)
	assert.Equal(t, 25000.0, cfg.Simulation.StartCash)
	assert.True(t, cfg.Simulation.SampleFills)
	require.Len(t, cfg.Strategies, 2)
	assert.Equal(t, "favorites", cfg.Strategies[1].Type)
	assert.Equal(t, 0.85, cfg.Strategies[1].MinPrice)

	// Defaults fill what the file omits.
	assert.Equal(t, 0.25, cfg.Simulation.LiquidityThreshold)
	assert.Equal(t, time.Minute, cfg.Simulation.SnapshotInterval)
	assert.Equal(t, "data/kalsim.db", cfg.Journal.SQLitePath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no data source", `
window: {start: 2025-06-01T00:00:00Z, end: 2025-06-02T00:00:00Z}
strategies: [{name: a, type: noop}]
`},
		{"missing window", `
data: {duckdb_path: x.duckdb}
strategies: [{name: a, type: noop}]
`},
		{"inverted window", `
data: {duckdb_path: x.duckdb}
window: {start: 2025-06-02T00:00:00Z, end: 2025-06-01T00:00:00Z}
strategies: [{name: a, type: noop}]
`},
		{"no strategies", `
data: {duckdb_path: x.duckdb}
window: {start: 2025-06-01T00:00:00Z, end: 2025-06-02T00:00:00Z}
`},
		{"duplicate strategy names", `
data: {duckdb_path: x.duckdb}
window: {start: 2025-06-01T00:00:00Z, end: 2025-06-02T00:00:00Z}
strategies: [{name: a, type: noop}, {name: a, type: noop}]
`},
		{"unnamed strategy", `
data: {duckdb_path: x.duckdb}
window: {start: 2025-06-01T00:00:00Z, end: 2025-06-02T00:00:00Z}
strategies: [{type: noop}]
`},
		{"negative start cash", `
data: {duckdb_path: x.duckdb}
window: {start: 2025-06-01T00:00:00Z, end: 2025-06-02T00:00:00Z}
simulation: {start_cash: -5}
strategies: [{name: a, type: noop}]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
