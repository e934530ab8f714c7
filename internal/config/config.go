package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgewise-labs/kalsim/pkg/strategy"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	Data       DataConfig       `yaml:"data"`
	Window     WindowConfig     `yaml:"window"`
	Simulation SimulationConfig `yaml:"simulation"`
	Journal    JournalConfig    `yaml:"journal"`
	Strategies []strategy.Spec  `yaml:"strategies"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type DataConfig struct {
	// DuckDBPath points at the trade/market history database. ArchiveDir
	// optionally overrides the trade source with one fixed-width binary file
	// per market; market metadata still comes from the database.
	DuckDBPath      string `yaml:"duckdb_path"`
	ArchiveDir      string `yaml:"archive_dir"`
	CalibrationPath string `yaml:"calibration_path"`
}

type WindowConfig struct {
	Start     time.Time `yaml:"start"`
	End       time.Time `yaml:"end"`
	Partition string    `yaml:"partition"`
}

type SimulationConfig struct {
	StartCash          float64       `yaml:"start_cash"`
	Seed               int64         `yaml:"seed"`
	SampleFills        bool          `yaml:"sample_fills"`
	LiquidityThreshold float64       `yaml:"liquidity_threshold"`
	SnapshotInterval   time.Duration `yaml:"snapshot_interval"`
}

type JournalConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Simulation.StartCash == 0 {
		cfg.Simulation.StartCash = 10000
	}
	if cfg.Simulation.LiquidityThreshold == 0 {
		cfg.Simulation.LiquidityThreshold = 0.25
	}
	if cfg.Simulation.SnapshotInterval == 0 {
		cfg.Simulation.SnapshotInterval = time.Minute
	}
	if cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = "data/kalsim.db"
	}
	if cfg.Window.Partition == "" {
		cfg.Window.Partition = "default"
	}
}

func validate(cfg *Config) error {
	if cfg.Data.DuckDBPath == "" {
		return errors.New("data.duckdb_path is required")
	}
	if cfg.Window.Start.IsZero() || cfg.Window.End.IsZero() {
		return errors.New("window.start and window.end are required")
	}
	if !cfg.Window.End.After(cfg.Window.Start) {
		return errors.New("window.end must be after window.start")
	}
	if cfg.Simulation.StartCash <= 0 {
		return errors.New("simulation.start_cash must be > 0")
	}
	if len(cfg.Strategies) == 0 {
		return errors.New("at least one strategy is required")
	}
	seen := make(map[string]bool, len(cfg.Strategies))
	for i, spec := range cfg.Strategies {
		if spec.Name == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate strategy name %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}
