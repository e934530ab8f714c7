package fill

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params are the calibrated queue-model coefficients for one market
// category. QueuePercentile is the conservative assumption about how much of
// the resting depth at the limit price sits ahead of our order; DepthScale is
// the empirically derived queue-depth scaling applied to the remaining order
// size.
type Params struct {
	QueuePercentile float64 `yaml:"queue_percentile"`
	DepthScale      float64 `yaml:"depth_scale"`
}

// Calibration is versioned configuration injected into the fill model, keyed
// by market category. Recalibration ships a new document; simulation logic
// stays untouched.
type Calibration struct {
	Version    string            `yaml:"version"`
	Default    Params            `yaml:"default"`
	Categories map[string]Params `yaml:"categories"`
}

func DefaultCalibration() Calibration {
	return Calibration{
		Version: "2025-06",
		Default: Params{QueuePercentile: 0.25, DepthScale: 2.25},
	}
}

func (c Calibration) ForCategory(category string) Params {
	if p, ok := c.Categories[category]; ok {
		return p
	}
	return c.Default
}

func LoadCalibration(path string) (Calibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("read calibration %q: %w", path, err)
	}

	var cal Calibration
	if err := yaml.Unmarshal(raw, &cal); err != nil {
		return Calibration{}, fmt.Errorf("parse calibration %q: %w", path, err)
	}

	if err := validateParams(cal.Default); err != nil {
		return Calibration{}, fmt.Errorf("calibration %q default: %w", path, err)
	}
	for category, p := range cal.Categories {
		if err := validateParams(p); err != nil {
			return Calibration{}, fmt.Errorf("calibration %q category %s: %w", path, category, err)
		}
	}
	return cal, nil
}

func validateParams(p Params) error {
	if p.QueuePercentile < 0 || p.QueuePercentile >= 1 {
		return fmt.Errorf("queue_percentile %v outside [0, 1)", p.QueuePercentile)
	}
	if p.DepthScale <= 0 {
		return fmt.Errorf("depth_scale %v must be positive", p.DepthScale)
	}
	return nil
}
