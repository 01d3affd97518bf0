// Package config holds the explicit configuration threaded through every
// entry point of the correction engine: feature flags plus the tunable
// tolerances of the composite and auto-raise stages.
package config

import (
	"errors"
	"fmt"
)

// Tunable defaults. These values are empirically tuned, not derived.
const (
	DefaultCoverageHeadroomTolerance = 0.005
	DefaultCoverageHandoffTolerance  = 0.003
	DefaultCoverageTargetTolerance   = 0.01
	DefaultCoverageFloatEpsilon      = 1e-6
	DefaultEpsilonPercent            = 0.05
	DefaultCoverageBuffer            = 0.005
	DefaultSaturationRatio           = 0.995
	DefaultSaturationInputCutoff     = 0.95
	DefaultSlopeThresholdPercent     = 7
)

type AutoRaise struct {
	HeadroomTolerance float64 `json:"headroom_tolerance"`
	HandoffTolerance  float64 `json:"handoff_tolerance"`
	TargetTolerance   float64 `json:"target_tolerance"`
	FloatEpsilon      float64 `json:"float_epsilon"`
	EpsilonPercent    float64 `json:"epsilon_percent"`
}

type Composite struct {
	// one of normalized, isolated, equal, momentum
	WeightingMode         string  `json:"weighting_mode"`
	CoverageBuffer        float64 `json:"coverage_buffer"`
	SaturationRatio       float64 `json:"saturation_ratio"`
	SaturationInputCutoff float64 `json:"saturation_input_cutoff"`
	SlopeThresholdPercent float64 `json:"slope_threshold_percent"`
}

type Lab struct {
	SmoothingPercent float64 `json:"smoothing_percent"`
	// lstar or density
	Normalization string `json:"normalization"`
}

type Configuration struct {
	ActiveRangeLinearization   bool `json:"active_range_linearization"`
	AutoRaiseInkLimitsOnImport bool `json:"auto_raise_ink_limits_on_import"`
	CompositePerSampleCeiling  bool `json:"composite_per_sample_ceiling"`
	SlopeKernelSmoothing       bool `json:"slope_kernel_smoothing"`
	LabBaselineSmoothing       bool `json:"lab_baseline_smoothing"`
	CubeEndpointAnchoring      bool `json:"cube_endpoint_anchoring"`

	AutoRaise AutoRaise `json:"auto_raise"`
	Composite Composite `json:"composite"`
	Lab       Lab       `json:"lab"`
}

func Defaults() Configuration {
	return Configuration{
		CompositePerSampleCeiling: true,
		SlopeKernelSmoothing:      true,
		LabBaselineSmoothing:      true,
		AutoRaise: AutoRaise{
			HeadroomTolerance: DefaultCoverageHeadroomTolerance,
			HandoffTolerance:  DefaultCoverageHandoffTolerance,
			TargetTolerance:   DefaultCoverageTargetTolerance,
			FloatEpsilon:      DefaultCoverageFloatEpsilon,
			EpsilonPercent:    DefaultEpsilonPercent,
		},
		Composite: Composite{
			WeightingMode:         "normalized",
			CoverageBuffer:        DefaultCoverageBuffer,
			SaturationRatio:       DefaultSaturationRatio,
			SaturationInputCutoff: DefaultSaturationInputCutoff,
			SlopeThresholdPercent: DefaultSlopeThresholdPercent,
		},
		Lab: Lab{Normalization: "lstar"},
	}
}

var weighting_modes = map[string]bool{"normalized": true, "isolated": true, "equal": true, "momentum": true}

// Validate checks the bounds of the tunables.
func Validate(cfg Configuration) error {
	nonneg := map[string]float64{
		"auto_raise.headroom_tolerance":     cfg.AutoRaise.HeadroomTolerance,
		"auto_raise.handoff_tolerance":      cfg.AutoRaise.HandoffTolerance,
		"auto_raise.target_tolerance":       cfg.AutoRaise.TargetTolerance,
		"auto_raise.float_epsilon":          cfg.AutoRaise.FloatEpsilon,
		"auto_raise.epsilon_percent":        cfg.AutoRaise.EpsilonPercent,
		"composite.coverage_buffer":         cfg.Composite.CoverageBuffer,
		"composite.slope_threshold_percent": cfg.Composite.SlopeThresholdPercent,
		"lab.smoothing_percent":             cfg.Lab.SmoothingPercent,
		"composite.saturation_ratio":        cfg.Composite.SaturationRatio,
		"composite.saturation_input_cutoff": cfg.Composite.SaturationInputCutoff,
	}
	for name, v := range nonneg {
		if v < 0 {
			return fmt.Errorf("config: %s must be >= 0, got %v", name, v)
		}
	}
	if cfg.Composite.CoverageBuffer >= 1 {
		return errors.New("config: composite.coverage_buffer must be < 1")
	}
	if cfg.Composite.SaturationRatio > 1 || cfg.Composite.SaturationInputCutoff > 1 {
		return errors.New("config: composite saturation bounds must be <= 1")
	}
	if cfg.Lab.SmoothingPercent > 90 {
		return fmt.Errorf("config: lab.smoothing_percent must be <= 90, got %v", cfg.Lab.SmoothingPercent)
	}
	if m := cfg.Composite.WeightingMode; m != "" && !weighting_modes[m] {
		return fmt.Errorf("config: unknown composite.weighting_mode %q", m)
	}
	switch cfg.Lab.Normalization {
	case "", "lstar", "density":
	default:
		return fmt.Errorf("config: unknown lab.normalization %q", cfg.Lab.Normalization)
	}
	return nil
}
