package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// overlay mirrors Configuration with pointer fields so an explicit false or
// zero in a file can override a non-zero default.
type overlay struct {
	ActiveRangeLinearization   *bool `json:"active_range_linearization"`
	AutoRaiseInkLimitsOnImport *bool `json:"auto_raise_ink_limits_on_import"`
	CompositePerSampleCeiling  *bool `json:"composite_per_sample_ceiling"`
	SlopeKernelSmoothing       *bool `json:"slope_kernel_smoothing"`
	LabBaselineSmoothing       *bool `json:"lab_baseline_smoothing"`
	CubeEndpointAnchoring      *bool `json:"cube_endpoint_anchoring"`

	AutoRaise struct {
		HeadroomTolerance *float64 `json:"headroom_tolerance"`
		HandoffTolerance  *float64 `json:"handoff_tolerance"`
		TargetTolerance   *float64 `json:"target_tolerance"`
		FloatEpsilon      *float64 `json:"float_epsilon"`
		EpsilonPercent    *float64 `json:"epsilon_percent"`
	} `json:"auto_raise"`
	Composite struct {
		WeightingMode         *string  `json:"weighting_mode"`
		CoverageBuffer        *float64 `json:"coverage_buffer"`
		SaturationRatio       *float64 `json:"saturation_ratio"`
		SaturationInputCutoff *float64 `json:"saturation_input_cutoff"`
		SlopeThresholdPercent *float64 `json:"slope_threshold_percent"`
	} `json:"composite"`
	Lab struct {
		SmoothingPercent *float64 `json:"smoothing_percent"`
		Normalization    *string  `json:"normalization"`
	} `json:"lab"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (o overlay) apply(cfg Configuration) Configuration {
	set(&cfg.ActiveRangeLinearization, o.ActiveRangeLinearization)
	set(&cfg.AutoRaiseInkLimitsOnImport, o.AutoRaiseInkLimitsOnImport)
	set(&cfg.CompositePerSampleCeiling, o.CompositePerSampleCeiling)
	set(&cfg.SlopeKernelSmoothing, o.SlopeKernelSmoothing)
	set(&cfg.LabBaselineSmoothing, o.LabBaselineSmoothing)
	set(&cfg.CubeEndpointAnchoring, o.CubeEndpointAnchoring)
	set(&cfg.AutoRaise.HeadroomTolerance, o.AutoRaise.HeadroomTolerance)
	set(&cfg.AutoRaise.HandoffTolerance, o.AutoRaise.HandoffTolerance)
	set(&cfg.AutoRaise.TargetTolerance, o.AutoRaise.TargetTolerance)
	set(&cfg.AutoRaise.FloatEpsilon, o.AutoRaise.FloatEpsilon)
	set(&cfg.AutoRaise.EpsilonPercent, o.AutoRaise.EpsilonPercent)
	set(&cfg.Composite.WeightingMode, o.Composite.WeightingMode)
	set(&cfg.Composite.CoverageBuffer, o.Composite.CoverageBuffer)
	set(&cfg.Composite.SaturationRatio, o.Composite.SaturationRatio)
	set(&cfg.Composite.SaturationInputCutoff, o.Composite.SaturationInputCutoff)
	set(&cfg.Composite.SlopeThresholdPercent, o.Composite.SlopeThresholdPercent)
	set(&cfg.Lab.SmoothingPercent, o.Lab.SmoothingPercent)
	set(&cfg.Lab.Normalization, o.Lab.Normalization)
	return cfg
}

// LoadJSON reads a configuration from path, or from raw when it is
// non-empty, on top of Defaults. Unknown fields are rejected.
func LoadJSON(path string, raw []byte) (Configuration, error) {
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return Configuration{}, err
		}
		defer f.Close()
		r = f
	default:
		return Configuration{}, errors.New("config: no source provided")
	}
	var o overlay
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		return Configuration{}, fmt.Errorf("config: %w", err)
	}
	cfg := o.apply(Defaults())
	if err := Validate(cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Merge overlays the non-zero tunables and any enabled flag of over onto
// base. Flags can only be switched on by Merge, use LoadJSON to switch a
// default-on flag off.
func Merge(base, over Configuration) Configuration {
	out := base
	out.ActiveRangeLinearization = base.ActiveRangeLinearization || over.ActiveRangeLinearization
	out.AutoRaiseInkLimitsOnImport = base.AutoRaiseInkLimitsOnImport || over.AutoRaiseInkLimitsOnImport
	out.CompositePerSampleCeiling = base.CompositePerSampleCeiling || over.CompositePerSampleCeiling
	out.SlopeKernelSmoothing = base.SlopeKernelSmoothing || over.SlopeKernelSmoothing
	out.LabBaselineSmoothing = base.LabBaselineSmoothing || over.LabBaselineSmoothing
	out.CubeEndpointAnchoring = base.CubeEndpointAnchoring || over.CubeEndpointAnchoring
	nz := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	nz(&out.AutoRaise.HeadroomTolerance, over.AutoRaise.HeadroomTolerance)
	nz(&out.AutoRaise.HandoffTolerance, over.AutoRaise.HandoffTolerance)
	nz(&out.AutoRaise.TargetTolerance, over.AutoRaise.TargetTolerance)
	nz(&out.AutoRaise.FloatEpsilon, over.AutoRaise.FloatEpsilon)
	nz(&out.AutoRaise.EpsilonPercent, over.AutoRaise.EpsilonPercent)
	nz(&out.Composite.CoverageBuffer, over.Composite.CoverageBuffer)
	nz(&out.Composite.SaturationRatio, over.Composite.SaturationRatio)
	nz(&out.Composite.SaturationInputCutoff, over.Composite.SaturationInputCutoff)
	nz(&out.Composite.SlopeThresholdPercent, over.Composite.SlopeThresholdPercent)
	nz(&out.Lab.SmoothingPercent, over.Lab.SmoothingPercent)
	if over.Composite.WeightingMode != "" {
		out.Composite.WeightingMode = over.Composite.WeightingMode
	}
	if over.Lab.Normalization != "" {
		out.Lab.Normalization = over.Lab.Normalization
	}
	return out
}
