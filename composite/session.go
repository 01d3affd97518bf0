// Package composite spreads one measured tone correction across several
// overlapping ink channels. A Session is begun with the channels and their
// ceilings, receives each channel's baseline curve and on Finalize returns
// corrected curves whose weighted ink density follows the correction, kept
// under each channel's ceiling, together with a coverage summary of how
// close every channel came to that ceiling.
package composite

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/correction"
	"github.com/David-Marsh-Photo/quadGEN-sub001/interp"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// WeightingMode chooses how a density change at one input level is shared
// between the channels inking it.
type WeightingMode string

const (
	// proportional to each channel's share of the density
	Normalized WeightingMode = "normalized"
	// split evenly between inked channels
	Equal WeightingMode = "equal"
	// all to the channel contributing most density
	Isolated WeightingMode = "isolated"
	// density share biased towards channels whose ink is changing fastest
	Momentum WeightingMode = "momentum"
)

func ParseWeightingMode(s string) WeightingMode {
	switch m := WeightingMode(s); m {
	case Equal, Isolated, Momentum:
		return m
	}
	return Normalized
}

// ChannelContext is one participating channel: its ceiling and baseline.
type ChannelContext struct {
	Name       types.ChannelName
	CurrentEnd int
	Curve      types.Curve
}

type BeginConfig struct {
	ChannelNames []string
	// EndValues are the channel ceilings in [0, TOTAL]. Channels missing
	// here use the maximum of their baseline.
	EndValues        map[types.ChannelName]int
	Entry            *correction.Entry
	Interpolation    types.Interpolation
	SmoothingPercent float64
	DensityOverrides map[types.ChannelName]float64
	// AutoComputeDensity fits the density weights to the entry's
	// measurements.
	AutoComputeDensity bool
	// AnalysisOnly computes the redistribution without applying it.
	AnalysisOnly bool
	// WeightingMode defaults to the configured mode.
	WeightingMode WeightingMode
}

// ChannelSnapshot is the state of one channel at one sample.
type ChannelSnapshot struct {
	NormalizedBefore, NormalizedAfter float64
	CapacityBefore, CapacityAfter     float64
	Share                             float64
	DeltaDensity                      float64
	InkDelta                          float64
	ValueDelta                        int
	Clamped                           bool
}

// Snapshot records the redistribution at one sample.
type Snapshot struct {
	Index           int
	InputPercent    float64
	BaselineDensity float64
	DesiredDensity  float64
	DeltaDensity    float64
	ResidualDensity float64
	PerChannel      map[types.ChannelName]ChannelSnapshot
}

type Result struct {
	Curves        map[types.ChannelName]types.Curve
	PeakIndices   map[types.ChannelName]int
	Warnings      []string
	Coverage      Summary
	Snapshots     []Snapshot
	Weights       map[types.ChannelName]Weight
	WeightingMode WeightingMode
	AnalysisOnly  bool
}

var ErrUnusableCorrection = errors.New("the correction cannot be sampled")

// Session is a caller owned redistribution. Begin and Finalize must be
// paired; a second Begin while a session is active is refused.
type Session struct {
	mu        sync.Mutex
	cfg       config.Configuration
	logger    *slog.Logger
	debug     *DebugStore
	state     State
	bc        BeginConfig
	names     []types.ChannelName
	bases     map[types.ChannelName]types.Curve
	coverage  Summary
	rejection string
}

func NewSession(cfg config.Configuration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{cfg: cfg, logger: logger}
}

// SetDebugStore makes Finalize record its snapshots in d.
func (s *Session) SetDebugStore(d *DebugStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = d
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastRejection is the reason the last Begin or Finalize failed.
func (s *Session) LastRejection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejection
}

func (s *Session) reject(reason string) bool {
	s.rejection = reason
	s.logger.Debug("composite session rejected", "reason", reason)
	return false
}

// Begin starts a session. It returns false, leaving the session idle, when
// a session is already active, when the correction is missing, is not
// built from measurements or has fewer than two measured points, when no channels are named, or when the correction is
// already baked into the curves and AnalysisOnly is not set.
func (s *Session) Begin(bc BeginConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Active:
		return s.reject("a composite session is already active")
	case bc.Entry == nil:
		return s.reject("no correction")
	case !bc.Entry.IsMeasured():
		return s.reject(fmt.Sprintf("%s is not a measured correction", bc.Entry.String()))
	case bc.Entry.PointCount() < 2:
		return s.reject(fmt.Sprintf("correction has %d points, at least 2 are required", bc.Entry.PointCount()))
	case bc.Entry.Baked && !bc.AnalysisOnly:
		return s.reject("correction is already baked into the curves")
	}
	names := types.UniqueChannels(bc.ChannelNames...)
	if len(names) == 0 {
		return s.reject("no channels")
	}
	ends := make(map[types.ChannelName]int, len(bc.EndValues))
	for k, v := range bc.EndValues {
		ends[types.NormalizeChannel(string(k))] = max(0, min(types.TOTAL, v))
	}
	overrides := make(map[types.ChannelName]float64, len(bc.DensityOverrides))
	for k, v := range bc.DensityOverrides {
		overrides[types.NormalizeChannel(string(k))] = v
	}
	bc.EndValues, bc.DensityOverrides = ends, overrides
	if bc.WeightingMode == "" {
		bc.WeightingMode = WeightingMode(s.cfg.Composite.WeightingMode)
	}
	bc.WeightingMode = ParseWeightingMode(string(bc.WeightingMode))
	s.bc, s.names = bc, names
	s.bases = make(map[types.ChannelName]types.Curve, len(names))
	s.state = Active
	s.rejection = ""
	s.logger.Debug("composite session begun", "channels", names, "entry", bc.Entry.String(), "mode", bc.WeightingMode, "analysis_only", bc.AnalysisOnly)
	return true
}

// RegisterBase records the baseline curve of a channel named in Begin.
func (s *Session) RegisterBase(ch string, c types.Curve) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := types.NormalizeChannel(ch)
	if s.state != Active || !slices.Contains(s.names, name) {
		return false
	}
	base := types.NewCurve()
	copy(base, c)
	for i, v := range base {
		base[i] = max(0, min(types.TOTAL, v))
	}
	s.bases[name] = base
	return true
}

// Register records the baselines of several channels, and their ceilings
// when CurrentEnd is positive.
func (s *Session) Register(channels ...ChannelContext) {
	for _, c := range channels {
		if s.RegisterBase(string(c.Name), c.Curve) && c.CurrentEnd > 0 {
			s.mu.Lock()
			s.bc.EndValues[types.NormalizeChannel(string(c.Name))] = min(types.TOTAL, c.CurrentEnd)
			s.mu.Unlock()
		}
	}
}

// Abandon ends the active session without producing curves.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.state = Idle
	s.bc = BeginConfig{}
	s.names, s.bases = nil, nil
}

// CoverageSummary returns the coverage of the last finalized session, or
// nil when none has run.
func (s *Session) CoverageSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coverage.Clone()
}

// Finalize computes the corrected curves and returns the session to idle.
// It returns false when no session is active or when the correction cannot
// be evaluated, in which case the session is abandoned. Debug listeners are
// notified after the session lock is released, so they may call back into
// the session.
func (s *Session) Finalize() (*Result, bool) {
	r, debug := s.finalize()
	if r == nil {
		return nil, false
	}
	if debug != nil {
		debug.StoreSession(r)
	}
	return r, true
}

func (s *Session) finalize() (*Result, *DebugStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return nil, nil
	}
	defer s.reset()
	r, err := s.run()
	if err != nil {
		s.reject(err.Error())
		return nil, nil
	}
	s.coverage = r.Coverage.Clone()
	s.logger.Debug("composite session finalized", "channels", len(r.Curves), "warnings", len(r.Warnings), "analysis_only", r.AnalysisOnly)
	return r, s.debug
}

// correction_function samples the linearization rebuilt from the entry's
// measurements, rebuilding it with a wider kernel when smoothing is asked
// for.
func (s *Session) correction_function() (func(float64) float64, error) {
	e := s.bc.Entry
	samples := e.ResolvedSamples()
	if s.bc.SmoothingPercent > 0 {
		mode := correction.ParseNormalizationMode(s.cfg.Lab.Normalization)
		var err error
		if samples, err = correction.RebuildFromPairs(e.MeasuredPairs(), mode, correction.WidenFactor(s.bc.SmoothingPercent)); err != nil {
			return nil, err
		}
	}
	if len(samples) < 2 {
		return nil, ErrUnusableCorrection
	}
	if len(samples) >= types.CurveResolution {
		// dense rebuilt LUTs are already smooth
		table := interp.NewTable(samples).Spline()
		return func(x float64) float64 { return clamp01(table(x)) }, nil
	}
	spline, err := interp.New(s.bc.Interpolation, interp.UniformPositions(len(samples), 0, 1), samples)
	if err != nil {
		return nil, err
	}
	return func(x float64) float64 { return clamp01(spline(clamp01(x))) }, nil
}

func (s *Session) run() (*Result, error) {
	f, err := s.correction_function()
	if err != nil {
		return nil, err
	}
	bases := make([]types.Curve, len(s.names))
	ends := make([]int, len(s.names))
	base_map := make(map[types.ChannelName]types.Curve, len(s.names))
	for i, name := range s.names {
		if b, ok := s.bases[name]; ok {
			bases[i] = b
		} else {
			bases[i] = types.NewCurve()
		}
		base_map[name] = bases[i]
		if e, ok := s.bc.EndValues[name]; ok {
			ends[i] = e
		} else {
			ends[i] = bases[i].Max()
		}
	}
	var solved map[types.ChannelName]float64
	if s.bc.AutoComputeDensity && s.bc.Entry.IsMeasured() {
		solved = SolveDensities(s.bc.Entry.MeasuredPairs(), s.names, base_map)
		s.logger.Debug("solved channel densities", "densities", solved)
	}
	weights := ResolveWeights(s.names, s.bc.DensityOverrides, solved)
	p := &plan{
		names: s.names, bases: bases, ends: ends, weights: make([]float64, len(s.names)),
		mode: s.bc.WeightingMode, correct: f, cfg: s.cfg, analysis_only: s.bc.AnalysisOnly,
	}
	for i, name := range s.names {
		p.weights[i] = weights[name].Value
	}
	r, err := p.run()
	if err != nil {
		return nil, err
	}
	r.Weights = weights
	for _, name := range s.names {
		if ev := r.Coverage[name]; ev.Overflow > 0 {
			s.logger.Debug("composite channel clamped", "channel", name, "samples", ev.Overflow, "max", ev.MaxNormalized, "buffered_limit", ev.BufferedLimit)
		}
	}
	return r, nil
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
