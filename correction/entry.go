// Package correction models a parsed tone correction: its samples or the
// measurements they were derived from, its domain and the space the
// samples are expressed in. It also reads the correction file formats.
package correction

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

var (
	ErrNoSamples       = errors.New("no correction samples found")
	ErrTooManySamples  = errors.New("too many correction samples")
	ErrNotEnoughPoints = errors.New("at least two measurement points are required")
)

// Source is where the samples of an Entry come from: either Samples or
// MeasuredPairs.
type Source interface {
	sourceKind() string
}

// Samples is a correction given directly as sample arrays. Values is the
// active set, Preview a smoothed variant and Original the samples as parsed.
type Samples struct {
	Values, Preview, Original []float64
}

func (Samples) sourceKind() string { return "samples" }

// MeasuredPair is one measurement: an input level in percent (or 0..255)
// and the L* value measured for it.
type MeasuredPair struct {
	Input float64
	Lab   float64
}

type NormalizationMode int

const (
	NormalizeLstar NormalizationMode = iota
	NormalizeDensity
)

// ParseNormalizationMode maps "density" to NormalizeDensity and anything
// else to NormalizeLstar.
func ParseNormalizationMode(s string) NormalizationMode {
	if s == "density" {
		return NormalizeDensity
	}
	return NormalizeLstar
}

func (m NormalizationMode) String() string {
	if m == NormalizeDensity {
		return "density"
	}
	return "lstar"
}

// MeasuredPairs is a correction derived from measurements. Derived is the
// 256 sample linearization rebuilt from Pairs, Preview the same rebuilt with
// a widened smoothing kernel.
type MeasuredPairs struct {
	Pairs   []MeasuredPair
	Mode    NormalizationMode
	Derived []float64
	Preview []float64
}

func (MeasuredPairs) sourceKind() string { return "measured" }

// Entry is an immutable correction. Construct it with NewEntry,
// NewSamplesEntry or NewMeasuredEntry, then fill in the metadata fields.
type Entry struct {
	DomainMin, DomainMax    float64
	SourceSpace             types.SourceSpace
	Format                  types.Format
	Filename                string
	Interpolation           types.Interpolation
	PreviewSmoothingPercent float64
	// Baked entries have already been applied into the channel curves.
	Baked bool

	source     Source
	resolved   []float64
	candidates [][]float64
}

func non_empty(arrays ...[]float64) (ans [][]float64) {
	for _, a := range arrays {
		if len(a) > 0 {
			ans = append(ans, a)
		}
	}
	return
}

// NewEntry wraps src with a [0,1] printer-space domain and PCHIP
// interpolation, resolving the sample priority once.
func NewEntry(src Source) *Entry {
	e := &Entry{DomainMax: 1, source: src}
	switch s := src.(type) {
	case Samples:
		e.candidates = non_empty(s.Values, s.Preview, s.Original)
	case *Samples:
		e.candidates = non_empty(s.Values, s.Preview, s.Original)
	case MeasuredPairs:
		e.candidates = non_empty(s.Derived, s.Preview)
	case *MeasuredPairs:
		e.candidates = non_empty(s.Derived, s.Preview)
	}
	for i, c := range e.candidates {
		e.candidates[i] = slices.Clone(c)
	}
	if len(e.candidates) > 0 {
		e.resolved = e.candidates[0]
	}
	return e
}

// NewSamplesEntry wraps values as a sample correction, taking its format
// from the extension of filename.
func NewSamplesEntry(values []float64, filename string) *Entry {
	e := NewEntry(Samples{Values: values, Original: values})
	e.Filename = filename
	e.Format = types.FormatForFilename(filename)
	return e
}

// NewMeasuredEntry rebuilds a linearization from measurement pairs using
// the configured baseline smoothing and, when the configuration asks for
// it, a widened preview.
func NewMeasuredEntry(pairs []MeasuredPair, filename string, cfg config.Configuration) (*Entry, error) {
	mode := ParseNormalizationMode(cfg.Lab.Normalization)
	derived, err := RebuildFromPairs(pairs, mode, BaselineWidenFactor(cfg))
	if err != nil {
		return nil, err
	}
	src := MeasuredPairs{Pairs: slices.Clone(pairs), Mode: mode, Derived: derived}
	if cfg.Lab.SmoothingPercent > 0 {
		if src.Preview, err = RebuildFromPairs(pairs, mode, WidenFactor(cfg.Lab.SmoothingPercent)); err != nil {
			return nil, err
		}
	}
	e := NewEntry(src)
	e.Filename = filename
	e.Format = types.LAB
	e.PreviewSmoothingPercent = cfg.Lab.SmoothingPercent
	return e, nil
}

func (e *Entry) Source() Source { return e.source }

// IsMeasured reports whether the entry carries measurement pairs.
func (e *Entry) IsMeasured() bool { return len(e.MeasuredPairs()) > 0 }

// ResolvedSamples returns a copy of the highest priority non-empty sample
// array.
func (e *Entry) ResolvedSamples() []float64 {
	if e == nil {
		return nil
	}
	return slices.Clone(e.resolved)
}

// CandidateArrays returns copies of every non-empty sample array in
// priority order.
func (e *Entry) CandidateArrays() [][]float64 {
	if e == nil {
		return nil
	}
	ans := make([][]float64, len(e.candidates))
	for i, c := range e.candidates {
		ans[i] = slices.Clone(c)
	}
	return ans
}

// MeasuredPairs returns a copy of the measurements the entry was derived
// from, nil for sample corrections.
func (e *Entry) MeasuredPairs() []MeasuredPair {
	if e == nil {
		return nil
	}
	switch s := e.source.(type) {
	case MeasuredPairs:
		return slices.Clone(s.Pairs)
	case *MeasuredPairs:
		return slices.Clone(s.Pairs)
	}
	return nil
}

// PointCount is the number of measured points, or of resolved samples for
// entries without measurements.
func (e *Entry) PointCount() int {
	if e == nil {
		return 0
	}
	if p := e.MeasuredPairs(); len(p) > 0 {
		return len(p)
	}
	return len(e.resolved)
}

// Domain returns the entry's domain, falling back to [0,1] when it is
// degenerate or not finite.
func (e *Entry) Domain() (lo, hi float64) {
	lo, hi = e.DomainMin, e.DomainMax
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo == hi {
		return 0, 1
	}
	return
}

func (e *Entry) String() string {
	return fmt.Sprintf("Entry{%s %s %d points}", e.Format, e.Filename, e.PointCount())
}
