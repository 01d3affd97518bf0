package types

import (
	"fmt"
	"math"
	"strings"

	"fortio.org/safecast"
)

var _ = fmt.Print

// TOTAL is the full-scale value of a QuadToneRIP curve sample.
const TOTAL = 65535

// CurveResolution is the number of samples in a channel curve.
const CurveResolution = 256

// Curve is a channel ink curve, one value in [0, TOTAL] per input level i/255.
type Curve []int

func NewCurve() Curve { return make(Curve, CurveResolution) }

// Ramp returns a linear curve from 0 to end.
func Ramp(end int) Curve {
	ans := NewCurve()
	for i := range ans {
		ans[i] = int(math.Round(float64(i) / float64(CurveResolution-1) * float64(end)))
	}
	return ans
}

func (c Curve) Clone() Curve {
	if c == nil {
		return nil
	}
	ans := make(Curve, len(c))
	copy(ans, c)
	return ans
}

func (c Curve) Max() int {
	m := 0
	for _, v := range c {
		m = max(m, v)
	}
	return m
}

func (c Curve) HasInk() bool {
	for _, v := range c {
		if v > 0 {
			return true
		}
	}
	return false
}

// Clamped returns a copy of the curve with every value in [0, TOTAL].
func (c Curve) Clamped() Curve {
	ans := make(Curve, len(c))
	for i, v := range c {
		ans[i] = min(TOTAL, max(0, v))
	}
	return ans
}

// Uint16s converts the curve to raw sample values. Values outside
// [0, TOTAL] are an error.
func (c Curve) Uint16s() ([]uint16, error) {
	ans := make([]uint16, len(c))
	for i, v := range c {
		u, err := safecast.Conv[uint16](v)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		ans[i] = u
	}
	return ans, nil
}

// ChannelName is an upper-cased ink channel identifier such as K, LK or MK.
type ChannelName string

func NormalizeChannel(name string) ChannelName {
	return ChannelName(strings.ToUpper(strings.TrimSpace(name)))
}

// UniqueChannels normalizes names, dropping blanks and duplicates while
// preserving order.
func UniqueChannels(names ...string) []ChannelName {
	seen := make(map[ChannelName]bool, len(names))
	ans := make([]ChannelName, 0, len(names))
	for _, n := range names {
		c := NormalizeChannel(n)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		ans = append(ans, c)
	}
	return ans
}

// Format is a correction or curve file format.
type Format int

const (
	UNKNOWN Format = iota
	QUAD
	CUBE1D
	CUBE3D
	LAB
	ACV
	MANUAL_LSTAR
)

var FormatExts = map[string]Format{
	"quad":  QUAD,
	"cube":  CUBE1D,
	"txt":   LAB,
	"ti3":   LAB,
	"cgats": LAB,
	"acv":   ACV,
}

var formatNames = map[Format]string{
	QUAD:         "QuadToneRIP",
	CUBE1D:       "1D LUT",
	CUBE3D:       "3D LUT",
	LAB:          "LAB Data",
	ACV:          "Photoshop Curve",
	MANUAL_LSTAR: "Manual L*",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "Unknown"
}

// FormatForFilename guesses a format from a file extension.
func FormatForFilename(name string) Format {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return UNKNOWN
	}
	return FormatExts[strings.ToLower(name[idx+1:])]
}

// SourceSpace is the space correction samples are expressed in.
type SourceSpace int

const (
	SpacePrinter SourceSpace = iota
	SpaceImage
)

func (s SourceSpace) String() string {
	if s == SpaceImage {
		return "image"
	}
	return "printer"
}

// Interpolation selects the spline used to sample a correction.
type Interpolation int

const (
	PCHIP Interpolation = iota
	Cubic
	Linear
	CatmullRom
)

var interpolationNames = map[Interpolation]string{
	PCHIP:      "pchip",
	Cubic:      "cubic",
	Linear:     "linear",
	CatmullRom: "catmull",
}

func (i Interpolation) String() string { return interpolationNames[i] }

// ParseInterpolation maps a name to an Interpolation. Unknown names
// resolve to PCHIP.
func ParseInterpolation(name string) Interpolation {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear":
		return Linear
	case "cubic":
		return Cubic
	case "catmull", "catmull-rom":
		return CatmullRom
	default:
		return PCHIP
	}
}
