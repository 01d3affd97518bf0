package correction

import (
	"fmt"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

func open_fixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open("../testdata/" + name)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func is_non_decreasing(s []float64) bool {
	for i := 1; i < len(s); i++ {
		if s[i] < s[i-1] {
			return false
		}
	}
	return true
}

func TestToPrinterSpace(t *testing.T) {
	got := ToPrinterSpace([]float64{0.13208, 1}, types.SpaceImage)
	assert.InDelta(t, 0, got[0], 1e-12)
	assert.InDelta(t, 0.86792, got[1], 1e-12)
	got = ToPrinterSpace([]float64{-0.5, 0.25, math.NaN(), 1.5}, types.SpacePrinter)
	if diff := cmp.Diff([]float64{0, 0.25, 0, 1}, got); diff != "" {
		t.Fatalf("printer space samples changed (-want +got):\n%s", diff)
	}
	src := []float64{0.2, 0.9}
	a := AnchorEndpoints(src)
	assert.Equal(t, []float64{0, 1}, a)
	assert.Equal(t, []float64{0.2, 0.9}, src)
	assert.Empty(t, AnchorEndpoints(nil))
}

func TestSmoothSamples(t *testing.T) {
	src := make([]float64, 33)
	for i := range src {
		if i >= 16 {
			src[i] = 1
		}
	}
	assert.Equal(t, src, SmoothSamples(src, 0))
	got := SmoothSamples(src, 50)
	assert.Equal(t, 0.0, got[0])
	assert.Equal(t, 1.0, got[32])
	assert.Greater(t, got[15], 0.0)
	assert.Less(t, got[16], 1.0)
	assert.True(t, is_non_decreasing(got))
}

func TestEntryCandidates(t *testing.T) {
	preview, original := []float64{0, 0.4, 0.8}, []float64{0, 0.5, 1}
	e := NewEntry(Samples{Preview: preview, Original: original})
	assert.Equal(t, preview, e.ResolvedSamples())
	assert.Equal(t, [][]float64{preview, original}, e.CandidateArrays())
	assert.Equal(t, 3, e.PointCount())
	assert.False(t, e.IsMeasured())
	got := e.ResolvedSamples()
	got[1] = 99
	assert.Equal(t, 0.4, e.ResolvedSamples()[1], "accessors return copies")
	preview[1] = 42
	assert.Equal(t, 0.4, e.ResolvedSamples()[1], "entry does not alias caller arrays")

	e = NewSamplesEntry([]float64{0, 1}, "curve.acv")
	assert.Equal(t, types.ACV, e.Format)
	lo, hi := e.Domain()
	assert.Equal(t, [2]float64{0, 1}, [2]float64{lo, hi})

	var missing *Entry
	assert.Nil(t, missing.ResolvedSamples())
	assert.Zero(t, missing.PointCount())
	assert.Empty(t, NewEntry(Samples{}).CandidateArrays())
}

func TestParseCube1D(t *testing.T) {
	t.Run("negative lut without anchoring", func(t *testing.T) {
		e, err := ParseCube1D(open_fixture(t, "negative.cube"), "negative.cube", config.Defaults())
		require.NoError(t, err)
		s := e.ResolvedSamples()
		require.Len(t, s, 2)
		assert.InDelta(t, 0, s[0], 1e-9)
		assert.InDelta(t, 0.86792, s[1], 1e-9)
		assert.Equal(t, types.CUBE1D, e.Format)
		assert.Equal(t, types.SpacePrinter, e.SourceSpace)
		assert.Equal(t, types.PCHIP, e.Interpolation)
	})
	t.Run("negative lut with anchoring", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.CubeEndpointAnchoring = true
		e, err := ParseCube1D(open_fixture(t, "negative.cube"), "negative.cube", cfg)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1}, e.ResolvedSamples())
	})
	t.Run("image adjustment", func(t *testing.T) {
		e, err := ParseCube1D(open_fixture(t, "ImageAdjustment.cube"), "ImageAdjustment.cube", config.Defaults())
		require.NoError(t, err)
		s := e.ResolvedSamples()
		require.Len(t, s, 33)
		assert.True(t, is_non_decreasing(s))
		assert.Equal(t, 0.0, s[0])
		assert.Equal(t, 1.0, s[32])
	})
	t.Run("declared size truncates", func(t *testing.T) {
		e, err := ParseCube1D(strings.NewReader("LUT_1D_SIZE 2\n0 0 0\n0.5\n0.9\n"), "x.cube", config.Defaults())
		require.NoError(t, err)
		assert.Len(t, e.ResolvedSamples(), 2)
	})
	t.Run("degenerate domain", func(t *testing.T) {
		e, err := ParseCube1D(strings.NewReader("DOMAIN_MIN 1 1 1\nDOMAIN_MAX 1 1 1\n0\n1\n"), "x.cube", config.Defaults())
		require.NoError(t, err)
		assert.Equal(t, 0.0, e.DomainMin)
		assert.Equal(t, 1.0, e.DomainMax)
	})
	t.Run("errors", func(t *testing.T) {
		_, err := ParseCube1D(strings.NewReader("# nothing\n"), "x.cube", config.Defaults())
		require.ErrorIs(t, err, ErrNoSamples)
		_, err = ParseCube1D(strings.NewReader(strings.Repeat("0.5\n", MaxUndeclaredSamples+1)), "x.cube", config.Defaults())
		require.ErrorIs(t, err, ErrTooManySamples)
		_, err = ParseCube1D(strings.NewReader("LUT_3D_SIZE 17\n"), "x.cube", config.Defaults())
		require.ErrorContains(t, err, "3D")
	})
}

func TestDensity(t *testing.T) {
	assert.InDelta(t, 1, LstarToY(100), 1e-9)
	assert.InDelta(t, 0.18419, LstarToY(50), 1e-4)
	assert.InDelta(t, 0, LstarToDensity(100), 1e-9)
	assert.InDelta(t, 0.7347, LstarToDensity(50), 1e-3)
	assert.InDelta(t, 6, LstarToDensity(0), 1e-9, "density is capped at the reflectance floor")

	pairs := []MeasuredPair{{0, 95}, {50, 50}, {100, 5}}
	l := NormalizeMeasurements(pairs, NormalizeLstar)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, l, 1e-9)
	d := NormalizeMeasurements(pairs, NormalizeDensity)
	assert.Equal(t, 0.0, d[0])
	assert.Equal(t, 1.0, d[2])
	assert.Less(t, d[1], l[1], "density compresses the midtones")
	assert.Nil(t, NormalizeMeasurements(nil, NormalizeLstar))
}

func TestWidenFactor(t *testing.T) {
	assert.Equal(t, 1.0, WidenFactor(0))
	assert.Equal(t, 1.2, WidenFactor(20))
	assert.Equal(t, 1.9, WidenFactor(150))
	cfg := config.Defaults()
	cfg.Lab.SmoothingPercent = 30
	assert.Equal(t, 1.0, BaselineWidenFactor(cfg))
	cfg.LabBaselineSmoothing = false
	assert.Equal(t, 1.3, BaselineWidenFactor(cfg))
}

func TestRebuildFromPairs(t *testing.T) {
	pairs := []MeasuredPair{{0, 99.2}, {12.5, 90.1}, {28, 68.4}, {47.5, 52.9}, {63, 39.8}, {81, 27.6}, {100, 5.5}}
	lut, err := RebuildFromPairs(pairs, NormalizeLstar, 1)
	require.NoError(t, err)
	require.Len(t, lut, types.CurveResolution)
	assert.Equal(t, 0.0, lut[0])
	assert.Equal(t, 1.0, lut[255])
	assert.True(t, is_non_decreasing(lut))

	t.Run("input scale", func(t *testing.T) {
		scaled := make([]MeasuredPair, len(pairs))
		for i, p := range pairs {
			scaled[i] = MeasuredPair{p.Input * 2.55, p.Lab}
		}
		got, err := RebuildFromPairs(scaled, NormalizeLstar, 1)
		require.NoError(t, err)
		assert.InDeltaSlice(t, lut, got, 1e-6)
	})
	t.Run("too few points", func(t *testing.T) {
		_, err := RebuildFromPairs(pairs[:1], NormalizeLstar, 1)
		require.ErrorIs(t, err, ErrNotEnoughPoints)
		_, err = RebuildFromPairs([]MeasuredPair{{50, 20}, {50, 80}}, NormalizeLstar, 1)
		require.ErrorIs(t, err, ErrNotEnoughPoints)
	})
}

func TestParseLabText(t *testing.T) {
	cfg := config.Defaults()
	cfg.Lab.SmoothingPercent = 40
	e, err := ParseLabText(open_fixture(t, "lab-sample.txt"), "lab-sample.txt", cfg)
	require.NoError(t, err)
	assert.True(t, e.IsMeasured())
	assert.Equal(t, 7, e.PointCount())
	assert.Equal(t, types.LAB, e.Format)
	assert.Len(t, e.CandidateArrays(), 2)

	baseline, err := RebuildFromPairs(e.MeasuredPairs(), NormalizeLstar, 1)
	require.NoError(t, err)
	assert.Equal(t, baseline, e.ResolvedSamples(), "baseline smoothing rebuilds without widening")
	preview, err := RebuildFromPairs(e.MeasuredPairs(), NormalizeLstar, WidenFactor(40))
	require.NoError(t, err)
	assert.Equal(t, preview, e.CandidateArrays()[1])

	cfg.LabBaselineSmoothing = false
	e, err = ParseLabText(open_fixture(t, "lab-sample.txt"), "lab-sample.txt", cfg)
	require.NoError(t, err)
	assert.Equal(t, preview, e.ResolvedSamples())

	_, err = ParseLabText(strings.NewReader("GRAY LAB_L\n0 95\n"), "one.txt", cfg)
	require.ErrorIs(t, err, ErrNotEnoughPoints)
	_, err = ParseLabText(strings.NewReader("0 95\n100 120\n"), "bad.txt", cfg)
	require.Error(t, err)
}
