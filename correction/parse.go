package correction

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

// MaxUndeclaredSamples is the most samples a 1D LUT may list without a
// LUT_1D_SIZE line.
const MaxUndeclaredSamples = 256

func has_prefix_fold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func parse_floats(fields []string) (ans []float64) {
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			ans = append(ans, v)
		}
	}
	return
}

// ParseCube1D reads a 1D .cube LUT. Samples are taken from the first column
// of each data row, converted from image to printer space, clamped to
// [0,1] and, when cfg.CubeEndpointAnchoring is set, pinned to 0 and 1 at
// the ends.
func ParseCube1D(r io.Reader, filename string, cfg config.Configuration) (*Entry, error) {
	var samples []float64
	domain_min, domain_max := 0.0, 1.0
	declared := -1
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || has_prefix_fold(line, "TITLE") {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case has_prefix_fold(line, "LUT_3D_SIZE"):
			return nil, fmt.Errorf("%s: 3D LUTs are not supported as 1D corrections", filename)
		case has_prefix_fold(line, "LUT_1D_SIZE"):
			if len(fields) > 1 {
				if n, err := strconv.Atoi(fields[1]); err == nil {
					declared = n
				}
			}
			continue
		case has_prefix_fold(line, "DOMAIN_MIN"):
			if v := parse_floats(fields[1:]); len(v) > 0 {
				domain_min = v[0]
			}
			continue
		case has_prefix_fold(line, "DOMAIN_MAX"):
			if v := parse_floats(fields[1:]); len(v) > 0 {
				domain_max = v[0]
			}
			continue
		}
		if nums := parse_floats(fields); len(nums) >= 1 && len(nums) <= 3 {
			samples = append(samples, nums[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if declared < 0 && len(samples) > MaxUndeclaredSamples {
		return nil, fmt.Errorf("%s: %w: %d samples without LUT_1D_SIZE, limit is %d", filename, ErrTooManySamples, len(samples), MaxUndeclaredSamples)
	}
	if declared >= 0 && len(samples) >= declared {
		samples = samples[:declared]
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoSamples)
	}
	printer := ToPrinterSpace(samples, types.SpaceImage)
	if cfg.CubeEndpointAnchoring {
		printer = AnchorEndpoints(printer)
	}
	e := NewEntry(Samples{Values: printer, Original: printer})
	e.DomainMin, e.DomainMax = domain_min, domain_max
	e.DomainMin, e.DomainMax = e.Domain()
	e.Format = types.CUBE1D
	e.Filename = filename
	e.Interpolation = types.PCHIP
	e.SourceSpace = types.SpacePrinter
	return e, nil
}

// ParseLabText reads measurement pairs from whitespace separated rows of
// input level followed by L* (GRAY LAB_L [LAB_A LAB_B]). Header and comment
// lines are skipped. The result is rebuilt into a linearization with
// NewMeasuredEntry.
func ParseLabText(r io.Reader, filename string, cfg config.Configuration) (*Entry, error) {
	var pairs []MeasuredPair
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
		nums := parse_floats(fields)
		if len(nums) < 2 || len(nums) != len(fields) {
			continue
		}
		if nums[1] < 0 || nums[1] > 100 {
			return nil, fmt.Errorf("%s: L* value %v out of range in line %q", filename, nums[1], line)
		}
		pairs = append(pairs, MeasuredPair{Input: nums[0], Lab: nums[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if len(pairs) < 2 {
		return nil, fmt.Errorf("%s: %w", filename, ErrNotEnoughPoints)
	}
	return NewMeasuredEntry(pairs, filename, cfg)
}
