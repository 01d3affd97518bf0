package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	quadgen "github.com/David-Marsh-Photo/quadGEN-sub001"
	"github.com/David-Marsh-Photo/quadGEN-sub001/autoraise"
	"github.com/David-Marsh-Photo/quadGEN-sub001/composite"
	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

type report struct {
	Version   string
	Channels  map[types.ChannelName]int
	Warnings  []string
	Coverage  composite.Summary `json:",omitempty"`
	AutoRaise *autoraise.Result `json:",omitempty"`
	Rerun     bool
}

func main() {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}()
	config_file := flag.String("config", "", "JSON configuration file")
	output_file := flag.String("o", "", "output .quad file, default input-corrected.quad")
	report_file := flag.String("report", "", "write a JSON report of coverage and auto-raise decisions")
	active_range := flag.Bool("active-range", false, "linearize within each channel's active range")
	anchor := flag.Bool("anchor", false, "anchor .cube endpoints to 0 and 1")
	auto_raise := flag.Bool("auto-raise", false, "raise ink limits a correction cannot fit under")
	mode := flag.String("weighting", "", "composite weighting mode: normalized, equal, isolated or momentum")
	smoothing := flag.Float64("smoothing", 0, "correction smoothing percent")
	interpolation := flag.String("interpolation", "pchip", "correction interpolation: pchip, cubic, linear or catmull-rom")
	verbose := flag.Bool("v", false, "verbose logging")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: quadgen [options] input.quad correction.{cube,txt}")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *version {
		fmt.Println("quadgen", quadgen.Version)
		return
	}
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)

	cfg := config.Defaults()
	if *config_file != "" {
		if cfg, err = config.LoadJSON(*config_file, nil); err != nil {
			return
		}
	}
	cfg = config.Merge(cfg, config.Configuration{
		ActiveRangeLinearization: *active_range, CubeEndpointAnchoring: *anchor, AutoRaiseInkLimitsOnImport: *auto_raise,
	})
	if *mode != "" {
		cfg.Composite.WeightingMode = *mode
	}
	if err = config.Validate(cfg); err != nil {
		return
	}

	input, correction_file := flag.Arg(0), flag.Arg(1)
	q, err := quadgen.OpenQuad(input)
	if err != nil {
		return
	}
	e, err := quadgen.OpenCorrection(correction_file, cfg)
	if err != nil {
		return
	}
	c := quadgen.New(cfg, logger)
	c.LoadQuad(q)
	out, err := c.ApplyCorrection(e, quadgen.ApplyOptions{
		SmoothingPercent: *smoothing,
		Interpolation:    types.ParseInterpolation(*interpolation),
		Status:           func(s string) { fmt.Fprintln(os.Stderr, s) },
	})
	if err != nil {
		return
	}
	dest := *output_file
	if dest == "" {
		dest = strings.TrimSuffix(input, ".quad") + "-corrected.quad"
	}
	result := c.Quad()
	if err = quadgen.SaveQuad(result, dest); err != nil {
		return
	}
	fmt.Println("Corrected .quad saved to:", dest)

	if *report_file != "" {
		r := report{Version: quadgen.Version.String(), Channels: result.Ends(), Warnings: out.Warnings, Coverage: c.CoverageSummary(), Rerun: out.Rerun}
		if out.AutoRaise.Evaluated {
			r.AutoRaise = &out.AutoRaise
		}
		var b []byte
		if b, err = json.MarshalIndent(r, "", "  "); err != nil {
			return
		}
		if err = os.WriteFile(*report_file, b, 0o666); err != nil {
			return
		}
		fmt.Println("Report saved to:", *report_file)
	}
}
