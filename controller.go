package quadgen

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/David-Marsh-Photo/quadGEN-sub001/autoraise"
	"github.com/David-Marsh-Photo/quadGEN-sub001/composite"
	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/correction"
	"github.com/David-Marsh-Photo/quadGEN-sub001/inklimit"
	"github.com/David-Marsh-Photo/quadGEN-sub001/lut"
	"github.com/David-Marsh-Photo/quadGEN-sub001/quadfile"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

var ErrNoQuad = errors.New("no .quad file is loaded")

type ApplyOptions struct {
	// Channels limits the correction to these channels, default every
	// inked channel.
	Channels           []string
	Interpolation      types.Interpolation
	SmoothingPercent   float64
	DensityOverrides   map[types.ChannelName]float64
	AutoComputeDensity bool
	WeightingMode      composite.WeightingMode
	// Label names the correction in status messages, default its filename.
	Label  string
	Status func(string)
}

type Outcome struct {
	Curves map[types.ChannelName]types.Curve
	// Composite is set when the correction was redistributed across
	// channels.
	Composite *composite.Result
	Warnings  []string
	AutoRaise autoraise.Result
	// Rerun is set when raised ceilings caused a second application.
	Rerun bool
}

// Controller owns a loaded .quad file and everything derived from it. It is
// safe for concurrent use; corrections are applied one at a time. Debug
// listeners and status callbacks run after the controller lock is released
// and may call back into the controller.
type Controller struct {
	mu      sync.Mutex
	pending []func()
	cfg     config.Configuration
	logger  *slog.Logger
	session *composite.Session
	limits  *inklimit.Store
	debug   *composite.DebugStore
	raiser  *autoraise.Coordinator
	base    *quadfile.File
	current *quadfile.File
}

func New(cfg config.Configuration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Controller{
		cfg: cfg, logger: logger,
		session: composite.NewSession(cfg, logger.With("component", "composite")),
		limits:  inklimit.NewStore(logger.With("component", "inklimit")),
		debug:   composite.NewDebugStore(false),
	}
	c.raiser = autoraise.NewCoordinator(cfg, c, c.limits, c.session, debug_sink{c}, logger.With("component", "autoraise"))
	return c
}

// notify runs f once the current ApplyCorrection has released the lock, or
// immediately outside of one.
func (c *Controller) notify(f func()) {
	if c.pending != nil {
		c.pending = append(c.pending, f)
		return
	}
	f()
}

type debug_sink struct{ c *Controller }

func (s debug_sink) SetCompositeAutoRaiseSummary(entries []composite.SummaryEntry, meta composite.SummaryMeta) {
	s.c.notify(func() { s.c.debug.SetCompositeAutoRaiseSummary(entries, meta) })
}

// LoadQuad replaces the loaded file and resets every ceiling to the
// maximum of its channel curve.
func (c *Controller) LoadQuad(f *quadfile.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base, c.current = f.Clone(), f.Clone()
	c.limits = inklimit.NewStore(c.logger.With("component", "inklimit"))
	for _, ch := range f.Channels {
		c.limits.SetEnd(string(ch), f.BaselineEnd[ch])
	}
	c.raiser = autoraise.NewCoordinator(c.cfg, c, c.limits, c.session, debug_sink{c}, c.logger.With("component", "autoraise"))
	c.logger.Debug("loaded quad", "channels", f.Channels, "inked", f.InkedChannels())
}

func (c *Controller) Limits() *inklimit.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits
}

func (c *Controller) Debug() *composite.DebugStore { return c.debug }

func (c *Controller) AutoRaise() *autoraise.Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raiser
}

// Quad returns a copy of the corrected file, or nil when nothing is loaded.
func (c *Controller) Quad() *quadfile.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.Clone()
}

func (c *Controller) Channels() []types.ChannelName {
	if c.base == nil {
		return nil
	}
	return append([]types.ChannelName(nil), c.base.Channels...)
}

func (c *Controller) ChannelState(ch types.ChannelName) (inklimit.State, bool) {
	return c.limits.Get(string(ch))
}

func (c *Controller) HasBaselineInk(ch types.ChannelName) bool {
	if c.base != nil && (c.base.BaselineEnd[ch] > 0 || c.base.Curves[ch].HasInk()) {
		return true
	}
	st, ok := c.limits.Get(string(ch))
	return ok && (st.Percent > 0 || st.End > 0)
}

func (c *Controller) CoverageSummary() composite.Summary { return c.session.CoverageSummary() }

// working_curves are the loaded curves scaled to the current ceilings.
func (c *Controller) working_curves(channels []types.ChannelName) (map[types.ChannelName]types.Curve, map[types.ChannelName]int) {
	curves := make(map[types.ChannelName]types.Curve, len(channels))
	ends := make(map[types.ChannelName]int, len(channels))
	for _, ch := range channels {
		base := c.base.Curves[ch]
		st, _ := c.limits.Get(string(ch))
		ends[ch] = st.End
		old := c.base.BaselineEnd[ch]
		if old <= 0 || st.End == old {
			curves[ch] = base.Clone()
			continue
		}
		scale := float64(st.End) / float64(old)
		scaled := types.NewCurve()
		for i, v := range base {
			scaled[i] = max(0, min(types.TOTAL, int(math.Round(float64(v)*scale))))
		}
		curves[ch] = scaled
	}
	return curves, ends
}

func (c *Controller) apply(e *correction.Entry, channels []types.ChannelName, opts ApplyOptions) (*Outcome, error) {
	curves, ends := c.working_curves(channels)
	out := &Outcome{Curves: curves}
	if e.IsMeasured() && len(channels) > 1 {
		bc := composite.BeginConfig{
			EndValues: ends, Entry: e, Interpolation: opts.Interpolation, SmoothingPercent: opts.SmoothingPercent,
			DensityOverrides: opts.DensityOverrides, AutoComputeDensity: opts.AutoComputeDensity,
			AnalysisOnly: e.Baked, WeightingMode: opts.WeightingMode,
		}
		for _, ch := range channels {
			bc.ChannelNames = append(bc.ChannelNames, string(ch))
		}
		if c.session.Begin(bc) {
			for _, ch := range channels {
				c.session.Register(composite.ChannelContext{Name: ch, CurrentEnd: ends[ch], Curve: curves[ch]})
			}
			if r, ok := c.session.Finalize(); ok {
				c.notify(func() { c.debug.StoreSession(r) })
				out.Composite, out.Warnings = r, r.Warnings
				for ch, curve := range r.Curves {
					out.Curves[ch] = curve
				}
				return out, nil
			}
		}
		c.logger.Debug("composite redistribution unavailable, applying per channel", "reason", c.session.LastRejection())
	}
	if e.Baked {
		return out, nil
	}
	p := lut.ParamsFor(e, 0)
	p.Interpolation = opts.Interpolation
	if opts.SmoothingPercent > 0 {
		p.SmoothingPercent = opts.SmoothingPercent
	}
	applied, err := lut.ApplyToChannels(curves, ends, e, p, c.cfg)
	if err != nil {
		return nil, err
	}
	out.Curves = applied
	return out, nil
}

// ApplyCorrection applies e to the loaded curves, auto-raising ceilings
// when enabled, and makes the result available from Quad.
func (c *Controller) ApplyCorrection(e *correction.Entry, opts ApplyOptions) (*Outcome, error) {
	out, pending, err := c.apply_correction(e, opts)
	for _, f := range pending {
		f()
	}
	return out, err
}

func (c *Controller) apply_correction(e *correction.Entry, opts ApplyOptions) (_ *Outcome, pending []func(), _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = []func(){}
	defer func() { pending, c.pending = c.pending, nil }()
	if status := opts.Status; status != nil {
		opts.Status = func(s string) { c.notify(func() { status(s) }) }
	}
	if c.base == nil {
		return nil, nil, ErrNoQuad
	}
	if e == nil || e.PointCount() < 2 {
		return nil, nil, composite.ErrUnusableCorrection
	}
	channels := c.base.InkedChannels()
	if len(opts.Channels) > 0 {
		channels = channels[:0]
		for _, ch := range types.UniqueChannels(opts.Channels...) {
			if _, ok := c.base.Curves[ch]; ok {
				channels = append(channels, ch)
			}
		}
	}
	out, err := c.apply(e, channels, opts)
	if err != nil {
		return nil, nil, err
	}
	if c.raiser.IsEnabled() {
		label := opts.Label
		if label == "" {
			label = e.Filename
		}
		ao := autoraise.Options{Label: label, Source: "correction-import", Status: opts.Status}
		if len(opts.Channels) == 1 {
			ao.Scope, ao.ChannelName = autoraise.Channel, opts.Channels[0]
		}
		out.AutoRaise = c.raiser.MaybeAutoRaise(e, ao)
		if out.AutoRaise.Raised() {
			c.logger.Info("ink limits raised, reapplying correction", "adjustments", len(out.AutoRaise.Adjustments))
			again, err := c.apply(e, channels, opts)
			if err != nil {
				return nil, nil, err
			}
			again.AutoRaise, again.Rerun = out.AutoRaise, true
			out = again
		}
	}
	c.current = c.base.Clone()
	for ch, curve := range out.Curves {
		c.current.Curves[ch] = curve.Clone()
	}
	for _, w := range out.Warnings {
		c.logger.Warn(w)
	}
	if len(out.Warnings) > 0 && opts.Status != nil {
		opts.Status(out.Warnings[0])
	}
	return out, nil, nil
}
