// Package autoraise lifts channel ink ceilings when a newly loaded
// correction asks for more ink than a channel is allowed, but only when the
// composite coverage of the last redistribution shows there is no room left
// to absorb the correction elsewhere.
package autoraise

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/David-Marsh-Photo/quadGEN-sub001/composite"
	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/correction"
	"github.com/David-Marsh-Photo/quadGEN-sub001/inklimit"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

type Reason string

const (
	NoCoverageData    Reason = "no-coverage-data"
	CoverageAvailable Reason = "coverage-available"
	HandoffAvailable  Reason = "handoff-available"
	CoverageExhausted Reason = "coverage-exhausted"
	EndLimited        Reason = "end-limited"
	Locked            Reason = "locked"
	DisabledChannel   Reason = "disabled-channel"
	WithinLimit       Reason = "within-limit"
)

type Scope string

const (
	Global  Scope = "global"
	Channel Scope = "channel"
)

// EnvironmentSource describes the loaded printer and channel state.
type EnvironmentSource interface {
	Channels() []types.ChannelName
	ChannelState(ch types.ChannelName) (inklimit.State, bool)
	// HasBaselineInk reports whether the channel carries ink in the loaded
	// curves or has a nonzero ceiling.
	HasBaselineInk(ch types.ChannelName) bool
}

// InkLimitSetter is implemented by *inklimit.Store.
type InkLimitSetter interface {
	EnsureInkLimitForAbsoluteTarget(ch string, targetPercent float64, opts inklimit.EnsureOptions) *inklimit.Adjustment
}

// CoverageSource is implemented by *composite.Session.
type CoverageSource interface {
	CoverageSummary() composite.Summary
}

// SummarySink is implemented by *composite.DebugStore.
type SummarySink interface {
	SetCompositeAutoRaiseSummary(entries []composite.SummaryEntry, meta composite.SummaryMeta)
}

type Options struct {
	Scope       Scope
	ChannelName string
	Label       string
	Source      string
	// EpsilonPercent defaults to the configured tolerance.
	EpsilonPercent *float64
	// Quiet suppresses the status messages sent to Status.
	Quiet bool
	// SkipLockedNotice leaves locked channels out of the status messages.
	SkipLockedNotice bool
	Status           func(string)
}

type Context struct {
	Scope       Scope
	ChannelName string
	Label       string
	Source      string
}

type Adjustment struct {
	Channel                     types.ChannelName
	PreviousPercent, NewPercent float64
	DesiredPercent              float64
	AbsoluteTarget              float64
	PreviousEnd, NewEnd         int
	Source                      string
	Reason                      Reason
	Coverage                    *composite.CoverageSnapshot
}

type Blocked struct {
	Channel        types.ChannelName
	CurrentPercent float64
	DesiredPercent float64
	Reason         Reason
	Coverage       *composite.CoverageSnapshot
}

type Result struct {
	Enabled       bool
	Evaluated     bool
	TargetPercent float64
	Adjustments   []Adjustment
	Blocked       []Blocked
	Context       Context
	Coverage      composite.Summary
}

// Raised reports whether any ceiling was lifted.
func (r *Result) Raised() bool { return r != nil && len(r.Adjustments) > 0 }

func (r Result) clone() Result {
	r.Adjustments = append([]Adjustment(nil), r.Adjustments...)
	r.Blocked = append([]Blocked(nil), r.Blocked...)
	r.Coverage = r.Coverage.Clone()
	return r
}

// Run is the audit record of one MaybeAutoRaise call.
type Run struct {
	Result
	Timestamp time.Time
}

// AuditState keeps the last run of a coordinator.
type AuditState struct {
	mu       sync.Mutex
	last_run *Run
}

func (a *AuditState) record(r Result, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last_run = &Run{Result: r.clone(), Timestamp: at}
}

// LastRun returns a copy of the last recorded run.
func (a *AuditState) LastRun() (Run, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last_run == nil {
		return Run{}, false
	}
	return Run{Result: a.last_run.clone(), Timestamp: a.last_run.Timestamp}, true
}

func (a *AuditState) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last_run = nil
}

// ComputeTargetPercent is the peak of the correction as a percent. Arrays
// whose peak exceeds 1 are taken to be percentages already and anything
// above 100 is treated as 100.
func ComputeTargetPercent(e *correction.Entry) float64 {
	if e == nil {
		return 0
	}
	peak := 0.0
	for _, arr := range e.CandidateArrays() {
		for _, v := range arr {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				peak = math.Max(peak, v)
			}
		}
	}
	switch {
	case peak <= 0:
		return 0
	case peak > 100:
		return 100
	case peak > 1.0001:
		return peak
	}
	return math.Min(100, peak*100)
}

type Decision struct {
	AllowRaise bool
	Reason     Reason
	Coverage   *composite.CoverageSnapshot
}

func headroom(e composite.CoverageEntry) float64 { return math.Max(0, e.Headroom()) }

func has_partner_coverage(summary composite.Summary, ch types.ChannelName, target float64, tol config.AutoRaise) bool {
	for name, e := range summary {
		if name == ch {
			continue
		}
		if headroom(e) <= tol.HandoffTolerance+tol.FloatEpsilon {
			continue
		}
		if e.BufferedLimit+tol.TargetTolerance+tol.FloatEpsilon >= target {
			return true
		}
	}
	return false
}

// EvaluateCoverageDecision decides from the composite coverage whether ch
// needs a higher ceiling to reach targetNormalized. A channel with headroom
// left, or with a partner channel that can still absorb the correction, is
// not raised.
func EvaluateCoverageDecision(summary composite.Summary, ch string, targetNormalized float64, tol config.AutoRaise) Decision {
	if math.IsNaN(targetNormalized) || math.IsInf(targetNormalized, 0) {
		targetNormalized = 1
	}
	e, ok := summary.Lookup(ch)
	if !ok {
		return Decision{AllowRaise: true, Reason: NoCoverageData}
	}
	snap := composite.SnapshotOf(e)
	snap.Headroom = headroom(e)
	switch {
	case snap.Headroom > tol.HeadroomTolerance+tol.FloatEpsilon:
		return Decision{Reason: CoverageAvailable, Coverage: snap}
	case has_partner_coverage(summary, types.NormalizeChannel(ch), targetNormalized, tol):
		return Decision{Reason: HandoffAvailable, Coverage: snap}
	}
	return Decision{AllowRaise: true, Reason: CoverageExhausted, Coverage: snap}
}

// Coordinator runs auto-raise decisions against its collaborators. Any of
// them may be nil; without an environment or a setter nothing is evaluated.
type Coordinator struct {
	cfg      config.Configuration
	env      EnvironmentSource
	setter   InkLimitSetter
	coverage CoverageSource
	sink     SummarySink
	logger   *slog.Logger
	audit    AuditState
	now      func() time.Time
}

func NewCoordinator(cfg config.Configuration, env EnvironmentSource, setter InkLimitSetter, coverage CoverageSource, sink SummarySink, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{cfg: cfg, env: env, setter: setter, coverage: coverage, sink: sink, logger: logger, now: time.Now}
}

func (c *Coordinator) IsEnabled() bool { return c.cfg.AutoRaiseInkLimitsOnImport }

func (c *Coordinator) SetEnabled(enabled bool) { c.cfg.AutoRaiseInkLimitsOnImport = enabled }

func (c *Coordinator) Audit() *AuditState { return &c.audit }

// ClearAuditState forgets the last run.
func (c *Coordinator) ClearAuditState() { c.audit.Clear() }

func (c *Coordinator) finish(r Result) Result {
	c.audit.record(r, c.now())
	return r
}

func (c *Coordinator) resolve_channels(ctx Context) []types.ChannelName {
	if ctx.Scope == Channel && ctx.ChannelName != "" {
		return types.UniqueChannels(ctx.ChannelName)
	}
	names := make([]string, 0, 8)
	for _, ch := range c.env.Channels() {
		names = append(names, string(ch))
	}
	return types.UniqueChannels(names...)
}

// MaybeAutoRaise raises the ceilings of the channels in scope that cannot
// reach the peak of e. The decisions are reported to the summary sink and
// recorded as the last run.
func (c *Coordinator) MaybeAutoRaise(e *correction.Entry, opts Options) Result {
	ctx := Context{Scope: Global, ChannelName: opts.ChannelName, Label: opts.Label, Source: opts.Source}
	if opts.Scope == Channel {
		ctx.Scope = Channel
	}
	if ctx.Label == "" {
		ctx.Label = "correction"
	}
	if ctx.Source == "" {
		ctx.Source = "correction-import"
	}
	r := Result{Enabled: c.IsEnabled(), Context: ctx}
	if !r.Enabled || c.env == nil || c.setter == nil {
		return c.finish(r)
	}
	target := ComputeTargetPercent(e)
	r.Evaluated, r.TargetPercent = true, target
	if target <= 0 {
		return c.finish(r)
	}
	channels := c.resolve_channels(ctx)
	if len(channels) == 0 {
		return c.finish(r)
	}
	tol := c.cfg.AutoRaise
	eps := tol.EpsilonPercent
	if opts.EpsilonPercent != nil && !math.IsNaN(*opts.EpsilonPercent) {
		eps = math.Max(0, *opts.EpsilonPercent)
	}
	var summary composite.Summary
	if c.coverage != nil {
		summary = c.coverage.CoverageSummary()
	}
	r.Coverage = summary
	target_normalized := math.Max(0, math.Min(1, target/100))

	for _, ch := range channels {
		state, has_state := c.env.ChannelState(ch)
		if !c.env.HasBaselineInk(ch) {
			c.logger.Debug("auto-raise skipped disabled channel", "channel", ch, "percent", state.Percent)
			r.Blocked = append(r.Blocked, Blocked{Channel: ch, CurrentPercent: state.Percent, DesiredPercent: target, Reason: DisabledChannel})
			continue
		}
		d := EvaluateCoverageDecision(summary, string(ch), target_normalized, tol)
		if !d.AllowRaise && has_state && state.Percent+eps < target {
			d.AllowRaise, d.Reason = true, EndLimited
		}
		c.logger.Debug("auto-raise coverage decision", "channel", ch, "allow", d.AllowRaise, "reason", d.Reason, "target", target)
		if !d.AllowRaise {
			r.Blocked = append(r.Blocked, Blocked{Channel: ch, CurrentPercent: state.Percent, DesiredPercent: target, Reason: d.Reason, Coverage: d.Coverage})
			continue
		}
		eo := inklimit.EnsureOptions{
			EpsilonPercent: eps, Source: ctx.Source, EmitStatus: !opts.Quiet, Status: opts.Status,
			StatusFormatter: func(a inklimit.Adjustment) string {
				return fmt.Sprintf("%s ink limit changed to %s%% (auto-raised for %s)", ch, inklimit.FormatPercent(a.NewPercent), ctx.Label)
			},
		}
		if !opts.SkipLockedNotice {
			eo.LockedStatusFormatter = func(a inklimit.Adjustment) string {
				return fmt.Sprintf("%s ink limit locked at %s%% - auto-raise skipped (%s peaks at %s%%)", ch, inklimit.FormatPercent(a.CurrentPercent), ctx.Label, inklimit.FormatPercent(target))
			}
		}
		a := c.setter.EnsureInkLimitForAbsoluteTarget(string(ch), target, eo)
		if a == nil {
			continue
		}
		reason := d.Reason
		if reason == NoCoverageData {
			reason = EndLimited
		}
		switch {
		case a.Raised:
			r.Adjustments = append(r.Adjustments, Adjustment{
				Channel: ch, PreviousPercent: a.PreviousPercent, NewPercent: a.NewPercent, DesiredPercent: target,
				AbsoluteTarget: a.Absolute, PreviousEnd: a.PreviousEnd, NewEnd: a.NewEnd, Source: ctx.Source,
				Reason: reason, Coverage: d.Coverage,
			})
		case a.Locked:
			r.Blocked = append(r.Blocked, Blocked{Channel: ch, CurrentPercent: a.CurrentPercent, DesiredPercent: target, Reason: Locked, Coverage: d.Coverage})
		case reason != EndLimited:
			r.Blocked = append(r.Blocked, Blocked{Channel: ch, CurrentPercent: a.CurrentPercent, DesiredPercent: target, Reason: reason, Coverage: d.Coverage})
		}
	}
	if c.sink != nil {
		c.sink.SetCompositeAutoRaiseSummary(summary_entries(r), composite.SummaryMeta{
			Label: ctx.Label, Source: ctx.Source, TargetPercent: r.TargetPercent, Evaluated: r.Evaluated, Timestamp: c.now(),
		})
	}
	return c.finish(r)
}

func summary_entries(r Result) []composite.SummaryEntry {
	ans := make([]composite.SummaryEntry, 0, len(r.Adjustments)+len(r.Blocked))
	for _, a := range r.Adjustments {
		ans = append(ans, composite.SummaryEntry{
			Channel: string(a.Channel), PreviousPercent: a.PreviousPercent, NewPercent: a.NewPercent,
			DesiredPercent: a.DesiredPercent, CurrentPercent: a.NewPercent, Reason: string(a.Reason), Coverage: a.Coverage,
		})
	}
	for _, b := range r.Blocked {
		ans = append(ans, composite.SummaryEntry{
			Channel: string(b.Channel), PreviousPercent: b.CurrentPercent, NewPercent: b.CurrentPercent,
			DesiredPercent: b.DesiredPercent, CurrentPercent: b.CurrentPercent, Locked: b.Reason == Locked,
			Reason: string(b.Reason), Coverage: b.Coverage,
		})
	}
	return ans
}
