package autoraise

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Marsh-Photo/quadGEN-sub001/composite"
	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/correction"
	"github.com/David-Marsh-Photo/quadGEN-sub001/inklimit"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

type env struct {
	channels []types.ChannelName
	store    *inklimit.Store
	inked    map[types.ChannelName]bool
}

func (e *env) Channels() []types.ChannelName { return e.channels }
func (e *env) ChannelState(ch types.ChannelName) (inklimit.State, bool) {
	return e.store.Get(string(ch))
}
func (e *env) HasBaselineInk(ch types.ChannelName) bool { return e.inked[ch] }

type counting_setter struct {
	*inklimit.Store
	calls []string
}

func (c *counting_setter) EnsureInkLimitForAbsoluteTarget(ch string, target float64, opts inklimit.EnsureOptions) *inklimit.Adjustment {
	c.calls = append(c.calls, ch)
	return c.Store.EnsureInkLimitForAbsoluteTarget(ch, target, opts)
}

type coverage composite.Summary

func (c coverage) CoverageSummary() composite.Summary { return composite.Summary(c).Clone() }

type fixture struct {
	env    *env
	setter *counting_setter
	sink   *composite.DebugStore
	c      *Coordinator
}

// new_fixture has K at 60%, C at 50% and MK at 45%, all inked.
func new_fixture(summary composite.Summary) *fixture {
	cfg := config.Defaults()
	cfg.AutoRaiseInkLimitsOnImport = true
	store := inklimit.NewStore(nil)
	store.Set("K", 60)
	store.Set("C", 50)
	store.Set("MK", 45)
	store.Set("LK", 0)
	f := &fixture{
		env:    &env{channels: []types.ChannelName{"K", "C", "MK", "LK"}, store: store, inked: map[types.ChannelName]bool{"K": true, "C": true, "MK": true}},
		setter: &counting_setter{Store: store},
		sink:   composite.NewDebugStore(true),
	}
	f.c = NewCoordinator(cfg, f.env, f.setter, coverage(summary), f.sink, nil)
	f.c.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func samples(v ...float64) *correction.Entry { return correction.NewSamplesEntry(v, "test.txt") }

func TestComputeTargetPercent(t *testing.T) {
	assert.Zero(t, ComputeTargetPercent(nil))
	assert.Zero(t, ComputeTargetPercent(samples()))
	assert.Zero(t, ComputeTargetPercent(samples(0, -1)))
	assert.InDelta(t, 75, ComputeTargetPercent(samples(0, 0.25, 0.5, 0.75)), 1e-9)
	assert.InDelta(t, 1.5, ComputeTargetPercent(samples(0, 1.2, 1.5)), 1e-9)
	assert.Equal(t, 100.0, ComputeTargetPercent(samples(0, 30000)))
	assert.Equal(t, 100.0, ComputeTargetPercent(samples(0, 1.0001)))
	e := correction.NewEntry(correction.Samples{Values: []float64{0, 0.5}, Preview: []float64{0, 0.9}})
	assert.InDelta(t, 90, ComputeTargetPercent(e), 1e-9, "all candidate arrays are considered")
}

func TestEvaluateCoverageDecision(t *testing.T) {
	tol := config.Defaults().AutoRaise
	summary := composite.Summary{
		"K":  {Limit: 0.815, BufferedLimit: 0.81, MaxNormalized: 0.808},
		"MK": {Limit: 0.97, BufferedLimit: 0.97, MaxNormalized: 0.71},
		"C":  {Limit: 0.6, BufferedLimit: 0.6, MaxNormalized: 0.3},
	}
	d := EvaluateCoverageDecision(summary, "y", 0.9, tol)
	assert.Equal(t, Decision{AllowRaise: true, Reason: NoCoverageData}, d)

	d = EvaluateCoverageDecision(summary, "c", 0.9, tol)
	assert.Equal(t, CoverageAvailable, d.Reason)
	assert.False(t, d.AllowRaise)
	require.NotNil(t, d.Coverage)
	assert.InDelta(t, 0.3, d.Coverage.Headroom, 1e-12)

	d = EvaluateCoverageDecision(summary, "K", 0.92, tol)
	assert.Equal(t, HandoffAvailable, d.Reason)
	d = EvaluateCoverageDecision(summary, "K", 0.99, tol)
	assert.Equal(t, CoverageExhausted, d.Reason, "partner too low for the target")
	assert.True(t, d.AllowRaise)

	over := composite.Summary{"K": {Limit: 0.8, BufferedLimit: 0.795, MaxNormalized: 0.8}}
	d = EvaluateCoverageDecision(over, "K", 0.9, tol)
	assert.Zero(t, d.Coverage.Headroom, "headroom is never negative")
	assert.Equal(t, CoverageExhausted, d.Reason)
}

func TestDisabledByDefault(t *testing.T) {
	f := new_fixture(nil)
	c := NewCoordinator(config.Defaults(), f.env, f.setter, nil, f.sink, nil)
	assert.False(t, c.IsEnabled())
	r := c.MaybeAutoRaise(samples(0, 0.9), Options{})
	assert.False(t, r.Enabled)
	assert.False(t, r.Evaluated)
	assert.Empty(t, r.Adjustments)
	assert.Empty(t, f.setter.calls)
	run, ok := c.Audit().LastRun()
	require.True(t, ok)
	assert.False(t, run.Evaluated)
	assert.Equal(t, "correction", run.Context.Label)
	c.ClearAuditState()
	_, ok = c.Audit().LastRun()
	assert.False(t, ok)

	c = NewCoordinator(f.c.cfg, nil, f.setter, nil, nil, nil)
	r = c.MaybeAutoRaise(samples(0, 0.9), Options{})
	assert.True(t, r.Enabled)
	assert.False(t, r.Evaluated, "nothing is evaluated without an environment")
}

func TestCoverageGating(t *testing.T) {
	t.Run("headroom remains", func(t *testing.T) {
		f := new_fixture(composite.Summary{"K": {Limit: 0.815, BufferedLimit: 0.82, MaxNormalized: 0.62}})
		f.env.store.Set("K", 90)
		r := f.c.MaybeAutoRaise(samples(0, 0.85), Options{Scope: Channel, ChannelName: "K", Label: "coverage test"})
		assert.True(t, r.Evaluated)
		assert.InDelta(t, 85, r.TargetPercent, 1e-9)
		assert.Empty(t, f.setter.calls)
		assert.Empty(t, r.Adjustments)
		require.Len(t, r.Blocked, 1)
		assert.Equal(t, CoverageAvailable, r.Blocked[0].Reason)
		assert.Equal(t, 90.0, r.Blocked[0].CurrentPercent)
	})
	t.Run("exhausted everywhere", func(t *testing.T) {
		f := new_fixture(composite.Summary{
			"K": {Limit: 0.805, BufferedLimit: 0.81, MaxNormalized: 0.805},
			"C": {Limit: 0.81, BufferedLimit: 0.81, MaxNormalized: 0.81},
		})
		var status []string
		r := f.c.MaybeAutoRaise(samples(0, 0.9), Options{Scope: Channel, ChannelName: "k", Label: "coverage exhaustion", Status: func(s string) { status = append(status, s) }})
		assert.Equal(t, []string{"K"}, f.setter.calls)
		require.Len(t, r.Adjustments, 1)
		a := r.Adjustments[0]
		assert.Equal(t, types.ChannelName("K"), a.Channel)
		assert.Equal(t, CoverageExhausted, a.Reason)
		assert.Equal(t, 60.0, a.PreviousPercent)
		assert.InDelta(t, 90, a.NewPercent, 1e-9)
		assert.Equal(t, inklimit.PercentToEnd(90), a.NewEnd)
		assert.Equal(t, []string{"K ink limit changed to 90% (auto-raised for coverage exhaustion)"}, status)
		st, _ := f.env.store.Get("K")
		assert.InDelta(t, 90, st.Percent, 1e-9)
		assert.True(t, r.Raised())
	})
	t.Run("partner has headroom", func(t *testing.T) {
		f := new_fixture(composite.Summary{
			"K":  {Limit: 0.81, BufferedLimit: 0.81, MaxNormalized: 0.809},
			"MK": {Limit: 0.97, BufferedLimit: 0.97, MaxNormalized: 0.71},
		})
		f.env.store.Set("K", 92)
		r := f.c.MaybeAutoRaise(samples(0, 0.92), Options{Scope: Channel, ChannelName: "K"})
		assert.Empty(t, f.setter.calls)
		require.Len(t, r.Blocked, 1)
		assert.Equal(t, HandoffAvailable, r.Blocked[0].Reason)
	})
	t.Run("end limited overrides coverage", func(t *testing.T) {
		f := new_fixture(composite.Summary{"K": {Limit: 0.815, BufferedLimit: 0.82, MaxNormalized: 0.62}})
		r := f.c.MaybeAutoRaise(samples(0, 0.85), Options{Scope: Channel, ChannelName: "K"})
		assert.Equal(t, []string{"K"}, f.setter.calls)
		require.Len(t, r.Adjustments, 1)
		assert.Equal(t, EndLimited, r.Adjustments[0].Reason)
	})
}

func TestGlobalScope(t *testing.T) {
	f := new_fixture(nil)
	f.env.store.Set("C", 95)
	f.env.store.SetLock("MK", inklimit.Lock{Locked: true})
	var status []string
	r := f.c.MaybeAutoRaise(samples(0, 0.4, 0.9), Options{Label: "negative.cube", Source: "cli", Status: func(s string) { status = append(status, s) }})
	require.Len(t, r.Adjustments, 1)
	assert.Equal(t, types.ChannelName("K"), r.Adjustments[0].Channel)
	assert.Equal(t, EndLimited, r.Adjustments[0].Reason, "missing coverage is reported as end limited")
	assert.Equal(t, "cli", r.Adjustments[0].Source)

	reasons := map[types.ChannelName]Reason{}
	for _, b := range r.Blocked {
		reasons[b.Channel] = b.Reason
	}
	assert.Equal(t, map[types.ChannelName]Reason{"MK": Locked, "LK": DisabledChannel}, reasons, "C is within its limit")
	assert.Equal(t, []string{"K", "C", "MK"}, f.setter.calls)
	assert.Contains(t, status, "MK ink limit locked at 45% - auto-raise skipped (negative.cube peaks at 90%)")

	state := f.sink.State()
	require.NotNil(t, state.AutoRaiseContext)
	assert.Equal(t, "negative.cube", state.AutoRaiseContext.Label)
	assert.True(t, state.AutoRaiseContext.Evaluated)
	require.Len(t, state.AutoRaisedEnds, 3)
	idx := slices.IndexFunc(state.AutoRaisedEnds, func(e composite.SummaryEntry) bool { return e.Channel == "MK" })
	require.GreaterOrEqual(t, idx, 0)
	mk := state.AutoRaisedEnds[idx]
	assert.True(t, mk.Locked)
	assert.Equal(t, 45.0, mk.PreviousPercent)
	assert.Equal(t, mk.PreviousPercent, mk.NewPercent)
	k := state.AutoRaisedEnds[0]
	assert.Equal(t, "K", k.Channel)
	assert.False(t, k.Locked)
	assert.Equal(t, k.NewPercent, k.CurrentPercent)

	run, ok := f.c.Audit().LastRun()
	require.True(t, ok)
	assert.Len(t, run.Adjustments, 1)
	assert.Equal(t, f.c.now(), run.Timestamp)
}

func TestEpsilonOption(t *testing.T) {
	f := new_fixture(nil)
	f.env.store.Set("K", 89.5)
	eps := 1.0
	r := f.c.MaybeAutoRaise(samples(0, 0.9), Options{Scope: Channel, ChannelName: "K", EpsilonPercent: &eps})
	assert.Empty(t, r.Adjustments)
	assert.Empty(t, r.Blocked)
	r = f.c.MaybeAutoRaise(samples(0, 0.9), Options{Scope: Channel, ChannelName: "K"})
	require.Len(t, r.Adjustments, 1)
	assert.Equal(t, 89.5, r.Adjustments[0].PreviousPercent)
}

func TestStatusOptions(t *testing.T) {
	f := new_fixture(nil)
	f.env.store.SetLock("MK", inklimit.Lock{Locked: true})
	var status []string
	collect := func(s string) { status = append(status, s) }
	r := f.c.MaybeAutoRaise(samples(0, 0.9), Options{Label: "quiet.txt", Quiet: true, Status: collect})
	assert.Len(t, r.Adjustments, 2)
	assert.Empty(t, status)

	f.env.store.Set("K", 60)
	f.env.store.Set("C", 50)
	r = f.c.MaybeAutoRaise(samples(0, 0.9), Options{Label: "quiet.txt", SkipLockedNotice: true, Status: collect})
	assert.Len(t, r.Adjustments, 2)
	assert.Equal(t, []string{
		"K ink limit changed to 90% (auto-raised for quiet.txt)",
		"C ink limit changed to 90% (auto-raised for quiet.txt)",
	}, status)
}
