package composite

import (
	"slices"
	"sync"
	"time"

	"maps"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

// SummaryEntry is one channel of an auto-raise run as shown in the debug
// panel.
type SummaryEntry struct {
	Channel         string
	PreviousPercent float64
	NewPercent      float64
	DesiredPercent  float64
	CurrentPercent  float64
	Locked          bool
	Reason          string
	Coverage        *CoverageSnapshot
}

// CoverageSnapshot is the part of a CoverageEntry reported with auto-raise
// decisions.
type CoverageSnapshot struct {
	Limit, BufferedLimit, MaxNormalized, Headroom float64
}

func SnapshotOf(e CoverageEntry) *CoverageSnapshot {
	return &CoverageSnapshot{Limit: e.Limit, BufferedLimit: e.BufferedLimit, MaxNormalized: e.MaxNormalized, Headroom: e.Headroom()}
}

type SummaryMeta struct {
	Label, Source string
	TargetPercent float64
	Evaluated     bool
	Timestamp     time.Time
}

// DebugState is a copy of what the DebugStore holds.
type DebugState struct {
	Enabled          bool
	SessionID        int
	Snapshots        []Snapshot
	Weights          map[types.ChannelName]Weight
	WeightingMode    WeightingMode
	Selection        int
	AutoRaisedEnds   []SummaryEntry
	AutoRaiseContext *SummaryMeta
	LastUpdated      time.Time
}

// DebugStore keeps the diagnostics of the last redistribution and auto-raise
// run for display. Listeners are called synchronously after every change.
type DebugStore struct {
	mu        sync.Mutex
	state     DebugState
	listeners map[int]func(DebugState)
	next_id   int
	now       func() time.Time
}

func NewDebugStore(enabled bool) *DebugStore {
	return &DebugStore{state: DebugState{Enabled: enabled, Selection: -1}, listeners: map[int]func(DebugState){}, now: time.Now}
}

func (d *DebugStore) copy_state() DebugState {
	ans := d.state
	ans.Snapshots = slices.Clone(d.state.Snapshots)
	ans.Weights = maps.Clone(d.state.Weights)
	ans.AutoRaisedEnds = slices.Clone(d.state.AutoRaisedEnds)
	if d.state.AutoRaiseContext != nil {
		m := *d.state.AutoRaiseContext
		ans.AutoRaiseContext = &m
	}
	return ans
}

func (d *DebugStore) changed() {
	d.state.LastUpdated = d.now()
	s := d.copy_state()
	ls := make([]func(DebugState), 0, len(d.listeners))
	for _, id := range slices.Sorted(maps.Keys(d.listeners)) {
		ls = append(ls, d.listeners[id])
	}
	d.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
	d.mu.Lock()
}

func (d *DebugStore) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Enabled
}

func (d *DebugStore) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Enabled = enabled
	d.changed()
}

// SetCompositeAutoRaiseSummary records the entries and context of an
// auto-raise run.
func (d *DebugStore) SetCompositeAutoRaiseSummary(entries []SummaryEntry, meta SummaryMeta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.AutoRaisedEnds = slices.Clone(entries)
	d.state.AutoRaiseContext = &meta
	d.changed()
}

// StoreSession records the snapshots of a finalized redistribution. It is
// a no-op while the store is disabled.
func (d *DebugStore) StoreSession(r *Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.Enabled || r == nil {
		return
	}
	d.state.SessionID++
	d.state.Snapshots = slices.Clone(r.Snapshots)
	d.state.Weights = maps.Clone(r.Weights)
	d.state.WeightingMode = r.WeightingMode
	d.state.Selection = -1
	if len(r.Snapshots) > 0 {
		d.state.Selection = len(r.Snapshots) - 1
	}
	d.changed()
}

// Select chooses the snapshot shown, clamping index into range.
func (d *DebugStore) Select(index int) (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.state.Snapshots) == 0 {
		return Snapshot{}, false
	}
	d.state.Selection = max(0, min(len(d.state.Snapshots)-1, index))
	s := d.state.Snapshots[d.state.Selection]
	d.changed()
	return s, true
}

// Step moves the selection by delta snapshots.
func (d *DebugStore) Step(delta int) (Snapshot, bool) {
	d.mu.Lock()
	cur := d.state.Selection
	d.mu.Unlock()
	return d.Select(cur + delta)
}

func (d *DebugStore) State() DebugState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.copy_state()
}

// Reset clears everything except, when keepEnabled is set, the enabled flag.
func (d *DebugStore) Reset(keepEnabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	enabled := keepEnabled && d.state.Enabled
	d.state = DebugState{Enabled: enabled, Selection: -1}
	d.changed()
}

// Subscribe registers a listener and returns a function removing it.
func (d *DebugStore) Subscribe(l func(DebugState)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next_id
	d.next_id++
	d.listeners[id] = l
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}
