// Package inklimit holds the per channel ink ceilings (percent and end
// value) together with their locks, and raises a ceiling to an absolute
// target when the lock allows it.
package inklimit

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"

	"maps"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

var _ = fmt.Print

// Lock caps the ceiling of a channel. A Locked channel is never raised;
// otherwise a positive PercentLimit or EndValue bounds any raise.
type Lock struct {
	Locked       bool
	PercentLimit float64
	EndValue     int
}

// State is the ceiling of one channel.
type State struct {
	Percent float64
	End     int
}

// Adjustment describes the outcome of EnsureInkLimitForAbsoluteTarget. When
// neither Raised nor Locked is set the channel already met the target.
type Adjustment struct {
	Raised, Locked              bool
	PreviousPercent, NewPercent float64
	CurrentPercent              float64
	PreviousEnd, NewEnd         int

	// Absolute is the target the ceiling was raised towards.
	Absolute float64
}

type EnsureOptions struct {
	EpsilonPercent float64
	Source         string
	// EmitStatus sends the formatted messages to Status.
	EmitStatus            bool
	StatusFormatter       func(Adjustment) string
	LockedStatusFormatter func(Adjustment) string
	Status                func(string)
}

func (o EnsureOptions) emit(f func(Adjustment) string, a Adjustment) {
	if o.EmitStatus && o.Status != nil && f != nil {
		if msg := f(a); msg != "" {
			o.Status(msg)
		}
	}
}

// FormatPercent renders a percent with at most two decimals.
func FormatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // no negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// PercentToEnd converts a ceiling percent to an end value in [0, TOTAL].
func PercentToEnd(percent float64) int {
	return int(math.Round(math.Max(0, math.Min(100, percent)) / 100 * types.TOTAL))
}

func EndToPercent(end int) float64 {
	return float64(max(0, min(types.TOTAL, end))) / types.TOTAL * 100
}

type Store struct {
	mu     sync.Mutex
	logger *slog.Logger
	states map[types.ChannelName]State
	locks  map[types.ChannelName]Lock
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{logger: logger, states: map[types.ChannelName]State{}, locks: map[types.ChannelName]Lock{}}
}

// Set sets the ceiling of ch from a percent.
func (s *Store) Set(ch string, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	percent = math.Max(0, math.Min(100, percent))
	s.states[types.NormalizeChannel(ch)] = State{Percent: percent, End: PercentToEnd(percent)}
}

// SetEnd sets the ceiling of ch from an end value.
func (s *Store) SetEnd(ch string, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end = max(0, min(types.TOTAL, end))
	s.states[types.NormalizeChannel(ch)] = State{Percent: EndToPercent(end), End: end}
}

func (s *Store) Get(ch string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[types.NormalizeChannel(ch)]
	return st, ok
}

func (s *Store) SetLock(ch string, l Lock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[types.NormalizeChannel(ch)] = l
}

func (s *Store) Lock(ch string) Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[types.NormalizeChannel(ch)]
}

// Channels returns the channels with a ceiling, sorted.
func (s *Store) Channels() []types.ChannelName {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.states))
}

func (s *Store) Snapshot() map[types.ChannelName]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.states)
}

// cap_percent is the highest percent l allows, 100 when unbounded.
func (l Lock) cap_percent() float64 {
	ans := 100.0
	if l.PercentLimit > 0 {
		ans = math.Min(ans, l.PercentLimit)
	}
	if l.EndValue > 0 {
		ans = math.Min(ans, EndToPercent(l.EndValue))
	}
	return ans
}

// EnsureInkLimitForAbsoluteTarget raises the ceiling of ch so that it
// reaches targetPercent. It returns nil for unknown channels. A channel
// whose ceiling is already within opts.EpsilonPercent of the target is left
// alone. Locked channels, and channels whose lock caps the raise at or
// below the current ceiling, report Locked.
func (s *Store) EnsureInkLimitForAbsoluteTarget(ch string, targetPercent float64, opts EnsureOptions) *Adjustment {
	name := types.NormalizeChannel(ch)
	if math.IsNaN(targetPercent) || math.IsInf(targetPercent, 0) {
		return nil
	}
	target := math.Max(0, math.Min(100, targetPercent))
	s.mu.Lock()
	st, ok := s.states[name]
	lock := s.locks[name]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	a := Adjustment{
		PreviousPercent: st.Percent, NewPercent: st.Percent, CurrentPercent: st.Percent,
		Absolute: target, PreviousEnd: st.End, NewEnd: st.End,
	}
	eps := math.Max(0, opts.EpsilonPercent)
	if st.Percent+eps >= target {
		s.mu.Unlock()
		return &a
	}
	limit := lock.cap_percent()
	if lock.Locked || limit <= st.Percent+eps {
		s.mu.Unlock()
		a.Locked = true
		s.logger.Debug("ink limit locked", "channel", name, "current", st.Percent, "target", target, "source", opts.Source)
		opts.emit(opts.LockedStatusFormatter, a)
		return &a
	}
	a.NewPercent = math.Min(target, limit)
	a.NewEnd = PercentToEnd(a.NewPercent)
	a.CurrentPercent = a.NewPercent
	a.Raised = true
	s.states[name] = State{Percent: a.NewPercent, End: a.NewEnd}
	s.mu.Unlock()
	s.logger.Debug("ink limit raised", "channel", name, "from", a.PreviousPercent, "to", a.NewPercent, "end", a.NewEnd, "source", opts.Source)
	opts.emit(opts.StatusFormatter, a)
	return &a
}
