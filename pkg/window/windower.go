/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package window

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/numaproj/numawin/pkg/shared/mtime"
)

// ErrNoWindows is returned when an element is assigned to no windows by a strategy that does not
// permit dropping elements.
var ErrNoWindows = errors.New("element assigned to zero windows")

// Window is a logical bucket of event time. Implementations must be comparable values.
type Window interface {
	// StartTime returns the inclusive start of the window.
	StartTime() mtime.Time
	// EndTime returns the exclusive end of the window.
	EndTime() mtime.Time
	// MaxTimestamp returns the largest timestamp that falls into the window. Garbage collection and
	// the end-of-window trigger are based on it.
	MaxTimestamp() mtime.Time
	String() string
}

// IntervalWindow is the half open interval [Start, End).
type IntervalWindow struct {
	Start mtime.Time `json:"start"`
	End   mtime.Time `json:"end"`
}

var _ Window = IntervalWindow{}

// NewIntervalWindow returns the window [start, end).
func NewIntervalWindow(start, end mtime.Time) IntervalWindow {
	return IntervalWindow{Start: start, End: end}
}

func (w IntervalWindow) StartTime() mtime.Time {
	return w.Start
}

func (w IntervalWindow) EndTime() mtime.Time {
	return w.End
}

func (w IntervalWindow) MaxTimestamp() mtime.Time {
	return w.End - 1
}

// Intersects reports whether w and o share at least one timestamp.
func (w IntervalWindow) Intersects(o IntervalWindow) bool {
	return w.Start < o.End && o.Start < w.End
}

// Span returns the smallest window that covers both w and o.
func (w IntervalWindow) Span(o IntervalWindow) IntervalWindow {
	return IntervalWindow{Start: mtime.Min(w.Start, o.Start), End: mtime.Max(w.End, o.End)}
}

// Contains reports whether ts falls into the window.
func (w IntervalWindow) Contains(ts mtime.Time) bool {
	return w.Start <= ts && ts < w.End
}

func (w IntervalWindow) String() string {
	return fmt.Sprintf("[%v, %v)", w.Start, w.End)
}

// GlobalWindow is the single window that never closes before the end of time.
type GlobalWindow struct{}

var _ Window = GlobalWindow{}

func (GlobalWindow) StartTime() mtime.Time {
	return mtime.MinTimestamp
}

func (GlobalWindow) EndTime() mtime.Time {
	return mtime.EndOfGlobalWindowTime + 1
}

func (GlobalWindow) MaxTimestamp() mtime.Time {
	return mtime.EndOfGlobalWindowTime
}

func (GlobalWindow) String() string {
	return "[global]"
}

// Strategy represents the windowing strategy
type Strategy int

const (
	Fixed Strategy = iota
	Sliding
	Session
	Global
)

func (s Strategy) String() string {
	switch s {
	case Fixed:
		return "Fixed"
	case Sliding:
		return "Sliding"
	case Session:
		return "Session"
	case Global:
		return "Global"
	default:
		return "Unknown"
	}
}

// Fn assigns timestamps to windows. AssignWindows must be a pure function of the timestamp and the
// strategy parameters.
type Fn interface {
	// Strategy returns the window strategy
	Strategy() Strategy
	// AssignWindows returns the windows the timestamp belongs to.
	AssignWindows(ts mtime.Time) []Window
}

// MergingFn is a Fn whose windows may merge, e.g. sessions.
type MergingFn interface {
	Fn
	// MergeWindows partitions the given windows into groups that must be merged.
	// Windows which do not merge with anything are not part of the result.
	MergeWindows(windows []Window) []MergeResult
}

// Dropper is implemented by strategies that may legitimately assign an element to no window.
type Dropper interface {
	PermitsDropping() bool
}

// MergeResult is a group of windows that must be replaced by Result.
type MergeResult struct {
	ToBeMerged []Window
	Result     Window
}

// IsMerging reports whether fn merges windows.
func IsMerging(fn Fn) bool {
	_, ok := fn.(MergingFn)
	return ok
}

// Assign returns the windows for ts. Zero windows is an error unless the strategy permits dropping.
func Assign(fn Fn, ts mtime.Time) ([]Window, error) {
	windows := fn.AssignWindows(ts)
	if len(windows) == 0 {
		if d, ok := fn.(Dropper); ok && d.PermitsDropping() {
			return nil, nil
		}
		return nil, fmt.Errorf("%s strategy, timestamp %v: %w", fn.Strategy(), ts, ErrNoWindows)
	}
	return windows, nil
}

// MergeOverlapping merges interval windows that overlap, transitively, until no two windows in the
// result overlap. Only groups of two or more windows are returned. Windows that are not
// IntervalWindows are never merged.
func MergeOverlapping(windows []Window) []MergeResult {
	intervals := make([]IntervalWindow, 0, len(windows))
	seen := make(map[IntervalWindow]struct{}, len(windows))
	for _, w := range windows {
		iw, ok := w.(IntervalWindow)
		if !ok {
			continue
		}
		if _, dup := seen[iw]; dup {
			continue
		}
		seen[iw] = struct{}{}
		intervals = append(intervals, iw)
	}
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start == intervals[j].Start {
			return intervals[i].End < intervals[j].End
		}
		return intervals[i].Start < intervals[j].Start
	})

	var results []MergeResult
	var group []Window
	var span IntervalWindow
	flush := func() {
		if len(group) > 1 {
			results = append(results, MergeResult{ToBeMerged: group, Result: span})
		}
	}
	for _, iw := range intervals {
		if len(group) > 0 && span.Intersects(iw) {
			group = append(group, iw)
			span = span.Span(iw)
			continue
		}
		flush()
		group = []Window{iw}
		span = iw
	}
	flush()
	return results
}

// AlignedStart returns the largest start <= ts such that start-offset is a multiple of period.
// It is correct for timestamps before the epoch as well.
func AlignedStart(ts mtime.Time, period, offset time.Duration) mtime.Time {
	p := mtime.Time(period.Milliseconds())
	rem := (ts - mtime.Time(offset.Milliseconds())) % p
	if rem < 0 {
		rem += p
	}
	return ts - rem
}
