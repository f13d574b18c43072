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

package manager

import (
	"fmt"
	"sync"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/timers"
)

type holdKey struct {
	key    string
	window string
}

// stageState is the watermark accounting of one stage. All the fields are guarded by lock.
type stageState struct {
	id          string
	upstreams   []string
	downstreams []string

	lock sync.Mutex
	// input and output watermark
	input  mtime.Time
	output mtime.Time
	// synchronized processing input and output time
	syncInput  mtime.Time
	syncOutput mtime.Time
	// sourceWatermark is the upstream watermark of a root stage.
	sourceWatermark mtime.Time
	// latest output watermarks and synchronized output times pushed by the upstream stages.
	upstreamWatermarks map[string]mtime.Time
	upstreamSync       map[string]mtime.Time

	// pending are the timestamps of the elements which are buffered but not processed.
	pending *timeMultiset
	// holds of the windows with unemitted data.
	holds    map[holdKey]mtime.Time
	holdSet  *timeMultiset
	queues   map[timers.Domain]*timerQueue
	inflight map[timers.ID]queuedTimer
	// timerHolds are the holds of the pending and in-flight event time timers,
	// syncHolds the ones of the synchronized processing time timers.
	timerHolds *timeMultiset
	syncHolds  *timeMultiset
	done       bool
}

func newStageState(id string, upstreams []string) *stageState {
	ss := &stageState{
		id:                 id,
		upstreams:          upstreams,
		input:              mtime.MinTimestamp,
		output:             mtime.MinTimestamp,
		syncInput:          mtime.MinTimestamp,
		syncOutput:         mtime.MinTimestamp,
		sourceWatermark:    mtime.MinTimestamp,
		upstreamWatermarks: make(map[string]mtime.Time, len(upstreams)),
		upstreamSync:       make(map[string]mtime.Time, len(upstreams)),
		pending:            newTimeMultiset(),
		holds:              make(map[holdKey]mtime.Time),
		holdSet:            newTimeMultiset(),
		queues: map[timers.Domain]*timerQueue{
			timers.EventTime:                  newTimerQueue(),
			timers.ProcessingTime:             newTimerQueue(),
			timers.SynchronizedProcessingTime: newTimerQueue(),
		},
		inflight:   make(map[timers.ID]queuedTimer),
		timerHolds: newTimeMultiset(),
		syncHolds:  newTimeMultiset(),
	}
	for _, u := range upstreams {
		ss.upstreamWatermarks[u] = mtime.MinTimestamp
		ss.upstreamSync[u] = mtime.MinTimestamp
	}
	return ss
}

func (ss *stageState) isRoot() bool {
	return len(ss.upstreams) == 0
}

// upstreamWatermarkLocked returns the minimum of the upstream output watermarks.
func (ss *stageState) upstreamWatermarkLocked() mtime.Time {
	if ss.isRoot() {
		return ss.sourceWatermark
	}
	upstream := mtime.MaxTimestamp
	for _, wm := range ss.upstreamWatermarks {
		upstream = mtime.Min(upstream, wm)
	}
	return upstream
}

func (ss *stageState) upstreamSyncLocked(now mtime.Time) mtime.Time {
	if ss.isRoot() {
		return now
	}
	upstream := mtime.MaxTimestamp
	for _, t := range ss.upstreamSync {
		upstream = mtime.Min(upstream, t)
	}
	return upstream
}

func (ss *stageState) pendingTimersLocked() int {
	n := len(ss.inflight)
	for _, q := range ss.queues {
		n += q.len()
	}
	return n
}

// updateLocked recomputes the watermarks:
//
//	Input'  = MAX(Input, MIN(upstream output watermarks, pending element timestamps))
//	Output' = MAX(Output, MIN(Input', holds, event time timer holds))
//
// and the synchronized processing times the same way. It returns true if the output watermark or the
// synchronized output time advanced.
func (ss *stageState) updateLocked(now mtime.Time) bool {
	newIn := mtime.Min(ss.upstreamWatermarkLocked(), ss.pending.min())
	if newIn > ss.input {
		ss.input = newIn
	}
	newOut := mtime.Min(ss.input, mtime.Min(ss.holdSet.min(), ss.timerHolds.min()))
	advanced := false
	if newOut > ss.output {
		ss.output = newOut
		advanced = true
	}

	if newSyncIn := ss.upstreamSyncLocked(now); newSyncIn > ss.syncInput {
		ss.syncInput = newSyncIn
	}
	if newSyncOut := mtime.Min(ss.syncInput, ss.syncHolds.min()); newSyncOut > ss.syncOutput {
		ss.syncOutput = newSyncOut
		advanced = true
	}
	ss.done = ss.input >= mtime.MaxTimestamp && ss.pendingTimersLocked() == 0
	return advanced
}

// validateLocked checks that applying the result does not move the output watermark backwards.
func (ss *stageState) validateLocked(result CommittedResult) error {
	for _, h := range result.Holds {
		if h.Timestamp == mtime.MaxTimestamp {
			continue
		}
		if h.Timestamp < ss.output {
			return fmt.Errorf("stage %s, hold %s/%s at %s is before the output watermark %s: %w",
				ss.id, h.Key, h.Window, h.Timestamp, ss.output, ErrWatermarkRegression)
		}
	}
	return nil
}

// holdFor returns the hold a timer puts on the output of its domain, timers never hold below the
// current output.
func (ss *stageState) holdFor(t timers.TimerData) mtime.Time {
	switch t.Domain {
	case timers.EventTime:
		return mtime.Max(t.Timestamp, ss.output)
	case timers.SynchronizedProcessingTime:
		return mtime.Max(t.Timestamp, ss.syncOutput)
	default:
		return mtime.MaxTimestamp
	}
}

func (ss *stageState) addTimerHold(qt queuedTimer) {
	switch qt.timer.Domain {
	case timers.EventTime:
		ss.timerHolds.add(qt.hold)
	case timers.SynchronizedProcessingTime:
		ss.syncHolds.add(qt.hold)
	}
}

func (ss *stageState) releaseTimerHold(qt queuedTimer) {
	switch qt.timer.Domain {
	case timers.EventTime:
		ss.timerHolds.remove(qt.hold)
	case timers.SynchronizedProcessingTime:
		ss.syncHolds.remove(qt.hold)
	}
}

// applyLocked applies a validated result. Completed timers are removed first, then deleted timers,
// then the new timers are set.
func (ss *stageState) applyLocked(result CommittedResult, nextSeq func() uint64) {
	for _, u := range result.Timers {
		for _, t := range u.Completed {
			if qt, ok := ss.inflight[t.ID()]; ok {
				delete(ss.inflight, t.ID())
				ss.releaseTimerHold(qt)
			}
		}
	}
	for _, u := range result.Timers {
		for _, t := range u.Deleted {
			if qt, ok := ss.queues[t.Domain].delete(t.ID()); ok {
				ss.releaseTimerHold(qt)
			}
		}
		for _, t := range u.Set {
			qt := queuedTimer{timer: t, seq: nextSeq(), hold: ss.holdFor(t)}
			if old, replaced := ss.queues[t.Domain].set(qt); replaced {
				ss.releaseTimerHold(old)
			}
			ss.addTimerHold(qt)
		}
	}

	for _, h := range result.Holds {
		hk := holdKey{key: h.Key, window: h.Window}
		if old, ok := ss.holds[hk]; ok {
			ss.holdSet.remove(old)
			delete(ss.holds, hk)
		}
		if h.Timestamp != mtime.MaxTimestamp {
			ss.holds[hk] = h.Timestamp
			ss.holdSet.add(h.Timestamp)
		}
	}

	for _, ts := range result.Consumed {
		ss.pending.remove(ts)
	}
}

// extractLocked hands out the timers which are ready and moves them in-flight.
func (ss *stageState) extractLocked(now mtime.Time) []queuedTimer {
	var fired []queuedTimer
	// once the input is complete every timer is drained, including event time timers at the end of time.
	if ss.input >= mtime.MaxTimestamp {
		fired = append(fired, ss.queues[timers.EventTime].popAll()...)
		fired = append(fired, ss.queues[timers.ProcessingTime].popAll()...)
		fired = append(fired, ss.queues[timers.SynchronizedProcessingTime].popAll()...)
	} else {
		fired = append(fired, ss.queues[timers.EventTime].popBefore(ss.input)...)
		fired = append(fired, ss.queues[timers.ProcessingTime].popBefore(now)...)
		fired = append(fired, ss.queues[timers.SynchronizedProcessingTime].popBefore(ss.syncInput)...)
	}
	for _, qt := range fired {
		ss.inflight[qt.timer.ID()] = qt
	}
	return fired
}

// returnLocked puts in-flight timers back in to the pending queues, unless they were set again.
func (ss *stageState) returnLocked(ts []timers.TimerData, nextSeq func() uint64) {
	for _, t := range ts {
		qt, ok := ss.inflight[t.ID()]
		if !ok {
			continue
		}
		delete(ss.inflight, t.ID())
		q := ss.queues[t.Domain]
		if _, pending := q.byID[t.ID()]; pending {
			ss.releaseTimerHold(qt)
			continue
		}
		qt.seq = nextSeq()
		q.set(qt)
	}
}
