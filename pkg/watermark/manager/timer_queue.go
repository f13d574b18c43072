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
	"github.com/google/btree"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/timers"
)

// queuedTimer is a pending timer. seq orders timers with the same timestamp by the order they were set.
type queuedTimer struct {
	timer timers.TimerData
	seq   uint64
	// hold is the timestamp the timer holds the output of its domain at.
	hold mtime.Time
}

func lessQueued(a, b queuedTimer) bool {
	if a.timer.Timestamp != b.timer.Timestamp {
		return a.timer.Timestamp < b.timer.Timestamp
	}
	return a.seq < b.seq
}

// timerQueue holds the pending timers of one domain ordered by (timestamp, seq).
type timerQueue struct {
	tree *btree.BTreeG[queuedTimer]
	byID map[timers.ID]queuedTimer
}

func newTimerQueue() *timerQueue {
	return &timerQueue{
		tree: btree.NewG[queuedTimer](16, lessQueued),
		byID: make(map[timers.ID]queuedTimer),
	}
}

// set adds the timer, replacing the pending timer with the same identity. The replaced timer is returned.
func (q *timerQueue) set(qt queuedTimer) (queuedTimer, bool) {
	old, replaced := q.delete(qt.timer.ID())
	q.tree.ReplaceOrInsert(qt)
	q.byID[qt.timer.ID()] = qt
	return old, replaced
}

// delete removes the pending timer with the identity.
func (q *timerQueue) delete(id timers.ID) (queuedTimer, bool) {
	qt, ok := q.byID[id]
	if !ok {
		return queuedTimer{}, false
	}
	delete(q.byID, id)
	q.tree.Delete(qt)
	return qt, true
}

// popBefore removes and returns, in order, all the timers with a timestamp strictly before t.
func (q *timerQueue) popBefore(t mtime.Time) []queuedTimer {
	var ready []queuedTimer
	q.tree.Ascend(func(qt queuedTimer) bool {
		if qt.timer.Timestamp >= t {
			return false
		}
		ready = append(ready, qt)
		return true
	})
	for _, qt := range ready {
		q.tree.Delete(qt)
		delete(q.byID, qt.timer.ID())
	}
	return ready
}

// popAll removes and returns all the timers in order.
func (q *timerQueue) popAll() []queuedTimer {
	ready := make([]queuedTimer, 0, q.tree.Len())
	q.tree.Ascend(func(qt queuedTimer) bool {
		ready = append(ready, qt)
		return true
	})
	q.tree.Clear(false)
	q.byID = make(map[timers.ID]queuedTimer)
	return ready
}

func (q *timerQueue) len() int {
	return q.tree.Len()
}
