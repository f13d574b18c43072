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

package trigger

import (
	"github.com/numaproj/numawin/pkg/timers"
	"github.com/numaproj/numawin/pkg/window"
)

// OnElement is called for every element added to the window of ctx. Triggers react to element counts
// and to time domains, never to the timestamps of the elements.
func (t *Trigger) OnElement(ctx *Context, st *State) {
	t.onElement(ctx, st, TimerTagPrefix)
}

// ShouldFire reports whether a pane should be emitted now. It does not change st and can be called
// any number of times.
func (t *Trigger) ShouldFire(ctx *Context, st *State) bool {
	return t.shouldFire(ctx, st)
}

// OnFire is called after a pane was emitted because ShouldFire returned true. It resets the state
// of the parts which fired and marks the state finished when the trigger can never fire again.
func (t *Trigger) OnFire(ctx *Context, st *State) {
	t.onFire(ctx, st, TimerTagPrefix)
}

// Clear deletes all the timers of the trigger and resets the state.
func (t *Trigger) Clear(ctx *Context, st *State) {
	t.clear(ctx, st, TimerTagPrefix)
}

// Merging is the state of a window which is merged into another window.
type Merging struct {
	Window window.Window
	State  *State
}

// OnMerge returns the state of the window of ctx which is the result of merging the given windows.
// The timers of the merged windows are deleted and the timers of the result window are set. Delay
// targets of the merged windows compose to the earliest one.
func (t *Trigger) OnMerge(ctx *Context, merging []Merging) *State {
	states := make([]*State, 0, len(merging))
	for _, m := range merging {
		if m.State == nil {
			continue
		}
		t.deleteTimers(ctx.forWindow(m.Window), m.State, TimerTagPrefix)
		states = append(states, m.State)
	}
	merged := mergeStates(states)
	t.resetTimers(ctx, merged, TimerTagPrefix)
	return merged
}

// current returns the index of the first unfinished child, -1 if all children are finished.
func (t *Trigger) current(st *State) int {
	for i := range t.Children {
		if !st.peek(i).Finished {
			return i
		}
	}
	return -1
}

func (t *Trigger) onElement(ctx *Context, st *State, path string) {
	if st.Finished {
		return
	}
	switch t.Kind {
	case KindDefault:
		ctx.setTimer(path, timers.EventTime, ctx.Window.MaxTimestamp())
	case KindAfterWatermark:
		if !st.OnTimeFired {
			ctx.setTimer(path, timers.EventTime, ctx.Window.MaxTimestamp())
			if t.Early != nil {
				t.Early.onElement(ctx, st.child(0), childPath(path, 0))
			}
		} else if t.Late != nil {
			t.Late.onElement(ctx, st.child(1), childPath(path, 1))
		}
	case KindAfterProcessingTime:
		// only the first element of the pane sets the target, so the earliest timer wins.
		if st.DelayTarget == nil {
			target := ctx.ProcessingTime.Add(t.Delay)
			st.DelayTarget = &target
			ctx.setTimer(path, timers.ProcessingTime, target)
		}
	case KindAfterSynchronizedProcessingTime:
		if st.DelayTarget == nil {
			target := ctx.SynchronizedProcessingTime
			st.DelayTarget = &target
			ctx.setTimer(path, timers.SynchronizedProcessingTime, target)
		}
	case KindAfterCount, KindAlways:
		st.Count++
	case KindAfterAll, KindAfterFirst, KindOrFinally:
		for i, c := range t.Children {
			if cs := st.child(i); !cs.Finished {
				c.onElement(ctx, cs, childPath(path, i))
			}
		}
	case KindAfterEach:
		if i := t.current(st); i >= 0 {
			t.Children[i].onElement(ctx, st.child(i), childPath(path, i))
		}
	case KindRepeatedly:
		t.Children[0].onElement(ctx, st.child(0), childPath(path, 0))
	case KindNever:
	}
}

func (t *Trigger) shouldFire(ctx *Context, st *State) bool {
	if st.Finished {
		return false
	}
	switch t.Kind {
	case KindDefault:
		return ctx.endOfWindowPassed()
	case KindAfterWatermark:
		if !st.OnTimeFired {
			return ctx.endOfWindowPassed() || (t.Early != nil && t.Early.shouldFire(ctx, st.peek(0)))
		}
		return t.Late != nil && t.Late.shouldFire(ctx, st.peek(1))
	case KindAfterProcessingTime:
		return st.DelayTarget != nil && ctx.ProcessingTime > *st.DelayTarget
	case KindAfterSynchronizedProcessingTime:
		return st.DelayTarget != nil && ctx.SynchronizedProcessingTime > *st.DelayTarget
	case KindAfterCount:
		return st.Count >= t.Count
	case KindAlways:
		return st.Count >= 1
	case KindAfterAll:
		for i, c := range t.Children {
			if cs := st.peek(i); !cs.Finished && !c.shouldFire(ctx, cs) {
				return false
			}
		}
		return true
	case KindAfterFirst, KindOrFinally:
		for i, c := range t.Children {
			if c.shouldFire(ctx, st.peek(i)) {
				return true
			}
		}
		return false
	case KindAfterEach:
		if i := t.current(st); i >= 0 {
			return t.Children[i].shouldFire(ctx, st.peek(i))
		}
		return false
	case KindRepeatedly:
		return t.Children[0].shouldFire(ctx, st.peek(0))
	default:
		return false
	}
}

// fireRepeatedly fires t and starts it over once it finished.
func (t *Trigger) fireRepeatedly(ctx *Context, st *State, path string) {
	t.onFire(ctx, st, path)
	if st.Finished {
		t.clear(ctx, st, path)
	}
}

func (t *Trigger) onFire(ctx *Context, st *State, path string) {
	switch t.Kind {
	case KindAfterWatermark:
		if st.OnTimeFired {
			if t.Late != nil {
				t.Late.fireRepeatedly(ctx, st.child(1), childPath(path, 1))
			}
			return
		}
		if ctx.endOfWindowPassed() {
			st.OnTimeFired = true
			if t.Early != nil {
				t.Early.clear(ctx, st.child(0), childPath(path, 0))
			}
			st.Finished = t.Late == nil
			return
		}
		if t.Early != nil {
			t.Early.fireRepeatedly(ctx, st.child(0), childPath(path, 0))
		}
	case KindAfterProcessingTime, KindAfterSynchronizedProcessingTime, KindAfterCount:
		st.Finished = true
	case KindAlways:
		st.Count = 0
	case KindAfterAll:
		finished := true
		for i, c := range t.Children {
			cs := st.child(i)
			if !cs.Finished {
				c.onFire(ctx, cs, childPath(path, i))
			}
			finished = finished && cs.Finished
		}
		st.Finished = finished
	case KindAfterFirst:
		// only the first child in declaration order which should fire is fired, the others start over.
		fired := false
		for i, c := range t.Children {
			cs := st.child(i)
			if !fired && !cs.Finished && c.shouldFire(ctx, cs) {
				c.onFire(ctx, cs, childPath(path, i))
				fired = true
				continue
			}
			c.clear(ctx, cs, childPath(path, i))
		}
		st.Finished = true
	case KindAfterEach:
		if i := t.current(st); i >= 0 {
			t.Children[i].onFire(ctx, st.child(i), childPath(path, i))
		}
		st.Finished = t.current(st) < 0
	case KindRepeatedly:
		t.Children[0].fireRepeatedly(ctx, st.child(0), childPath(path, 0))
	case KindOrFinally:
		main, until := t.Children[0], t.Children[1]
		if until.shouldFire(ctx, st.peek(1)) {
			st.Finished = true
		} else {
			ms := st.child(0)
			main.onFire(ctx, ms, childPath(path, 0))
			st.Finished = ms.Finished
		}
		if st.Finished {
			main.deleteTimers(ctx, st.child(0), childPath(path, 0))
			until.deleteTimers(ctx, st.child(1), childPath(path, 1))
		}
	case KindDefault, KindNever:
	}
}

func (t *Trigger) clear(ctx *Context, st *State, path string) {
	t.deleteTimers(ctx, st, path)
	st.reset()
}

// deleteTimers deletes every timer the trigger may have set for the window of ctx.
func (t *Trigger) deleteTimers(ctx *Context, st *State, path string) {
	switch t.Kind {
	case KindDefault:
		ctx.deleteTimer(path, timers.EventTime)
	case KindAfterWatermark:
		ctx.deleteTimer(path, timers.EventTime)
		if t.Early != nil {
			t.Early.deleteTimers(ctx, st.peek(0), childPath(path, 0))
		}
		if t.Late != nil {
			t.Late.deleteTimers(ctx, st.peek(1), childPath(path, 1))
		}
	case KindAfterProcessingTime:
		ctx.deleteTimer(path, timers.ProcessingTime)
	case KindAfterSynchronizedProcessingTime:
		ctx.deleteTimer(path, timers.SynchronizedProcessingTime)
	default:
		for i, c := range t.Children {
			c.deleteTimers(ctx, st.peek(i), childPath(path, i))
		}
	}
}

// resetTimers sets the timers which the active parts of st wait for.
func (t *Trigger) resetTimers(ctx *Context, st *State, path string) {
	if st.Finished {
		return
	}
	switch t.Kind {
	case KindDefault:
		ctx.setTimer(path, timers.EventTime, ctx.Window.MaxTimestamp())
	case KindAfterWatermark:
		if !st.OnTimeFired {
			ctx.setTimer(path, timers.EventTime, ctx.Window.MaxTimestamp())
			if t.Early != nil {
				t.Early.resetTimers(ctx, st.child(0), childPath(path, 0))
			}
		} else if t.Late != nil {
			t.Late.resetTimers(ctx, st.child(1), childPath(path, 1))
		}
	case KindAfterProcessingTime:
		if st.DelayTarget != nil {
			ctx.setTimer(path, timers.ProcessingTime, *st.DelayTarget)
		}
	case KindAfterSynchronizedProcessingTime:
		if st.DelayTarget != nil {
			ctx.setTimer(path, timers.SynchronizedProcessingTime, *st.DelayTarget)
		}
	case KindAfterEach:
		if i := t.current(st); i >= 0 {
			t.Children[i].resetTimers(ctx, st.child(i), childPath(path, i))
		}
	default:
		for i, c := range t.Children {
			c.resetTimers(ctx, st.child(i), childPath(path, i))
		}
	}
}
