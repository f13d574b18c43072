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

package gabw

import (
	"context"
	"strconv"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/state"
	"github.com/numaproj/numawin/pkg/trigger"
	"github.com/numaproj/numawin/pkg/window"
)

const (
	fieldWindows = "windows"
	fieldMeta    = "meta"
	fieldAcc     = "acc"
)

// windowRef is the persisted form of an arena entry.
type windowRef struct {
	ID     uint64     `json:"id"`
	Start  mtime.Time `json:"start,omitempty"`
	End    mtime.Time `json:"end,omitempty"`
	Global bool       `json:"global,omitempty"`
}

func refOf(id uint64, w window.Window) windowRef {
	if _, ok := w.(window.GlobalWindow); ok {
		return windowRef{ID: id, Global: true}
	}
	return windowRef{ID: id, Start: w.StartTime(), End: w.EndTime()}
}

func (r windowRef) window() window.Window {
	if r.Global {
		return window.GlobalWindow{}
	}
	return window.NewIntervalWindow(r.Start, r.End)
}

// keyState is the arena of the windows of a key. NextID is the generation counter, ids are never reused.
type keyState struct {
	NextID  uint64      `json:"nextId"`
	Windows []windowRef `json:"windows,omitempty"`
}

// windowState is everything but the accumulator of a window.
type windowState struct {
	Trigger *trigger.State `json:"trigger"`
	// PaneIndex is the index of the next pane.
	PaneIndex int64 `json:"paneIndex,omitempty"`
	// Pending is the number of elements since the prior pane.
	Pending int64 `json:"pending,omitempty"`
	// MinTs and MaxTs are the earliest and latest timestamps of the pending elements.
	MinTs mtime.Time `json:"minTs,omitempty"`
	MaxTs mtime.Time `json:"maxTs,omitempty"`
	// OnTimeFired is set once the trigger fired after the end of the window.
	OnTimeFired bool `json:"onTimeFired,omitempty"`
	// Hold is the watermark hold the window has, nil if none.
	Hold *mtime.Time `json:"hold,omitempty"`
	// HasAcc is set if the accumulator is stored.
	HasAcc bool `json:"hasAcc,omitempty"`
}

// closed returns true for a window whose trigger finished, the entry is kept until the window is garbage
// collected so late elements for it are dropped.
func (ws *windowState) closed() bool {
	return ws.Trigger != nil && ws.Trigger.Finished
}

func (ws *windowState) addTimestamp(ts mtime.Time) {
	if ws.Pending == 0 {
		ws.MinTs, ws.MaxTs = ts, ts
	} else {
		ws.MinTs = mtime.Min(ws.MinTs, ts)
		ws.MaxTs = mtime.Max(ws.MaxTs, ts)
	}
	ws.Pending++
}

func (ws *windowState) resetPending() {
	ws.Pending = 0
	ws.MinTs, ws.MaxTs = 0, 0
}

// mergeWindowStates combines the window states of windows which are merged, trigger states are merged by
// the trigger itself.
func mergeWindowStates(states []*windowState) *windowState {
	merged := &windowState{}
	for _, s := range states {
		if s.Pending > 0 {
			if merged.Pending == 0 {
				merged.MinTs, merged.MaxTs = s.MinTs, s.MaxTs
			} else {
				merged.MinTs = mtime.Min(merged.MinTs, s.MinTs)
				merged.MaxTs = mtime.Max(merged.MaxTs, s.MaxTs)
			}
			merged.Pending += s.Pending
		}
		if s.PaneIndex > merged.PaneIndex {
			merged.PaneIndex = s.PaneIndex
		}
		merged.OnTimeFired = merged.OnTimeFired || s.OnTimeFired
	}
	return merged
}

func windowID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func keyAddress(namespace, key string) state.Address {
	return state.Address{Namespace: namespace, Key: key, Field: fieldWindows}
}

func metaAddress(namespace, key string, id uint64) state.Address {
	return state.Address{Namespace: namespace, Key: key, Window: windowID(id), Field: fieldMeta}
}

func accAddress(namespace, key string, id uint64) state.Address {
	return state.Address{Namespace: namespace, Key: key, Window: windowID(id), Field: fieldAcc}
}

var (
	keyStateCoder    = state.JSONCoder[keyState]{}
	windowStateCoder = state.JSONCoder[windowState]{}
)

// entry is an arena entry loaded for the current bundle.
type entry[ACC any] struct {
	id     uint64
	window window.Window
	meta   *windowState
	acc    ACC
	// accLoaded is set once acc holds the stored accumulator, or a new one.
	accLoaded bool
	accDirty  bool
	removed   bool
}

// arena is the in bundle view of the windows of one key. It is loaded lazily and written back by flush.
type arena[ACC any] struct {
	// namespace is the stage the state belongs to
	namespace string
	key       string
	st        state.ReadWriter
	accCoder  state.Coder[ACC]
	ks        keyState
	loaded    bool
	dirty     bool
	entries   map[uint64]*entry[ACC]
	byWindow  map[window.Window]uint64
}

func newArena[ACC any](namespace, key string, st state.ReadWriter, accCoder state.Coder[ACC]) *arena[ACC] {
	return &arena[ACC]{
		namespace: namespace,
		key:       key,
		st:        st,
		accCoder:  accCoder,
		entries:   make(map[uint64]*entry[ACC]),
		byWindow:  make(map[window.Window]uint64),
	}
}

func (a *arena[ACC]) load(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	ks, _, err := state.ReadValue[keyState](ctx, a.st, keyAddress(a.namespace, a.key), keyStateCoder)
	if err != nil {
		return err
	}
	a.ks = ks
	for _, ref := range ks.Windows {
		a.byWindow[ref.window()] = ref.ID
	}
	a.loaded = true
	return nil
}

// windows returns the windows of the key.
func (a *arena[ACC]) windows() []window.Window {
	ws := make([]window.Window, 0, len(a.byWindow))
	for _, ref := range a.ks.Windows {
		ws = append(ws, ref.window())
	}
	return ws
}

// lookup returns the entry of the window, nil if the key has no such window.
func (a *arena[ACC]) lookup(ctx context.Context, w window.Window) (*entry[ACC], error) {
	id, ok := a.byWindow[w]
	if !ok {
		return nil, nil
	}
	if e, ok := a.entries[id]; ok {
		return e, nil
	}
	meta, ok, err := state.ReadValue[windowState](ctx, a.st, metaAddress(a.namespace, a.key, id), windowStateCoder)
	if err != nil {
		return nil, err
	}
	if !ok {
		meta = windowState{}
	}
	if meta.Trigger == nil {
		meta.Trigger = trigger.NewState()
	}
	e := &entry[ACC]{id: id, window: w, meta: &meta}
	a.entries[id] = e
	return e, nil
}

// create adds a window with a fresh id.
func (a *arena[ACC]) create(w window.Window) *entry[ACC] {
	a.ks.NextID++
	id := a.ks.NextID
	a.ks.Windows = append(a.ks.Windows, refOf(id, w))
	a.byWindow[w] = id
	e := &entry[ACC]{id: id, window: w, meta: &windowState{Trigger: trigger.NewState()}}
	a.entries[id] = e
	a.dirty = true
	return e
}

// remove deletes the window and its state.
func (a *arena[ACC]) remove(e *entry[ACC]) {
	delete(a.byWindow, e.window)
	for i, ref := range a.ks.Windows {
		if ref.ID == e.id {
			a.ks.Windows = append(a.ks.Windows[:i], a.ks.Windows[i+1:]...)
			break
		}
	}
	e.removed = true
	a.dirty = true
}

// accumulator returns the accumulator of the entry, create is called if the window has none.
func (a *arena[ACC]) accumulator(ctx context.Context, e *entry[ACC], create func() (ACC, error)) (ACC, error) {
	if e.accLoaded {
		return e.acc, nil
	}
	if e.meta.HasAcc {
		acc, ok, err := state.ReadValue[ACC](ctx, a.st, accAddress(a.namespace, a.key, e.id), a.accCoder)
		if err != nil {
			return acc, err
		}
		if ok {
			e.acc, e.accLoaded = acc, true
			return acc, nil
		}
	}
	acc, err := create()
	if err != nil {
		return acc, err
	}
	e.acc, e.accLoaded = acc, true
	return acc, nil
}

func (a *arena[ACC]) setAccumulator(e *entry[ACC], acc ACC) {
	e.acc, e.accLoaded, e.accDirty = acc, true, true
	e.meta.HasAcc = true
}

func (a *arena[ACC]) resetAccumulator(e *entry[ACC]) {
	var zero ACC
	e.acc, e.accLoaded, e.accDirty = zero, false, true
	e.meta.HasAcc = false
}

// flush writes the changed state back.
func (a *arena[ACC]) flush(ctx context.Context) error {
	for _, e := range a.entries {
		if e.removed {
			if err := a.st.Clear(ctx, metaAddress(a.namespace, a.key, e.id)); err != nil {
				return err
			}
			if err := a.st.Clear(ctx, accAddress(a.namespace, a.key, e.id)); err != nil {
				return err
			}
			continue
		}
		if err := state.WriteValue(ctx, a.st, metaAddress(a.namespace, a.key, e.id), *e.meta, windowStateCoder); err != nil {
			return err
		}
		if !e.accDirty {
			continue
		}
		if e.meta.HasAcc {
			if err := state.WriteValue(ctx, a.st, accAddress(a.namespace, a.key, e.id), e.acc, a.accCoder); err != nil {
				return err
			}
		} else if err := a.st.Clear(ctx, accAddress(a.namespace, a.key, e.id)); err != nil {
			return err
		}
	}
	if !a.dirty {
		return nil
	}
	if len(a.ks.Windows) == 0 {
		return a.st.Clear(ctx, keyAddress(a.namespace, a.key))
	}
	return state.WriteValue(ctx, a.st, keyAddress(a.namespace, a.key), a.ks, keyStateCoder)
}
