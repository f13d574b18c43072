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
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numawin/pkg/metrics"
	"github.com/numaproj/numawin/pkg/shared/logging"
	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/state"
	"github.com/numaproj/numawin/pkg/timers"
	"github.com/numaproj/numawin/pkg/trigger"
	"github.com/numaproj/numawin/pkg/watermark/manager"
	"github.com/numaproj/numawin/pkg/window"
)

// gcTag is the tag of the event time timer which garbage collects a window at the end of the allowed
// lateness.
const gcTag = "gc"

// Element is an input element of a key.
type Element[T any] struct {
	Value     T
	Timestamp mtime.Time
}

type options struct {
	stageName string
}

// Option to configure the Reducer
type Option func(*options)

// WithStageName sets the stage name used in the logs and the metrics. The state of the reducer is kept
// under the stage name, reducers sharing a store need distinct names.
func WithStageName(name string) Option {
	return func(o *options) {
		o.stageName = name
	}
}

// Reducer groups the elements of every key by window and emits the panes of the combined values.
// It keeps no state of its own, everything lives in the keyed state store, so one Reducer serves all the
// keys of a stage concurrently.
type Reducer[IN, ACC, OUT any] struct {
	strategy Strategy
	merging  window.MergingFn
	fn       CombineFn[IN, ACC, OUT]
	accCoder state.Coder[ACC]
	store    state.Store
	stage    string
}

// New returns a Reducer, the strategy is validated once here.
func New[IN, ACC, OUT any](strategy Strategy, fn CombineFn[IN, ACC, OUT], accCoder state.Coder[ACC], store state.Store, opts ...Option) (*Reducer[IN, ACC, OUT], error) {
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid windowing strategy, %w", err)
	}
	if fn == nil || accCoder == nil || store == nil {
		return nil, fmt.Errorf("combine fn, accumulator coder and store are required")
	}
	o := &options{stageName: "reduce"}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	r := &Reducer[IN, ACC, OUT]{
		strategy: strategy,
		fn:       fn,
		accCoder: accCoder,
		store:    store,
		stage:    o.stageName,
	}
	if mfn, ok := strategy.WindowFn.(window.MergingFn); ok {
		r.merging = mfn
	}
	return r, nil
}

// StateNamespace returns the namespace of the state of the reducer in the store.
func (r *Reducer[IN, ACC, OUT]) StateNamespace() string {
	return r.stage
}

// Strategy returns the windowing strategy.
func (r *Reducer[IN, ACC, OUT]) Strategy() Strategy {
	return r.strategy
}

// ActiveWindows returns the committed windows of the key ordered by start time, closed windows waiting
// for garbage collection included.
func (r *Reducer[IN, ACC, OUT]) ActiveWindows(ctx context.Context, key string) ([]window.Window, error) {
	a := newArena[ACC](r.stage, key, r.store, r.accCoder)
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	sorted := window.NewSortedWindowList[window.Window]()
	for _, w := range a.windows() {
		sorted.InsertIfNotPresent(w)
	}
	return sorted.Items(), nil
}

// ProcessKey processes the elements and the fired timers of one key. Reads and writes go through st and
// the timer changes through internals, nothing is visible outside before the caller commits them. The
// returned holds are the changed watermark holds of the windows of the key.
func (r *Reducer[IN, ACC, OUT]) ProcessKey(ctx context.Context, st state.ReadWriter, internals *timers.Internals, key string, elements []Element[IN], firedTimers []timers.TimerData) ([]Output[OUT], []manager.Hold, error) {
	if len(elements) == 0 && len(firedTimers) == 0 {
		return nil, nil, nil
	}
	b := &bundle[IN, ACC, OUT]{
		r:         r,
		key:       key,
		arena:     newArena[ACC](r.stage, key, st, r.accCoder),
		internals: internals,
		inputWM:   internals.CurrentInputWatermark(),
		outputWM:  internals.CurrentOutputWatermark(),
		pt:        internals.CurrentProcessingTime(),
		spt:       internals.CurrentSynchronizedProcessingTime(),
		touched:   window.NewSortedWindowList[window.Window](),
		log:       logging.FromContext(ctx).With("stage", r.stage, "key", key),
	}
	if err := b.arena.load(ctx); err != nil {
		return nil, nil, err
	}
	for _, el := range elements {
		if err := b.processElement(ctx, el); err != nil {
			return nil, nil, err
		}
	}
	for _, w := range b.touched.Items() {
		e, err := b.arena.lookup(ctx, w)
		if err != nil {
			return nil, nil, err
		}
		if e == nil {
			continue
		}
		if err := b.evaluate(ctx, e); err != nil {
			return nil, nil, err
		}
	}
	if err := b.processTimers(ctx, firedTimers); err != nil {
		return nil, nil, err
	}
	holds := b.holds()
	if err := b.arena.flush(ctx); err != nil {
		return nil, nil, err
	}
	return b.outputs, holds, nil
}

// bundle is the processing of one key in one bundle. The times are read once, so the whole key is
// evaluated against the same watermarks.
type bundle[IN, ACC, OUT any] struct {
	r         *Reducer[IN, ACC, OUT]
	key       string
	arena     *arena[ACC]
	internals *timers.Internals
	inputWM   mtime.Time
	outputWM  mtime.Time
	pt        mtime.Time
	spt       mtime.Time
	touched   *window.SortedWindowList[window.Window]
	outputs   []Output[OUT]
	log       *zap.SugaredLogger
}

func (b *bundle[IN, ACC, OUT]) triggerContext(w window.Window) *trigger.Context {
	return &trigger.Context{
		Window:                     w,
		InputWatermark:             b.inputWM,
		ProcessingTime:             b.pt,
		SynchronizedProcessingTime: b.spt,
		Timers:                     b.internals,
	}
}

func (b *bundle[IN, ACC, OUT]) gcTime(w window.Window) mtime.Time {
	return w.MaxTimestamp().Add(b.r.strategy.AllowedLateness)
}

func (b *bundle[IN, ACC, OUT]) gcTimer(w window.Window) timers.TimerData {
	return timers.TimerData{Window: w, Domain: timers.EventTime, Timestamp: b.gcTime(w), Tag: gcTag}
}

func (b *bundle[IN, ACC, OUT]) drop(reason string, ts mtime.Time, w window.Window) {
	metrics.DroppedElements.WithLabelValues(b.r.stage, reason).Inc()
	b.log.Debugw("Dropped element", zap.String("reason", reason), zap.Stringer("timestamp", ts), zap.Stringer("window", w), zap.Stringer("inputWatermark", b.inputWM))
}

func (b *bundle[IN, ACC, OUT]) processElement(ctx context.Context, el Element[IN]) error {
	windows, err := window.Assign(b.r.strategy.WindowFn, el.Timestamp)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		metrics.DroppedElements.WithLabelValues(b.r.stage, metrics.ReasonNoWindow).Inc()
		return nil
	}
	for _, w := range windows {
		if b.inputWM > b.gcTime(w) {
			b.drop(metrics.ReasonLate, el.Timestamp, w)
			continue
		}
		e, err := b.arena.lookup(ctx, w)
		if err != nil {
			return err
		}
		if e == nil {
			e = b.arena.create(w)
			b.internals.SetTimer(b.gcTimer(w))
		}
		if b.r.merging != nil {
			if e, err = b.merge(ctx, e); err != nil {
				return err
			}
		}
		if e.meta.closed() {
			b.drop(metrics.ReasonClosedWindow, el.Timestamp, e.window)
			continue
		}

		b.r.strategy.Trigger.OnElement(b.triggerContext(e.window), e.meta.Trigger)
		acc, err := b.arena.accumulator(ctx, e, b.r.fn.CreateAccumulator)
		if err != nil {
			return err
		}
		if acc, err = b.r.fn.AddInput(acc, el.Value); err != nil {
			return fmt.Errorf("failed to add input to window %s, %w", e.window, err)
		}
		b.arena.setAccumulator(e, acc)
		e.meta.addTimestamp(el.Timestamp)
		b.touched.InsertIfNotPresent(e.window)
	}
	return nil
}

// merge merges the windows of the key and returns the entry target ended up in.
func (b *bundle[IN, ACC, OUT]) merge(ctx context.Context, target *entry[ACC]) (*entry[ACC], error) {
	for _, result := range b.r.merging.MergeWindows(b.arena.windows()) {
		entries := make([]*entry[ACC], 0, len(result.ToBeMerged))
		containsTarget := false
		for _, w := range result.ToBeMerged {
			e, err := b.arena.lookup(ctx, w)
			if err != nil {
				return nil, err
			}
			if e == nil {
				continue
			}
			containsTarget = containsTarget || e == target
			entries = append(entries, e)
		}
		merged, err := b.mergeInto(ctx, entries, result.Result)
		if err != nil {
			return nil, err
		}
		if containsTarget {
			target = merged
		}
	}
	return target, nil
}

// mergeInto replaces the entries by a new entry for the result window and migrates their state.
func (b *bundle[IN, ACC, OUT]) mergeInto(ctx context.Context, entries []*entry[ACC], result window.Window) (*entry[ACC], error) {
	merging := make([]trigger.Merging, 0, len(entries))
	metas := make([]*windowState, 0, len(entries))
	var accs []ACC
	for _, e := range entries {
		merging = append(merging, trigger.Merging{Window: e.window, State: e.meta.Trigger})
		metas = append(metas, e.meta)
		if e.meta.HasAcc || e.accLoaded {
			acc, err := b.arena.accumulator(ctx, e, b.r.fn.CreateAccumulator)
			if err != nil {
				return nil, err
			}
			accs = append(accs, acc)
		}
	}
	for _, e := range entries {
		b.internals.DeleteTimer(b.gcTimer(e.window))
		b.arena.remove(e)
	}

	merged := b.arena.create(result)
	merged.meta = mergeWindowStates(metas)
	merged.meta.Trigger = b.r.strategy.Trigger.OnMerge(b.triggerContext(result), merging)
	if len(accs) > 0 && !merged.meta.closed() {
		acc, err := b.r.fn.MergeAccumulators(accs)
		if err != nil {
			return nil, fmt.Errorf("failed to merge accumulators in to window %s, %w", result, err)
		}
		b.arena.setAccumulator(merged, acc)
	}
	if merged.meta.closed() {
		merged.meta.resetPending()
	}
	b.internals.SetTimer(b.gcTimer(result))
	b.touched.InsertIfNotPresent(result)
	metrics.MergedWindows.WithLabelValues(b.r.stage).Add(float64(len(entries)))
	b.log.Debugw("Merged windows", zap.Int("count", len(entries)), zap.Stringer("result", result))
	return merged, nil
}

// processTimers handles the fired timers, the trigger timers go first so a window fires its regular pane
// before it is garbage collected at the same time.
func (b *bundle[IN, ACC, OUT]) processTimers(ctx context.Context, fired []timers.TimerData) error {
	ordered := make([]timers.TimerData, 0, len(fired))
	var gc []timers.TimerData
	for _, t := range fired {
		if t.Tag == gcTag {
			gc = append(gc, t)
		} else {
			ordered = append(ordered, t)
		}
	}
	ordered = append(ordered, gc...)

	for _, t := range ordered {
		b.internals.MarkCompleted(t)
		e, err := b.arena.lookup(ctx, t.Window)
		if err != nil {
			return err
		}
		if e == nil {
			// the window is gone, timers never bring a window back.
			b.log.Debugw("Ignored timer of an inactive window", zap.Stringer("timer", t))
			continue
		}
		switch {
		case t.Tag == gcTag:
			if err := b.garbageCollect(ctx, e); err != nil {
				return err
			}
		case trigger.IsTriggerTimer(t.Tag):
			if err := b.evaluate(ctx, e); err != nil {
				return err
			}
		default:
			b.log.Warnw("Ignored timer with an unknown tag", zap.Stringer("timer", t))
		}
	}
	return nil
}

// evaluate fires the window if its trigger says so.
func (b *bundle[IN, ACC, OUT]) evaluate(ctx context.Context, e *entry[ACC]) error {
	trig := b.r.strategy.Trigger
	tctx := b.triggerContext(e.window)
	st := e.meta.Trigger
	if st.Finished || !trig.ShouldFire(tctx, st) {
		return nil
	}
	timing := b.timing(e)
	trig.OnFire(tctx, st)
	finished := st.Finished
	if err := b.emit(ctx, e, timing, finished); err != nil {
		return err
	}
	if finished {
		// the buffered state goes now, the closed entry stays until the window is garbage collected.
		trig.Clear(tctx, st)
		e.meta.Trigger = &trigger.State{Finished: true}
		b.arena.resetAccumulator(e)
		e.meta.resetPending()
	}
	return nil
}

// garbageCollect emits the final pane if needed and removes the window.
func (b *bundle[IN, ACC, OUT]) garbageCollect(ctx context.Context, e *entry[ACC]) error {
	if !e.meta.closed() {
		if err := b.emit(ctx, e, b.timing(e), true); err != nil {
			return err
		}
		b.r.strategy.Trigger.Clear(b.triggerContext(e.window), e.meta.Trigger)
	}
	b.arena.remove(e)
	metrics.GarbageCollectedWindows.WithLabelValues(b.r.stage).Inc()
	return nil
}

// timing classifies the pane which is about to fire.
func (b *bundle[IN, ACC, OUT]) timing(e *entry[ACC]) Timing {
	if b.inputWM <= e.window.MaxTimestamp() {
		return Early
	}
	if !e.meta.OnTimeFired {
		e.meta.OnTimeFired = true
		return OnTime
	}
	return Late
}

// emit extracts the pane of the window. A pane without new elements is only emitted for the final or the
// on time pane when the closing behavior is FireAlways.
func (b *bundle[IN, ACC, OUT]) emit(ctx context.Context, e *entry[ACC], timing Timing, isLast bool) error {
	fireAlways := b.r.strategy.ClosingBehavior == FireAlways
	if e.meta.Pending == 0 && !(fireAlways && (isLast || timing == OnTime)) {
		return nil
	}
	acc, err := b.arena.accumulator(ctx, e, b.r.fn.CreateAccumulator)
	if err != nil {
		return err
	}
	value, err := b.r.fn.ExtractOutput(acc)
	if err != nil {
		return fmt.Errorf("failed to extract the output of window %s, %w", e.window, err)
	}
	pane := PaneInfo{
		Index:   e.meta.PaneIndex,
		Timing:  timing,
		IsFirst: e.meta.PaneIndex == 0,
		IsLast:  isLast,
	}
	b.outputs = append(b.outputs, Output[OUT]{
		Key:       b.key,
		Window:    e.window,
		Pane:      pane,
		Value:     value,
		Timestamp: b.outputTimestamp(e),
	})
	e.meta.PaneIndex++
	metrics.PanesEmitted.WithLabelValues(b.r.stage, timing.String()).Inc()

	if b.r.strategy.Mode == Discarding {
		b.arena.resetAccumulator(e)
	}
	e.meta.resetPending()
	return nil
}

// outputTimestamp never precedes the output watermark, so the pane is not late downstream.
func (b *bundle[IN, ACC, OUT]) outputTimestamp(e *entry[ACC]) mtime.Time {
	ts := e.window.MaxTimestamp()
	if e.meta.Pending > 0 {
		switch b.r.strategy.TimestampCombiner {
		case Earliest:
			ts = e.meta.MinTs
		case Latest:
			ts = e.meta.MaxTs
		}
	}
	return mtime.Max(ts, b.outputWM)
}

// holdFor returns the hold a window with pending elements needs, never before the output watermark.
func (b *bundle[IN, ACC, OUT]) holdFor(e *entry[ACC]) mtime.Time {
	hold := e.window.MaxTimestamp()
	if b.r.strategy.TimestampCombiner != EndOfWindow {
		hold = e.meta.MinTs
	}
	return mtime.Max(hold, b.outputWM)
}

// holds returns the changed holds, the released ones first.
func (b *bundle[IN, ACC, OUT]) holds() []manager.Hold {
	var released, set []manager.Hold
	for _, e := range b.arena.entries {
		if e.removed {
			if e.meta.Hold != nil {
				released = append(released, manager.Hold{Key: b.key, Window: e.window.String(), Timestamp: mtime.MaxTimestamp})
			}
			continue
		}
		var want *mtime.Time
		if e.meta.Pending > 0 && !e.meta.closed() {
			h := b.holdFor(e)
			want = &h
		}
		switch {
		case want == nil && e.meta.Hold == nil:
		case want != nil && e.meta.Hold != nil && *e.meta.Hold <= *want:
			// a lower hold is still a valid lower bound
		case want == nil:
			set = append(set, manager.Hold{Key: b.key, Window: e.window.String(), Timestamp: mtime.MaxTimestamp})
			e.meta.Hold = nil
		default:
			set = append(set, manager.Hold{Key: b.key, Window: e.window.String(), Timestamp: *want})
			e.meta.Hold = want
		}
	}
	return append(released, set...)
}
