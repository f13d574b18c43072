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

package runner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numawin/pkg/reduce/gabw"
	"github.com/numaproj/numawin/pkg/shared/clock"
	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/state"
	"github.com/numaproj/numawin/pkg/timers"
	"github.com/numaproj/numawin/pkg/trigger"
	"github.com/numaproj/numawin/pkg/watermark/manager"
	"github.com/numaproj/numawin/pkg/window"
	"github.com/numaproj/numawin/pkg/window/strategy/fixed"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fastRetry = wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 5}

type collector struct {
	lock    sync.Mutex
	outputs []gabw.Output[[]int]
}

func (c *collector) handle(_ context.Context, _ string, outputs []Element) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, o := range outputs {
		c.outputs = append(c.outputs, o.Value.(gabw.Output[[]int]))
	}
	return nil
}

// panes returns the values by key and window start.
func (c *collector) panes() map[string][][]int {
	c.lock.Lock()
	defer c.lock.Unlock()
	sorted := append([]gabw.Output[[]int](nil), c.outputs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Window.StartTime() < sorted[j].Window.StartTime()
	})
	result := make(map[string][][]int)
	for _, o := range sorted {
		result[o.Key] = append(result[o.Key], o.Value)
	}
	return result
}

type testPipeline struct {
	runner    *Runner
	manager   *manager.Manager
	collector *collector
}

func newReduceProcessor(t *testing.T, store state.Store, trig *trigger.Trigger, opts ...gabw.Option) Processor {
	fn, err := fixed.NewFixed(10*time.Millisecond, 0)
	require.NoError(t, err)
	r, err := gabw.New[int, []int, []int](gabw.Strategy{WindowFn: fn, Trigger: trig}, gabw.Buffering[int]{}, state.JSONCoder[[]int]{}, store, opts...)
	require.NoError(t, err)
	return NewReduceProcessor(r)
}

func newTestPipeline(t *testing.T, c clock.Clock, wrap func(Processor) Processor, opts ...Option) *testPipeline {
	ctx := context.Background()
	m := manager.New(ctx, c, manager.WithPipelineName(t.Name()))
	store := state.NewInMemStore(ctx, t.Name(), 4)
	col := &collector{}
	opts = append([]Option{WithClock(c), WithPartitions(4), WithWorkers(2), WithRetryBackoff(fastRetry), WithOutputHandler(col.handle)}, opts...)
	r, err := New(ctx, m, store, opts...)
	require.NoError(t, err)
	p := newReduceProcessor(t, store, trigger.Default())
	if wrap != nil {
		p = wrap(p)
	}
	require.NoError(t, r.AddSource("src"))
	require.NoError(t, r.AddStage("agg", p, "src"))
	t.Cleanup(func() {
		_ = r.Close()
		_ = m.Close()
		_ = store.Close()
	})
	return &testPipeline{runner: r, manager: m, collector: col}
}

func elements(key string, ts ...mtime.Time) []Element {
	els := make([]Element, 0, len(ts))
	for _, t := range ts {
		els = append(els, Element{Key: key, Value: int(t), Timestamp: t})
	}
	return els
}

func TestRunner_FixedWindows(t *testing.T) {
	p := newTestPipeline(t, clock.NewFake(0), nil)
	ctx := context.Background()
	require.NoError(t, p.runner.Inject("src", elements("a", 1, 2, 12)...))
	require.NoError(t, p.runner.Inject("src", elements("b", 3)...))
	require.NoError(t, p.runner.RunUntilIdle(ctx))
	assert.Empty(t, p.collector.panes())

	require.NoError(t, p.runner.AdvanceSourceWatermark("src", mtime.MaxTimestamp))
	require.NoError(t, p.runner.RunUntilIdle(ctx))
	assert.Equal(t, map[string][][]int{
		"a": {{1, 2}, {12}},
		"b": {{3}},
	}, p.collector.panes())
	assert.True(t, p.runner.IsDone())
	assert.Zero(t, p.runner.Retried())
	assert.Positive(t, p.runner.Processed())
}

func TestRunner_MaxBundleSize(t *testing.T) {
	p := newTestPipeline(t, clock.NewFake(0), nil, WithPartitions(1), WithMaxBundleSize(2))
	ctx := context.Background()
	require.NoError(t, p.runner.Inject("src", elements("a", 1, 2, 3, 4, 5)...))
	require.NoError(t, p.runner.AdvanceSourceWatermark("src", 10))
	require.NoError(t, p.runner.RunUntilIdle(ctx))
	assert.Equal(t, map[string][][]int{"a": {{1, 2, 3, 4, 5}}}, p.collector.panes())
	// 3 bundles of elements and one of timers
	assert.Equal(t, int64(4), p.runner.Processed())
}

type flakyProcessor struct {
	Processor
	failures *atomic.Int64
}

func (f *flakyProcessor) ProcessKey(ctx context.Context, st state.ReadWriter, internals *timers.Internals, key string, elements []Element, fired []timers.TimerData) ([]Element, []manager.Hold, error) {
	if f.failures.Load() > 0 {
		f.failures.Dec()
		return nil, nil, errors.New("flaky")
	}
	return f.Processor.ProcessKey(ctx, st, internals, key, elements, fired)
}

func TestRunner_RetriesFailedBundles(t *testing.T) {
	failures := atomic.NewInt64(2)
	p := newTestPipeline(t, clock.NewFake(0), func(proc Processor) Processor {
		return &flakyProcessor{Processor: proc, failures: failures}
	}, WithPartitions(1))
	ctx := context.Background()
	require.NoError(t, p.runner.Inject("src", elements("a", 1, 2)...))
	require.NoError(t, p.runner.AdvanceSourceWatermark("src", mtime.MaxTimestamp))
	require.NoError(t, p.runner.RunUntilIdle(ctx))
	assert.Equal(t, map[string][][]int{"a": {{1, 2}}}, p.collector.panes())
	assert.Equal(t, int64(2), p.runner.Retried())
}

func TestRunner_RestoresBundleAfterRetries(t *testing.T) {
	failures := atomic.NewInt64(100)
	p := newTestPipeline(t, clock.NewFake(0), func(proc Processor) Processor {
		return &flakyProcessor{Processor: proc, failures: failures}
	}, WithPartitions(1), WithRetryBackoff(wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 2}))
	ctx := context.Background()
	require.NoError(t, p.runner.Inject("src", elements("a", 1, 2)...))
	require.NoError(t, p.runner.AdvanceSourceWatermark("src", mtime.MaxTimestamp))
	assert.Error(t, p.runner.RunUntilIdle(ctx))
	assert.Empty(t, p.collector.panes())

	// nothing was lost
	in, err := p.manager.InputWatermark("agg")
	require.NoError(t, err)
	assert.Equal(t, mtime.Time(1), in)
	failures.Store(0)
	require.NoError(t, p.runner.RunUntilIdle(ctx))
	assert.Equal(t, map[string][][]int{"a": {{1, 2}}}, p.collector.panes())
	assert.True(t, p.runner.IsDone())
}

// flakyApplyStore fails Apply while failures is positive.
type flakyApplyStore struct {
	state.Store
	failures *atomic.Int64
}

func (f *flakyApplyStore) Apply(ctx context.Context, mutations []state.Mutation) error {
	if f.failures.Load() > 0 {
		f.failures.Dec()
		return errors.New("apply failed")
	}
	return f.Store.Apply(ctx, mutations)
}

func TestRunner_RetriesFailedStateApply(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(0)
	m := manager.New(ctx, c, manager.WithPipelineName(t.Name()))
	inner := state.NewInMemStore(ctx, t.Name(), 1)
	store := &flakyApplyStore{Store: inner, failures: atomic.NewInt64(1)}
	col := &collector{}
	r, err := New(ctx, m, store, WithClock(c), WithPartitions(1), WithRetryBackoff(fastRetry), WithOutputHandler(col.handle))
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
		_ = m.Close()
		_ = inner.Close()
	}()
	require.NoError(t, r.AddSource("src"))
	require.NoError(t, r.AddStage("agg", newReduceProcessor(t, store, trigger.Repeatedly(trigger.AfterCount(1))), "src"))

	require.NoError(t, r.Inject("src", elements("a", 1)...))
	require.NoError(t, r.RunUntilIdle(ctx))
	assert.Equal(t, map[string][][]int{"a": {{1}}}, col.panes())
	assert.Equal(t, int64(1), r.Retried())
	assert.Equal(t, int64(1), r.Processed())

	// the element was consumed exactly once
	require.NoError(t, r.AdvanceSourceWatermark("src", mtime.MaxTimestamp))
	require.NoError(t, r.RunUntilIdle(ctx))
	assert.Equal(t, map[string][][]int{"a": {{1}}}, col.panes())
	assert.True(t, r.IsDone())
}

func TestRunner_RejectsDuplicateBundle(t *testing.T) {
	p := newTestPipeline(t, clock.NewFake(0), nil, WithPartitions(1))
	ctx := context.Background()
	s, err := p.runner.stage("agg")
	require.NoError(t, err)
	b := newBundle(s, 0)
	b.addKey("a")
	b.elements["a"] = elements("a", 1)
	b.size = 1
	p.runner.committed.Add(b.id, struct{}{})

	assert.ErrorIs(t, p.runner.runBundle(ctx, b), ErrDuplicateBundle)
	assert.Zero(t, p.runner.Retried())
	assert.Zero(t, p.runner.Processed())
	// the elements of a duplicate are not put back
	assert.Zero(t, s.partitions[0].queue.Len())
}

type countCollector struct {
	lock    sync.Mutex
	outputs []gabw.Output[int64]
}

func (c *countCollector) handle(_ context.Context, _ string, outputs []Element) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, o := range outputs {
		c.outputs = append(c.outputs, o.Value.(gabw.Output[int64]))
	}
	return nil
}

func TestRunner_ChainedReducers(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(0)
	m := manager.New(ctx, c, manager.WithPipelineName(t.Name()))
	store := state.NewInMemStore(ctx, t.Name(), 4)
	col := &countCollector{}
	r, err := New(ctx, m, store, WithClock(c), WithPartitions(2), WithWorkers(4), WithRetryBackoff(fastRetry), WithOutputHandler(col.handle))
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
		_ = m.Close()
		_ = store.Close()
	}()

	fn, err := fixed.NewFixed(10*time.Millisecond, 0)
	require.NoError(t, err)
	counts, err := gabw.New[gabw.Output[[]int], int64, int64](gabw.Strategy{WindowFn: fn, Trigger: trigger.Default()}, gabw.Count[gabw.Output[[]int]]{}, state.JSONCoder[int64]{}, store, gabw.WithStageName("agg2"))
	require.NoError(t, err)
	require.NoError(t, r.AddSource("src"))
	require.NoError(t, r.AddStage("agg", newReduceProcessor(t, store, trigger.Default(), gabw.WithStageName("agg")), "src"))
	require.NoError(t, r.AddStage("agg2", NewReduceProcessor(counts), "agg"))

	require.NoError(t, r.Inject("src", elements("a", 1, 2, 12, 22)...))
	require.NoError(t, r.Inject("src", elements("b", 5)...))
	require.NoError(t, r.RunUntilIdle(ctx))

	// agg2 has seen nothing yet
	windows, err := counts.ActiveWindows(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, windows)

	require.NoError(t, r.AdvanceSourceWatermark("src", mtime.MaxTimestamp))
	require.NoError(t, r.RunUntilIdle(ctx))
	assert.True(t, r.IsDone())

	col.lock.Lock()
	defer col.lock.Unlock()
	got := make(map[string][]window.Window)
	for _, o := range col.outputs {
		assert.Equal(t, int64(1), o.Value)
		assert.Equal(t, gabw.PaneInfo{Index: 0, Timing: gabw.OnTime, IsFirst: true}, o.Pane)
		got[o.Key] = append(got[o.Key], o.Window)
	}
	assert.ElementsMatch(t, []window.Window{window.NewIntervalWindow(0, 10), window.NewIntervalWindow(10, 20), window.NewIntervalWindow(20, 30)}, got["a"])
	assert.Equal(t, []window.Window{window.NewIntervalWindow(0, 10)}, got["b"])
}

func TestRunner_SharedStateNamespace(t *testing.T) {
	p := newTestPipeline(t, clock.NewFake(0), nil)
	store := state.NewInMemStore(context.Background(), t.Name(), 1)
	defer func() { _ = store.Close() }()
	// the reducer of "agg" uses the default stage name as well
	err := p.runner.AddStage("agg2", newReduceProcessor(t, store, trigger.Default()), "agg")
	assert.ErrorContains(t, err, "state namespace")
}

type recordingProcessor struct {
	lock     sync.Mutex
	elements []Element
}

func (r *recordingProcessor) ProcessKey(_ context.Context, _ state.ReadWriter, _ *timers.Internals, _ string, elements []Element, _ []timers.TimerData) ([]Element, []manager.Hold, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.elements = append(r.elements, elements...)
	return nil, nil, nil
}

func TestRunner_Downstream(t *testing.T) {
	p := newTestPipeline(t, clock.NewFake(0), nil)
	sink := &recordingProcessor{}
	require.NoError(t, p.runner.AddStage("sink", sink, "agg"))
	ctx := context.Background()
	require.NoError(t, p.runner.Inject("src", elements("a", 1, 15)...))
	require.NoError(t, p.runner.AdvanceSourceWatermark("src", 10))
	require.NoError(t, p.runner.RunUntilIdle(ctx))

	require.Len(t, sink.elements, 1)
	pane := sink.elements[0].Value.(gabw.Output[[]int])
	assert.Equal(t, window.NewIntervalWindow(0, 10), pane.Window)
	assert.Equal(t, mtime.Time(9), sink.elements[0].Timestamp)
	// nothing reaches the output handler of a stage with downstreams
	assert.Empty(t, p.collector.panes())

	// the sink is held back by the open window [10, 20)
	in, err := p.manager.InputWatermark("sink")
	require.NoError(t, err)
	assert.Equal(t, mtime.Time(10), in)

	require.NoError(t, p.runner.AdvanceSourceWatermark("src", mtime.MaxTimestamp))
	require.NoError(t, p.runner.RunUntilIdle(ctx))
	assert.Len(t, sink.elements, 2)
	assert.True(t, p.runner.IsDone())
}

func TestRunner_ProcessingTime(t *testing.T) {
	c := clock.NewFake(10)
	ctx := context.Background()
	m := manager.New(ctx, c, manager.WithPipelineName(t.Name()))
	store := state.NewInMemStore(ctx, t.Name(), 1)
	col := &collector{}
	r, err := New(ctx, m, store, WithClock(c), WithOutputHandler(col.handle))
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
		_ = m.Close()
		_ = store.Close()
	}()
	require.NoError(t, r.AddSource("src"))
	require.NoError(t, r.AddStage("agg", newReduceProcessor(t, store, trigger.AfterProcessingTime().PlusDelay(5*time.Millisecond)), "src"))

	require.NoError(t, r.Inject("src", elements("a", 1)...))
	require.NoError(t, r.RunUntilIdle(ctx))
	c.AdvanceTo(12)
	require.NoError(t, r.RunUntilIdle(ctx))
	assert.Empty(t, col.panes())

	c.AdvanceTo(16)
	require.NoError(t, r.RunUntilIdle(ctx))
	assert.Equal(t, map[string][][]int{"a": {{1}}}, col.panes())
}

func TestRunner_Errors(t *testing.T) {
	ctx := context.Background()
	m := manager.New(ctx, clock.NewFake(0))
	store := state.NewInMemStore(ctx, t.Name(), 1)
	defer func() {
		_ = m.Close()
		_ = store.Close()
	}()
	_, err := New(ctx, m, store, WithWorkers(0))
	assert.Error(t, err)

	r, err := New(ctx, m, store)
	require.NoError(t, err)
	require.NoError(t, r.AddSource("src"))
	assert.Error(t, r.AddStage("agg", nil, "src"))
	assert.Error(t, r.AddStage("agg", &recordingProcessor{}))
	assert.ErrorIs(t, r.Inject("missing", elements("a", 1)...), manager.ErrUnknownStage)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.RunUntilIdle(ctx), ErrRunnerClosed)
	assert.ErrorIs(t, r.Inject("src"), ErrRunnerClosed)
	assert.ErrorIs(t, r.AddSource("other"), ErrRunnerClosed)
}
