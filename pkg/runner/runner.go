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

// Package runner schedules the bundles of a pipeline of stages. A bundle is the work of one key
// partition of one stage: the queued elements and the fired timers of the keys of the partition. Bundles
// of different partitions run concurrently on a bounded pool of workers, a partition never has more than
// one bundle in flight.
//
// A bundle commits atomically: the state changes, the timer changes, the watermark holds and the
// consumed and produced elements land together, or not at all and the bundle is retried from its
// pre-bundle state.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numawin/pkg/metrics"
	"github.com/numaproj/numawin/pkg/shared/logging"
	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/state"
	"github.com/numaproj/numawin/pkg/timers"
	"github.com/numaproj/numawin/pkg/watermark/manager"
)

var (
	// ErrRunnerClosed is returned after Close.
	ErrRunnerClosed = errors.New("runner is closed")
	// ErrDuplicateBundle is returned for a bundle which was committed already.
	ErrDuplicateBundle = errors.New("bundle was committed already")
)

// namespacedProcessor is a Processor which keeps its state under a namespace of the store.
type namespacedProcessor interface {
	StateNamespace() string
}

// partition is the queue of the elements of a key partition.
type partition struct {
	queue *deque.Deque[Element]
	lock  sync.Mutex
}

type stage struct {
	id string
	// processor is nil for a source
	processor   Processor
	downstreams []string
	partitions  []*partition
}

func (s *stage) isSource() bool {
	return s.processor == nil
}

// Runner runs the bundles of a pipeline against a watermark manager and a state store.
type Runner struct {
	manager *manager.Manager
	store   state.Store
	opts    *options
	stages  map[string]*stage
	// order is the order the stages were added in, upstreams come first
	order     []string
	committed *lru.Cache[string, struct{}]
	// namespaces maps the state namespaces to the stages using them
	namespaces map[string]string
	processed atomic.Int64
	retried   atomic.Int64
	closed    atomic.Bool
	log       *zap.SugaredLogger
	sync.RWMutex
}

// New returns a Runner.
func New(ctx context.Context, m *manager.Manager, store state.Store, opts ...Option) (*Runner, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			if err := opt(o); err != nil {
				return nil, err
			}
		}
	}
	if o.partitions <= 0 || o.workers <= 0 || o.maxBundleSize <= 0 {
		return nil, fmt.Errorf("partitions, workers and max bundle size must be positive, got %d, %d, %d", o.partitions, o.workers, o.maxBundleSize)
	}
	committed, err := lru.New[string, struct{}](o.committedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Runner{
		manager:    m,
		store:      store,
		opts:       o,
		stages:     make(map[string]*stage),
		committed:  committed,
		namespaces: make(map[string]string),
		log:        logging.FromContext(ctx).With("component", "runner"),
	}, nil
}

func (r *Runner) addStage(id string, processor Processor, upstreams ...string) error {
	r.Lock()
	defer r.Unlock()
	if r.closed.Load() {
		return ErrRunnerClosed
	}
	var namespace string
	if np, ok := processor.(namespacedProcessor); ok {
		namespace = np.StateNamespace()
		if other, ok := r.namespaces[namespace]; ok {
			return fmt.Errorf("stage %s uses the state namespace %q of stage %s", id, namespace, other)
		}
	}
	if err := r.manager.AddStage(id, upstreams...); err != nil {
		return err
	}
	if namespace != "" {
		r.namespaces[namespace] = id
	}
	s := &stage{id: id, processor: processor, partitions: make([]*partition, r.opts.partitions)}
	for i := range s.partitions {
		s.partitions[i] = &partition{queue: deque.New[Element]()}
	}
	for _, u := range upstreams {
		r.stages[u].downstreams = append(r.stages[u].downstreams, id)
	}
	r.stages[id] = s
	r.order = append(r.order, id)
	return nil
}

// AddSource adds a source stage. Elements injected in to a source go to its downstream stages, its
// watermark is advanced with AdvanceSourceWatermark.
func (r *Runner) AddSource(id string) error {
	return r.addStage(id, nil)
}

// AddStage adds a stage reading the outputs of the upstream stages.
func (r *Runner) AddStage(id string, processor Processor, upstreams ...string) error {
	if processor == nil {
		return fmt.Errorf("stage %s needs a processor", id)
	}
	if len(upstreams) == 0 {
		return fmt.Errorf("stage %s needs at least one upstream", id)
	}
	return r.addStage(id, processor, upstreams...)
}

func (r *Runner) stage(id string) (*stage, error) {
	r.RLock()
	defer r.RUnlock()
	s, ok := r.stages[id]
	if !ok {
		return nil, fmt.Errorf("stage %s: %w", id, manager.ErrUnknownStage)
	}
	return s, nil
}

func (r *Runner) partitionOf(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(r.opts.partitions))
}

// Inject queues elements for a stage. Elements injected in to a source are queued for its downstreams.
func (r *Runner) Inject(id string, elements ...Element) error {
	if r.closed.Load() {
		return ErrRunnerClosed
	}
	s, err := r.stage(id)
	if err != nil {
		return err
	}
	if !s.isSource() {
		return r.enqueue(s, elements)
	}
	for _, d := range s.downstreams {
		ds, err := r.stage(d)
		if err != nil {
			return err
		}
		if err := r.enqueue(ds, elements); err != nil {
			return err
		}
	}
	return nil
}

// enqueue registers the elements as pending and queues them.
func (r *Runner) enqueue(s *stage, elements []Element) error {
	ts := make([]mtime.Time, 0, len(elements))
	for _, el := range elements {
		ts = append(ts, el.Timestamp)
	}
	if err := r.manager.AddPending(s.id, ts...); err != nil {
		return err
	}
	r.push(s, elements)
	return nil
}

// push queues elements already registered as pending.
func (r *Runner) push(s *stage, elements []Element) {
	for _, el := range elements {
		p := s.partitions[r.partitionOf(el.Key)]
		p.lock.Lock()
		p.queue.PushBack(el)
		p.lock.Unlock()
	}
}

// AdvanceSourceWatermark advances the watermark of a source.
func (r *Runner) AdvanceSourceWatermark(id string, t mtime.Time) error {
	return r.manager.AdvanceSourceWatermark(id, t)
}

// bundle is the work of one partition of one stage.
type bundle struct {
	id        string
	stage     *stage
	partition int
	// keys in the order they are processed
	keys     []string
	elements map[string][]Element
	timers   map[string][]timers.TimerData
	size     int
}

func newBundle(s *stage, p int) *bundle {
	return &bundle{
		id:        uuid.NewString(),
		stage:     s,
		partition: p,
		elements:  make(map[string][]Element),
		timers:    make(map[string][]timers.TimerData),
	}
}

func (b *bundle) addKey(key string) {
	if _, ok := b.elements[key]; ok {
		return
	}
	if _, ok := b.timers[key]; ok {
		return
	}
	b.keys = append(b.keys, key)
}

// collect builds the bundles which are ready now.
func (r *Runner) collect() ([]*bundle, error) {
	r.RLock()
	order := append([]string(nil), r.order...)
	r.RUnlock()

	var bundles []*bundle
	for _, id := range order {
		s, err := r.stage(id)
		if err != nil {
			return nil, err
		}
		if s.isSource() {
			continue
		}
		byPartition := make(map[int]*bundle)
		get := func(p int) *bundle {
			b, ok := byPartition[p]
			if !ok {
				b = newBundle(s, p)
				byPartition[p] = b
			}
			return b
		}
		for i, p := range s.partitions {
			p.lock.Lock()
			for p.queue.Len() > 0 && (byPartition[i] == nil || byPartition[i].size < r.opts.maxBundleSize) {
				el := p.queue.PopFront()
				b := get(i)
				b.addKey(el.Key)
				b.elements[el.Key] = append(b.elements[el.Key], el)
				b.size++
			}
			p.lock.Unlock()
		}
		fired, err := r.manager.ExtractFiredTimers(id)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(fired))
		for key := range fired {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			b := get(r.partitionOf(key))
			b.addKey(key)
			b.timers[key] = fired[key]
		}
		for i := 0; i < len(s.partitions); i++ {
			if b, ok := byPartition[i]; ok {
				bundles = append(bundles, b)
			}
		}
	}
	return bundles, nil
}

// RunUntilIdle runs bundles until no stage has queued elements or fired timers.
func (r *Runner) RunUntilIdle(ctx context.Context) error {
	for {
		if r.closed.Load() {
			return ErrRunnerClosed
		}
		r.manager.RefreshProcessingTime()
		bundles, err := r.collect()
		if err != nil {
			return err
		}
		if len(bundles) == 0 {
			return nil
		}
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(r.opts.workers)
		for _, b := range bundles {
			eg.Go(func() error {
				return r.runBundle(egCtx, b)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
}

// runBundle processes the bundle, retrying with backoff. If it never succeeds, its elements and timers
// are put back.
func (r *Runner) runBundle(ctx context.Context, b *bundle) error {
	log := r.log.With("stage", b.stage.id, "partition", b.partition, "bundle", b.id)
	var (
		outputs []Element
		lastErr error
	)
	attempt := 0
	err := wait.ExponentialBackoff(r.opts.retry, func() (done bool, err error) {
		attempt++
		if outputs, lastErr = r.tryBundle(ctx, b); lastErr == nil {
			return true, nil
		}
		if errors.Is(lastErr, ErrDuplicateBundle) {
			return false, lastErr
		}
		r.retried.Inc()
		metrics.BundleRetries.WithLabelValues(b.stage.id).Inc()
		log.Errorw("Failed to process bundle, retrying", zap.Error(lastErr), zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			// no point in retrying after we have been asked to stop.
			return false, ctx.Err()
		default:
			return false, nil
		}
	})
	if errors.Is(lastErr, ErrDuplicateBundle) {
		// the elements and timers were consumed by the first commit
		log.Warnw("Rejected duplicate commit")
		return fmt.Errorf("stage %s, %w", b.stage.id, lastErr)
	}
	if err != nil {
		r.restore(b)
		return fmt.Errorf("bundle %s of stage %s failed after %d attempts, %w", b.id, b.stage.id, attempt, lastErr)
	}
	if len(outputs) > 0 && len(b.stage.downstreams) == 0 {
		if err := r.opts.outputHandler(ctx, b.stage.id, outputs); err != nil {
			return fmt.Errorf("output handler of stage %s, %w", b.stage.id, err)
		}
	}
	return nil
}

// restore puts the elements and the timers of a failed bundle back.
func (r *Runner) restore(b *bundle) {
	p := b.stage.partitions[b.partition]
	p.lock.Lock()
	for i := len(b.keys) - 1; i >= 0; i-- {
		els := b.elements[b.keys[i]]
		for j := len(els) - 1; j >= 0; j-- {
			p.queue.PushFront(els[j])
		}
	}
	p.lock.Unlock()
	for _, key := range b.keys {
		if ts := b.timers[key]; len(ts) > 0 {
			if err := r.manager.ReturnTimers(b.stage.id, ts); err != nil {
				r.log.Errorw("Failed to return timers", zap.String("stage", b.stage.id), zap.Error(err))
			}
		}
	}
}

// tryBundle is one attempt of a bundle. Nothing is visible outside unless it returns no error.
func (r *Runner) tryBundle(ctx context.Context, b *bundle) ([]Element, error) {
	if r.committed.Contains(b.id) {
		return nil, fmt.Errorf("bundle %s, %w", b.id, ErrDuplicateBundle)
	}
	txn := state.NewTxn(r.store)
	watermarks := r.manager.Stage(b.stage.id)
	result := manager.CommittedResult{Stage: b.stage.id}
	var outputs []Element
	for _, key := range b.keys {
		internals := timers.NewInternals(key, r.opts.clock, watermarks)
		out, holds, err := b.stage.processor.ProcessKey(ctx, txn, internals, key, b.elements[key], b.timers[key])
		if err != nil {
			return nil, fmt.Errorf("key %s, %w", key, err)
		}
		if u := internals.Update(); !u.IsEmpty() {
			result.Timers = append(result.Timers, u)
		}
		result.Holds = append(result.Holds, holds...)
		outputs = append(outputs, out...)
		for _, el := range b.elements[key] {
			result.Consumed = append(result.Consumed, el.Timestamp)
		}
	}
	if len(b.stage.downstreams) > 0 && len(outputs) > 0 {
		result.Produced = make(map[string][]mtime.Time, len(b.stage.downstreams))
		for _, d := range b.stage.downstreams {
			for _, el := range outputs {
				result.Produced[d] = append(result.Produced[d], el.Timestamp)
			}
		}
	}

	downstreams := make([]*stage, 0, len(b.stage.downstreams))
	for _, d := range b.stage.downstreams {
		ds, err := r.stage(d)
		if err != nil {
			return nil, err
		}
		downstreams = append(downstreams, ds)
	}

	if err := r.manager.Validate(result); err != nil {
		return nil, err
	}
	// the state is applied first, it is undone if the manager rejects the commit. No other bundle writes
	// the cells of this stage and partition meanwhile.
	undo, err := txn.UndoMutations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read the state of bundle %s, %w", b.id, err)
	}
	if err := txn.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to apply the state of bundle %s, %w", b.id, err)
	}
	if err := r.manager.Commit(result); err != nil {
		if uerr := r.store.Apply(ctx, undo); uerr != nil {
			return nil, multierr.Append(err, fmt.Errorf("failed to undo the state of bundle %s, %w", b.id, uerr))
		}
		return nil, err
	}
	r.committed.Add(b.id, struct{}{})
	for _, ds := range downstreams {
		r.push(ds, outputs)
	}
	r.processed.Inc()
	metrics.BundlesProcessed.WithLabelValues(b.stage.id).Inc()
	metrics.BundleElements.WithLabelValues(b.stage.id).Observe(float64(b.size))
	return outputs, nil
}

// Processed returns the number of committed bundles.
func (r *Runner) Processed() int64 {
	return r.processed.Load()
}

// Retried returns the number of retried bundle attempts.
func (r *Runner) Retried() int64 {
	return r.retried.Load()
}

// IsDone returns true once every stage is done.
func (r *Runner) IsDone() bool {
	r.RLock()
	defer r.RUnlock()
	for _, id := range r.order {
		if !r.manager.IsDone(id) {
			return false
		}
	}
	return true
}

// Close stops the runner. The manager and the store are owned by the caller.
func (r *Runner) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.committed.Purge()
	r.log.Infow("Closed runner", zap.Int64("bundles", r.processed.Load()), zap.Int64("retries", r.retried.Load()))
	return nil
}
