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

// Package manager tracks the watermarks of a graph of stages. Every stage has an input watermark, the
// point in event time before which no more input is expected, and an output watermark, the point before
// which the stage will not produce more output. Holds of windows with buffered data and pending event
// time timers keep the output watermark back. The manager also owns the pending timers of every stage
// and hands them out once the time of their domain has passed.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/numawin/pkg/metrics"
	"github.com/numaproj/numawin/pkg/shared/clock"
	"github.com/numaproj/numawin/pkg/shared/logging"
	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/timers"
)

var (
	// ErrWatermarkRegression is returned when a commit would move an output watermark backwards.
	ErrWatermarkRegression = errors.New("watermark regression")
	// ErrUnknownStage is returned for a stage which was not added.
	ErrUnknownStage = errors.New("unknown stage")
)

// Hold keeps the output watermark of a stage at or before Timestamp while the window of the key has
// buffered data. A hold at mtime.MaxTimestamp releases the prior hold of the window.
type Hold struct {
	Key       string
	Window    string
	Timestamp mtime.Time
}

// CommittedResult is everything a bundle changes in the watermark bookkeeping.
type CommittedResult struct {
	Stage string
	// Timers are the timer changes of every key of the bundle.
	Timers []timers.Update
	// Holds are the new holds of the windows the bundle touched.
	Holds []Hold
	// Consumed are the timestamps of the pending elements the bundle processed.
	Consumed []mtime.Time
	// Produced are the timestamps of the elements the bundle sent to the downstream stages, keyed by stage.
	Produced map[string][]mtime.Time
}

// Manager is the watermark manager of one pipeline execution.
type Manager struct {
	pipelineName string
	clock        clock.Clock
	stages       map[string]*stageState
	// seq orders timers set with the same timestamp
	seq atomic.Uint64
	log *zap.SugaredLogger
	sync.RWMutex
}

type options struct {
	pipelineName string
}

// Option to configure the Manager
type Option func(*options)

// WithPipelineName sets the pipeline name used as the metrics label.
func WithPipelineName(name string) Option {
	return func(o *options) {
		o.pipelineName = name
	}
}

// New returns a Manager reading processing time from c.
func New(ctx context.Context, c clock.Clock, opts ...Option) *Manager {
	o := &options{pipelineName: "default"}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Manager{
		pipelineName: o.pipelineName,
		clock:        c,
		stages:       make(map[string]*stageState),
		log:          logging.FromContext(ctx).With("pipeline", o.pipelineName),
	}
}

// AddStage adds a stage reading from the upstream stages. A stage without upstreams is a root whose
// input watermark is advanced with AdvanceSourceWatermark. Upstreams have to be added first.
func (m *Manager) AddStage(id string, upstreams ...string) error {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.stages[id]; ok {
		return fmt.Errorf("stage %s already exists", id)
	}
	for _, u := range upstreams {
		if _, ok := m.stages[u]; !ok {
			return fmt.Errorf("upstream %s of stage %s: %w", u, id, ErrUnknownStage)
		}
	}
	ss := newStageState(id, upstreams)
	for _, u := range upstreams {
		up := m.stages[u]
		up.lock.Lock()
		up.downstreams = append(up.downstreams, id)
		ss.upstreamWatermarks[u] = up.output
		ss.upstreamSync[u] = up.syncOutput
		up.lock.Unlock()
	}
	m.stages[id] = ss
	m.log.Infow("Added stage", zap.String("stage", id), zap.Strings("upstreams", upstreams))
	return nil
}

func (m *Manager) stage(id string) (*stageState, error) {
	m.RLock()
	defer m.RUnlock()
	ss, ok := m.stages[id]
	if !ok {
		return nil, fmt.Errorf("stage %s: %w", id, ErrUnknownStage)
	}
	return ss, nil
}

func (m *Manager) nextSeq() uint64 {
	return m.seq.Inc()
}

// AdvanceSourceWatermark moves the source watermark of a root stage forward, it never goes backwards.
func (m *Manager) AdvanceSourceWatermark(id string, t mtime.Time) error {
	ss, err := m.stage(id)
	if err != nil {
		return err
	}
	if !ss.isRoot() {
		return fmt.Errorf("stage %s is not a root stage", id)
	}
	ss.lock.Lock()
	if t > ss.sourceWatermark {
		ss.sourceWatermark = t
	}
	ss.lock.Unlock()
	m.refresh(id)
	return nil
}

// AddPending registers elements which are buffered for the stage but not processed yet. They hold the
// input watermark of the stage until they are consumed by a commit.
func (m *Manager) AddPending(id string, ts ...mtime.Time) error {
	ss, err := m.stage(id)
	if err != nil {
		return err
	}
	ss.lock.Lock()
	for _, t := range ts {
		ss.pending.add(t)
	}
	ss.lock.Unlock()
	return nil
}

// Validate checks that the result can be committed without a watermark regression.
func (m *Manager) Validate(result CommittedResult) error {
	ss, err := m.stage(result.Stage)
	if err != nil {
		return err
	}
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.validateLocked(result)
}

// Commit atomically applies the result of a bundle. If any hold would move the output watermark
// backwards nothing is applied and ErrWatermarkRegression is returned.
func (m *Manager) Commit(result CommittedResult) error {
	ss, err := m.stage(result.Stage)
	if err != nil {
		return err
	}
	downstreams := make(map[string]*stageState, len(result.Produced))
	for id := range result.Produced {
		ds, err := m.stage(id)
		if err != nil {
			return err
		}
		downstreams[id] = ds
	}

	ss.lock.Lock()
	if err := ss.validateLocked(result); err != nil {
		ss.lock.Unlock()
		metrics.WatermarkRegressions.WithLabelValues(m.pipelineName, ss.id).Inc()
		return err
	}
	ss.applyLocked(result, m.nextSeq)
	// the produced elements are registered before the output watermark can move past them.
	for id, ts := range result.Produced {
		ds := downstreams[id]
		ds.lock.Lock()
		for _, t := range ts {
			ds.pending.add(t)
		}
		ds.lock.Unlock()
	}
	ss.lock.Unlock()

	m.refresh(result.Stage)
	return nil
}

// refresh recomputes the watermarks of the stages and pushes the changes downstream.
func (m *Manager) refresh(ids ...string) {
	now := m.clock.Now()
	worklist := append([]string(nil), ids...)
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		ss, err := m.stage(id)
		if err != nil {
			continue
		}
		ss.lock.Lock()
		advanced := ss.updateLocked(now)
		input, output, syncOutput := ss.input, ss.output, ss.syncOutput
		pendingTimers := ss.pendingTimersLocked()
		downstreams := append([]string(nil), ss.downstreams...)
		ss.lock.Unlock()

		metrics.InputWatermark.WithLabelValues(m.pipelineName, id).Set(float64(input))
		metrics.OutputWatermark.WithLabelValues(m.pipelineName, id).Set(float64(output))
		metrics.PendingTimers.WithLabelValues(m.pipelineName, id).Set(float64(pendingTimers))
		if !advanced {
			continue
		}
		for _, d := range downstreams {
			ds, err := m.stage(d)
			if err != nil {
				continue
			}
			changed := false
			ds.lock.Lock()
			if output > ds.upstreamWatermarks[id] {
				ds.upstreamWatermarks[id] = output
				changed = true
			}
			if syncOutput > ds.upstreamSync[id] {
				ds.upstreamSync[id] = syncOutput
				changed = true
			}
			ds.lock.Unlock()
			if changed {
				worklist = append(worklist, d)
			}
		}
	}
}

// RefreshProcessingTime re-reads the clock and advances the synchronized processing times.
func (m *Manager) RefreshProcessingTime() {
	m.RLock()
	roots := make([]string, 0)
	for id, ss := range m.stages {
		if ss.isRoot() {
			roots = append(roots, id)
		}
	}
	m.RUnlock()
	sort.Strings(roots)
	m.refresh(roots...)
}

// ExtractFiredTimers returns the timers of the stage which are ready to fire, grouped by key. Timers are
// ordered by timestamp and then by the order they were set. The returned timers are in-flight until a
// commit completes them or they are returned, every timer is handed out exactly once.
func (m *Manager) ExtractFiredTimers(id string) (map[string][]timers.TimerData, error) {
	ss, err := m.stage(id)
	if err != nil {
		return nil, err
	}
	m.refresh(id)
	now := m.clock.Now()
	ss.lock.Lock()
	fired := ss.extractLocked(now)
	ss.lock.Unlock()
	if len(fired) == 0 {
		return nil, nil
	}

	sort.SliceStable(fired, func(i, j int) bool {
		return lessQueued(fired[i], fired[j])
	})
	result := make(map[string][]timers.TimerData)
	for _, qt := range fired {
		result[qt.timer.Key] = append(result[qt.timer.Key], qt.timer)
		metrics.FiredTimers.WithLabelValues(m.pipelineName, id, qt.timer.Domain.String()).Inc()
	}
	return result, nil
}

// ReturnTimers puts in-flight timers of a failed bundle back in to the pending set.
func (m *Manager) ReturnTimers(id string, ts []timers.TimerData) error {
	ss, err := m.stage(id)
	if err != nil {
		return err
	}
	ss.lock.Lock()
	ss.returnLocked(ts, m.nextSeq)
	ss.lock.Unlock()
	return nil
}

// InputWatermark returns the input watermark of the stage.
func (m *Manager) InputWatermark(id string) (mtime.Time, error) {
	ss, err := m.stage(id)
	if err != nil {
		return mtime.MinTimestamp, err
	}
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.input, nil
}

// OutputWatermark returns the output watermark of the stage.
func (m *Manager) OutputWatermark(id string) (mtime.Time, error) {
	ss, err := m.stage(id)
	if err != nil {
		return mtime.MinTimestamp, err
	}
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.output, nil
}

// SynchronizedProcessingInputTime returns the synchronized processing input time of the stage.
func (m *Manager) SynchronizedProcessingInputTime(id string) (mtime.Time, error) {
	ss, err := m.stage(id)
	if err != nil {
		return mtime.MinTimestamp, err
	}
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.syncInput, nil
}

// IsDone returns true once the input watermark of the stage reached the end of time and all its timers
// completed.
func (m *Manager) IsDone(id string) bool {
	ss, err := m.stage(id)
	if err != nil {
		return false
	}
	ss.lock.Lock()
	defer ss.lock.Unlock()
	return ss.done
}

// Stage returns the read only watermarks of the stage, nil if the stage does not exist.
func (m *Manager) Stage(id string) *StageWatermarks {
	ss, err := m.stage(id)
	if err != nil {
		return nil
	}
	return &StageWatermarks{ss: ss}
}

// Close removes the metrics of the pipeline.
func (m *Manager) Close() error {
	m.Lock()
	defer m.Unlock()
	for id, ss := range m.stages {
		metrics.InputWatermark.DeleteLabelValues(m.pipelineName, id)
		metrics.OutputWatermark.DeleteLabelValues(m.pipelineName, id)
		metrics.PendingTimers.DeleteLabelValues(m.pipelineName, id)
		metrics.WatermarkRegressions.DeleteLabelValues(m.pipelineName, id)
		for _, d := range []timers.Domain{timers.EventTime, timers.ProcessingTime, timers.SynchronizedProcessingTime} {
			metrics.FiredTimers.DeleteLabelValues(m.pipelineName, id, d.String())
		}
		ss.lock.Lock()
		m.log.Debugw("Closing stage", zap.String("stage", id),
			zap.Stringer("input", ss.input), zap.Stringer("output", ss.output))
		ss.lock.Unlock()
	}
	m.stages = make(map[string]*stageState)
	return nil
}

// StageWatermarks is the view of the watermarks of one stage.
type StageWatermarks struct {
	ss *stageState
}

var _ timers.StageWatermarks = (*StageWatermarks)(nil)

func (s *StageWatermarks) InputWatermark() mtime.Time {
	s.ss.lock.Lock()
	defer s.ss.lock.Unlock()
	return s.ss.input
}

func (s *StageWatermarks) OutputWatermark() mtime.Time {
	s.ss.lock.Lock()
	defer s.ss.lock.Unlock()
	return s.ss.output
}

func (s *StageWatermarks) SynchronizedProcessingInputTime() mtime.Time {
	s.ss.lock.Lock()
	defer s.ss.lock.Unlock()
	return s.ss.syncInput
}

func (s *StageWatermarks) SynchronizedProcessingOutputTime() mtime.Time {
	s.ss.lock.Lock()
	defer s.ss.lock.Unlock()
	return s.ss.syncOutput
}
