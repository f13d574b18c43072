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

package timers

import (
	"github.com/numaproj/numawin/pkg/shared/clock"
	"github.com/numaproj/numawin/pkg/shared/mtime"
)

// Internals is the timer facility of one key during one bundle. Time values are read through from the
// clock and the watermarks of the stage, nothing is cached.
type Internals struct {
	key        string
	clock      clock.Clock
	watermarks StageWatermarks
	builder    *UpdateBuilder
}

// NewInternals returns the Internals of key.
func NewInternals(key string, c clock.Clock, watermarks StageWatermarks) *Internals {
	return &Internals{
		key:        key,
		clock:      c,
		watermarks: watermarks,
		builder:    NewUpdateBuilder(key),
	}
}

// Key returns the key the timers belong to.
func (i *Internals) Key() string {
	return i.key
}

// SetTimer sets or replaces the timer.
func (i *Internals) SetTimer(t TimerData) {
	i.builder.SetTimer(t)
}

// DeleteTimer deletes the timer, the timestamp is ignored.
func (i *Internals) DeleteTimer(t TimerData) {
	i.builder.DeleteTimer(t)
}

// MarkCompleted records that a fired timer was processed.
func (i *Internals) MarkCompleted(t TimerData) {
	i.builder.MarkCompleted(t)
}

// Update returns the timer changes made so far.
func (i *Internals) Update() Update {
	return i.builder.Build()
}

func (i *Internals) CurrentProcessingTime() mtime.Time {
	return i.clock.Now()
}

func (i *Internals) CurrentSynchronizedProcessingTime() mtime.Time {
	return i.watermarks.SynchronizedProcessingInputTime()
}

func (i *Internals) CurrentInputWatermark() mtime.Time {
	return i.watermarks.InputWatermark()
}

func (i *Internals) CurrentOutputWatermark() mtime.Time {
	return i.watermarks.OutputWatermark()
}
