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

// Package clock provides the processing time source. Everything that reads processing time takes a
// Clock so tests can fully control how processing time advances.
package clock

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/numaproj/numawin/pkg/shared/mtime"
)

// Clock returns the current processing time. Implementations must be monotonic with respect to
// wall time.
type Clock interface {
	Now() mtime.Time
}

// Real is the processing time clock backed by the system clock.
var Real Clock = NewOffsetClock(clockz.RealClock)

// offsetClock reads the wall time once and then advances using the monotonic reading of the
// underlying clock, so wall clock adjustments never move processing time backwards.
type offsetClock struct {
	base time.Time
	c    clockz.Clock
}

// NewOffsetClock returns a Clock anchored at the current time of c.
func NewOffsetClock(c clockz.Clock) Clock {
	return &offsetClock{base: c.Now(), c: c}
}

func (o *offsetClock) Now() mtime.Time {
	return mtime.FromTime(o.base).Add(o.c.Now().Sub(o.base))
}

// Fake is a manually advanced Clock for tests and deterministic replay.
type Fake struct {
	fake *clockz.FakeClock
	lock sync.Mutex
}

var _ Clock = (*Fake)(nil)

// NewFake returns a Fake clock set to t.
func NewFake(t mtime.Time) *Fake {
	return &Fake{fake: clockz.NewFakeClockAt(t.ToTime())}
}

func (f *Fake) Now() mtime.Time {
	return mtime.FromTime(f.fake.Now())
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fake.Advance(d)
}

// AdvanceTo moves the clock forward to t. It never moves the clock backwards.
func (f *Fake) AdvanceTo(t mtime.Time) {
	f.lock.Lock()
	defer f.lock.Unlock()
	now := mtime.FromTime(f.fake.Now())
	if t > now {
		f.fake.Advance(time.Duration(t-now) * time.Millisecond)
	}
}
