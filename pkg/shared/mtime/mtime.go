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

// Package mtime represents event and processing time as milliseconds since the unix epoch.
// Time has no timezone. MinTimestamp and MaxTimestamp bound the representable range and are used
// as sentinels for "before anything" and "never" respectively.
package mtime

import (
	"fmt"
	"math"
	"time"
)

const (
	// MinTimestamp is the minimum value for any event or processing time.
	MinTimestamp Time = math.MinInt64 / 1000

	// MaxTimestamp is the maximum value for any event or processing time. A watermark at
	// MaxTimestamp means no more input will ever arrive.
	MaxTimestamp Time = math.MaxInt64 / 1000

	// EndOfGlobalWindowTime is the timestamp at the end of the global window. It is one day
	// before MaxTimestamp so timers in the global window can still fire before the final watermark.
	EndOfGlobalWindowTime = MaxTimestamp - 24*60*60*1000
)

// Time is the number of milliseconds since the unix epoch.
type Time int64

// Now returns the current wall time.
func Now() Time {
	return FromTime(time.Now())
}

// FromMilliseconds returns the Time for the given milliseconds.
func FromMilliseconds(ms int64) Time {
	return Normalize(Time(ms))
}

// FromDuration returns a Time offset from the epoch by d.
func FromDuration(d time.Duration) Time {
	return FromMilliseconds(d.Milliseconds())
}

// FromTime returns the Time for the given wall time.
func FromTime(t time.Time) Time {
	return FromMilliseconds(t.UnixMilli())
}

// Normalize clamps t to [MinTimestamp, MaxTimestamp].
func Normalize(t Time) Time {
	if t < MinTimestamp {
		return MinTimestamp
	}
	if t > MaxTimestamp {
		return MaxTimestamp
	}
	return t
}

// Milliseconds returns the number of milliseconds since the epoch.
func (t Time) Milliseconds() int64 {
	return int64(t)
}

// ToTime returns the wall time in UTC.
func (t Time) ToTime() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// Add returns t+d, clamped to the representable range.
func (t Time) Add(d time.Duration) Time {
	ms := d.Milliseconds()
	if ms > 0 && t > MaxTimestamp-Time(ms) {
		return MaxTimestamp
	}
	if ms < 0 && t < MinTimestamp-Time(ms) {
		return MinTimestamp
	}
	return Normalize(t + Time(ms))
}

// Subtract returns t-d, clamped to the representable range.
func (t Time) Subtract(d time.Duration) Time {
	return t.Add(-d)
}

// Before reports whether t is strictly before o.
func (t Time) Before(o Time) bool {
	return t < o
}

// After reports whether t is strictly after o.
func (t Time) After(o Time) bool {
	return t > o
}

func (t Time) String() string {
	switch t {
	case MinTimestamp:
		return "-inf"
	case MaxTimestamp:
		return "+inf"
	case EndOfGlobalWindowTime:
		return "glo"
	default:
		return fmt.Sprintf("%d", int64(t))
	}
}

// Min returns the smaller of a and b.
func Min(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}
