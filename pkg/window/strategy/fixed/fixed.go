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

// Package fixed implements Fixed windows. Fixed windows (sometimes called tumbling windows) are
// defined by a static window size, e.g. minutely windows or hourly windows. They are generally aligned, i.e. every
// window applies across all the data for the corresponding period of time. An optional offset shifts the
// boundaries, e.g. hourly windows which start at 15 minutes past the hour.
package fixed

import (
	"fmt"
	"time"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/window"
)

// Fixed implements Fixed window.
type Fixed struct {
	// Length is the temporal length of the window.
	Length time.Duration
	// Offset shifts the window boundaries, 0 <= Offset < Length.
	Offset time.Duration
}

var _ window.Fn = (*Fixed)(nil)

// NewFixed returns a Fixed window fn. Offsets are normalized into [0, length).
func NewFixed(length time.Duration, offset time.Duration) (*Fixed, error) {
	if length.Milliseconds() <= 0 {
		return nil, fmt.Errorf("fixed window length must be at least 1ms, got %v", length)
	}
	offset = time.Duration(offset.Milliseconds()%length.Milliseconds()) * time.Millisecond
	if offset < 0 {
		offset += length
	}
	return &Fixed{Length: length, Offset: offset}, nil
}

func (f *Fixed) Strategy() window.Strategy {
	return window.Fixed
}

// AssignWindows assigns a window for the given eventTime.
func (f *Fixed) AssignWindows(eventTime mtime.Time) []window.Window {
	// Assignment of windows follows a left inclusive and right exclusive principle, an
	// element on the boundary falls in to the window to the right of the boundary.
	start := window.AlignedStart(eventTime, f.Length, f.Offset)
	return []window.Window{
		window.NewIntervalWindow(start, start.Add(f.Length)),
	}
}

func (f *Fixed) String() string {
	return fmt.Sprintf("Fixed(%v, offset=%v)", f.Length, f.Offset)
}
