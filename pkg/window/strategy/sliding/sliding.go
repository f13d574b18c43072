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

// Package sliding implements Sliding windows. Sliding windows are defined by a static window size
// e.g. minutely windows or hourly windows and a fixed "slide". This is the duration by which the boundaries
// of the windows move once every <slide> duration. When the slide is larger than the window size there
// are gaps between windows and elements which fall into a gap are dropped.
package sliding

import (
	"fmt"
	"time"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/window"
)

// Sliding implements sliding windows
type Sliding struct {
	// Length is the duration of the window
	Length time.Duration
	// offset between successive windows.
	// successive windows are phased out by this duration.
	Slide time.Duration
	// Offset shifts the window boundaries, 0 <= Offset < Slide.
	Offset time.Duration
}

var (
	_ window.Fn      = (*Sliding)(nil)
	_ window.Dropper = (*Sliding)(nil)
)

// NewSliding returns a Sliding window fn
func NewSliding(length time.Duration, slide time.Duration, offset time.Duration) (*Sliding, error) {
	if length.Milliseconds() <= 0 {
		return nil, fmt.Errorf("sliding window length must be at least 1ms, got %v", length)
	}
	if slide.Milliseconds() <= 0 {
		return nil, fmt.Errorf("sliding window slide must be at least 1ms, got %v", slide)
	}
	offset = time.Duration(offset.Milliseconds()%slide.Milliseconds()) * time.Millisecond
	if offset < 0 {
		offset += slide
	}
	return &Sliding{Length: length, Slide: slide, Offset: offset}, nil
}

func (s *Sliding) Strategy() window.Strategy {
	return window.Sliding
}

// AssignWindows returns a set of windows that contain the element based on event time, latest window first.
func (s *Sliding) AssignWindows(eventTime mtime.Time) []window.Window {
	windows := make([]window.Window, 0, s.Length.Milliseconds()/s.Slide.Milliseconds()+1)

	// use the highest slide boundary which is not after the eventTime as the start time of the
	// latest window, every other window is found by subtracting the slide length.
	// since there is overlap at the boundaries we attribute the element to the window to the
	// right (higher) of the boundary.
	startTime := window.AlignedStart(eventTime, s.Slide, s.Offset)
	for startTime.Add(s.Length) > eventTime {
		windows = append(windows, window.NewIntervalWindow(startTime, startTime.Add(s.Length)))
		if startTime == mtime.MinTimestamp {
			break
		}
		startTime = startTime.Subtract(s.Slide)
	}
	return windows
}

// PermitsDropping is true when there are gaps between successive windows.
func (s *Sliding) PermitsDropping() bool {
	return s.Slide > s.Length
}

func (s *Sliding) String() string {
	return fmt.Sprintf("Sliding(%v, every=%v, offset=%v)", s.Length, s.Slide, s.Offset)
}
