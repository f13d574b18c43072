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

// Package session implements Session windows. Session windows are not aligned, every element opens a
// window [eventTime, eventTime+gap) and windows of the same key which overlap are merged into one session.
// A session therefore ends after a period of inactivity of at least gap.
package session

import (
	"fmt"
	"time"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/window"
)

// Session implements session windows.
type Session struct {
	// Gap is the minimum inactivity that closes a session.
	Gap time.Duration
}

var _ window.MergingFn = (*Session)(nil)

// NewSession returns a Session window fn.
func NewSession(gap time.Duration) (*Session, error) {
	if gap.Milliseconds() <= 0 {
		return nil, fmt.Errorf("session gap must be at least 1ms, got %v", gap)
	}
	return &Session{Gap: gap}, nil
}

func (s *Session) Strategy() window.Strategy {
	return window.Session
}

// AssignWindows assigns the event to its proto session [eventTime, eventTime+gap).
func (s *Session) AssignWindows(eventTime mtime.Time) []window.Window {
	return []window.Window{
		window.NewIntervalWindow(eventTime, eventTime.Add(s.Gap)),
	}
}

// MergeWindows merges all the overlapping sessions.
func (s *Session) MergeWindows(windows []window.Window) []window.MergeResult {
	return window.MergeOverlapping(windows)
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(gap=%v)", s.Gap)
}
