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

package window

import (
	"sort"
	"sync"

	"github.com/numaproj/numawin/pkg/shared/mtime"
)

// SortedWindowList is a thread safe list of distinct windows, sorted by window start time
// from lowest to highest. Windows with the same start are ordered by end time.
type SortedWindowList[W Window] struct {
	windows []W
	lock    *sync.RWMutex
}

// NewSortedWindowList implements a window list ordered by the start time. The Front/Head of the list will always have the smallest
// element while the End/Tail will have the largest element (start time).
func NewSortedWindowList[W Window]() *SortedWindowList[W] {
	return &SortedWindowList[W]{
		windows: make([]W, 0),
		lock:    &sync.RWMutex{},
	}
}

func less[W Window](a, b W) bool {
	if a.StartTime() == b.StartTime() {
		return a.EndTime() < b.EndTime()
	}
	return a.StartTime() < b.StartTime()
}

// search returns the first index whose window is not less than w.
func (s *SortedWindowList[W]) search(w W) int {
	return sort.Search(len(s.windows), func(i int) bool {
		return !less(s.windows[i], w)
	})
}

// InsertIfNotPresent inserts a window to the list of active windows if not present and returns the window.
func (s *SortedWindowList[W]) InsertIfNotPresent(window W) (W, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	index := s.search(window)
	if index < len(s.windows) && Window(s.windows[index]) == Window(window) {
		return s.windows[index], true
	}

	s.windows = append(s.windows, window)
	copy(s.windows[index+1:], s.windows[index:])
	s.windows[index] = window

	return window, false
}

// Delete deletes a window from the list.
func (s *SortedWindowList[W]) Delete(window W) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	index := s.search(window)
	if index < len(s.windows) && Window(s.windows[index]) == Window(window) {
		s.windows = append(s.windows[:index], s.windows[index+1:]...)
		return true
	}
	return false
}

// RemoveWindows removes the windows whose max timestamp is smaller than or equal to the given time.
func (s *SortedWindowList[W]) RemoveWindows(t mtime.Time) []W {
	s.lock.Lock()
	defer s.lock.Unlock()

	var removed []W
	kept := s.windows[:0]
	for _, w := range s.windows {
		if w.MaxTimestamp() <= t {
			removed = append(removed, w)
			continue
		}
		kept = append(kept, w)
	}
	s.windows = kept
	return removed
}

// Len returns the length of the window.
func (s *SortedWindowList[W]) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.windows)
}

// Front returns the smallest element from the list.
func (s *SortedWindowList[W]) Front() W {
	var front W
	s.lock.RLock()
	defer s.lock.RUnlock()
	if len(s.windows) == 0 {
		return front
	}
	return s.windows[0]
}

// Back returns the largest element from the list.
func (s *SortedWindowList[W]) Back() W {
	var back W
	s.lock.RLock()
	defer s.lock.RUnlock()
	if len(s.windows) == 0 {
		return back
	}
	return s.windows[len(s.windows)-1]
}

// Items returns the entire window list.
func (s *SortedWindowList[W]) Items() []W {
	s.lock.RLock()
	defer s.lock.RUnlock()

	items := make([]W, len(s.windows))
	copy(items, s.windows)

	return items
}

// FindWindowForTime returns the first window, in start order, which contains t.
func (s *SortedWindowList[W]) FindWindowForTime(t mtime.Time) (W, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, w := range s.windows {
		if w.StartTime() > t {
			break
		}
		if t < w.EndTime() {
			return w, true
		}
	}

	var empty W
	return empty, false
}
