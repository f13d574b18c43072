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

package manager

import (
	"github.com/google/btree"

	"github.com/numaproj/numawin/pkg/shared/mtime"
)

// timeMultiset is an ordered multiset of timestamps, it answers the minimum in O(log n).
type timeMultiset struct {
	tree   *btree.BTreeG[mtime.Time]
	counts map[mtime.Time]int
	size   int
}

func newTimeMultiset() *timeMultiset {
	return &timeMultiset{
		tree:   btree.NewOrderedG[mtime.Time](16),
		counts: make(map[mtime.Time]int),
	}
}

func (s *timeMultiset) add(t mtime.Time) {
	if s.counts[t] == 0 {
		s.tree.ReplaceOrInsert(t)
	}
	s.counts[t]++
	s.size++
}

// remove removes one occurrence of t, it returns false if t is not in the set.
func (s *timeMultiset) remove(t mtime.Time) bool {
	c, ok := s.counts[t]
	if !ok {
		return false
	}
	if c == 1 {
		delete(s.counts, t)
		s.tree.Delete(t)
	} else {
		s.counts[t] = c - 1
	}
	s.size--
	return true
}

// min returns the smallest timestamp, mtime.MaxTimestamp if the set is empty.
func (s *timeMultiset) min() mtime.Time {
	if t, ok := s.tree.Min(); ok {
		return t
	}
	return mtime.MaxTimestamp
}

func (s *timeMultiset) len() int {
	return s.size
}
