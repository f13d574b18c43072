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

package trigger

import (
	"github.com/numaproj/numawin/pkg/shared/mtime"
)

// State is the persisted state of a trigger for one key and window. Its shape follows the trigger
// tree, Children[i] is the state of the i-th child. AfterWatermark keeps the early state at index 0
// and the late state at index 1.
type State struct {
	Finished bool `json:"finished,omitempty"`
	// Count is the number of elements of the current pane, AfterCount and Always.
	Count uint64 `json:"count,omitempty"`
	// DelayTarget is the processing time the pane fires after, set by the first element of the pane.
	DelayTarget *mtime.Time `json:"delayTarget,omitempty"`
	// OnTimeFired is set once AfterWatermark fired the on time pane.
	OnTimeFired bool     `json:"onTimeFired,omitempty"`
	Children    []*State `json:"children,omitempty"`
}

// NewState returns the initial state of a trigger.
func NewState() *State {
	return &State{}
}

// child returns the state of the i-th child, creating it when needed.
func (s *State) child(i int) *State {
	for len(s.Children) <= i {
		s.Children = append(s.Children, &State{})
	}
	return s.Children[i]
}

// peek returns the state of the i-th child without changing s.
func (s *State) peek(i int) *State {
	if i < len(s.Children) {
		return s.Children[i]
	}
	return &State{}
}

// reset puts the state back to the initial state.
func (s *State) reset() {
	*s = State{}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.DelayTarget != nil {
		target := *s.DelayTarget
		c.DelayTarget = &target
	}
	if s.Children != nil {
		c.Children = make([]*State, len(s.Children))
		for i, ch := range s.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return &c
}

// mergeStates combines the states of windows which are merged. Finished and OnTimeFired are set if
// any of the states has them set, counts are summed and the earliest delay target wins.
func mergeStates(states []*State) *State {
	merged := &State{}
	width := 0
	for _, s := range states {
		if s == nil {
			continue
		}
		merged.Finished = merged.Finished || s.Finished
		merged.OnTimeFired = merged.OnTimeFired || s.OnTimeFired
		merged.Count += s.Count
		if s.DelayTarget != nil && (merged.DelayTarget == nil || *s.DelayTarget < *merged.DelayTarget) {
			target := *s.DelayTarget
			merged.DelayTarget = &target
		}
		if len(s.Children) > width {
			width = len(s.Children)
		}
	}
	for i := 0; i < width; i++ {
		var children []*State
		for _, s := range states {
			if s != nil && i < len(s.Children) {
				children = append(children, s.Children[i])
			}
		}
		merged.Children = append(merged.Children, mergeStates(children))
	}
	return merged
}
