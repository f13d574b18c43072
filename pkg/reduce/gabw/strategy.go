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

// Package gabw implements GroupAlsoByWindows, the keyed reduce which assigns elements to windows, merges
// the windows of a key, runs the trigger of every window and emits panes of the combined values.
//
// All the state of a key lives in the keyed state store. The windows of a key form an arena: every window
// gets a fresh id when it is created, including the result of a merge, and the accumulator and the
// trigger state are addressed by that id. Merging migrates the state of the merged ids in to the new id.
package gabw

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
	"github.com/numaproj/numawin/pkg/trigger"
	"github.com/numaproj/numawin/pkg/window"
	"github.com/numaproj/numawin/pkg/window/strategy"
)

// AccumulationMode decides what happens to the accumulator after a pane fired.
type AccumulationMode int

const (
	// Discarding resets the accumulator, every pane only has the elements since the prior pane.
	Discarding AccumulationMode = iota
	// Accumulating keeps the accumulator, every pane has all the elements of the window.
	Accumulating
)

func (m AccumulationMode) String() string {
	switch m {
	case Discarding:
		return "Discarding"
	case Accumulating:
		return "Accumulating"
	default:
		return "Unknown"
	}
}

// TimestampCombiner decides the timestamp of the panes.
type TimestampCombiner int

const (
	// EndOfWindow puts the pane at the max timestamp of the window.
	EndOfWindow TimestampCombiner = iota
	// Earliest puts the pane at the earliest element timestamp of the pane.
	Earliest
	// Latest puts the pane at the latest element timestamp of the pane.
	Latest
)

func (c TimestampCombiner) String() string {
	switch c {
	case EndOfWindow:
		return "EndOfWindow"
	case Earliest:
		return "Earliest"
	case Latest:
		return "Latest"
	default:
		return "Unknown"
	}
}

// ClosingBehavior decides whether the final pane is emitted when the window has no new elements.
type ClosingBehavior int

const (
	FireIfNonEmpty ClosingBehavior = iota
	FireAlways
)

func (c ClosingBehavior) String() string {
	switch c {
	case FireIfNonEmpty:
		return "FireIfNonEmpty"
	case FireAlways:
		return "FireAlways"
	default:
		return "Unknown"
	}
}

// Strategy is the windowing strategy of a reduce.
type Strategy struct {
	WindowFn          window.Fn
	Trigger           *trigger.Trigger
	AllowedLateness   time.Duration
	Mode              AccumulationMode
	TimestampCombiner TimestampCombiner
	ClosingBehavior   ClosingBehavior
}

// Validate checks the strategy, all the problems are reported.
func (s Strategy) Validate() error {
	var err error
	if s.WindowFn == nil {
		err = multierr.Append(err, errors.New("window fn is required"))
	}
	if s.Trigger == nil {
		err = multierr.Append(err, errors.New("trigger is required"))
	} else if terr := s.Trigger.Validate(); terr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid trigger %s: %w", s.Trigger, terr))
	}
	if s.AllowedLateness < 0 {
		err = multierr.Append(err, fmt.Errorf("allowed lateness %s is negative", s.AllowedLateness))
	}
	return err
}

// Continuation returns the strategy of a downstream reduce of the panes of s. The panes are already in
// their windows, so the trigger is the continuation trigger and the pane timestamps are kept.
func (s Strategy) Continuation() Strategy {
	c := s
	if s.Trigger != nil {
		c.Trigger = s.Trigger.Continuation()
	}
	return c
}

// StrategyFromSpec builds the strategy described by cfg.
func StrategyFromSpec(cfg dfv1.WindowingStrategy) (Strategy, error) {
	fn, err := strategy.New(cfg.Window)
	if err != nil {
		return Strategy{}, err
	}
	t, err := trigger.FromSpec(cfg.GetTrigger())
	if err != nil {
		return Strategy{}, err
	}
	s := Strategy{
		WindowFn:        fn,
		Trigger:         t,
		AllowedLateness: cfg.GetAllowedLateness(),
	}
	if cfg.GetAccumulationMode() == dfv1.AccumulatingMode {
		s.Mode = Accumulating
	}
	switch cfg.GetTimestampCombiner() {
	case dfv1.EarliestCombiner:
		s.TimestampCombiner = Earliest
	case dfv1.LatestCombiner:
		s.TimestampCombiner = Latest
	}
	if cfg.GetClosingBehavior() == dfv1.FireAlways {
		s.ClosingBehavior = FireAlways
	}
	return s, s.Validate()
}
