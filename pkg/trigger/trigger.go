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

// Package trigger decides when the panes of a window are emitted.
//
// A Trigger is an immutable tree of trigger kinds. It does not hold any per window data, the state of a
// trigger for one key and window is a State tree of the same shape which is persisted between bundles. All
// kinds are evaluated by the same recursive interpreter (OnElement, ShouldFire, OnFire, OnMerge, Clear), so
// the state is serialized the same way regardless of the kinds in the tree.
package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the kind of a trigger node.
type Kind int

const (
	// KindDefault fires every time the watermark is past the end of the window, it never finishes.
	KindDefault Kind = iota
	// KindAfterWatermark fires once the watermark passes the end of the window, with optional early
	// and late firings.
	KindAfterWatermark
	// KindAfterProcessingTime fires once a delay after the first element of the pane.
	KindAfterProcessingTime
	// KindAfterSynchronizedProcessingTime fires once the synchronized processing time passes the
	// time of the first element of the pane.
	KindAfterSynchronizedProcessingTime
	// KindAfterCount fires once the pane has at least Count elements.
	KindAfterCount
	// KindAfterAll fires once every child has fired.
	KindAfterAll
	// KindAfterFirst fires once any child fires.
	KindAfterFirst
	// KindAfterEach fires its children one after the other.
	KindAfterEach
	// KindRepeatedly fires its child forever.
	KindRepeatedly
	// KindOrFinally fires its first child until the second child fires, then it finishes.
	KindOrFinally
	// KindNever never fires, only the final pane at garbage collection is emitted.
	KindNever
	// KindAlways fires for every element.
	KindAlways
)

func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "Default"
	case KindAfterWatermark:
		return "AfterWatermark"
	case KindAfterProcessingTime:
		return "AfterProcessingTime"
	case KindAfterSynchronizedProcessingTime:
		return "AfterSynchronizedProcessingTime"
	case KindAfterCount:
		return "AfterCount"
	case KindAfterAll:
		return "AfterAll"
	case KindAfterFirst:
		return "AfterFirst"
	case KindAfterEach:
		return "AfterEach"
	case KindRepeatedly:
		return "Repeatedly"
	case KindOrFinally:
		return "OrFinally"
	case KindNever:
		return "Never"
	case KindAlways:
		return "Always"
	default:
		return "Unknown"
	}
}

// Trigger is a node of the trigger tree.
type Trigger struct {
	Kind Kind
	// Delay is the processing time delay of AfterProcessingTime.
	Delay time.Duration
	// Count is the element count of AfterCount.
	Count uint64
	// Children of the composite kinds. Repeatedly has one child, OrFinally has the main trigger
	// followed by the until trigger.
	Children []*Trigger
	// Early and Late are the optional sub-triggers of AfterWatermark.
	Early *Trigger
	Late  *Trigger
}

// Default returns the trigger which fires whenever the watermark is past the end of the window.
func Default() *Trigger {
	return &Trigger{Kind: KindDefault}
}

// AfterEndOfWindow returns the trigger which fires once the watermark passes the end of the window.
func AfterEndOfWindow() *Trigger {
	return &Trigger{Kind: KindAfterWatermark}
}

// EarlyFiring returns a copy of the AfterWatermark trigger which also fires every time early fires
// before the end of the window.
func (t *Trigger) EarlyFiring(early *Trigger) *Trigger {
	c := *t
	c.Early = early
	return &c
}

// LateFiring returns a copy of the AfterWatermark trigger which fires every time late fires after
// the end of the window.
func (t *Trigger) LateFiring(late *Trigger) *Trigger {
	c := *t
	c.Late = late
	return &c
}

// AfterProcessingTime returns the trigger which fires once processing time passes the time of the
// first element of the pane.
func AfterProcessingTime() *Trigger {
	return &Trigger{Kind: KindAfterProcessingTime}
}

// PlusDelay returns a copy of the AfterProcessingTime trigger with the delay increased by d.
func (t *Trigger) PlusDelay(d time.Duration) *Trigger {
	c := *t
	c.Delay += d
	return &c
}

// AfterSynchronizedProcessingTime returns the trigger which fires once all upstream stages passed the
// processing time of the first element of the pane.
func AfterSynchronizedProcessingTime() *Trigger {
	return &Trigger{Kind: KindAfterSynchronizedProcessingTime}
}

// AfterCount returns the trigger which fires once the pane has n elements.
func AfterCount(n uint64) *Trigger {
	return &Trigger{Kind: KindAfterCount, Count: n}
}

// AfterAll returns the trigger which fires once all the children fired.
func AfterAll(children ...*Trigger) *Trigger {
	return &Trigger{Kind: KindAfterAll, Children: children}
}

// AfterFirst returns the trigger which fires once any of the children fires.
func AfterFirst(children ...*Trigger) *Trigger {
	return &Trigger{Kind: KindAfterFirst, Children: children}
}

// AfterEach returns the trigger which fires each child in sequence.
func AfterEach(children ...*Trigger) *Trigger {
	return &Trigger{Kind: KindAfterEach, Children: children}
}

// Repeatedly returns the trigger which fires t forever.
func Repeatedly(t *Trigger) *Trigger {
	return &Trigger{Kind: KindRepeatedly, Children: []*Trigger{t}}
}

// OrFinally returns the trigger which fires like t until until fires.
func (t *Trigger) OrFinally(until *Trigger) *Trigger {
	return &Trigger{Kind: KindOrFinally, Children: []*Trigger{t, until}}
}

// Never returns the trigger which never fires.
func Never() *Trigger {
	return &Trigger{Kind: KindNever}
}

// Always returns the trigger which fires for every element.
func Always() *Trigger {
	return &Trigger{Kind: KindAlways}
}

// IsFinished reports whether the trigger with state st can never fire again.
func IsFinished(st *State) bool {
	return st != nil && st.Finished
}

func (t *Trigger) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindAfterWatermark:
		var sb strings.Builder
		sb.WriteString("AfterWatermark(")
		var parts []string
		if t.Early != nil {
			parts = append(parts, "early="+t.Early.String())
		}
		if t.Late != nil {
			parts = append(parts, "late="+t.Late.String())
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(")")
		return sb.String()
	case KindAfterProcessingTime:
		return fmt.Sprintf("AfterProcessingTime(+%v)", t.Delay)
	case KindAfterCount:
		return fmt.Sprintf("AfterCount(%d)", t.Count)
	case KindAfterAll, KindAfterFirst, KindAfterEach, KindRepeatedly, KindOrFinally:
		children := make([]string, 0, len(t.Children))
		for _, c := range t.Children {
			children = append(children, c.String())
		}
		return fmt.Sprintf("%s(%s)", t.Kind, strings.Join(children, ", "))
	default:
		return t.Kind.String()
	}
}
