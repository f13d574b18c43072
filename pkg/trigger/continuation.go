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

// Continuation returns the trigger which governs the panes produced downstream of t. Processing time
// delays become synchronized processing time, counts become a count of one.
func (t *Trigger) Continuation() *Trigger {
	switch t.Kind {
	case KindAfterProcessingTime:
		return AfterSynchronizedProcessingTime()
	case KindAfterCount:
		return AfterCount(1)
	case KindAfterWatermark:
		c := AfterEndOfWindow()
		if t.Early != nil {
			c.Early = t.Early.Continuation()
		}
		if t.Late != nil {
			c.Late = t.Late.Continuation()
		}
		return c
	case KindAfterAll, KindAfterFirst, KindAfterEach, KindRepeatedly, KindOrFinally:
		c := &Trigger{Kind: t.Kind, Children: make([]*Trigger, len(t.Children))}
		for i, child := range t.Children {
			c.Children[i] = child.Continuation()
		}
		return c
	default:
		return t
	}
}
