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
	"fmt"

	"go.uber.org/multierr"
)

// Validate checks the structure of the trigger tree. All the problems are reported.
func (t *Trigger) Validate() error {
	return t.validate(TimerTagPrefix)
}

func (t *Trigger) validate(path string) error {
	if t == nil {
		return fmt.Errorf("%s: trigger is nil", path)
	}
	var errs error
	if t.Kind != KindAfterWatermark && (t.Early != nil || t.Late != nil) {
		errs = multierr.Append(errs, fmt.Errorf("%s: early and late firings are only supported by %s, got %s", path, KindAfterWatermark, t.Kind))
	}
	switch t.Kind {
	case KindDefault, KindNever, KindAlways, KindAfterSynchronizedProcessingTime:
	case KindAfterWatermark:
		if t.Early != nil {
			errs = multierr.Append(errs, t.Early.validate(path+"/early"))
		}
		if t.Late != nil {
			errs = multierr.Append(errs, t.Late.validate(path+"/late"))
		}
	case KindAfterProcessingTime:
		if t.Delay < 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s: negative delay %v", path, t.Delay))
		}
	case KindAfterCount:
		if t.Count < 1 {
			errs = multierr.Append(errs, fmt.Errorf("%s: count must be at least 1", path))
		}
	case KindAfterAll, KindAfterFirst, KindAfterEach:
		if len(t.Children) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s needs at least one sub-trigger", path, t.Kind))
		}
		if t.Kind != KindAfterEach {
			for i, c := range t.Children {
				if c != nil && !c.isOnce() {
					errs = multierr.Append(errs, fmt.Errorf("%s: sub-trigger %d of %s must fire at most once, got %s", path, i, t.Kind, c))
				}
			}
		}
	case KindRepeatedly:
		if len(t.Children) != 1 {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s needs exactly one sub-trigger, got %d", path, t.Kind, len(t.Children)))
		}
	case KindOrFinally:
		if len(t.Children) != 2 {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s needs a trigger and an until trigger, got %d", path, t.Kind, len(t.Children)))
		} else if t.Children[1] != nil && !t.Children[1].isOnce() {
			errs = multierr.Append(errs, fmt.Errorf("%s: until trigger must fire at most once, got %s", path, t.Children[1]))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("%s: unknown trigger kind %d", path, t.Kind))
	}
	for i, c := range t.Children {
		errs = multierr.Append(errs, c.validate(childPath(path, i)))
	}
	return errs
}

// isOnce reports whether the trigger finishes after it fired.
func (t *Trigger) isOnce() bool {
	switch t.Kind {
	case KindDefault, KindRepeatedly, KindAlways:
		return false
	case KindAfterWatermark:
		return t.Early == nil && t.Late == nil
	case KindAfterAll, KindAfterFirst, KindAfterEach:
		for _, c := range t.Children {
			if c == nil || !c.isOnce() {
				return false
			}
		}
		return true
	case KindOrFinally:
		return len(t.Children) > 0 && t.Children[0] != nil && t.Children[0].isOnce()
	default:
		return true
	}
}
