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

	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
)

// FromSpec builds and validates the trigger described by cfg.
func FromSpec(cfg dfv1.Trigger) (*Trigger, error) {
	t, err := fromSpec(cfg)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger %s: %w", t, err)
	}
	return t, nil
}

func fromSpec(cfg dfv1.Trigger) (*Trigger, error) {
	children := make([]*Trigger, 0, len(cfg.Triggers))
	for _, c := range cfg.Triggers {
		child, err := fromSpec(c)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	switch cfg.GetType() {
	case dfv1.DefaultTriggerType:
		return Default(), nil
	case dfv1.AfterWatermarkTriggerType:
		t := AfterEndOfWindow()
		if cfg.Early != nil {
			early, err := fromSpec(*cfg.Early)
			if err != nil {
				return nil, err
			}
			t.Early = early
		}
		if cfg.Late != nil {
			late, err := fromSpec(*cfg.Late)
			if err != nil {
				return nil, err
			}
			t.Late = late
		}
		return t, nil
	case dfv1.AfterProcessingTimeTriggerType:
		return AfterProcessingTime().PlusDelay(cfg.GetDelay().Duration), nil
	case dfv1.AfterSynchronizedProcessingTimeTriggerType:
		return AfterSynchronizedProcessingTime(), nil
	case dfv1.AfterCountTriggerType:
		return AfterCount(cfg.GetCount()), nil
	case dfv1.AfterAllTriggerType:
		return AfterAll(children...), nil
	case dfv1.AfterFirstTriggerType:
		return AfterFirst(children...), nil
	case dfv1.AfterEachTriggerType:
		return AfterEach(children...), nil
	case dfv1.RepeatedlyTriggerType:
		return &Trigger{Kind: KindRepeatedly, Children: children}, nil
	case dfv1.OrFinallyTriggerType:
		return &Trigger{Kind: KindOrFinally, Children: children}, nil
	case dfv1.NeverTriggerType:
		return Never(), nil
	case dfv1.AlwaysTriggerType:
		return Always(), nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", cfg.Type)
	}
}
