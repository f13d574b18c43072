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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Trigger describes when the panes of a window are emitted. Composite triggers nest their
// sub-triggers under Triggers, e.g.
//
//	type: repeatedly
//	triggers:
//	  - type: afterCount
//	    count: 10
type Trigger struct {
	// +kubebuilder:default="default"
	Type TriggerType `json:"type,omitempty"`
	// Delay is the processing time delay after the first element of a pane, afterProcessingTime only.
	// +optional
	Delay *metav1.Duration `json:"delay,omitempty"`
	// Count is the number of elements, afterCount only.
	// +optional
	Count *uint64 `json:"count,omitempty"`
	// Triggers are the sub-triggers of composite triggers.
	// +optional
	Triggers []Trigger `json:"triggers,omitempty"`
	// Early fires before the watermark passes the end of the window, afterWatermark only.
	// +optional
	Early *Trigger `json:"early,omitempty"`
	// Late fires after the watermark passed the end of the window, afterWatermark only.
	// +optional
	Late *Trigger `json:"late,omitempty"`
}

// GetType returns the trigger type or the default trigger type.
func (t Trigger) GetType() TriggerType {
	if t.Type == "" {
		return DefaultTriggerType
	}
	return t.Type
}

// GetDelay returns the delay, zero if unset.
func (t Trigger) GetDelay() metav1.Duration {
	return durationOrZero(t.Delay)
}

// GetCount returns the count, 1 if unset.
func (t Trigger) GetCount() uint64 {
	if t.Count == nil {
		return 1
	}
	return *t.Count
}
