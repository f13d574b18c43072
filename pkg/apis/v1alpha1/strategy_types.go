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
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// WindowingStrategy describes how elements are grouped by window and when the panes are emitted.
type WindowingStrategy struct {
	// +optional
	Window Window `json:"window,omitempty"`
	// +optional
	Trigger *Trigger `json:"trigger,omitempty"`
	// AllowedLateness is how long after the end of a window late data is still accepted.
	// +optional
	AllowedLateness *metav1.Duration `json:"allowedLateness,omitempty"`
	// +optional
	// +kubebuilder:default="discarding"
	AccumulationMode *AccumulationMode `json:"accumulationMode,omitempty"`
	// +optional
	// +kubebuilder:default="endOfWindow"
	TimestampCombiner *TimestampCombinerType `json:"timestampCombiner,omitempty"`
	// +optional
	// +kubebuilder:default="fireIfNonEmpty"
	ClosingBehavior *ClosingBehaviorType `json:"closingBehavior,omitempty"`
}

// GetTrigger returns the trigger or the default trigger.
func (ws WindowingStrategy) GetTrigger() Trigger {
	if ws.Trigger == nil {
		return Trigger{Type: DefaultTriggerType}
	}
	return *ws.Trigger
}

func (ws WindowingStrategy) GetAllowedLateness() time.Duration {
	if ws.AllowedLateness == nil {
		return DefaultAllowedLateness
	}
	return ws.AllowedLateness.Duration
}

func (ws WindowingStrategy) GetAccumulationMode() AccumulationMode {
	if ws.AccumulationMode == nil {
		return DefaultAccumulationMode
	}
	switch *ws.AccumulationMode {
	case DiscardingMode, AccumulatingMode:
		return *ws.AccumulationMode
	default:
		return DefaultAccumulationMode
	}
}

func (ws WindowingStrategy) GetTimestampCombiner() TimestampCombinerType {
	if ws.TimestampCombiner == nil {
		return DefaultTimestampCombiner
	}
	switch *ws.TimestampCombiner {
	case EndOfWindowCombiner, EarliestCombiner, LatestCombiner:
		return *ws.TimestampCombiner
	default:
		return DefaultTimestampCombiner
	}
}

func (ws WindowingStrategy) GetClosingBehavior() ClosingBehaviorType {
	if ws.ClosingBehavior == nil {
		return DefaultClosingBehavior
	}
	switch *ws.ClosingBehavior {
	case FireIfNonEmpty, FireAlways:
		return *ws.ClosingBehavior
	default:
		return DefaultClosingBehavior
	}
}

// RunnerSpec configures the bundle runner.
type RunnerSpec struct {
	// Partitions is the number of key partitions per stage, bundles of one partition never run concurrently.
	// +optional
	Partitions *uint32 `json:"partitions,omitempty"`
	// Workers is the max number of bundles processed concurrently.
	// +optional
	Workers *uint32 `json:"workers,omitempty"`
	// MaxBundleSize is the max number of elements in a bundle.
	// +optional
	MaxBundleSize *uint32 `json:"maxBundleSize,omitempty"`
	// +optional
	RetryStrategy RetryStrategy `json:"retryStrategy,omitempty"`
}

func (rs RunnerSpec) GetPartitions() int {
	if rs.Partitions == nil || *rs.Partitions == 0 {
		return DefaultPartitions
	}
	return int(*rs.Partitions)
}

func (rs RunnerSpec) GetWorkers() int {
	if rs.Workers == nil || *rs.Workers == 0 {
		return DefaultWorkers
	}
	return int(*rs.Workers)
}

func (rs RunnerSpec) GetMaxBundleSize() int {
	if rs.MaxBundleSize == nil || *rs.MaxBundleSize == 0 {
		return DefaultMaxBundleSize
	}
	return int(*rs.MaxBundleSize)
}

// ReduceSpec is a keyed windowed reduce: a windowing strategy and a built-in combine fn.
type ReduceSpec struct {
	// +optional
	Strategy WindowingStrategy `json:"strategy,omitempty"`
	// +kubebuilder:default="buffer"
	// +optional
	Combine CombineType `json:"combine,omitempty"`
}

func (rs ReduceSpec) GetCombine() CombineType {
	switch rs.Combine {
	case BufferCombine, CountCombine, SumCombine:
		return rs.Combine
	default:
		return BufferCombine
	}
}

// ReplaySpec is the configuration of the replay command.
type ReplaySpec struct {
	Reduce ReduceSpec `json:"reduce,omitempty"`
	// +optional
	Runner RunnerSpec `json:"runner,omitempty"`
}
