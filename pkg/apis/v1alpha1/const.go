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
)

const (
	// Default retry options
	DefaultRetryInterval = 10 * time.Millisecond // Default delay before a failed bundle is retried
	DefaultRetrySteps    = 5                     // Default number of attempts of a failed bundle

	// Default runner options
	DefaultPartitions      = 16    // Default number of key partitions per stage
	DefaultWorkers         = 4     // Default number of bundles processed concurrently
	DefaultMaxBundleSize   = 1000  // Default max number of elements in a bundle
	DefaultCommittedBundle = 10000 // Default size of the committed bundle id cache

	// Default strategy options
	DefaultAllowedLateness   = time.Duration(0)
	DefaultAccumulationMode  = DiscardingMode
	DefaultTimestampCombiner = EndOfWindowCombiner
	DefaultClosingBehavior   = FireIfNonEmpty
	DefaultWindowType        = GlobalType

	// MetricsPort is the default port of the metrics server
	MetricsPort = 2469
)

type WindowType string

const (
	FixedType   WindowType = "fixed"
	SlidingType WindowType = "sliding"
	SessionType WindowType = "session"
	GlobalType  WindowType = "global"
)

func (wt WindowType) String() string {
	switch wt {
	case FixedType, SlidingType, SessionType, GlobalType:
		return string(wt)
	default:
		return "unknownWindowType"
	}
}

type AccumulationMode string

const (
	DiscardingMode   AccumulationMode = "discarding"
	AccumulatingMode AccumulationMode = "accumulating"
)

type TimestampCombinerType string

const (
	EndOfWindowCombiner TimestampCombinerType = "endOfWindow"
	EarliestCombiner    TimestampCombinerType = "earliest"
	LatestCombiner      TimestampCombinerType = "latest"
)

type ClosingBehaviorType string

const (
	FireIfNonEmpty ClosingBehaviorType = "fireIfNonEmpty"
	FireAlways     ClosingBehaviorType = "fireAlways"
)

type TriggerType string

const (
	DefaultTriggerType                         TriggerType = "default"
	AfterWatermarkTriggerType                  TriggerType = "afterWatermark"
	AfterProcessingTimeTriggerType             TriggerType = "afterProcessingTime"
	AfterSynchronizedProcessingTimeTriggerType TriggerType = "afterSynchronizedProcessingTime"
	AfterCountTriggerType                      TriggerType = "afterCount"
	AfterAllTriggerType                        TriggerType = "afterAll"
	AfterFirstTriggerType                      TriggerType = "afterFirst"
	AfterEachTriggerType                       TriggerType = "afterEach"
	RepeatedlyTriggerType                      TriggerType = "repeatedly"
	OrFinallyTriggerType                       TriggerType = "orFinally"
	NeverTriggerType                           TriggerType = "never"
	AlwaysTriggerType                          TriggerType = "always"
)

type CombineType string

const (
	BufferCombine CombineType = "buffer"
	CountCombine  CombineType = "count"
	SumCombine    CombineType = "sum"
)
