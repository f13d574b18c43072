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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelPipeline = "pipeline"
	LabelStage    = "stage"
	LabelReason   = "reason"
	LabelTiming   = "timing"
	LabelDomain   = "domain"
	LabelVersion  = "version"
	LabelPlatform = "platform"
)

// Drop reasons
const (
	ReasonLate         = "late"
	ReasonClosedWindow = "closed_window"
	ReasonNoWindow     = "no_window"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by numawin binary version and platform",
	}, []string{LabelVersion, LabelPlatform})
)

// Watermark metrics
var (
	// InputWatermark is the input watermark of a stage in milliseconds
	InputWatermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "watermark",
		Name:      "input",
		Help:      "Input watermark of a stage in milliseconds since epoch",
	}, []string{LabelPipeline, LabelStage})

	// OutputWatermark is the output watermark of a stage in milliseconds
	OutputWatermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "watermark",
		Name:      "output",
		Help:      "Output watermark of a stage in milliseconds since epoch",
	}, []string{LabelPipeline, LabelStage})

	// PendingTimers is the number of timers which are set but did not fire yet
	PendingTimers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "watermark",
		Name:      "pending_timers",
		Help:      "Number of timers which are set and did not fire",
	}, []string{LabelPipeline, LabelStage})

	// FiredTimers is the number of timers handed out to bundles
	FiredTimers = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "watermark",
		Name:      "fired_timers_total",
		Help:      "Total number of fired timers",
	}, []string{LabelPipeline, LabelStage, LabelDomain})

	// WatermarkRegressions is the number of commits rejected because they would move a watermark backwards
	WatermarkRegressions = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "watermark",
		Name:      "regression_total",
		Help:      "Total number of commits rejected because of a watermark regression",
	}, []string{LabelPipeline, LabelStage})
)

// Reduce metrics
var (
	// DroppedElements is the number of elements dropped by the reducer
	DroppedElements = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reduce",
		Name:      "drop_total",
		Help:      "Total number of elements dropped",
	}, []string{LabelStage, LabelReason})

	// PanesEmitted is the number of panes emitted by the reducer
	PanesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reduce",
		Name:      "panes_total",
		Help:      "Total number of panes emitted",
	}, []string{LabelStage, LabelTiming})

	// MergedWindows is the number of windows merged into another window
	MergedWindows = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reduce",
		Name:      "merged_windows_total",
		Help:      "Total number of windows merged into another window",
	}, []string{LabelStage})

	// GarbageCollectedWindows is the number of windows whose state was removed at the end of the allowed lateness
	GarbageCollectedWindows = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reduce",
		Name:      "gc_windows_total",
		Help:      "Total number of garbage collected windows",
	}, []string{LabelStage})
)

// Runner metrics
var (
	// BundlesProcessed is the number of committed bundles
	BundlesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "runner",
		Name:      "bundles_total",
		Help:      "Total number of committed bundles",
	}, []string{LabelStage})

	// BundleRetries is the number of failed bundle attempts which were retried
	BundleRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "runner",
		Name:      "bundle_retries_total",
		Help:      "Total number of retried bundle attempts",
	}, []string{LabelStage})

	// BundleElements is the number of elements per bundle
	BundleElements = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "runner",
		Name:      "bundle_elements",
		Help:      "Number of elements in a bundle",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{LabelStage})
)
