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

package runner

import (
	"context"

	"k8s.io/apimachinery/pkg/util/wait"

	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
	"github.com/numaproj/numawin/pkg/shared/clock"
)

// OutputHandler receives the outputs of the stages without downstream stages. It is called after the
// bundle committed.
type OutputHandler func(ctx context.Context, stage string, outputs []Element) error

type options struct {
	// partitions is the number of key partitions of a stage
	partitions int
	// workers is the max number of bundles processed concurrently
	workers int
	// maxBundleSize is the max number of elements of a bundle
	maxBundleSize int
	// retry is the backoff of failed bundles
	retry         wait.Backoff
	clock         clock.Clock
	outputHandler OutputHandler
	// committedCacheSize is the number of committed bundle ids remembered
	committedCacheSize int
}

// Option to configure the Runner
type Option func(*options) error

func defaultOptions() *options {
	return &options{
		partitions:         dfv1.DefaultPartitions,
		workers:            dfv1.DefaultWorkers,
		maxBundleSize:      dfv1.DefaultMaxBundleSize,
		retry:              dfv1.RetryStrategy{}.GetBackoff(),
		clock:              clock.Real,
		outputHandler:      func(context.Context, string, []Element) error { return nil },
		committedCacheSize: dfv1.DefaultCommittedBundle,
	}
}

// WithPartitions sets the number of key partitions per stage
func WithPartitions(n int) Option {
	return func(o *options) error {
		o.partitions = n
		return nil
	}
}

// WithWorkers sets the max number of concurrent bundles
func WithWorkers(n int) Option {
	return func(o *options) error {
		o.workers = n
		return nil
	}
}

// WithMaxBundleSize sets the max number of elements in a bundle
func WithMaxBundleSize(n int) Option {
	return func(o *options) error {
		o.maxBundleSize = n
		return nil
	}
}

// WithRetryBackoff sets the backoff of failed bundles
func WithRetryBackoff(b wait.Backoff) Option {
	return func(o *options) error {
		o.retry = b
		return nil
	}
}

// WithClock sets the processing time clock
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

// WithOutputHandler sets the handler of the terminal outputs
func WithOutputHandler(h OutputHandler) Option {
	return func(o *options) error {
		o.outputHandler = h
		return nil
	}
}

// FromSpec returns the options described by the runner spec.
func FromSpec(spec dfv1.RunnerSpec) []Option {
	return []Option{
		WithPartitions(spec.GetPartitions()),
		WithWorkers(spec.GetWorkers()),
		WithMaxBundleSize(spec.GetMaxBundleSize()),
		WithRetryBackoff(spec.RetryStrategy.GetBackoff()),
	}
}
