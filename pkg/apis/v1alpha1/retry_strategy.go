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
	"k8s.io/apimachinery/pkg/util/wait"
)

// RetryStrategy struct encapsulates the settings for retrying a failed bundle.
type RetryStrategy struct {
	// BackOff specifies the parameters for the backoff strategy, controlling how delays between retries should increase.
	// +optional
	BackOff *Backoff `json:"backoff,omitempty"`
}

// Backoff defines parameters used to systematically configure the retry strategy.
type Backoff struct {
	// Interval sets the delay to wait before retry, after a failure occurs.
	// +kubebuilder:default="10ms"
	// +optional
	Interval *metav1.Duration `json:"interval,omitempty"`
	// Steps defines the number of times a bundle is attempted including retries
	// +optional
	Steps *uint32 `json:"steps,omitempty"`
	// Factor multiplies the interval after every failed attempt.
	// +optional
	Factor *float64 `json:"factor,omitempty"`
	// Cap is the upper bound of the interval.
	// +optional
	Cap *metav1.Duration `json:"cap,omitempty"`
}

// GetBackoff constructs a wait.Backoff configuration using default values and optionally overrides
// these defaults with custom settings specified in the RetryStrategy.
func (r RetryStrategy) GetBackoff() wait.Backoff {
	wt := wait.Backoff{
		Duration: DefaultRetryInterval,
		Steps:    DefaultRetrySteps,
		Factor:   1,
	}

	if r.BackOff != nil {
		if r.BackOff.Interval != nil {
			wt.Duration = r.BackOff.Interval.Duration
		}
		if r.BackOff.Steps != nil && *r.BackOff.Steps > 0 {
			wt.Steps = int(*r.BackOff.Steps)
		}
		if r.BackOff.Factor != nil && *r.BackOff.Factor >= 1 {
			wt.Factor = *r.BackOff.Factor
		}
		if r.BackOff.Cap != nil {
			wt.Cap = r.BackOff.Cap.Duration
		}
	}
	return wt
}
