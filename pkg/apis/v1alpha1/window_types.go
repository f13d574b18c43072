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
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Window describes windowing strategies. Exactly one of the fields is expected to be set, an empty
// Window is the global window.
type Window struct {
	// +optional
	Fixed *FixedWindow `json:"fixed,omitempty"`
	// +optional
	Sliding *SlidingWindow `json:"sliding,omitempty"`
	// +optional
	Session *SessionWindow `json:"session,omitempty"`
	// +optional
	Global *GlobalWindow `json:"global,omitempty"`
}

// FixedWindow describes a fixed window
type FixedWindow struct {
	// Length is the duration of the fixed window.
	Length *metav1.Duration `json:"length,omitempty"`
	// Offset shifts the window boundaries.
	// +optional
	Offset *metav1.Duration `json:"offset,omitempty"`
}

// SlidingWindow describes a sliding window
type SlidingWindow struct {
	// Length is the duration of the sliding window.
	Length *metav1.Duration `json:"length,omitempty"`
	// Slide is the slide parameter that controls the frequency at which the sliding window is created.
	Slide *metav1.Duration `json:"slide,omitempty"`
	// Offset shifts the window boundaries.
	// +optional
	Offset *metav1.Duration `json:"offset,omitempty"`
}

// SessionWindow describes a session window
type SessionWindow struct {
	// Timeout is the duration of inactivity after which a session window closes.
	Timeout *metav1.Duration `json:"timeout,omitempty"`
}

// GlobalWindow describes the global window, it has no parameters.
type GlobalWindow struct{}

// GetType returns the window type which is set, or the default window type.
func (w Window) GetType() WindowType {
	switch {
	case w.Fixed != nil:
		return FixedType
	case w.Sliding != nil:
		return SlidingType
	case w.Session != nil:
		return SessionType
	default:
		return DefaultWindowType
	}
}

// Validate checks that at most one window type is set.
func (w Window) Validate() error {
	set := 0
	for _, b := range []bool{w.Fixed != nil, w.Sliding != nil, w.Session != nil, w.Global != nil} {
		if b {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("only one of fixed, sliding, session and global can be specified, got %d", set)
	}
	return nil
}

func durationOrZero(d *metav1.Duration) metav1.Duration {
	if d == nil {
		return metav1.Duration{}
	}
	return *d
}

// GetLength returns the length, zero if unset.
func (f FixedWindow) GetLength() metav1.Duration {
	return durationOrZero(f.Length)
}

// GetOffset returns the offset, zero if unset.
func (f FixedWindow) GetOffset() metav1.Duration {
	return durationOrZero(f.Offset)
}

// GetLength returns the length, zero if unset.
func (s SlidingWindow) GetLength() metav1.Duration {
	return durationOrZero(s.Length)
}

// GetSlide returns the slide, zero if unset.
func (s SlidingWindow) GetSlide() metav1.Duration {
	return durationOrZero(s.Slide)
}

// GetOffset returns the offset, zero if unset.
func (s SlidingWindow) GetOffset() metav1.Duration {
	return durationOrZero(s.Offset)
}

// GetTimeout returns the session gap, zero if unset.
func (s SessionWindow) GetTimeout() metav1.Duration {
	return durationOrZero(s.Timeout)
}
