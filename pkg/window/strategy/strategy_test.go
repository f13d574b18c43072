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

package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	dfv1 "github.com/numaproj/numawin/pkg/apis/v1alpha1"
	"github.com/numaproj/numawin/pkg/window"
)

func dur(d time.Duration) *metav1.Duration {
	return &metav1.Duration{Duration: d}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      dfv1.Window
		expected window.Strategy
		wantErr  bool
	}{
		{
			name:     "default_global",
			cfg:      dfv1.Window{},
			expected: window.Global,
		},
		{
			name:     "fixed",
			cfg:      dfv1.Window{Fixed: &dfv1.FixedWindow{Length: dur(time.Minute)}},
			expected: window.Fixed,
		},
		{
			name:     "sliding",
			cfg:      dfv1.Window{Sliding: &dfv1.SlidingWindow{Length: dur(time.Minute), Slide: dur(10 * time.Second)}},
			expected: window.Sliding,
		},
		{
			name:     "session",
			cfg:      dfv1.Window{Session: &dfv1.SessionWindow{Timeout: dur(time.Second)}},
			expected: window.Session,
		},
		{
			name:    "fixed_without_length",
			cfg:     dfv1.Window{Fixed: &dfv1.FixedWindow{}},
			wantErr: true,
		},
		{
			name:    "sliding_without_slide",
			cfg:     dfv1.Window{Sliding: &dfv1.SlidingWindow{Length: dur(time.Minute)}},
			wantErr: true,
		},
		{
			name: "two_variants",
			cfg: dfv1.Window{
				Fixed:   &dfv1.FixedWindow{Length: dur(time.Minute)},
				Session: &dfv1.SessionWindow{Timeout: dur(time.Second)},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fn.Strategy())
		})
	}
}
