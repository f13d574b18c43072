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

package sliding

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/window"
	"github.com/numaproj/numawin/pkg/window/strategy/fixed"
)

func TestSliding_AssignWindow(t *testing.T) {
	tests := []struct {
		name      string
		length    time.Duration
		slide     time.Duration
		offset    time.Duration
		eventTime mtime.Time
		expected  []window.Window
	}{
		{
			name:      "overlapping",
			length:    60 * time.Second,
			slide:     20 * time.Second,
			eventTime: 610000,
			expected: []window.Window{
				window.NewIntervalWindow(600000, 660000),
				window.NewIntervalWindow(580000, 640000),
				window.NewIntervalWindow(560000, 620000),
			},
		},
		{
			name:      "on_boundary",
			length:    10 * time.Millisecond,
			slide:     5 * time.Millisecond,
			eventTime: 10,
			expected: []window.Window{
				window.NewIntervalWindow(10, 20),
				window.NewIntervalWindow(5, 15),
			},
		},
		{
			name:      "not_divisible",
			length:    10 * time.Millisecond,
			slide:     4 * time.Millisecond,
			eventTime: 9,
			expected: []window.Window{
				window.NewIntervalWindow(8, 18),
				window.NewIntervalWindow(4, 14),
				window.NewIntervalWindow(0, 10),
			},
		},
		{
			name:      "with_offset",
			length:    10 * time.Millisecond,
			slide:     5 * time.Millisecond,
			offset:    2 * time.Millisecond,
			eventTime: 9,
			expected: []window.Window{
				window.NewIntervalWindow(7, 17),
				window.NewIntervalWindow(2, 12),
			},
		},
		{
			name:      "gap_drops",
			length:    5 * time.Millisecond,
			slide:     10 * time.Millisecond,
			eventTime: 17,
			expected:  []window.Window{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSliding(tt.length, tt.slide, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s.AssignWindows(tt.eventTime))
		})
	}
}

func TestSliding_PermitsDropping(t *testing.T) {
	s, err := NewSliding(5*time.Millisecond, 10*time.Millisecond, 0)
	require.NoError(t, err)
	assert.True(t, s.PermitsDropping())
	windows, err := window.Assign(s, 17)
	assert.NoError(t, err)
	assert.Empty(t, windows)

	s, err = NewSliding(10*time.Millisecond, 5*time.Millisecond, 0)
	require.NoError(t, err)
	assert.False(t, s.PermitsDropping())
}

func TestSliding_EquivalentToFixed(t *testing.T) {
	s, err := NewSliding(10*time.Millisecond, 10*time.Millisecond, 3*time.Millisecond)
	require.NoError(t, err)
	f, err := fixed.NewFixed(10*time.Millisecond, 3*time.Millisecond)
	require.NoError(t, err)
	for ts := mtime.Time(-25); ts < 25; ts++ {
		assert.Equal(t, f.AssignWindows(ts), s.AssignWindows(ts), "ts=%d", ts)
	}
}

func TestNewSliding_Invalid(t *testing.T) {
	_, err := NewSliding(0, time.Second, 0)
	assert.Error(t, err)
	_, err = NewSliding(time.Second, 0, 0)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, window.ErrNoWindows))
}
