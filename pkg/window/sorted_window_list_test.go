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

package window

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/numawin/pkg/shared/mtime"
)

func iw(start, end mtime.Time) IntervalWindow {
	return NewIntervalWindow(start, end)
}

func TestSortedWindowList_InsertIfNotPresent(t *testing.T) {
	tests := []struct {
		name            string
		given           []IntervalWindow
		input           IntervalWindow
		expectedWindows []IntervalWindow
		isPresent       bool
	}{
		{
			name:            "first_window",
			input:           iw(0, 60),
			expectedWindows: []IntervalWindow{iw(0, 60)},
		},
		{
			name:            "late_window",
			given:           []IntervalWindow{iw(120, 180)},
			input:           iw(60, 120),
			expectedWindows: []IntervalWindow{iw(60, 120), iw(120, 180)},
		},
		{
			name:            "early_window",
			given:           []IntervalWindow{iw(60, 120)},
			input:           iw(120, 180),
			expectedWindows: []IntervalWindow{iw(60, 120), iw(120, 180)},
		},
		{
			name:            "same_start_different_end",
			given:           []IntervalWindow{iw(0, 10), iw(0, 30)},
			input:           iw(0, 20),
			expectedWindows: []IntervalWindow{iw(0, 10), iw(0, 20), iw(0, 30)},
		},
		{
			name:            "already_present",
			given:           []IntervalWindow{iw(0, 10), iw(10, 20)},
			input:           iw(10, 20),
			expectedWindows: []IntervalWindow{iw(0, 10), iw(10, 20)},
			isPresent:       true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := NewSortedWindowList[IntervalWindow]()
			for _, w := range tt.given {
				list.InsertIfNotPresent(w)
			}
			got, present := list.InsertIfNotPresent(tt.input)
			assert.Equal(t, tt.input, got)
			assert.Equal(t, tt.isPresent, present)
			assert.Equal(t, tt.expectedWindows, list.Items())
		})
	}
}

func TestSortedWindowList_Delete(t *testing.T) {
	list := NewSortedWindowList[IntervalWindow]()
	list.InsertIfNotPresent(iw(0, 10))
	list.InsertIfNotPresent(iw(10, 20))
	list.InsertIfNotPresent(iw(20, 30))

	assert.True(t, list.Delete(iw(10, 20)))
	assert.False(t, list.Delete(iw(10, 20)))
	assert.False(t, list.Delete(iw(0, 11)))
	assert.Equal(t, []IntervalWindow{iw(0, 10), iw(20, 30)}, list.Items())
	assert.Equal(t, iw(0, 10), list.Front())
	assert.Equal(t, iw(20, 30), list.Back())
}

func TestSortedWindowList_RemoveWindows(t *testing.T) {
	list := NewSortedWindowList[IntervalWindow]()
	list.InsertIfNotPresent(iw(0, 100))
	list.InsertIfNotPresent(iw(5, 10))
	list.InsertIfNotPresent(iw(10, 20))

	removed := list.RemoveWindows(9)
	assert.Equal(t, []IntervalWindow{iw(5, 10)}, removed)
	assert.Equal(t, []IntervalWindow{iw(0, 100), iw(10, 20)}, list.Items())
	assert.Equal(t, 2, list.Len())
}

func TestSortedWindowList_FindWindowForTime(t *testing.T) {
	list := NewSortedWindowList[IntervalWindow]()
	list.InsertIfNotPresent(iw(0, 10))
	list.InsertIfNotPresent(iw(20, 30))

	w, ok := list.FindWindowForTime(9)
	assert.True(t, ok)
	assert.Equal(t, iw(0, 10), w)

	_, ok = list.FindWindowForTime(10)
	assert.False(t, ok)

	w, ok = list.FindWindowForTime(20)
	assert.True(t, ok)
	assert.Equal(t, iw(20, 30), w)
}
