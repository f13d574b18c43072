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

package mtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTime_Add(t *testing.T) {
	tests := []struct {
		name string
		t    Time
		d    time.Duration
		want Time
	}{
		{name: "simple", t: 10, d: 5 * time.Millisecond, want: 15},
		{name: "negative", t: 10, d: -15 * time.Millisecond, want: -5},
		{name: "overflow", t: MaxTimestamp - 1, d: time.Hour, want: MaxTimestamp},
		{name: "underflow", t: MinTimestamp + 1, d: -time.Hour, want: MinTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.Add(tt.d))
		})
	}
}

func TestTime_Conversions(t *testing.T) {
	wall := time.UnixMilli(1651129201123).UTC()
	ts := FromTime(wall)
	assert.Equal(t, int64(1651129201123), ts.Milliseconds())
	assert.True(t, wall.Equal(ts.ToTime()))
	assert.Equal(t, Time(7), Min(7, 9))
	assert.Equal(t, Time(9), Max(7, 9))
	assert.Equal(t, "+inf", MaxTimestamp.String())
	assert.Equal(t, "-inf", MinTimestamp.String())
	assert.True(t, EndOfGlobalWindowTime.Before(MaxTimestamp))
	assert.Equal(t, MaxTimestamp, FromMilliseconds(int64(MaxTimestamp)+10))
}
