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

package gabw

import (
	"fmt"

	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/window"
)

// Timing classifies a pane relative to the end of its window.
type Timing int

const (
	// Early panes fire before the input watermark passed the end of the window.
	Early Timing = iota
	// OnTime is the first pane after the input watermark passed the end of the window.
	OnTime
	// Late panes fire after the on time pane.
	Late
)

func (t Timing) String() string {
	switch t {
	case Early:
		return "EARLY"
	case OnTime:
		return "ON_TIME"
	case Late:
		return "LATE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the timing by its name.
func (t Timing) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// PaneInfo describes one firing of a window.
type PaneInfo struct {
	// Index is 0 for the first pane of the window and increases with every pane.
	Index   int64  `json:"index"`
	Timing  Timing `json:"timing"`
	IsFirst bool   `json:"isFirst"`
	IsLast  bool   `json:"isLast"`
}

func (p PaneInfo) String() string {
	return fmt.Sprintf("Pane(%d, %s, first=%t, last=%t)", p.Index, p.Timing, p.IsFirst, p.IsLast)
}

// Output is one pane of a key and window.
type Output[OUT any] struct {
	Key       string        `json:"key"`
	Window    window.Window `json:"window"`
	Pane      PaneInfo      `json:"pane"`
	Value     OUT           `json:"value"`
	Timestamp mtime.Time    `json:"timestamp"`
}
