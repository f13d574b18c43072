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

package commands

import (
	"fmt"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/araddon/dateparse"
	"github.com/goccy/go-json"

	"github.com/numaproj/numawin/pkg/shared/mtime"
)

// recordTime is a time of a replay record, either milliseconds since epoch or a date string.
type recordTime mtime.Time

func (t *recordTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		*t = recordTime(ms)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be milliseconds since epoch or a date, got %s", b)
	}
	// dates without a zone are UTC
	parsed, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return fmt.Errorf("failed to parse time %q, %w", s, err)
	}
	*t = recordTime(mtime.FromTime(parsed))
	return nil
}

// record is one line of the replay input.
type record struct {
	Key            *string     `json:"key,omitempty"`
	Value          any         `json:"value,omitempty"`
	Timestamp      *recordTime `json:"timestamp,omitempty"`
	Watermark      *recordTime `json:"watermark,omitempty"`
	ProcessingTime *recordTime `json:"processingTime,omitempty"`
}

// filter decides which elements are replayed. The expression sees key, value and timestamp, e.g.
//
//	key != "b" && timestamp >= 1000
type filter struct {
	expression string
	program    *vm.Program
}

func newFilter(expression string) (*filter, error) {
	if expression == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.Env(filterEnv("", nil, 0)))
	if err != nil {
		return nil, fmt.Errorf("unable to compile filter expression '%s': %w", expression, err)
	}
	return &filter{expression: expression, program: program}, nil
}

func filterEnv(key string, value any, ts mtime.Time) map[string]any {
	return map[string]any{
		"key":       key,
		"value":     value,
		"timestamp": int64(ts),
	}
}

// keep returns true if the element passes the filter, a nil filter keeps everything.
func (f *filter) keep(key string, value any, ts mtime.Time) (bool, error) {
	if f == nil {
		return true, nil
	}
	result, err := expr.Run(f.program, filterEnv(key, value, ts))
	if err != nil {
		return false, fmt.Errorf("unable to execute filter '%s', %w", f.expression, err)
	}
	keep, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter '%s' returned %T, expected bool", f.expression, result)
	}
	return keep, nil
}
