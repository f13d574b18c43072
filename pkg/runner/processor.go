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
	"fmt"

	"github.com/numaproj/numawin/pkg/reduce/gabw"
	"github.com/numaproj/numawin/pkg/shared/mtime"
	"github.com/numaproj/numawin/pkg/state"
	"github.com/numaproj/numawin/pkg/timers"
	"github.com/numaproj/numawin/pkg/watermark/manager"
)

// Element is a keyed, timestamped element flowing between stages.
type Element struct {
	Key       string
	Value     any
	Timestamp mtime.Time
}

// Processor processes the elements and the fired timers of one key of a bundle. It must only change
// state through st and timers through internals, so a failed bundle leaves nothing behind.
type Processor interface {
	ProcessKey(ctx context.Context, st state.ReadWriter, internals *timers.Internals, key string, elements []Element, fired []timers.TimerData) ([]Element, []manager.Hold, error)
}

// reduceProcessor runs a GroupAlsoByWindows reducer, the outputs are the panes.
type reduceProcessor[IN, ACC, OUT any] struct {
	reducer *gabw.Reducer[IN, ACC, OUT]
}

// NewReduceProcessor returns the Processor of the reducer. The values of the input elements must be of
// type IN, the values of the output elements are gabw.Output[OUT].
func NewReduceProcessor[IN, ACC, OUT any](r *gabw.Reducer[IN, ACC, OUT]) Processor {
	return &reduceProcessor[IN, ACC, OUT]{reducer: r}
}

func (p *reduceProcessor[IN, ACC, OUT]) StateNamespace() string {
	return p.reducer.StateNamespace()
}

func (p *reduceProcessor[IN, ACC, OUT]) ProcessKey(ctx context.Context, st state.ReadWriter, internals *timers.Internals, key string, elements []Element, fired []timers.TimerData) ([]Element, []manager.Hold, error) {
	in := make([]gabw.Element[IN], 0, len(elements))
	for _, el := range elements {
		v, ok := el.Value.(IN)
		if !ok {
			return nil, nil, fmt.Errorf("key %s, unexpected value type %T", key, el.Value)
		}
		in = append(in, gabw.Element[IN]{Value: v, Timestamp: el.Timestamp})
	}
	outputs, holds, err := p.reducer.ProcessKey(ctx, st, internals, key, in, fired)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Element, 0, len(outputs))
	for _, o := range outputs {
		out = append(out, Element{Key: o.Key, Value: o, Timestamp: o.Timestamp})
	}
	return out, holds, nil
}
