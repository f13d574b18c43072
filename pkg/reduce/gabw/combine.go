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

// CombineFn combines the elements of a window. The accumulator is persisted with a coder between bundles,
// so the functions must not keep state of their own.
type CombineFn[IN, ACC, OUT any] interface {
	CreateAccumulator() (ACC, error)
	AddInput(acc ACC, in IN) (ACC, error)
	MergeAccumulators(accs []ACC) (ACC, error)
	ExtractOutput(acc ACC) (OUT, error)
}

// Buffering keeps every element, the output is the list of the elements.
type Buffering[T any] struct{}

var _ CombineFn[int, []int, []int] = Buffering[int]{}

func (Buffering[T]) CreateAccumulator() ([]T, error) {
	return []T{}, nil
}

func (Buffering[T]) AddInput(acc []T, in T) ([]T, error) {
	return append(acc, in), nil
}

func (Buffering[T]) MergeAccumulators(accs [][]T) ([]T, error) {
	merged := []T{}
	for _, acc := range accs {
		merged = append(merged, acc...)
	}
	return merged, nil
}

func (Buffering[T]) ExtractOutput(acc []T) ([]T, error) {
	out := make([]T, len(acc))
	copy(out, acc)
	return out, nil
}

// Count counts the elements.
type Count[T any] struct{}

var _ CombineFn[string, int64, int64] = Count[string]{}

func (Count[T]) CreateAccumulator() (int64, error) {
	return 0, nil
}

func (Count[T]) AddInput(acc int64, _ T) (int64, error) {
	return acc + 1, nil
}

func (Count[T]) MergeAccumulators(accs []int64) (int64, error) {
	var sum int64
	for _, acc := range accs {
		sum += acc
	}
	return sum, nil
}

func (Count[T]) ExtractOutput(acc int64) (int64, error) {
	return acc, nil
}

// Number is a type Sum can add.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Sum adds the elements.
type Sum[N Number] struct{}

var _ CombineFn[float64, float64, float64] = Sum[float64]{}

func (Sum[N]) CreateAccumulator() (N, error) {
	return 0, nil
}

func (Sum[N]) AddInput(acc N, in N) (N, error) {
	return acc + in, nil
}

func (Sum[N]) MergeAccumulators(accs []N) (N, error) {
	var sum N
	for _, acc := range accs {
		sum += acc
	}
	return sum, nil
}

func (Sum[N]) ExtractOutput(acc N) (N, error) {
	return acc, nil
}
