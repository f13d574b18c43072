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

package state

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Coder encodes values of T to bytes and back.
type Coder[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// JSONCoder is the Coder using JSON.
type JSONCoder[T any] struct{}

var _ Coder[int] = JSONCoder[int]{}

func (JSONCoder[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCoder[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// ReadValue reads and decodes the value of the address. The zero value and false are returned if the
// address is not set.
func ReadValue[T any](ctx context.Context, r Reader, addr Address, coder Coder[T]) (T, bool, error) {
	var zero T
	b, ok, err := r.Read(ctx, addr)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := coder.Decode(b)
	if err != nil {
		return zero, false, fmt.Errorf("failed to decode %s, %w", addr, err)
	}
	return v, true, nil
}

// WriteValue encodes and writes the value of the address.
func WriteValue[T any](ctx context.Context, w Writer, addr Address, v T, coder Coder[T]) error {
	b, err := coder.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s, %w", addr, err)
	}
	return w.Write(ctx, addr, b)
}
