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

// Package state defines the keyed state store the reducer keeps its per key and window state in. State is
// addressed by (namespace, key, window, field). A bundle reads and writes through a Txn, its changes are applied to
// the Store as one batch when the bundle commits and dropped when the bundle fails.
package state

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreClosed is returned by a closed store.
var ErrStoreClosed = errors.New("state store is closed")

// Address of a state cell. Namespace separates the state of the stages sharing a store.
type Address struct {
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key"`
	Window    string `json:"window"`
	Field     string `json:"field"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", a.Namespace, a.Key, a.Window, a.Field)
}

// Op is the operation of a Mutation.
type Op int

const (
	// OpPut writes the value of the address.
	OpPut Op = iota
	// OpClear removes the address.
	OpClear
)

func (op Op) String() string {
	switch op {
	case OpPut:
		return "Put"
	case OpClear:
		return "Clear"
	default:
		return "UnknownOp"
	}
}

// Mutation is one change of a batch.
type Mutation struct {
	Address Address
	Op      Op
	Value   []byte
}

// Reader reads state cells.
type Reader interface {
	// Read returns the value of the address, false if it is not set.
	Read(ctx context.Context, addr Address) ([]byte, bool, error)
}

// Writer writes state cells.
type Writer interface {
	Write(ctx context.Context, addr Address, value []byte) error
	Clear(ctx context.Context, addr Address) error
}

// ReadWriter reads and writes state cells.
type ReadWriter interface {
	Reader
	Writer
}

// Store is the keyed state store.
type Store interface {
	Reader
	Writer
	// Apply applies the mutations atomically, in order.
	Apply(ctx context.Context, mutations []Mutation) error
	// Close closes the store.
	Close() error
}
