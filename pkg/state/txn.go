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
)

type pendingWrite struct {
	value   []byte
	cleared bool
}

// Txn buffers the writes of one bundle on top of a Store. Reads see the buffered writes. Nothing reaches
// the store until Commit.
type Txn struct {
	store  Store
	order  []Address
	writes map[Address]pendingWrite
}

var (
	_ Reader = (*Txn)(nil)
	_ Writer = (*Txn)(nil)
)

// NewTxn returns a Txn on top of store.
func NewTxn(store Store) *Txn {
	return &Txn{
		store:  store,
		writes: make(map[Address]pendingWrite),
	}
}

func (t *Txn) record(addr Address, w pendingWrite) {
	if _, ok := t.writes[addr]; !ok {
		t.order = append(t.order, addr)
	}
	t.writes[addr] = w
}

// Read returns the buffered value of the address, or the value in the store.
func (t *Txn) Read(ctx context.Context, addr Address) ([]byte, bool, error) {
	if w, ok := t.writes[addr]; ok {
		if w.cleared {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	return t.store.Read(ctx, addr)
}

func (t *Txn) Write(_ context.Context, addr Address, value []byte) error {
	val := make([]byte, len(value))
	copy(val, value)
	t.record(addr, pendingWrite{value: val})
	return nil
}

func (t *Txn) Clear(_ context.Context, addr Address) error {
	t.record(addr, pendingWrite{cleared: true})
	return nil
}

// Mutations returns the buffered writes, the last write of every address in the order the addresses were
// first written.
func (t *Txn) Mutations() []Mutation {
	mutations := make([]Mutation, 0, len(t.order))
	for _, addr := range t.order {
		w := t.writes[addr]
		if w.cleared {
			mutations = append(mutations, Mutation{Address: addr, Op: OpClear})
		} else {
			mutations = append(mutations, Mutation{Address: addr, Op: OpPut, Value: w.value})
		}
	}
	return mutations
}

// UndoMutations returns the mutations which restore the cells the Txn writes to their values in the store.
// It must be taken before Commit.
func (t *Txn) UndoMutations(ctx context.Context) ([]Mutation, error) {
	undo := make([]Mutation, 0, len(t.order))
	for _, addr := range t.order {
		val, ok, err := t.store.Read(ctx, addr)
		if err != nil {
			return nil, err
		}
		if ok {
			undo = append(undo, Mutation{Address: addr, Op: OpPut, Value: val})
		} else {
			undo = append(undo, Mutation{Address: addr, Op: OpClear})
		}
	}
	return undo, nil
}

// Commit applies the buffered writes to the store and resets the Txn.
func (t *Txn) Commit(ctx context.Context) error {
	if err := t.store.Apply(ctx, t.Mutations()); err != nil {
		return err
	}
	t.Discard()
	return nil
}

// Discard drops the buffered writes.
func (t *Txn) Discard() {
	t.order = nil
	t.writes = make(map[Address]pendingWrite)
}
