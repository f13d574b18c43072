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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemStore(ctx, "test", 4)
	addr := Address{Key: "k", Window: "[0, 10)", Field: "acc"}

	_, ok, err := s.Read(ctx, addr)
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("one")
	require.NoError(t, s.Write(ctx, addr, value))
	// the store keeps its own copy
	value[0] = 'x'
	got, ok, err := s.Read(ctx, addr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("one"), got)

	require.NoError(t, s.Clear(ctx, addr))
	_, ok, err = s.Read(ctx, addr)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Close())
	_, _, err = s.Read(ctx, addr)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Write(ctx, addr, nil), ErrStoreClosed)
}

func TestInMemStore_ApplyInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemStore(ctx, "test", 0)
	a := Address{Key: "a", Field: "f"}
	b := Address{Key: "b", Field: "f"}
	require.NoError(t, s.Apply(ctx, []Mutation{
		{Address: a, Op: OpPut, Value: []byte("1")},
		{Address: b, Op: OpPut, Value: []byte("2")},
		{Address: a, Op: OpClear},
		{Address: b, Op: OpPut, Value: []byte("3")},
	}))
	_, ok, _ := s.Read(ctx, a)
	assert.False(t, ok)
	got, ok, _ := s.Read(ctx, b)
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), got)
}

func TestInMemStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemStore(ctx, "test", 8)
	keys := []string{"a", "b", "c", "d", "e", "f"}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mutations []Mutation
			for _, k := range keys {
				mutations = append(mutations, Mutation{Address: Address{Key: k, Field: "f"}, Op: OpPut, Value: []byte(k)})
			}
			assert.NoError(t, s.Apply(ctx, mutations))
		}()
	}
	wg.Wait()
	assert.Equal(t, len(keys), s.(*inMemStore).Len())
}

func TestTxn(t *testing.T) {
	ctx := context.Background()
	s := NewInMemStore(ctx, "test", 4)
	a := Address{Key: "k", Field: "a"}
	b := Address{Key: "k", Field: "b"}
	require.NoError(t, s.Write(ctx, a, []byte("store")))

	txn := NewTxn(s)
	got, ok, err := txn.Read(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("store"), got)

	require.NoError(t, txn.Write(ctx, b, []byte("txn")))
	require.NoError(t, txn.Clear(ctx, a))
	_, ok, _ = txn.Read(ctx, a)
	assert.False(t, ok)
	got, _, _ = txn.Read(ctx, b)
	assert.Equal(t, []byte("txn"), got)

	// nothing reached the store
	_, ok, _ = s.Read(ctx, b)
	assert.False(t, ok)
	assert.Equal(t, []Mutation{
		{Address: b, Op: OpPut, Value: []byte("txn")},
		{Address: a, Op: OpClear},
	}, txn.Mutations())

	require.NoError(t, txn.Commit(ctx))
	_, ok, _ = s.Read(ctx, a)
	assert.False(t, ok)
	got, ok, _ = s.Read(ctx, b)
	assert.True(t, ok)
	assert.Equal(t, []byte("txn"), got)
	assert.Empty(t, txn.Mutations())
}

func TestTxn_Discard(t *testing.T) {
	ctx := context.Background()
	s := NewInMemStore(ctx, "test", 4)
	txn := NewTxn(s)
	addr := Address{Key: "k", Field: "f"}
	require.NoError(t, txn.Write(ctx, addr, []byte("v")))
	txn.Discard()
	require.NoError(t, txn.Commit(ctx))
	_, ok, _ := s.Read(ctx, addr)
	assert.False(t, ok)
}

func TestTxn_UndoMutations(t *testing.T) {
	ctx := context.Background()
	s := NewInMemStore(ctx, "test", 4)
	a := Address{Namespace: "agg", Key: "k", Field: "a"}
	b := Address{Namespace: "agg", Key: "k", Field: "b"}
	require.NoError(t, s.Write(ctx, a, []byte("old")))

	txn := NewTxn(s)
	require.NoError(t, txn.Write(ctx, a, []byte("new")))
	require.NoError(t, txn.Write(ctx, b, []byte("new")))
	undo, err := txn.UndoMutations(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx))

	require.NoError(t, s.Apply(ctx, undo))
	got, ok, _ := s.Read(ctx, a)
	assert.True(t, ok)
	assert.Equal(t, []byte("old"), got)
	_, ok, _ = s.Read(ctx, b)
	assert.False(t, ok)
}

func TestAddress_Namespace(t *testing.T) {
	ctx := context.Background()
	s := NewInMemStore(ctx, "test", 4)
	a := Address{Namespace: "agg", Key: "k", Field: "f"}
	b := Address{Namespace: "agg2", Key: "k", Field: "f"}
	require.NoError(t, s.Write(ctx, a, []byte("a")))
	_, ok, err := s.Read(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "agg/k//f", a.String())
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestJSONCoder(t *testing.T) {
	ctx := context.Background()
	txn := NewTxn(NewInMemStore(ctx, "test", 1))
	addr := Address{Key: "k", Window: "w", Field: "p"}
	coder := JSONCoder[point]{}

	_, ok, err := ReadValue[point](ctx, txn, addr, coder)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, WriteValue(ctx, txn, addr, point{X: 1, Y: 2}, coder))
	p, ok, err := ReadValue[point](ctx, txn, addr, coder)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, point{X: 1, Y: 2}, p)

	require.NoError(t, txn.Write(ctx, addr, []byte("{bad")))
	_, _, err = ReadValue[point](ctx, txn, addr, coder)
	assert.Error(t, err)
}
