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

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/numawin/pkg/shared/logging"
)

const defaultShards = 32

type shard struct {
	kv   map[Address][]byte
	lock sync.RWMutex
}

// inMemStore is the Store backed by maps, sharded by the hash of the key.
type inMemStore struct {
	name     string
	shards   []*shard
	isClosed atomic.Bool
	log      *zap.SugaredLogger
}

var _ Store = (*inMemStore)(nil)

// NewInMemStore returns an in memory Store with the given number of shards, a default is used if shards
// is not positive.
func NewInMemStore(ctx context.Context, name string, shards int) Store {
	if shards <= 0 {
		shards = defaultShards
	}
	s := &inMemStore{
		name:   name,
		shards: make([]*shard, shards),
		log:    logging.FromContext(ctx).With("store", name),
	}
	for i := range s.shards {
		s.shards[i] = &shard{kv: make(map[Address][]byte)}
	}
	return s
}

func (s *inMemStore) shardIndex(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.shards)))
}

// Read returns a copy of the value of the address.
func (s *inMemStore) Read(_ context.Context, addr Address) ([]byte, bool, error) {
	if s.isClosed.Load() {
		return nil, false, ErrStoreClosed
	}
	sh := s.shards[s.shardIndex(addr.Key)]
	sh.lock.RLock()
	defer sh.lock.RUnlock()
	val, ok := sh.kv[addr]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Write puts the value of the address.
func (s *inMemStore) Write(ctx context.Context, addr Address, value []byte) error {
	return s.Apply(ctx, []Mutation{{Address: addr, Op: OpPut, Value: value}})
}

// Clear removes the address.
func (s *inMemStore) Clear(ctx context.Context, addr Address) error {
	return s.Apply(ctx, []Mutation{{Address: addr, Op: OpClear}})
}

// Apply locks all the shards the mutations touch in ascending order and applies the mutations.
func (s *inMemStore) Apply(_ context.Context, mutations []Mutation) error {
	if s.isClosed.Load() {
		return ErrStoreClosed
	}
	touched := make([]bool, len(s.shards))
	for _, m := range mutations {
		touched[s.shardIndex(m.Address.Key)] = true
	}
	for i, t := range touched {
		if t {
			s.shards[i].lock.Lock()
		}
	}
	for _, m := range mutations {
		sh := s.shards[s.shardIndex(m.Address.Key)]
		switch m.Op {
		case OpPut:
			val := make([]byte, len(m.Value))
			copy(val, m.Value)
			sh.kv[m.Address] = val
		case OpClear:
			delete(sh.kv, m.Address)
		}
	}
	for i := len(touched) - 1; i >= 0; i-- {
		if touched[i] {
			s.shards[i].lock.Unlock()
		}
	}
	return nil
}

// Len returns the number of cells in the store.
func (s *inMemStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.lock.RLock()
		n += len(sh.kv)
		sh.lock.RUnlock()
	}
	return n
}

// Close closes the store, all the later calls fail with ErrStoreClosed.
func (s *inMemStore) Close() error {
	if s.isClosed.CompareAndSwap(false, true) {
		s.log.Infow("Closed state store", zap.Int("cells", s.Len()))
	}
	return nil
}
