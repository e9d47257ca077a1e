package txnstore

import (
	"hash/fnv"
	"sort"
	"sync"
)

// ShardMutexSize is the fixed number of lock shards an operation's keys
// hash into (spec.md §4.H "SHARD_MUTEX_SIZE"). original_source's
// src/storage/txn/shard_mutex.rs was not retrieved into the example pack
// (only its call sites in store.rs were); this value matches the constant
// store.rs itself declares (SHARD_MUTEX_SIZE = 256), and the hash-then-sort
// locking scheme below is authored from spec.md's textual description.
const ShardMutexSize = 256

// ShardMutex hashes each key an operation touches to one of a fixed array
// of mutexes and locks the distinct subset in ascending shard-index order,
// so two operations touching overlapping key sets can never deadlock
// against each other.
type ShardMutex struct {
	shards [ShardMutexSize]sync.Mutex
}

func NewShardMutex() *ShardMutex {
	return &ShardMutex{}
}

func (m *ShardMutex) shardOf(key []byte) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % ShardMutexSize)
}

// Lock acquires every distinct shard covering keys, in canonical (ascending
// shard-index) order, and returns a function that releases them all.
func (m *ShardMutex) Lock(keys [][]byte) (unlock func()) {
	seen := make(map[int]bool, len(keys))
	idxs := make([]int, 0, len(keys))
	for _, k := range keys {
		i := m.shardOf(k)
		if !seen[i] {
			seen[i] = true
			idxs = append(idxs, i)
		}
	}
	sort.Ints(idxs)

	for _, i := range idxs {
		m.shards[i].Lock()
	}
	return func() {
		for _, i := range idxs {
			m.shards[i].Unlock()
		}
	}
}
