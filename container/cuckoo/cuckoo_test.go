package cuckoo_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/pjferrell/bess/container/cuckoo"
	"github.com/pjferrell/bess/core/testenv"
)

func keyOf(n uint64) cuckoo.Key {
	return cuckoo.Key{n}
}

func TestRoundTrip(t *testing.T) {
	assert, _ := testenv.MakeAR(t)

	table := cuckoo.New[string](8)
	for i := uint64(0); i < 200; i++ {
		table.Insert(keyOf(i), fmt.Sprintf("v%d", i))
	}
	assert.Equal(200, table.Count())

	for i := uint64(0); i < 200; i++ {
		v, ok := table.Find(keyOf(i))
		assert.True(ok)
		assert.Equal(fmt.Sprintf("v%d", i), v)
	}

	assert.True(table.Remove(keyOf(100)))
	_, ok := table.Find(keyOf(100))
	assert.False(ok)
	assert.Equal(199, table.Count())

	assert.False(table.Remove(keyOf(100)))
}

func TestIdempotentUpdate(t *testing.T) {
	assert, _ := testenv.MakeAR(t)

	table := cuckoo.New[int](8)
	k := keyOf(42)

	table.Insert(k, 1)
	table.Insert(k, 2)

	v, ok := table.Find(k)
	assert.True(ok)
	assert.Equal(2, v)
	assert.Equal(1, table.Count())
}

func TestLoadStress(t *testing.T) {
	assert, _ := testenv.MakeAR(t)

	table := cuckoo.New[int](8)
	r := rand.New(rand.NewSource(1))

	seen := make(map[uint64]bool)
	var keys []uint64
	for len(keys) < 2000 {
		n := r.Uint64()
		if seen[n] {
			continue
		}
		seen[n] = true
		keys = append(keys, n)
	}

	for i, n := range keys {
		table.Insert(keyOf(n), i)
	}
	assert.Equal(len(keys), table.Count())

	for i, n := range keys {
		v, ok := table.Find(keyOf(n))
		assert.True(ok, "key %d should be findable", n)
		assert.Equal(i, v)
	}

	for i := 0; i < len(keys); i += 2 {
		assert.True(table.Remove(keyOf(keys[i])))
	}
	assert.Equal(len(keys)/2, table.Count())

	for i, n := range keys {
		_, ok := table.Find(keyOf(n))
		if i%2 == 0 {
			assert.False(ok)
		} else {
			assert.True(ok)
		}
	}
}

func TestIterateSkipsRemoved(t *testing.T) {
	assert, _ := testenv.MakeAR(t)

	table := cuckoo.New[int](8)
	for i := uint64(0); i < 50; i++ {
		table.Insert(keyOf(i), int(i))
	}
	table.Remove(keyOf(10))

	visited := make(map[uint64]bool)
	table.Iterate(func(k cuckoo.Key, v int) bool {
		visited[k[0]] = true
		return true
	})

	assert.False(visited[10])
	assert.Equal(49, len(visited))
}

func TestClearResetsToInitialCapacity(t *testing.T) {
	assert, _ := testenv.MakeAR(t)

	table := cuckoo.New[int](8)
	for i := uint64(0); i < 500; i++ {
		table.Insert(keyOf(i), int(i))
	}
	table.Clear()
	assert.Zero(table.Count())

	_, ok := table.Find(keyOf(0))
	assert.False(ok)

	table.Insert(keyOf(7), 7)
	v, ok := table.Find(keyOf(7))
	assert.True(ok)
	assert.Equal(7, v)
}

func TestMultiLimbKey(t *testing.T) {
	assert, _ := testenv.MakeAR(t)

	table := cuckoo.New[string](16)
	a := cuckoo.Key{1, 1}
	b := cuckoo.Key{1, 2}

	table.Insert(a, "a")
	table.Insert(b, "b")

	va, ok := table.Find(a)
	assert.True(ok)
	assert.Equal("a", va)

	vb, ok := table.Find(b)
	assert.True(ok)
	assert.Equal("b", vb)
}
