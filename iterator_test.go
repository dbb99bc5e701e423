package pmbackend_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmbackend/pmbackend"
)

func TestIteratorEnumeratesLiveBlocks(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	tx, err := s.Begin()
	require.NoError(t, err)
	idA, err := tx.Put([]byte("a"), []byte("1"), 0, 0)
	require.NoError(t, err)
	idB, err := tx.Put([]byte("b"), []byte("2"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	tx2, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.Delete(idA))
	require.NoError(t, tx2.Commit())
	require.NoError(t, tx2.Execute())

	it := s.Iterator(pmbackend.RegionData)
	defer it.Close()

	seen := map[pmbackend.ID]string{}
	for it.Valid() {
		id, key, val, err := it.Get()
		require.NoError(t, err)
		seen[id] = string(key) + "=" + string(val)
		it.Next()
	}

	require.NotContains(t, seen, idA)
	require.Contains(t, seen, idB)
	require.Equal(t, "b=2", seen[idB])
}

func TestIteratorSnapshotExcludesLaterWrites(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	tx, err := s.Begin()
	require.NoError(t, err)
	_, err = tx.Put([]byte("a"), []byte("1"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Execute())

	it := s.Iterator(pmbackend.RegionData)
	defer it.Close()

	tx2, err := s.Begin()
	require.NoError(t, err)
	_, err = tx2.Put([]byte("c"), []byte("3"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
	require.NoError(t, tx2.Execute())

	before := 0
	for it.Valid() {
		before++
		it.Next()
	}

	it2 := s.Iterator(pmbackend.RegionData)
	defer it2.Close()
	after := 0
	for it2.Valid() {
		after++
		it2.Next()
	}

	require.Equal(t, 1, before)
	require.Equal(t, 2, after)
}
