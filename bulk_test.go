package pmbackend_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmbackend/pmbackend"
)

func TestIngestPairsWritesAll(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	pairs := make([]pmbackend.Pair, 0, 20)
	for i := 0; i < 20; i++ {
		pairs = append(pairs, pmbackend.Pair{
			Key: []byte(fmt.Sprintf("key-%02d", i)),
			Val: []byte(fmt.Sprintf("val-%02d", i)),
		})
	}

	ids, stats, err := pmbackend.IngestPairs(s, pmbackend.RegionData, pairs)
	require.NoError(t, err)
	require.Len(t, ids, 20)
	require.Equal(t, 20, stats.Written)
	require.GreaterOrEqual(t, stats.Transactions, 1)

	for i, id := range ids {
		_, val, err := s.Get(id)
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("val-%02d", i)), val)
	}
}

func TestIngestPairsRejectsOversizedKey(t *testing.T) {
	s, err := pmbackend.Open(testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	pairs := []pmbackend.Pair{
		{Key: []byte("ok"), Val: []byte("v")},
		{Key: make([]byte, 1000), Val: []byte("v")},
	}

	ids, _, err := pmbackend.IngestPairs(s, pmbackend.RegionData, pairs)
	require.Error(t, err)
	require.Equal(t, pmbackend.CodeSizeExceeded, pmbackend.ErrorCode(err))
	require.Len(t, ids, 1)
}
