package store

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nainya/chunkstore/pkg/mvmap"
)

func TestCompactNoOpAboveFillRate(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	m, err := s.OpenMap("data", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.NoError(t, m.Put("k", "v"))
	_, err = s.Commit()
	require.NoError(t, err)

	before := s.Stat()
	did, err := s.Compact(1) // trivially already satisfied
	require.NoError(t, err)
	require.False(t, did)

	after := s.Stat()
	require.Equal(t, before.ChunkCount, after.ChunkCount)
}

func TestCompactReclaimsColdChunksWithoutLosingData(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).RetentionTime(0).Open()
	require.NoError(t, err)
	defer s.Close()

	m, err := s.OpenMap("data", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)

	for round := 0; round < 20; round++ {
		for i := 0; i < 50; i++ {
			key := "k" + strconv.Itoa(i)
			val := "round" + strconv.Itoa(round)
			require.NoError(t, m.Put(key, val))
		}
		_, err := s.Commit()
		require.NoError(t, err)
	}

	before := s.Stat()
	did, err := s.Compact(90)
	require.NoError(t, err)
	require.True(t, did, "a heavily overwritten store should have room to compact")

	after := s.Stat()
	require.LessOrEqual(t, after.MaxLength, before.MaxLength)

	// Every key must still resolve to the value from the final round,
	// regardless of which chunk it now lives in.
	for i := 0; i < 50; i++ {
		key := "k" + strconv.Itoa(i)
		val, found, err := m.Get(key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "round19", val)
	}
}

func TestCompactIsIdempotentWhenAlreadyDense(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).RetentionTime(0).Open()
	require.NoError(t, err)
	defer s.Close()

	m, err := s.OpenMap("data", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Put("k"+strconv.Itoa(i), "v"))
	}
	_, err = s.Commit()
	require.NoError(t, err)

	did, err := s.Compact(80)
	require.NoError(t, err)
	_ = did

	// Calling compact again immediately should not corrupt anything even
	// if the store is already dense enough to be a no-op.
	did2, err := s.Compact(80)
	require.NoError(t, err)
	_ = did2

	for i := 0; i < 10; i++ {
		val, found, err := m.Get("k" + strconv.Itoa(i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "v", val)
	}
}

func TestCompactOnReadOnlyStoreFails(t *testing.T) {
	path := tempStorePath(t)
	s, err := NewBuilder(path).Open()
	require.NoError(t, err)
	_, err = s.OpenMap("data", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	_, err = s.Commit()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := NewBuilder(path).ReadOnly().Open()
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.Compact(50)
	require.ErrorIs(t, err, ErrReadOnly)
}
