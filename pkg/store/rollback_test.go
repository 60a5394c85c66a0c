package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nainya/chunkstore/pkg/mvmap"
)

func TestRollbackRestoresEarlierValue(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	counters, err := s.OpenMap("counters", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)

	require.NoError(t, counters.Put("a", "1"))
	_, err = s.Commit()
	require.NoError(t, err)

	require.NoError(t, counters.Put("a", "2"))
	target, err := s.Commit()
	require.NoError(t, err)

	require.NoError(t, counters.Put("a", "3"))
	_, err = s.Commit()
	require.NoError(t, err)

	require.NoError(t, s.RollbackTo(target))
	require.Equal(t, target, s.CurrentVersion())

	val, found, err := counters.Get("a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", val)
}

func TestRollbackThenCommitContinuesVersionChain(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	counters, err := s.OpenMap("counters", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.NoError(t, counters.Put("a", "1"))
	target, err := s.Commit()
	require.NoError(t, err)

	require.NoError(t, counters.Put("a", "2"))
	_, err = s.Commit()
	require.NoError(t, err)

	require.NoError(t, s.RollbackTo(target))

	require.NoError(t, counters.Put("a", "9"))
	v3, err := s.Commit()
	require.NoError(t, err)
	require.Greater(t, v3, target)

	val, _, err := counters.Get("a")
	require.NoError(t, err)
	require.Equal(t, "9", val)
}

func TestRollbackDropsMapsCreatedAfterTarget(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.OpenMap("keep", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	target, err := s.Commit()
	require.NoError(t, err)

	later, err := s.OpenMap("gone", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.NoError(t, later.Put("x", "y"))
	_, err = s.Commit()
	require.NoError(t, err)

	require.NoError(t, s.RollbackTo(target))

	_, ok := s.names["gone"]
	require.False(t, ok, "a map created after the rollback target must not survive")
	_, ok = s.names["keep"]
	require.True(t, ok)
}

func TestRollbackToUnknownVersionFails(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.OpenMap("m", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	_, err = s.Commit()
	require.NoError(t, err)

	err = s.RollbackTo(999)
	require.ErrorIs(t, err, ErrUnknownVersion)
}

func TestRollbackSurvivesReopen(t *testing.T) {
	path := tempStorePath(t)
	s, err := NewBuilder(path).Open()
	require.NoError(t, err)

	m, err := s.OpenMap("data", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.NoError(t, m.Put("k", "v1"))
	target, err := s.Commit()
	require.NoError(t, err)

	require.NoError(t, m.Put("k", "v2"))
	_, err = s.Commit()
	require.NoError(t, err)

	require.NoError(t, s.RollbackTo(target))
	require.NoError(t, s.Close())

	s2, err := NewBuilder(path).Open()
	require.NoError(t, err)
	defer s2.Close()

	reopened, err := s2.OpenMap("data", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	val, found, err := reopened.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", val)
}
