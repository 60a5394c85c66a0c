package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nainya/chunkstore/pkg/mvmap"
)

func tempStorePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

func TestPutGetCommit(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	users, err := s.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)

	require.NoError(t, users.Put("alice", "engineer"))
	require.NoError(t, users.Put("bob", "designer"))

	v, err := s.Commit()
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	val, found, err := users.Get("alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "engineer", val)
}

func TestReopenSeesCommittedState(t *testing.T) {
	path := tempStorePath(t)

	s1, err := NewBuilder(path).Open()
	require.NoError(t, err)
	users, err := s1.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.NoError(t, users.Put("bob", "designer"))
	v1, err := s1.Commit()
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewBuilder(path).Open()
	require.NoError(t, err)
	defer s2.Close()
	require.Equal(t, v1, s2.CurrentVersion())

	reopened, err := s2.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	val, found, err := reopened.Get("bob")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "designer", val)
}

func TestMultipleNamedMaps(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	users, err := s.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	sessions, err := s.OpenMap("sessions", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)

	require.NoError(t, users.Put("alice", "engineer"))
	require.NoError(t, sessions.Put("sess-1", "active"))
	_, err = s.Commit()
	require.NoError(t, err)

	_, found, err := users.Get("sess-1")
	require.NoError(t, err)
	require.False(t, found)

	val, found, err := sessions.Get("sess-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "active", val)
}

func TestOpenMapIsIdempotentByName(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	a, err := s.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	b, err := s.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.Equal(t, a.ID(), b.ID())

	require.NoError(t, a.Put("k", "v"))
	val, found, err := b.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", val)
}

func TestRemoveMapDropsItsRecords(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.OpenMap("scratch", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	_, err = s.Commit()
	require.NoError(t, err)

	require.NoError(t, s.RemoveMap("scratch"))

	// Removing again now fails: the name no longer resolves to anything.
	err = s.RemoveMap("scratch")
	require.Error(t, err)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	path := tempStorePath(t)
	s, err := NewBuilder(path).Open()
	require.NoError(t, err)
	_, err = s.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	_, err = s.Commit()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := NewBuilder(path).ReadOnly().Open()
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.OpenMap("brand-new", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.ErrorIs(t, err, ErrReadOnly)

	err = ro.RemoveMap("users")
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestEncryptedAndCompressedRoundTrip(t *testing.T) {
	path := tempStorePath(t)
	s, err := NewBuilder(path).Encrypt([]byte("correct horse battery staple")).Compress().Open()
	require.NoError(t, err)

	secrets, err := s.OpenMap("secrets", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.NoError(t, secrets.Put("api-key", "sk-example-not-real"))
	_, err = s.Commit()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := NewBuilder(path).Encrypt([]byte("correct horse battery staple")).Compress().Open()
	require.NoError(t, err)
	defer s2.Close()

	reopened, err := s2.OpenMap("secrets", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	val, found, err := reopened.Get("api-key")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "sk-example-not-real", val)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.OpenMap("users", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.ErrorIs(t, err, ErrClosed)

	_, err = s.Commit()
	require.ErrorIs(t, err, ErrClosed)
}

func TestStoreVersionSurvivesReopen(t *testing.T) {
	path := tempStorePath(t)
	s, err := NewBuilder(path).Open()
	require.NoError(t, err)
	v, err := s.StoreVersion()
	require.NoError(t, err)
	require.Equal(t, storeSchemaVersion, v)
	require.NoError(t, s.Close())

	s2, err := NewBuilder(path).Open()
	require.NoError(t, err)
	defer s2.Close()
	v2, err := s2.StoreVersion()
	require.NoError(t, err)
	require.Equal(t, storeSchemaVersion, v2)
}

// reverseLenCodec orders keys by length, descending — the opposite of
// what plain byte ordering on these particular keys would produce, so
// a Scan only passes if OpenMap actually installed it on the map's
// tree rather than defaulting to byte order.
type reverseLenCodec struct{ mvmap.StringCodec }

func (reverseLenCodec) Compare(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) > len(b) {
			return -1
		}
		return 1
	}
	return mvmap.BytesCodec{}.Compare(a, b)
}

func TestOpenMapInstallsCodecComparator(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	m, err := s.OpenMap("data", reverseLenCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)

	for _, k := range []string{"a", "bb", "ccc"} {
		require.NoError(t, m.Put(k, k))
	}

	var got []string
	require.NoError(t, m.Scan(nil, func(k, v any) bool {
		got = append(got, k.(string))
		return true
	}))
	require.Equal(t, []string{"ccc", "bb", "a"}, got)
}

func TestStatReportsChunksAndSpace(t *testing.T) {
	s, err := NewBuilder(tempStorePath(t)).Open()
	require.NoError(t, err)
	defer s.Close()

	m, err := s.OpenMap("data", mvmap.StringCodec{}, mvmap.StringCodec{})
	require.NoError(t, err)
	require.NoError(t, m.Put("k", "v"))
	_, err = s.Commit()
	require.NoError(t, err)

	st := s.Stat()
	require.GreaterOrEqual(t, st.ChunkCount, 1)
	require.GreaterOrEqual(t, st.MaxLength, st.MaxLengthLive)
}
