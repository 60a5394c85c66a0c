package mvmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIteratorSeekLEEmptyTree(t *testing.T) {
	r := newRefTree(t)
	it := NewIterator(r.tree)
	ok, err := it.SeekLE([]byte("anything"))
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, it.Valid())
}

func TestIteratorWalksAllEntries(t *testing.T) {
	r := newRefTree(t)
	for _, k := range []string{"m", "a", "z", "c"} {
		r.put(k, "v-"+k)
	}

	it := NewIterator(r.tree)
	ok, err := it.SeekLE(nil)
	require.NoError(t, err)
	require.True(t, ok)

	// SeekLE(nil) lands before the first entry, not on a real entry.
	require.False(t, it.Valid())
	ok, err = it.Next()
	require.NoError(t, err)
	require.True(t, ok)

	var keys []string
	for it.Valid() {
		keys = append(keys, string(it.Key()))
		ok, err = it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Equal(t, []string{"a", "c", "m", "z"}, keys)
}

func TestIteratorSeekLELandsOnExactKey(t *testing.T) {
	r := newRefTree(t)
	for _, k := range []string{"a", "b", "c"} {
		r.put(k, k)
	}
	it := NewIterator(r.tree)
	ok, err := it.SeekLE([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, it.Valid())
	require.Equal(t, "b", string(it.Key()))
	require.Equal(t, "b", string(it.Val()))
}
