package mvmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapPutGetWithBytesCodec(t *testing.T) {
	store := newFakeStore()
	m := NewMap(1, "widgets", NewTree(1, store, store.free), nil, nil)

	require.NoError(t, m.Put([]byte("sku-1"), []byte("wrench")))
	v, ok, err := m.Get([]byte("sku-1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("wrench"), v)
	require.EqualValues(t, 1, m.Size())
}

func TestMapPutGetWithStringCodec(t *testing.T) {
	store := newFakeStore()
	m := NewMap(2, "labels", NewTree(2, store, store.free), StringCodec{}, StringCodec{})

	require.NoError(t, m.Put("name", "treestore"))
	v, ok, err := m.Get("name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "treestore", v)
}

func TestMapRemove(t *testing.T) {
	store := newFakeStore()
	m := NewMap(1, "m", NewTree(1, store, store.free), nil, nil)
	require.NoError(t, m.Put([]byte("k"), []byte("v")))

	removed, err := m.Remove([]byte("k"))
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMapScanStringCodec(t *testing.T) {
	store := newFakeStore()
	m := NewMap(1, "m", NewTree(1, store, store.free), StringCodec{}, StringCodec{})
	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, m.Put(k, k+"-val"))
	}

	var got []string
	require.NoError(t, m.Scan(nil, func(k, v any) bool {
		got = append(got, k.(string))
		return true
	}))
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestViewIsReadOnlySnapshot(t *testing.T) {
	store := newFakeStore()
	tree := NewTree(1, store, store.free)
	m := NewMap(1, "m", tree, nil, nil)
	require.NoError(t, m.Put([]byte("a"), []byte("1")))

	rootV1, err := tree.Persist(store.appendPage)
	require.NoError(t, err)

	require.NoError(t, m.Put([]byte("a"), []byte("2")))
	require.NoError(t, m.Put([]byte("b"), []byte("3")))

	// The live map sees the latest writes.
	live, ok, err := m.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), live)

	// A View opened at the earlier root sees only what was committed
	// at that version, regardless of what happened to the live tree
	// afterward.
	histTree, err := OpenTree(1, rootV1, store, store.free)
	require.NoError(t, err)
	view := NewView(1, "m", 1, histTree, nil, nil)

	old, ok, err := view.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), old)

	_, ok, err = view.Get([]byte("b"))
	require.NoError(t, err)
	require.False(t, ok, "key added after the view's version must not be visible")

	require.EqualValues(t, 1, view.Version())
	require.EqualValues(t, 1, view.Size())
}
