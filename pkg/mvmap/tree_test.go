package mvmap

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nainya/chunkstore/pkg/page"
)

// fakeStore is an in-memory PageSource/appender standing in for the
// store's chunk-backed page I/O, the same role TestContext plays for
// the teacher's BTree tests.
type fakeStore struct {
	pages map[page.Position]*page.Page
	next  uint32
	freed []page.Position
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: map[page.Position]*page.Page{}}
}

func (s *fakeStore) ReadPage(pos page.Position) (*page.Page, error) {
	p, ok := s.pages[pos]
	if !ok {
		return nil, fmt.Errorf("fakeStore: no page at %d", pos)
	}
	return p, nil
}

func (s *fakeStore) appendPage(pg *page.Page) (page.Position, error) {
	s.next++
	pos := page.NewPosition(1, s.next, len(pg.Encode()), pg.Leaf)
	s.pages[pos] = pg
	return pos, nil
}

func (s *fakeStore) free(pos page.Position) {
	s.freed = append(s.freed, pos)
}

// refTree pairs a Tree with a plain Go map used as an independent
// reference, checked after every mutation (same approach as the
// teacher's TestContext).
type refTree struct {
	t     *testing.T
	tree  *Tree
	store *fakeStore
	ref   map[string]string
}

func newRefTree(t *testing.T) *refTree {
	store := newFakeStore()
	return &refTree{
		t:     t,
		tree:  NewTree(1, store, store.free),
		store: store,
		ref:   map[string]string{},
	}
}

func (r *refTree) put(key, val string) {
	require.NoError(r.t, r.tree.Insert([]byte(key), []byte(val)))
	r.ref[key] = val
}

func (r *refTree) del(key string) bool {
	ok, err := r.tree.Delete([]byte(key))
	require.NoError(r.t, err)
	if ok {
		delete(r.ref, key)
	}
	return ok
}

func (r *refTree) checkAll() {
	for k, v := range r.ref {
		got, ok, err := r.tree.Get([]byte(k))
		require.NoError(r.t, err)
		require.True(r.t, ok, "key %q should be present", k)
		require.Equal(r.t, v, string(got))
	}
	require.EqualValues(r.t, len(r.ref), r.tree.Count())
}

func TestTreeInsertGetRoundTrip(t *testing.T) {
	r := newRefTree(t)
	r.put("banana", "yellow")
	r.put("apple", "red")
	r.put("cherry", "dark red")
	r.checkAll()
}

func TestTreeUpdateOverwritesValue(t *testing.T) {
	r := newRefTree(t)
	r.put("k", "v1")
	r.put("k", "v2")
	got, ok, err := r.tree.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(got))
	require.EqualValues(t, 1, r.tree.Count())
}

func TestTreeGetMissing(t *testing.T) {
	r := newRefTree(t)
	r.put("k", "v")
	_, ok, err := r.tree.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTreeDeleteRemovesKey(t *testing.T) {
	r := newRefTree(t)
	r.put("a", "1")
	r.put("b", "2")
	require.True(t, r.del("a"))
	r.checkAll()
	_, ok, err := r.tree.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTreeDeleteMissingReturnsFalse(t *testing.T) {
	r := newRefTree(t)
	r.put("a", "1")
	require.False(t, r.del("nope"))
}

func TestTreeDeleteEmptiesRootToNil(t *testing.T) {
	r := newRefTree(t)
	r.put("only", "one")
	require.True(t, r.del("only"))
	require.EqualValues(t, 0, r.tree.Count())
	_, ok, err := r.tree.Get([]byte("only"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTreeManyInsertsForceSplit(t *testing.T) {
	r := newRefTree(t)
	rng := rand.New(rand.NewSource(1))
	const n = 2000
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%06d", i)
	}
	rng.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for _, k := range keys {
		r.put(k, "v-"+k)
	}
	r.checkAll()
}

func TestTreeInsertOversizedSingleValueTerminates(t *testing.T) {
	r := newRefTree(t)
	r.put("first", "v")
	big := string(bytes.Repeat([]byte("x"), page.MaxPageBytes*2))
	r.put("second", big)
	r.checkAll()
}

func TestTreeInsertAndDeleteInterleaved(t *testing.T) {
	r := newRefTree(t)
	const n = 500
	for i := 0; i < n; i++ {
		r.put(fmt.Sprintf("k%04d", i), fmt.Sprintf("v%d", i))
	}
	for i := 0; i < n; i += 2 {
		require.True(t, r.del(fmt.Sprintf("k%04d", i)))
	}
	r.checkAll()
}

func TestTreePersistAssignsPositionsBottomUp(t *testing.T) {
	r := newRefTree(t)
	for i := 0; i < 300; i++ {
		r.put(fmt.Sprintf("key-%04d", i), fmt.Sprintf("val-%04d", i))
	}
	require.True(t, r.tree.Dirty())

	pos, err := r.tree.Persist(r.store.appendPage)
	require.NoError(t, err)
	require.False(t, pos.IsZero())
	require.False(t, r.tree.Dirty())
	require.Equal(t, pos, r.tree.RootPos())

	// Reopen a fresh tree at the persisted root and confirm every entry
	// survives a round trip through ReadPage.
	reopened, err := OpenTree(1, pos, r.store, r.store.free)
	require.NoError(t, err)
	for k, v := range r.ref {
		got, ok, err := reopened.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v, string(got))
	}
}

func TestTreePersistIsIdempotentOnCleanTree(t *testing.T) {
	r := newRefTree(t)
	r.put("a", "1")
	pos1, err := r.tree.Persist(r.store.appendPage)
	require.NoError(t, err)

	pos2, err := r.tree.Persist(r.store.appendPage)
	require.NoError(t, err)
	require.Equal(t, pos1, pos2)
}

func TestTreeFreesReplacedPersistedNodes(t *testing.T) {
	r := newRefTree(t)
	r.put("a", "1")
	_, err := r.tree.Persist(r.store.appendPage)
	require.NoError(t, err)

	require.Empty(t, r.store.freed)
	r.put("a", "2") // mutates the persisted root; old root should be freed
	require.NotEmpty(t, r.store.freed)
}

func TestTreeScanOrdered(t *testing.T) {
	r := newRefTree(t)
	want := []string{"apple", "banana", "cherry", "date"}
	for _, k := range []string{"cherry", "apple", "date", "banana"} {
		r.put(k, k)
	}
	var got []string
	err := r.tree.Scan(nil, func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTreeScanFromMidpoint(t *testing.T) {
	r := newRefTree(t)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		r.put(k, k)
	}
	var got []string
	err := r.tree.Scan([]byte("c"), func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d", "e"}, got)
}

func TestTreeScanStopsEarly(t *testing.T) {
	r := newRefTree(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		r.put(k, k)
	}
	var got []string
	err := r.tree.Scan(nil, func(k, v []byte) bool {
		got = append(got, string(k))
		return len(got) < 2
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)
}

func TestTreeEmptyScanNoop(t *testing.T) {
	r := newRefTree(t)
	called := false
	err := r.tree.Scan(nil, func(k, v []byte) bool {
		called = true
		return true
	})
	require.NoError(t, err)
	require.False(t, called)
}
