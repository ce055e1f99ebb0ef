package vpm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagebuf/internal/store"
)

func newTestManager(t *testing.T, pageSize int64, maxLoaded int) *Manager {
	t.Helper()
	return NewManager(Config{PageSize: pageSize, MaxLoadedPages: maxLoaded}, store.NewMemStore())
}

func assertContiguous(t *testing.T, m *Manager) {
	t.Helper()
	descs := m.Descriptors()
	var total int64
	for i, d := range descs {
		require.Equal(t, total, d.VirtualStart, "descriptor %d start", i)
		total += d.VirtualSize
		if i+1 < len(descs) {
			require.Less(t, d.VirtualSize, 2*m.pageSize, "split bound violated at %d", i)
		}
	}
	require.Equal(t, total, m.GetTotalSize())
}

func TestLoadContentAndRoundTrip(t *testing.T) {
	m := newTestManager(t, 64, 32)
	require.NoError(t, m.LoadContent([]byte("hello world, this buffer spans more than one page of sixty four bytes easily")))

	got, err := m.ReadRange(0, m.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "hello world, this buffer spans more than one page of sixty four bytes easily", string(got))
	assertContiguous(t, m)
}

func TestInsertTriggersCascadingSplit(t *testing.T) {
	m := newTestManager(t, 128, 32)
	require.NoError(t, m.LoadContent([]byte("START")))

	insert := make([]byte, 500)
	for i := range insert {
		insert[i] = 'X'
	}
	require.NoError(t, m.InsertAt(2, insert))

	require.EqualValues(t, 505, m.GetTotalSize())

	got, err := m.ReadRange(0, m.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ST"+string(insert)+"ART", string(got))

	descs := m.Descriptors()
	require.GreaterOrEqual(t, len(descs), 3, "large insert should cascade into at least 3 pages")
	assertContiguous(t, m)
}

func TestOutOfBounds(t *testing.T) {
	m := newTestManager(t, 64, 32)
	require.NoError(t, m.LoadContent([]byte("abcdef")))

	_, err := m.ReadRange(-1, 3)
	require.ErrorIs(t, err, ErrOutOfBounds)

	_, err = m.ReadRange(0, 100)
	require.ErrorIs(t, err, ErrOutOfBounds)

	_, err = m.ReadRange(4, 2)
	require.ErrorIs(t, err, ErrOutOfBounds)

	err = m.InsertAt(-1, []byte("x"))
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDeleteTriggersMerge(t *testing.T) {
	m := newTestManager(t, 16, 32)
	// Three pages of 16 bytes each (48 total).
	require.NoError(t, m.LoadContent([]byte("0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF")[:48]))
	require.Len(t, m.Descriptors(), 3)

	// Delete the whole middle page and most of both outer pages so the
	// survivors collapse below P.
	_, err := m.DeleteRange(5, 43)
	require.NoError(t, err)

	assertContiguous(t, m)
	descs := m.Descriptors()
	for i := 0; i+1 < len(descs); i++ {
		require.Greater(t, descs[i].VirtualSize+descs[i+1].VirtualSize, m.pageSize, "merge bound violated")
	}
}

func TestOverwriteReplacesBytesAndReturnsOriginal(t *testing.T) {
	m := newTestManager(t, 64, 32)
	require.NoError(t, m.LoadContent([]byte("ABCDEFGH")))

	removed, err := m.OverwriteAt(2, []byte("xyz"))
	require.NoError(t, err)
	require.Equal(t, "CDE", string(removed))

	got, err := m.ReadRange(0, m.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ABxyzFGH", string(got))
}

func TestSplitAndMergeEventsFire(t *testing.T) {
	m := newTestManager(t, 8, 32)
	var splits []SplitEvent
	var merges []MergeEvent
	m.OnSplit(func(e SplitEvent) { splits = append(splits, e) })
	m.OnMerge(func(e MergeEvent) { merges = append(merges, e) })

	require.NoError(t, m.LoadContent([]byte("01234567")))
	require.NoError(t, m.InsertAt(4, []byte("XXXXXXXXXXXXXXXX"))) // forces a split
	require.NotEmpty(t, splits)

	total := m.GetTotalSize()
	_, err := m.DeleteRange(4, total-4) // collapse back down, forcing a merge
	require.NoError(t, err)
	require.NotEmpty(t, merges)
}

func TestEvictionRespectsCapacity(t *testing.T) {
	m := newTestManager(t, 100, 2)
	data := make([]byte, 500)
	for i := range data {
		data[i] = 'X'
	}
	require.NoError(t, m.LoadContent(data))
	require.Len(t, m.Descriptors(), 5)
	require.LessOrEqual(t, m.GetMemoryStats().LoadedPages, 2)

	for _, addr := range []int64{0, 100, 200, 300, 400} {
		_, err := m.ReadRange(addr, addr+10)
		require.NoError(t, err)
		require.LessOrEqual(t, m.GetMemoryStats().LoadedPages, 2)
	}

	got, err := m.ReadRange(0, 500)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestUndoScenarioRoundTrip(t *testing.T) {
	m := newTestManager(t, 64, 32)
	require.NoError(t, m.LoadContent([]byte("ORIGINAL")))

	require.NoError(t, m.InsertAt(4, []byte("XXXX")))
	removed, err := m.DeleteRange(4, 8)
	require.NoError(t, err)
	require.Equal(t, "XXXX", string(removed))

	got, err := m.ReadRange(0, m.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ORIGINAL", string(got))
	require.EqualValues(t, 8, m.GetTotalSize())
}

func TestEmptyBufferInsert(t *testing.T) {
	m := newTestManager(t, 64, 32)
	require.NoError(t, m.LoadContent(nil))
	require.EqualValues(t, 0, m.GetTotalSize())

	require.NoError(t, m.InsertAt(0, []byte("hi")))
	got, err := m.ReadRange(0, 2)
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))
}
