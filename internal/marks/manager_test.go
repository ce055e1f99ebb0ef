package marks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagebuf/internal/store"
	"github.com/tuannm99/pagebuf/internal/vpm"
)

func newTestPair(t *testing.T, pageSize int64, maxLoaded int) (*vpm.Manager, *Manager) {
	t.Helper()
	vp := vpm.NewManager(vpm.Config{PageSize: pageSize, MaxLoadedPages: maxLoaded}, store.NewMemStore())
	return vp, NewManager(vp)
}

func TestSetGetRemoveMark(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("hello world")))

	require.NoError(t, l.SetMark("cursor", 5))
	addr, ok := l.GetMark("cursor")
	require.True(t, ok)
	require.EqualValues(t, 5, addr)

	l.RemoveMark("cursor")
	_, ok = l.GetMark("cursor")
	require.False(t, ok)
}

func TestMarkShiftsOnInsertBeforeIt(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789")))
	require.NoError(t, l.SetMark("m", 8))

	require.NoError(t, l.InsertBytesWithMarks(3, []byte("XXX")))

	addr, ok := l.GetMark("m")
	require.True(t, ok)
	require.EqualValues(t, 11, addr)
}

func TestMarkUnaffectedByInsertAfterIt(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789")))
	require.NoError(t, l.SetMark("m", 2))

	require.NoError(t, l.InsertBytesWithMarks(8, []byte("XXX")))

	addr, ok := l.GetMark("m")
	require.True(t, ok)
	require.EqualValues(t, 2, addr)
}

func TestMarkAtInsertPointStaysPinned(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789")))
	require.NoError(t, l.SetMark("m", 5))

	require.NoError(t, l.InsertBytesWithMarks(5, []byte("XXX")))

	addr, ok := l.GetMark("m")
	require.True(t, ok)
	require.EqualValues(t, 5, addr)
}

func TestMarkInsideDeletedRangeConsolidates(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789")))
	require.NoError(t, l.SetMark("m", 4))

	_, err := l.DeleteBytesWithMarks(2, 6)
	require.NoError(t, err)

	addr, ok := l.GetMark("m")
	require.True(t, ok)
	require.EqualValues(t, 2, addr)
}

func TestMarkPastDeletedRangeShiftsBack(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789")))
	require.NoError(t, l.SetMark("m", 8))

	_, err := l.DeleteBytesWithMarks(2, 6)
	require.NoError(t, err)

	addr, ok := l.GetMark("m")
	require.True(t, ok)
	require.EqualValues(t, 4, addr)
}

func TestGetMarksInDeletedContentReportsThenRemoveDeletesThem(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789")))
	require.NoError(t, l.SetMark("inside", 4))
	require.NoError(t, l.SetMark("boundary", 2))
	require.NoError(t, l.SetMark("outside", 9))

	reported := l.GetMarksInDeletedContent(2, 6)
	require.Len(t, reported, 1)
	require.Equal(t, "inside", reported[0].Name)
	require.EqualValues(t, 2, reported[0].Addr)

	l.RemoveMarksFromRange(2, 6)
	_, ok := l.GetMark("inside")
	require.False(t, ok)
	_, ok = l.GetMark("boundary")
	require.True(t, ok, "boundary mark at vStart is not inside the deleted range")
}

func TestMarkFollowsPageSplit(t *testing.T) {
	vp, l := newTestPair(t, 16, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789ABCDEF")))
	require.NoError(t, l.SetMark("m", 12))

	require.NoError(t, l.InsertBytesWithMarks(0, []byte("0123456789ABCDEF0123456789ABCDEF")))

	addr, ok := l.GetMark("m")
	require.True(t, ok)
	require.EqualValues(t, 12+32, addr)
}

func TestMarkFollowsPageMerge(t *testing.T) {
	vp, l := newTestPair(t, 16, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF")[:48]))
	require.Len(t, vp.Descriptors(), 3)
	require.NoError(t, l.SetMark("m", 20))

	_, err := l.DeleteBytesWithMarks(5, 43)
	require.NoError(t, err)

	_, ok := l.GetMark("m")
	require.True(t, ok)
}

func TestValidateAndCleanupMarksKeepsMarkOnEmptiedPage(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("hello")))
	require.NoError(t, l.SetMark("m", 5))

	_, err := l.DeleteBytesWithMarks(0, 5)
	require.NoError(t, err)

	l.ValidateAndCleanupMarks()
	_, ok := l.GetMark("m")
	require.True(t, ok)
}

func TestPersistenceRoundTripDropsNegative(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("0123456789")))
	require.NoError(t, l.SetMark("a", 2))
	require.NoError(t, l.SetMark("b", 7))

	saved := l.GetAllMarksForPersistence()
	require.Len(t, saved, 2)

	fresh := NewManager(vp)
	saved["bogus"] = -1
	fresh.SetMarksFromPersistence(saved)

	_, ok := fresh.GetMark("bogus")
	require.False(t, ok)
	addr, ok := fresh.GetMark("a")
	require.True(t, ok)
	require.EqualValues(t, 2, addr)
}

func TestLineQueries(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("line one\nline two\nline three")))

	count, exact := l.GetTotalLineCount()
	require.True(t, exact)
	require.Equal(t, 3, count)

	info, err := l.GetLineInfo(2)
	require.NoError(t, err)
	require.True(t, info.IsExact)
	require.EqualValues(t, 9, info.Start)
	require.EqualValues(t, 18, info.End)

	lineNo, exact, err := l.GetLineNumberFromAddress(20)
	require.NoError(t, err)
	require.True(t, exact)
	require.Equal(t, 3, lineNo)

	pos, err := l.LineCharToBytePosition(3, 2)
	require.NoError(t, err)
	require.EqualValues(t, 20, pos)

	line, char, err := l.ByteToLineCharPosition(20)
	require.NoError(t, err)
	require.Equal(t, 3, line)
	require.Equal(t, 2, char)
}

func TestGetMultipleLines(t *testing.T) {
	vp, l := newTestPair(t, 64, 32)
	require.NoError(t, vp.LoadContent([]byte("a\nb\nc\nd")))

	infos, err := l.GetMultipleLines(2, 3)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, 2, infos[0].LineNumber)
	require.Equal(t, 3, infos[1].LineNumber)
}
