package undo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagebuf/internal/store"
	"github.com/tuannm99/pagebuf/internal/vpm"
)

func newTestTarget(t *testing.T, pageSize int64) *vpm.Manager {
	t.Helper()
	return vpm.NewManager(vpm.Config{PageSize: pageSize, MaxLoadedPages: 32}, store.NewMemStore())
}

func TestUndoRedoInsert(t *testing.T) {
	vp := newTestTarget(t, 64)
	require.NoError(t, vp.LoadContent([]byte("ORIGINAL")))

	m := NewManager(Config{MergeDistanceWindow: 0}, vp)
	require.NoError(t, vp.InsertAt(4, []byte("XXXX")))
	require.NoError(t, m.Record(NewInsertOperation(4, []byte("XXXX"))))

	got, err := vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ORIGXXXXINAL", string(got))

	ok, err := m.Undo()
	require.NoError(t, err)
	require.True(t, ok)

	got, err = vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ORIGINAL", string(got))

	ok, err = m.Redo()
	require.NoError(t, err)
	require.True(t, ok)

	got, err = vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ORIGXXXXINAL", string(got))
}

func TestUndoEmptyStackReturnsFalse(t *testing.T) {
	vp := newTestTarget(t, 64)
	m := NewManager(Config{}, vp)

	ok, err := m.Undo()
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, m.CanUndo())
}

func TestDisabledUndoReturnsError(t *testing.T) {
	vp := newTestTarget(t, 64)
	m := NewManager(Config{}, vp)
	m.Disable()

	err := m.Record(NewInsertOperation(0, []byte("x")))
	require.ErrorIs(t, err, ErrUndoDisabled)

	_, err = m.Undo()
	require.ErrorIs(t, err, ErrUndoDisabled)
}

func TestRecordingClearsRedoStack(t *testing.T) {
	vp := newTestTarget(t, 64)
	require.NoError(t, vp.LoadContent([]byte("ABCDEF")))
	m := NewManager(Config{}, vp)

	require.NoError(t, vp.InsertAt(0, []byte("X")))
	require.NoError(t, m.Record(NewInsertOperation(0, []byte("X"))))
	ok, err := m.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, m.CanRedo())

	require.NoError(t, vp.InsertAt(0, []byte("Y")))
	require.NoError(t, m.Record(NewInsertOperation(0, []byte("Y"))))
	require.False(t, m.CanRedo())
}

func TestAdjacentInsertsMergeWithinDistanceWindow(t *testing.T) {
	vp := newTestTarget(t, 64)
	require.NoError(t, vp.LoadContent([]byte("AB")))
	m := NewManager(Config{MergeDistanceWindow: 1}, vp)

	require.NoError(t, vp.InsertAt(0, []byte("A")))
	first := NewInsertOperation(0, []byte("A"))
	require.NoError(t, m.Record(first))

	require.NoError(t, vp.InsertAt(2, []byte("B")))
	second := NewInsertOperation(2, []byte("B"))
	require.NoError(t, m.Record(second))

	require.Equal(t, 1, m.GetStats().UndoDepth, "the two inserts should coalesce into one undo step")
	require.Equal(t, 1, m.GetStats().MergedCount)

	ok, err := m.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	got, err := vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "AB", string(got))
}

func TestDistantInsertsDoNotMergeByDefault(t *testing.T) {
	vp := newTestTarget(t, 64)
	require.NoError(t, vp.LoadContent([]byte("AB")))
	m := NewManager(Config{}, vp) // mergeDistanceWindow defaults to 0

	require.NoError(t, vp.InsertAt(0, []byte("A")))
	require.NoError(t, m.Record(NewInsertOperation(0, []byte("A"))))

	require.NoError(t, vp.InsertAt(2, []byte("B")))
	require.NoError(t, m.Record(NewInsertOperation(2, []byte("B"))))

	require.Equal(t, 2, m.GetStats().UndoDepth, "distance 1 exceeds the default window of 0")
}

func TestLogicalDistanceScenario(t *testing.T) {
	first := Operation{Kind: Insert, PostExecutionPosition: 0, Data: []byte("A"), OperationNumber: 1}
	second := Operation{Kind: Insert, PreExecutionPosition: 2, Data: []byte("B"), OperationNumber: 2}
	require.EqualValues(t, 1, LogicalDistance(first, second))
	require.EqualValues(t, 1, LogicalDistance(second, first), "distance is symmetric in call order")
}

func TestMergeTimeWindowPreventsStaleCoalescing(t *testing.T) {
	vp := newTestTarget(t, 64)
	require.NoError(t, vp.LoadContent([]byte("AB")))
	m := NewManager(Config{MergeTimeWindow: time.Nanosecond, MergeDistanceWindow: 10}, vp)

	require.NoError(t, vp.InsertAt(0, []byte("A")))
	require.NoError(t, m.Record(NewInsertOperation(0, []byte("A"))))
	time.Sleep(time.Millisecond)
	require.NoError(t, vp.InsertAt(2, []byte("B")))
	require.NoError(t, m.Record(NewInsertOperation(2, []byte("B"))))

	require.Equal(t, 2, m.GetStats().UndoDepth)
}

func TestUndoRedoDeleteAndOverwrite(t *testing.T) {
	vp := newTestTarget(t, 64)
	require.NoError(t, vp.LoadContent([]byte("ABCDEFGH")))
	m := NewManager(Config{}, vp)

	removed, err := vp.DeleteRange(2, 5)
	require.NoError(t, err)
	require.NoError(t, m.Record(NewDeleteOperation(2, removed)))

	ok, err := m.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	got, err := vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ABCDEFGH", string(got))

	removedOW, err := vp.OverwriteAt(1, []byte("xyz"))
	require.NoError(t, err)
	require.NoError(t, m.Record(NewOverwriteOperation(1, []byte("xyz"), removedOW)))

	ok, err = m.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	got, err = vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ABCDEFGH", string(got))
}

func TestUndoOverwritePastEndOfBuffer(t *testing.T) {
	vp := newTestTarget(t, 64)
	require.NoError(t, vp.LoadContent([]byte("ABCDE")))
	m := NewManager(Config{}, vp)

	// Overwrite starting at 3 with a replacement longer than what's left
	// (2 bytes, "DE"): the buffer grows from 5 to 9 bytes.
	removed, err := vp.OverwriteAt(3, []byte("XYZTUV"))
	require.NoError(t, err)
	require.Equal(t, "DE", string(removed))
	require.NoError(t, m.Record(NewOverwriteOperation(3, []byte("XYZTUV"), removed)))

	got, err := vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ABCXYZTUV", string(got))

	ok, err := m.Undo()
	require.NoError(t, err)
	require.True(t, ok)

	got, err = vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ABCDE", string(got))

	ok, err = m.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	got, err = vp.ReadRange(0, vp.GetTotalSize())
	require.NoError(t, err)
	require.Equal(t, "ABCXYZTUV", string(got))
}
