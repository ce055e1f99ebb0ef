// Package pagebuf is the top-level facade over the Virtual Page Manager,
// the Line & Marks Manager, and the Undo System: an in-process paged byte
// buffer suitable for an interactive text editor's storage layer.
package pagebuf

import (
	"errors"
	"sync"
	"time"

	"github.com/tuannm99/pagebuf/internal/marks"
	"github.com/tuannm99/pagebuf/internal/store"
	"github.com/tuannm99/pagebuf/internal/undo"
	"github.com/tuannm99/pagebuf/internal/vpm"
)

// ErrClosed is returned by any call on a Buffer after Close.
var ErrClosed = errors.New("pagebuf: buffer is closed")

// Config aggregates the construction-time settings from spec §6.
type Config struct {
	PageSize            int64
	MaxLoadedPages      int
	MergeTimeWindow     time.Duration
	MergeDistanceWindow int64
	MaxUndoLevels       int
}

// Buffer is the single-writer, cooperatively-scheduled facade described in
// spec §5: every mutator serializes on mu, and data flows client call ->
// LMM (mark capture) -> VPM (byte mutation) -> Undo (recording).
type Buffer struct {
	mu sync.Mutex

	vp   *vpm.Manager
	lmm  *marks.Manager
	undo *undo.Manager

	closed bool
}

// New constructs a Buffer backed by pageStore.
func New(cfg Config, pageStore store.PageStore) *Buffer {
	vp := vpm.NewManager(vpm.Config{PageSize: cfg.PageSize, MaxLoadedPages: cfg.MaxLoadedPages}, pageStore)
	lmm := marks.NewManager(vp)
	um := undo.NewManager(undo.Config{
		MergeTimeWindow:     cfg.MergeTimeWindow,
		MergeDistanceWindow: cfg.MergeDistanceWindow,
		MaxUndoLevels:       cfg.MaxUndoLevels,
	}, vp)
	return &Buffer{vp: vp, lmm: lmm, undo: um}
}

func (b *Buffer) ensureOpen() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the buffer unusable for further calls. It does not flush or
// release pages — the injected PageStore owns that lifecycle.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// LoadContent resets the buffer to data.
func (b *Buffer) LoadContent(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return err
	}
	b.lmm.ClearAllMarks()
	return b.vp.LoadContent(data)
}

// ReadRange returns the byte range [start, end).
func (b *Buffer) ReadRange(start, end int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	return b.lmm.GetBytesWithMarks(start, end)
}

// InsertBytes inserts data at addr, recording the operation for undo.
func (b *Buffer) InsertBytes(addr int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if err := b.lmm.InsertBytesWithMarks(addr, data); err != nil {
		return err
	}
	return b.undo.Record(undo.NewInsertOperation(addr, data))
}

// DeleteBytes deletes [start, end), recording the operation for undo, and
// returns the deleted bytes.
func (b *Buffer) DeleteBytes(start, end int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	removed, err := b.lmm.DeleteBytesWithMarks(start, end)
	if err != nil {
		return nil, err
	}
	if err := b.undo.Record(undo.NewDeleteOperation(start, removed)); err != nil {
		return removed, err
	}
	return removed, nil
}

// OverwriteBytes replaces the bytes at [addr, addr+len(data)) with data,
// recording the operation for undo, and returns the overwritten bytes.
func (b *Buffer) OverwriteBytes(addr int64, data []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	removed, err := b.lmm.OverwriteBytesWithMarks(addr, data)
	if err != nil {
		return nil, err
	}
	if err := b.undo.Record(undo.NewOverwriteOperation(addr, data, removed)); err != nil {
		return removed, err
	}
	return removed, nil
}

// GetTotalSize returns the buffer's current size in bytes.
func (b *Buffer) GetTotalSize() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vp.GetTotalSize()
}

// GetMemoryStats reports page residency counters.
func (b *Buffer) GetMemoryStats() vpm.MemStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vp.GetMemoryStats()
}

// SetMark sets a named mark at addr.
func (b *Buffer) SetMark(name string, addr int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.lmm.SetMark(name, addr)
}

// GetMark resolves a named mark to its current address.
func (b *Buffer) GetMark(name string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lmm.GetMark(name)
}

// RemoveMark deletes a named mark.
func (b *Buffer) RemoveMark(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lmm.RemoveMark(name)
}

// GetAllMarks returns every resolvable mark sorted by address.
func (b *Buffer) GetAllMarks() []marks.NamedAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lmm.GetAllMarks()
}

// Undo reverses the most recently recorded (coalesced) operation group.
func (b *Buffer) Undo() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return false, err
	}
	return b.undo.Undo()
}

// Redo reapplies the most recently undone operation group.
func (b *Buffer) Redo() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return false, err
	}
	return b.undo.Redo()
}

// CanUndo reports whether Undo would change the buffer.
func (b *Buffer) CanUndo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.undo.CanUndo()
}

// CanRedo reports whether Redo would change the buffer.
func (b *Buffer) CanRedo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.undo.CanRedo()
}

// UndoStats reports the undo log's stack depths and counters.
func (b *Buffer) UndoStats() undo.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.undo.GetStats()
}

// GetTotalLineCount returns the buffer's line count and whether it is
// exact (every touched page was resident).
func (b *Buffer) GetTotalLineCount() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lmm.GetTotalLineCount()
}

// GetLineInfo returns the byte span of the n-th line (1-indexed).
func (b *Buffer) GetLineInfo(n int) (marks.LineInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lmm.GetLineInfo(n)
}
