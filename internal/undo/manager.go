package undo

import (
	"log/slog"
	"time"
)

const (
	// DefaultMergeTimeWindow matches spec §6's default of 15 seconds.
	DefaultMergeTimeWindow = 15 * time.Second

	logPrefix = "undo: "
)

// Target is the minimal VPM surface the Undo System replays through. It
// never touches page bytes itself (spec §3 "Undo System ... never mutates
// the buffer directly — it replays through the VPM").
type Target interface {
	InsertAt(addr int64, data []byte) error
	DeleteRange(start, end int64) ([]byte, error)
	OverwriteAt(addr int64, data []byte) ([]byte, error)
}

// Config configures coalescing and depth limits (spec §4.3, §6).
type Config struct {
	MergeTimeWindow     time.Duration
	MergeDistanceWindow int64
	MaxUndoLevels       int // 0 means unbounded
}

// Stats reports the counters exposed by getStats (spec §6).
type Stats struct {
	UndoDepth           int
	RedoDepth           int
	LastOperationNumber uint64
	MergedCount         int
}

// group is one undo-stack entry: one or more operations coalesced together
// by Record. Coalesced operations keep their individual inversion data —
// only the stack bookkeeping treats them as a single step — so undo/redo
// replay each sub-operation exactly rather than reconstructing an
// approximate combined byte blob.
type group struct {
	ops []Operation
}

// Manager is the Undo System.
type Manager struct {
	target Target
	cfg    Config

	enabled bool

	undoStack []group
	redoStack []group

	nextOpNumber uint64
	mergedCount  int
}

// NewManager constructs an enabled Manager replaying through target.
func NewManager(cfg Config, target Target) *Manager {
	if cfg.MergeTimeWindow <= 0 {
		cfg.MergeTimeWindow = DefaultMergeTimeWindow
	}
	return &Manager{target: target, cfg: cfg, enabled: true}
}

// Enable turns recording and undo/redo back on.
func (m *Manager) Enable() { m.enabled = true }

// Disable turns off recording and undo/redo; Record, Undo, and Redo all
// return ErrUndoDisabled until Enable is called again.
func (m *Manager) Disable() { m.enabled = false }

func (m *Manager) Enabled() bool { return m.enabled }

// CanUndo reports whether Undo would pop an entry.
func (m *Manager) CanUndo() bool { return len(m.undoStack) > 0 }

// CanRedo reports whether Redo would pop an entry.
func (m *Manager) CanRedo() bool { return len(m.redoStack) > 0 }

// Record appends op to the undo log, merging it into the top-of-stack
// group when mergeable (spec §4.3 "Merging"), and clears the redo stack —
// every fresh recording invalidates it.
func (m *Manager) Record(op Operation) error {
	if !m.enabled {
		return ErrUndoDisabled
	}

	m.nextOpNumber++
	op.OperationNumber = m.nextOpNumber
	op.Timestamp = time.Now()

	m.redoStack = nil

	if n := len(m.undoStack); n > 0 {
		top := &m.undoStack[n-1]
		last := top.ops[len(top.ops)-1]
		if m.mergeable(last, op) {
			top.ops = append(top.ops, op)
			m.mergedCount++
			return nil
		}
	}

	m.undoStack = append(m.undoStack, group{ops: []Operation{op}})
	m.enforceMaxLevels()
	return nil
}

func (m *Manager) mergeable(top, candidate Operation) bool {
	if !mergeableKinds(top.Kind, candidate.Kind) {
		return false
	}
	if candidate.Timestamp.Sub(top.Timestamp) > m.cfg.MergeTimeWindow {
		return false
	}
	return LogicalDistance(top, candidate) <= m.cfg.MergeDistanceWindow
}

func (m *Manager) enforceMaxLevels() {
	if m.cfg.MaxUndoLevels <= 0 {
		return
	}
	if over := len(m.undoStack) - m.cfg.MaxUndoLevels; over > 0 {
		m.undoStack = m.undoStack[over:]
	}
}

// Undo pops the top group and inverts its operations in reverse
// chronological order, restoring the buffer to its pre-group state, then
// pushes the group onto the redo stack (spec §4.3 "Undo/redo").
func (m *Manager) Undo() (bool, error) {
	if !m.enabled {
		return false, ErrUndoDisabled
	}
	if len(m.undoStack) == 0 {
		return false, nil
	}

	g := m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]

	for i := len(g.ops) - 1; i >= 0; i-- {
		if err := m.invert(g.ops[i]); err != nil {
			m.undoStack = append(m.undoStack, g)
			return false, err
		}
	}

	m.redoStack = append(m.redoStack, g)
	return true, nil
}

// Redo pops the top redo group and replays its operations in their
// original forward order.
func (m *Manager) Redo() (bool, error) {
	if !m.enabled {
		return false, ErrUndoDisabled
	}
	if len(m.redoStack) == 0 {
		return false, nil
	}

	g := m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]

	for _, op := range g.ops {
		if err := m.apply(op); err != nil {
			m.redoStack = append(m.redoStack, g)
			return false, err
		}
	}

	m.undoStack = append(m.undoStack, g)
	return true, nil
}

func (m *Manager) invert(op Operation) error {
	switch op.Kind {
	case Insert:
		_, err := m.target.DeleteRange(op.PostExecutionPosition, op.PostExecutionPosition+int64(len(op.Data)))
		return err
	case Delete:
		return m.target.InsertAt(op.PreExecutionPosition, op.OriginalData)
	case Overwrite:
		// Reverse both sides separately (spec §4.3): undo the insert side by
		// deleting exactly what the forward write wrote, then undo the delete
		// side by reinstating the original bytes. Delegating to OverwriteAt
		// here would pass a replacement of the wrong length whenever the
		// forward write extended the buffer (len(Data) != len(OriginalData)).
		if _, err := m.target.DeleteRange(op.PostExecutionPosition, op.PostExecutionPosition+int64(len(op.Data))); err != nil {
			return err
		}
		return m.target.InsertAt(op.PreExecutionPosition, op.OriginalData)
	default:
		slog.Warn(logPrefix+"invert: unknown operation kind", "kind", op.Kind)
		return nil
	}
}

func (m *Manager) apply(op Operation) error {
	switch op.Kind {
	case Insert:
		return m.target.InsertAt(op.PreExecutionPosition, op.Data)
	case Delete:
		_, err := m.target.DeleteRange(op.PreExecutionPosition, op.PreExecutionPosition+int64(len(op.OriginalData)))
		return err
	case Overwrite:
		_, err := m.target.OverwriteAt(op.PreExecutionPosition, op.Data)
		return err
	default:
		slog.Warn(logPrefix+"apply: unknown operation kind", "kind", op.Kind)
		return nil
	}
}

// GetStats reports stack depths and counters (spec §6).
func (m *Manager) GetStats() Stats {
	return Stats{
		UndoDepth:           len(m.undoStack),
		RedoDepth:           len(m.redoStack),
		LastOperationNumber: m.nextOpNumber,
		MergedCount:         m.mergedCount,
	}
}
