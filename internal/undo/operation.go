// Package undo implements the Undo System: an append-only log of buffer
// operations with time-and-distance-based coalescing and undo/redo replay
// through the Virtual Page Manager (spec §4.3).
package undo

import "time"

// Kind tags which of the three mutators produced an Operation.
type Kind int

const (
	Insert Kind = iota
	Delete
	Overwrite
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Overwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// Operation is one recorded buffer mutation (spec §3 "Operation").
type Operation struct {
	Kind Kind

	PreExecutionPosition  int64
	PostExecutionPosition int64

	// Data is the bytes written by an insert or overwrite; nil for a delete.
	Data []byte
	// OriginalData is the bytes removed by a delete or overwrite; nil for
	// a pure insert.
	OriginalData []byte

	OperationNumber uint64
	Timestamp       time.Time
}

// NewInsertOperation records data inserted at addr. Output begins exactly
// where the call was made, so PostExecutionPosition == PreExecutionPosition.
func NewInsertOperation(addr int64, data []byte) Operation {
	return Operation{Kind: Insert, PreExecutionPosition: addr, PostExecutionPosition: addr, Data: append([]byte(nil), data...)}
}

// NewDeleteOperation records originalData removed starting at addr.
func NewDeleteOperation(addr int64, originalData []byte) Operation {
	return Operation{Kind: Delete, PreExecutionPosition: addr, PostExecutionPosition: addr, OriginalData: append([]byte(nil), originalData...)}
}

// NewOverwriteOperation records data written over originalData at addr.
func NewOverwriteOperation(addr int64, data, originalData []byte) Operation {
	return Operation{
		Kind:                  Overwrite,
		PreExecutionPosition:  addr,
		PostExecutionPosition: addr,
		Data:                  append([]byte(nil), data...),
		OriginalData:          append([]byte(nil), originalData...),
	}
}

// mergeableKinds reports whether a and b belong to the same mergeable
// family (insert-insert, delete-delete, overwrite-overwrite); spec §4.3.
func mergeableKinds(a, b Kind) bool { return a == b }

// footprintF returns F's post-execution footprint: a point for delete and
// overwrite, or [start, start+len(Data)) for an insert (spec §4.3 "Logical
// distance" — only an insert's added content extends the span forward).
func footprintF(f Operation) (start, end int64) {
	start = f.PostExecutionPosition
	end = start
	if f.Kind == Insert {
		end += int64(len(f.Data))
	}
	return start, end
}

// footprintS returns S's own call-time span: [pre, pre+len) where len is
// the length of whatever S removes (delete/overwrite) or writes (insert).
func footprintS(s Operation) (start, end int64) {
	start = s.PreExecutionPosition
	length := int64(len(s.Data))
	if s.Kind == Delete || s.Kind == Overwrite {
		length = int64(len(s.OriginalData))
	}
	return start, start + length
}

// LogicalDistance is the spatial gap between F (the earlier-executed
// operation, by OperationNumber) and S, per spec §4.3. It is 0 if the
// footprints touch or overlap. Calling with arguments in either
// chronological order yields the same result — the pair is swapped first
// so the earlier operation is always treated as F.
func LogicalDistance(a, b Operation) int64 {
	f, s := a, b
	if b.OperationNumber < a.OperationNumber {
		f, s = b, a
	}
	fStart, fEnd := footprintF(f)
	sStart, sEnd := footprintS(s)

	if fStart <= sEnd && sStart <= fEnd {
		return 0
	}
	if sStart > fEnd {
		return sStart - fEnd
	}
	return fStart - sEnd
}
