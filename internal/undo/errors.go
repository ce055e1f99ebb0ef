package undo

import "errors"

// ErrUndoDisabled is returned by Undo/Redo/Record when the manager has
// been disabled (spec §7 "UndoDisabled").
var ErrUndoDisabled = errors.New("undo: disabled")
