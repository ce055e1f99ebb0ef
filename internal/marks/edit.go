package marks

import "log/slog"

// applyContentEdit captures every mark's current address, runs mutate
// (which performs the VPM-level structural change and may itself fire
// split/merge events that the registry reacts to), then recomputes each
// captured mark's post-edit address from the table in spec §4.2 and pins it
// there. Capturing before and reapplying after — rather than adjusting
// marks incrementally as the edit progresses — avoids double-counting a
// shift that the split/merge reaction already applied mid-mutation (spec
// §9 Open Question).
func (m *Manager) applyContentEdit(vStart, vEnd, insertedBytes int64, mutate func() error) error {
	type captured struct {
		name string
		addr int64
	}
	var before []captured
	for name := range m.marks {
		if addr, ok := m.resolve(name); ok {
			before = append(before, captured{name: name, addr: addr})
		}
	}

	if err := mutate(); err != nil {
		return err
	}

	for _, c := range before {
		newAddr := adjustAddress(c.addr, vStart, vEnd, insertedBytes)
		d, offset, err := m.vp.Locate(newAddr)
		if err != nil {
			slog.Warn(logPrefix+"applyContentEdit: mark left stale", "name", c.name, "addr", newAddr, "err", err)
			continue
		}
		m.setRaw(c.name, d.PageKey, offset)
	}
	return nil
}

// adjustAddress maps a pre-edit address p through an edit of
// [vStart, vEnd) replaced by insertedBytes bytes, per the mark-adjustment
// table: addresses before the edit are untouched, addresses at vStart stay
// pinned there, addresses strictly inside the deleted span consolidate to
// vStart, and addresses at or past vEnd shift by the net length change.
func adjustAddress(p, vStart, vEnd, insertedBytes int64) int64 {
	switch {
	case p < vStart:
		return p
	case p == vStart:
		return p
	case p < vEnd:
		return vStart
	default:
		return p + insertedBytes - (vEnd - vStart)
	}
}

// GetBytesWithMarks is a pure read; it needs no mark adjustment.
func (m *Manager) GetBytesWithMarks(start, end int64) ([]byte, error) {
	return m.vp.ReadRange(start, end)
}

// InsertBytesWithMarks inserts data at addr and shifts every mark strictly
// past addr forward by len(data); a mark exactly at addr stays there
// (spec §4.2, §8 scenario 3).
func (m *Manager) InsertBytesWithMarks(addr int64, data []byte) error {
	return m.applyContentEdit(addr, addr, int64(len(data)), func() error {
		return m.vp.InsertAt(addr, data)
	})
}

// DeleteBytesWithMarks deletes [start, end), consolidating any mark
// strictly inside the range to start and shifting marks at or past end
// back by (end - start) (spec §4.2, §8 scenario 4). It returns the deleted
// bytes.
func (m *Manager) DeleteBytesWithMarks(start, end int64) ([]byte, error) {
	var removed []byte
	err := m.applyContentEdit(start, end, 0, func() error {
		var err error
		removed, err = m.vp.DeleteRange(start, end)
		return err
	})
	return removed, err
}

// OverwriteBytesWithMarks replaces the bytes at [addr, addr+len(data))
// (clamped to the buffer's current end) with data, applying the same
// mark-adjustment table as a delete-then-insert of that span. It returns
// the bytes that were overwritten.
func (m *Manager) OverwriteBytesWithMarks(addr int64, data []byte) ([]byte, error) {
	total := m.vp.GetTotalSize()
	end := addr + int64(len(data))
	if end > total {
		end = total
	}
	var removed []byte
	err := m.applyContentEdit(addr, end, int64(len(data)), func() error {
		var err error
		removed, err = m.vp.OverwriteAt(addr, data)
		return err
	})
	return removed, err
}
