// Package marks implements the Line & Marks Manager (LMM): named marks kept
// in page-relative coordinates plus line-number queries over cached
// per-page newline tables (spec §4.2).
package marks

import (
	"log/slog"
	"sort"

	"github.com/tuannm99/pagebuf/internal/vpm"
)

const logPrefix = "marks: "

// Mark is a named position stored as (pageKey, offset) rather than a
// virtual address (spec §3), so content edits on other pages leave it
// untouched.
type Mark struct {
	PageKey string
	Offset  int64
}

// NamedAddr is a mark resolved to its current virtual address.
type NamedAddr struct {
	Name string
	Addr int64
}

// Manager mediates between named marks and the VPM. It owns the mark
// registry and never touches page bytes directly — only through the VPM's
// public surface and the structural-event callbacks it subscribes to
// (spec §3 "Ownership and lifecycles").
type Manager struct {
	vp *vpm.Manager

	marks  map[string]Mark
	byPage map[string]map[string]struct{}
}

// NewManager wires a fresh mark registry to vp's split/merge events.
func NewManager(vp *vpm.Manager) *Manager {
	m := &Manager{
		vp:     vp,
		marks:  make(map[string]Mark),
		byPage: make(map[string]map[string]struct{}),
	}
	vp.OnSplit(m.onSplit)
	vp.OnMerge(m.onMerge)
	return m
}

func (m *Manager) addToPageIndex(name, pageKey string) {
	set, ok := m.byPage[pageKey]
	if !ok {
		set = make(map[string]struct{})
		m.byPage[pageKey] = set
	}
	set[name] = struct{}{}
}

func (m *Manager) removeFromPageIndex(name, pageKey string) {
	set, ok := m.byPage[pageKey]
	if !ok {
		return
	}
	delete(set, name)
	if len(set) == 0 {
		delete(m.byPage, pageKey)
	}
}

func (m *Manager) setRaw(name, pageKey string, offset int64) {
	if old, ok := m.marks[name]; ok {
		m.removeFromPageIndex(name, old.PageKey)
	}
	m.marks[name] = Mark{PageKey: pageKey, Offset: offset}
	m.addToPageIndex(name, pageKey)
}

// resolve returns the current virtual address of name, or false if the
// mark is unset or its page has vanished (an orphaned mark, spec §7).
func (m *Manager) resolve(name string) (int64, bool) {
	mk, ok := m.marks[name]
	if !ok {
		return 0, false
	}
	d, ok := m.vp.DescriptorByKey(mk.PageKey)
	if !ok {
		return 0, false
	}
	return d.VirtualStart + mk.Offset, true
}

// SetMark translates addr to (pageKey, offset) via the Address Index and
// stores it, replacing any prior value under name (spec §4.2).
func (m *Manager) SetMark(name string, addr int64) error {
	d, offset, err := m.vp.Locate(addr)
	if err != nil {
		return err
	}
	m.setRaw(name, d.PageKey, offset)
	return nil
}

// GetMark translates the stored mark back to a virtual address. ok is
// false both when the mark is unset and when it is orphaned (its page no
// longer exists) — orphaned marks are reported but not yet reclaimed
// (spec §4.2, §7).
func (m *Manager) GetMark(name string) (addr int64, ok bool) {
	return m.resolve(name)
}

// RemoveMark deletes name from the registry, if present.
func (m *Manager) RemoveMark(name string) {
	mk, ok := m.marks[name]
	if !ok {
		return
	}
	delete(m.marks, name)
	m.removeFromPageIndex(name, mk.PageKey)
}

// GetAllMarks returns every resolvable mark sorted by address.
func (m *Manager) GetAllMarks() []NamedAddr {
	out := make([]NamedAddr, 0, len(m.marks))
	for name := range m.marks {
		if addr, ok := m.resolve(name); ok {
			out = append(out, NamedAddr{Name: name, Addr: addr})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// GetMarksInRange returns resolvable marks with addr in [start, end).
func (m *Manager) GetMarksInRange(start, end int64) []NamedAddr {
	all := m.GetAllMarks()
	out := all[:0:0]
	for _, na := range all {
		if na.Addr >= start && na.Addr < end {
			out = append(out, na)
		}
	}
	return out
}

// GetMarksInDeletedContent reports marks strictly inside (start, end) —
// the region that a pending delete will consolidate — as
// (name, offsetRelativeToStart) tuples, without removing them. This lets a
// "cut" re-paste marks elsewhere after the delete has consolidated them to
// start (spec §4.2 "Extraction semantics").
func (m *Manager) GetMarksInDeletedContent(start, end int64) []NamedAddr {
	var out []NamedAddr
	for name := range m.marks {
		addr, ok := m.resolve(name)
		if !ok {
			continue
		}
		if addr > start && addr < end {
			out = append(out, NamedAddr{Name: name, Addr: addr - start})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// RemoveMarksFromRange truly deletes (rather than consolidates) every mark
// strictly inside (start, end).
func (m *Manager) RemoveMarksFromRange(start, end int64) {
	var doomed []string
	for name := range m.marks {
		addr, ok := m.resolve(name)
		if ok && addr > start && addr < end {
			doomed = append(doomed, name)
		}
	}
	for _, name := range doomed {
		m.RemoveMark(name)
	}
}

// InsertMarksFromRelative sets each (name, rel) to addr+rel (spec §4.2).
func (m *Manager) InsertMarksFromRelative(addr int64, rels []NamedAddr) error {
	for _, r := range rels {
		if err := m.SetMark(r.Name, addr+r.Addr); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllMarks drops every mark from the registry.
func (m *Manager) ClearAllMarks() {
	m.marks = make(map[string]Mark)
	m.byPage = make(map[string]map[string]struct{})
}

// GetAllMarksForPersistence returns name -> virtual address, matching the
// persisted mark format in spec §6.
func (m *Manager) GetAllMarksForPersistence() map[string]int64 {
	out := make(map[string]int64, len(m.marks))
	for _, na := range m.GetAllMarks() {
		out[na.Name] = na.Addr
	}
	return out
}

// SetMarksFromPersistence loads marks from a persisted name -> address
// mapping. Entries with a negative address are silently dropped (spec §6);
// entries that fail to resolve against the current buffer are skipped too
// (logged, not fatal, per spec §7).
func (m *Manager) SetMarksFromPersistence(data map[string]int64) {
	for name, addr := range data {
		if addr < 0 {
			continue
		}
		if err := m.SetMark(name, addr); err != nil {
			slog.Warn(logPrefix+"SetMarksFromPersistence: dropping mark", "name", name, "addr", addr, "err", err)
		}
	}
}

// ValidateAndCleanupMarks scans every mark; if its page has vanished the
// mark is removed, and if its offset exceeds the page's current size it is
// moved to the start of the next page (or clamped to the page end if there
// is none) (spec §4.2).
func (m *Manager) ValidateAndCleanupMarks() {
	names := make([]string, 0, len(m.marks))
	for name := range m.marks {
		names = append(names, name)
	}
	for _, name := range names {
		mk := m.marks[name]
		d, ok := m.vp.DescriptorByKey(mk.PageKey)
		if !ok {
			m.RemoveMark(name)
			continue
		}
		if mk.Offset < 0 || mk.Offset > d.VirtualSize {
			if nextKey, ok := m.vp.NextPageKey(mk.PageKey); ok {
				m.setRaw(name, nextKey, 0)
			} else {
				m.setRaw(name, mk.PageKey, d.VirtualSize)
			}
		}
	}
}

func (m *Manager) onSplit(e vpm.SplitEvent) {
	names, ok := m.byPage[e.OrigKey]
	if !ok {
		return
	}
	affected := make([]string, 0, len(names))
	for name := range names {
		affected = append(affected, name)
	}
	for _, name := range affected {
		mk := m.marks[name]
		if mk.PageKey != e.OrigKey || mk.Offset < e.SplitOffset {
			continue
		}
		m.setRaw(name, e.NewKey, mk.Offset-e.SplitOffset)
	}
}

func (m *Manager) onMerge(e vpm.MergeEvent) {
	names, ok := m.byPage[e.AbsorbedKey]
	if !ok {
		return
	}
	affected := make([]string, 0, len(names))
	for name := range names {
		affected = append(affected, name)
	}
	for _, name := range affected {
		mk := m.marks[name]
		if mk.PageKey != e.AbsorbedKey {
			continue
		}
		m.setRaw(name, e.TargetKey, e.LeftSize+mk.Offset)
	}
}
