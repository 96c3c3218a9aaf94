// Package livequery keeps the materialized, sectioned result of a tracker
// query and reports each change as an ordered batch of structural edits.
package livequery

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/query"
)

// Snapshot is one materialized query result.
type Snapshot struct {
	Sections []query.Section `json:"sections"`
}

// RowCount returns the number of rows across all sections.
func (s Snapshot) RowCount() int {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Rows)
	}
	return n
}

// Row returns the row at p.
func (s Snapshot) Row(p Path) query.Row {
	return s.Sections[p.Section].Rows[p.Row]
}

// Path addresses a row inside a snapshot.
type Path struct {
	Section int `json:"section"`
	Row     int `json:"row"`
}

func (p Path) String() string {
	return fmt.Sprintf("[%d,%d]", p.Section, p.Row)
}

func (p Path) less(o Path) bool {
	if p.Section != o.Section {
		return p.Section < o.Section
	}
	return p.Row < o.Row
}

// EditKind is the type of a structural edit.
type EditKind int

const (
	SectionInserted EditKind = iota + 1
	SectionDeleted
	Inserted
	Deleted
	Updated
	Moved
)

var editKindNames = map[EditKind]string{
	SectionInserted: "section_inserted",
	SectionDeleted:  "section_deleted",
	Inserted:        "inserted",
	Deleted:         "deleted",
	Updated:         "updated",
	Moved:           "moved",
}

func (k EditKind) String() string {
	if name, ok := editKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EditKind(%d)", int(k))
}

// MarshalJSON encodes the kind by name.
func (k EditKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Edit is one structural change. Section edits use Section. Row deletes use
// From (old snapshot), inserts use To (new snapshot), updates and moves carry
// both. Changed is set on a move whose row content also changed.
type Edit struct {
	Kind    EditKind  `json:"kind"`
	Section int       `json:"section,omitempty"`
	From    Path      `json:"from"`
	To      Path      `json:"to"`
	ID      uuid.UUID `json:"id"`
	Changed bool      `json:"changed,omitempty"`
}

func (e Edit) String() string {
	switch e.Kind {
	case SectionInserted, SectionDeleted:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Section)
	case Inserted:
		return fmt.Sprintf("%s(%s)", e.Kind, e.To)
	case Deleted:
		return fmt.Sprintf("%s(%s)", e.Kind, e.From)
	default:
		return fmt.Sprintf("%s(%s->%s)", e.Kind, e.From, e.To)
	}
}

// Diff computes the edits that transform before into after. Rows are matched by
// tracker id and sections by key. Within a section kept on both sides only
// rows outside the longest common subsequence are reported as moved.
//
// Edits are ordered: row deletes (descending old path), section deletes
// (descending), section inserts (ascending), row inserts (ascending new
// path), moves (ascending new path), updates (ascending old path).
func Diff(before, after Snapshot) []Edit {
	oldKeys := sectionKeys(before)
	newKeys := sectionKeys(after)

	// sectionPair maps an old section index to its kept new index.
	sectionPair := make(map[int]int)
	newKept := make(map[int]bool)
	for _, p := range lcs(oldKeys, newKeys) {
		sectionPair[p.a] = p.b
		newKept[p.b] = true
	}

	oldPos := rowPositions(before)
	newPos := rowPositions(after)

	var rowDeletes, rowInserts, moves, updates []Edit
	var sectionDeletes, sectionInserts []Edit

	for i := range before.Sections {
		if _, ok := sectionPair[i]; !ok {
			sectionDeletes = append(sectionDeletes, Edit{Kind: SectionDeleted, Section: i})
		}
	}
	for j := range after.Sections {
		if !newKept[j] {
			sectionInserts = append(sectionInserts, Edit{Kind: SectionInserted, Section: j})
		}
	}

	for i, sec := range before.Sections {
		for r, row := range sec.Rows {
			from := Path{Section: i, Row: r}
			to, ok := newPos[row.Tracker.ID]
			if !ok {
				rowDeletes = append(rowDeletes, Edit{Kind: Deleted, From: from, ID: row.Tracker.ID})
				continue
			}
			if j, kept := sectionPair[i]; !kept || j != to.Section {
				moves = append(moves, moveEdit(before, after, from, to))
			}
		}
	}
	for j, sec := range after.Sections {
		for r, row := range sec.Rows {
			if _, ok := oldPos[row.Tracker.ID]; !ok {
				rowInserts = append(rowInserts, Edit{Kind: Inserted, To: Path{Section: j, Row: r}, ID: row.Tracker.ID})
			}
		}
	}

	// Rows staying inside a kept section: stable ones may be updated, the rest moved.
	for i, j := range sectionPair {
		var oldIDs, newIDs []uuid.UUID
		for _, row := range before.Sections[i].Rows {
			if to, ok := newPos[row.Tracker.ID]; ok && to.Section == j {
				oldIDs = append(oldIDs, row.Tracker.ID)
			}
		}
		for _, row := range after.Sections[j].Rows {
			if from, ok := oldPos[row.Tracker.ID]; ok && from.Section == i {
				newIDs = append(newIDs, row.Tracker.ID)
			}
		}
		stable := make(map[uuid.UUID]bool)
		for _, p := range lcs(oldIDs, newIDs) {
			stable[oldIDs[p.a]] = true
		}
		for _, id := range oldIDs {
			from, to := oldPos[id], newPos[id]
			if !stable[id] {
				moves = append(moves, moveEdit(before, after, from, to))
				continue
			}
			if !before.Row(from).Equal(after.Row(to)) {
				updates = append(updates, Edit{Kind: Updated, From: from, To: to, ID: id})
			}
		}
	}

	sort.Slice(rowDeletes, func(a, b int) bool { return rowDeletes[b].From.less(rowDeletes[a].From) })
	sort.Slice(sectionDeletes, func(a, b int) bool { return sectionDeletes[a].Section > sectionDeletes[b].Section })
	sort.Slice(sectionInserts, func(a, b int) bool { return sectionInserts[a].Section < sectionInserts[b].Section })
	sort.Slice(rowInserts, func(a, b int) bool { return rowInserts[a].To.less(rowInserts[b].To) })
	sort.Slice(moves, func(a, b int) bool { return moves[a].To.less(moves[b].To) })
	sort.Slice(updates, func(a, b int) bool { return updates[a].From.less(updates[b].From) })

	edits := make([]Edit, 0, len(rowDeletes)+len(sectionDeletes)+len(sectionInserts)+len(rowInserts)+len(moves)+len(updates))
	edits = append(edits, rowDeletes...)
	edits = append(edits, sectionDeletes...)
	edits = append(edits, sectionInserts...)
	edits = append(edits, rowInserts...)
	edits = append(edits, moves...)
	edits = append(edits, updates...)
	return edits
}

func moveEdit(before, after Snapshot, from, to Path) Edit {
	return Edit{
		Kind:    Moved,
		From:    from,
		To:      to,
		ID:      before.Row(from).Tracker.ID,
		Changed: !before.Row(from).Equal(after.Row(to)),
	}
}

func sectionKeys(s Snapshot) []string {
	keys := make([]string, len(s.Sections))
	for i, sec := range s.Sections {
		keys[i] = sec.Key
	}
	return keys
}

func rowPositions(s Snapshot) map[uuid.UUID]Path {
	pos := make(map[uuid.UUID]Path, s.RowCount())
	for i, sec := range s.Sections {
		for r, row := range sec.Rows {
			pos[row.Tracker.ID] = Path{Section: i, Row: r}
		}
	}
	return pos
}

type pair struct{ a, b int }

// lcs returns index pairs of a longest common subsequence of a and b.
func lcs[T comparable](a, b []T) []pair {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}
	// table[i][j] is the LCS length of a[i:] and b[j:].
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				table[i][j] = table[i+1][j+1] + 1
			case table[i+1][j] >= table[i][j+1]:
				table[i][j] = table[i+1][j]
			default:
				table[i][j] = table[i][j+1]
			}
		}
	}
	out := make([]pair, 0, table[0][0])
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case a[i] == b[j]:
			out = append(out, pair{i, j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}
