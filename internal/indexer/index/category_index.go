// Package index holds the category index: normalized category label to the
// ordered row positions carrying it.
package index

import "sort"

// Positions are row indices into a snapshot, in ascending order.
type Positions []int

// CategoryIndex is immutable once built; it is replaced wholesale with each
// snapshot.
type CategoryIndex struct {
	positions map[string]Positions
	indexed   int
	rows      int
}

// Builder accumulates positions while a scan is in progress. It is not safe
// for concurrent use and must not be read until Finish.
type Builder struct {
	positions map[string]Positions
	indexed   int
	rows      int
}

// NewBuilder returns a Builder for a snapshot with rows rows.
func NewBuilder(rows int) *Builder {
	return &Builder{positions: make(map[string]Positions), rows: rows}
}

// Add appends pos under label. Empty labels are ignored.
func (b *Builder) Add(label string, pos int) {
	if label == "" {
		return
	}
	b.positions[label] = append(b.positions[label], pos)
	b.indexed++
}

// Finish freezes the builder into a CategoryIndex.
func (b *Builder) Finish() *CategoryIndex {
	idx := &CategoryIndex{positions: b.positions, indexed: b.indexed, rows: b.rows}
	b.positions = nil
	return idx
}

// Empty returns an index with no categories.
func Empty() *CategoryIndex {
	return &CategoryIndex{positions: map[string]Positions{}}
}

// Lookup returns the positions for category, nil when unknown. The returned
// slice must not be modified.
func (c *CategoryIndex) Lookup(category string) Positions {
	if c == nil {
		return nil
	}
	return c.positions[category]
}

// Categories returns the distinct labels in byte order.
func (c *CategoryIndex) Categories() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.positions))
	for label := range c.positions {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct categories.
func (c *CategoryIndex) Len() int {
	if c == nil {
		return 0
	}
	return len(c.positions)
}

// Indexed returns how many rows carry a non-empty label.
func (c *CategoryIndex) Indexed() int {
	if c == nil {
		return 0
	}
	return c.indexed
}

// Rows returns the row count of the snapshot the index was built from.
func (c *CategoryIndex) Rows() int {
	if c == nil {
		return 0
	}
	return c.rows
}
