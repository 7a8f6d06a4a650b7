package gtfsgeneral

import (
	"sort"
	"strings"
)

// Table is one GTFS file held in memory: the header row plus the data rows in
// input order. Values are kept as the raw CSV text so that columns this tool
// knows nothing about survive a filter run byte-for-byte.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string

	cols map[string]int
}

func NewTable(name string, header []string) *Table {
	cols := make(map[string]int, len(header))
	for i, col := range header {
		if _, ok := cols[col]; !ok {
			cols[col] = i
		}
	}
	return &Table{Name: name, Header: header, cols: cols}
}

// Col returns the index of the named column, or -1.
func (t *Table) Col(name string) int {
	i, ok := t.cols[name]
	if !ok {
		return -1
	}
	return i
}

// Field returns row[col] for the named column, or "" when the column is
// absent or the row is short.
func (t *Table) Field(row []string, col string) string {
	i := t.Col(col)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func (t *Table) Len() int { return len(t.Rows) }

// empty returns a survivor table with the same name and header and no rows.
func (t *Table) empty() *Table {
	return NewTable(t.Name, t.Header)
}

// requireColumns fails with SchemaError on the first listed column the table
// does not carry.
func (t *Table) requireColumns(cols ...string) error {
	for _, col := range cols {
		if t.Col(col) < 0 {
			return &SchemaError{Table: t.Name, Column: col}
		}
	}
	return nil
}

const keySep = "\x1f"

// key builds the primary-key string of a row per the table's schema.
func (t *Table) key(row []string, keyCols []string) string {
	if len(keyCols) == 1 {
		return t.Field(row, keyCols[0])
	}
	parts := make([]string, len(keyCols))
	for i, col := range keyCols {
		parts[i] = t.Field(row, col)
	}
	return strings.Join(parts, keySep)
}

// Feed is the typed in-memory representation of a GTFS dataset. Input feeds
// are immutable for the duration of a filter run; filtering builds a new Feed.
type Feed struct {
	tables map[string]*Table
	// indexes maps table name -> primary key -> row position, built lazily.
	indexes map[string]map[string]int
}

// NewFeed builds a Feed from named tables, checking that every table required
// by the filter operations is present with its required columns. The
// calendar/calendar_dates pair is conditionally required: at least one of the
// two must exist.
func NewFeed(tables map[string]*Table) (*Feed, error) {
	f := &Feed{tables: tables, indexes: make(map[string]map[string]int)}
	for _, name := range requiredTables {
		t, ok := tables[name]
		if !ok {
			return nil, &SchemaError{Table: name}
		}
		if err := t.requireColumns(gtfsSchema[name].Required...); err != nil {
			return nil, err
		}
	}
	if _, ok := tables["calendar"]; !ok {
		if _, ok := tables["calendar_dates"]; !ok {
			return nil, &SchemaError{Table: "calendar"}
		}
	}
	for name, t := range tables {
		schema, ok := gtfsSchema[name]
		if !ok {
			continue // unknown table, passes through untouched
		}
		if t.Len() == 0 {
			continue
		}
		if err := t.requireColumns(schema.Required...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Table returns the named table, or nil when the input did not contain it.
func (f *Feed) Table(name string) *Table {
	return f.tables[name]
}

// TableNames returns the names of all tables present, sorted.
func (f *Feed) TableNames() []string {
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a primary key to its row. Amortized O(1): the key index is
// built on first use and reused afterwards.
func (f *Feed) Lookup(table, key string) ([]string, bool) {
	t, ok := f.tables[table]
	if !ok {
		return nil, false
	}
	idx, ok := f.indexes[table]
	if !ok {
		keyCols := gtfsSchema[table].PrimaryKey
		if len(keyCols) == 0 {
			return nil, false
		}
		idx = make(map[string]int, t.Len())
		for i, row := range t.Rows {
			idx[t.key(row, keyCols)] = i
		}
		f.indexes[table] = idx
	}
	i, ok := idx[key]
	if !ok {
		return nil, false
	}
	return t.Rows[i], true
}

// ids collects the set of values of one column of a table. Empty values are
// skipped. Used to detect dangling references against the *input* feed.
func (f *Feed) ids(table, column string) map[string]struct{} {
	out := make(map[string]struct{})
	t := f.tables[table]
	if t == nil {
		return out
	}
	c := t.Col(column)
	if c < 0 {
		return out
	}
	for _, row := range t.Rows {
		if c < len(row) && row[c] != "" {
			out[row[c]] = struct{}{}
		}
	}
	return out
}
