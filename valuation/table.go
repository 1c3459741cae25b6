/*
table.go - Coefficient table and percentage lookup

PURPOSE:
  Holds the age -> bare-ownership percentage mapping edited by
  administrators and read by the engine.

LOOKUP RULE:
  1. Exact match on age wins
  2. Otherwise the entry with the largest age not exceeding the query age
  3. No qualifying entry (below the minimum, or empty table) -> 0%

  Ages are sorted once at construction; lookups are a binary search.

BELOW-MINIMUM AGES:
  A query below the smallest defined age yields 0%, which silently values
  the bare ownership at zero. This is kept on purpose; see DESIGN.md.

IMMUTABILITY:
  A Table is never mutated after NewTable. Edits produce a new Table
  (WithPercentage), so a *Table can be shared between goroutines.
*/
package valuation

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Table is an immutable coefficient table sorted by age ascending.
type Table struct {
	entries []Entry
}

// NewTable validates entries and returns a sorted table.
// Input order does not matter; duplicate or negative ages are rejected.
func NewTable(entries []Entry) (*Table, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Age < sorted[j].Age })

	for i, e := range sorted {
		if e.Age < 0 {
			return nil, &EntryError{Age: e.Age, Err: ErrNegativeAge}
		}
		if e.Percentage.IsNegative() || e.Percentage.GreaterThan(hundred) {
			return nil, &EntryError{Age: e.Age, Err: ErrPercentageRange}
		}
		if i > 0 && sorted[i-1].Age == e.Age {
			return nil, &EntryError{Age: e.Age, Err: ErrDuplicateAge}
		}
	}
	return &Table{entries: sorted}, nil
}

// Percentage returns the percentage applicable at age.
func (t *Table) Percentage(age int) decimal.Decimal {
	if t == nil || len(t.entries) == 0 {
		return decimal.Zero
	}
	// First index whose age is strictly greater than the query.
	idx := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Age > age })
	if idx == 0 {
		return decimal.Zero
	}
	return t.entries[idx-1].Percentage
}

// Entries returns a copy of the rows, sorted by age.
func (t *Table) Entries() []Entry {
	if t == nil {
		return []Entry{}
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Has reports whether age has its own row.
func (t *Table) Has(age int) bool {
	if t == nil {
		return false
	}
	idx := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Age >= age })
	return idx < len(t.entries) && t.entries[idx].Age == age
}

// MinAge returns the smallest defined age, or false on an empty table.
func (t *Table) MinAge() (int, bool) {
	if t.Len() == 0 {
		return 0, false
	}
	return t.entries[0].Age, true
}

// WithPercentage returns a copy of the table with one existing row changed.
func (t *Table) WithPercentage(age int, percentage decimal.Decimal) (*Table, error) {
	if !t.Has(age) {
		return nil, &EntryError{Age: age, Err: ErrAgeNotFound}
	}
	entries := t.Entries()
	for i := range entries {
		if entries[i].Age == age {
			entries[i].Percentage = percentage
		}
	}
	return NewTable(entries)
}

// =============================================================================
// DEFAULT TABLE
// =============================================================================

// DefaultEntries returns the table seeded on first run.
func DefaultEntries() []Entry {
	return []Entry{
		NewEntry(65, 44.00),
		NewEntry(66, 45.00),
		NewEntry(67, 46.00),
		NewEntry(68, 46.00),
		NewEntry(69, 48.00),
		NewEntry(70, 49.00),
		NewEntry(71, 49.50),
		NewEntry(72, 50.00),
		NewEntry(73, 52.00),
		NewEntry(74, 54.00),
		NewEntry(75, 55.00),
		NewEntry(76, 55.00),
		NewEntry(77, 57.00),
		NewEntry(78, 58.00),
		NewEntry(79, 59.21),
		NewEntry(80, 57.50),
		NewEntry(81, 59.00),
		NewEntry(82, 61.00),
		NewEntry(83, 62.50),
		NewEntry(84, 64.00),
		NewEntry(85, 66.00),
		NewEntry(86, 67.50),
		NewEntry(87, 69.00),
		NewEntry(88, 70.00),
		NewEntry(89, 77.00),
		NewEntry(90, 80.00),
		NewEntry(91, 81.00),
		NewEntry(92, 82.00),
		NewEntry(93, 83.00),
		NewEntry(94, 83.00),
		NewEntry(95, 84.00),
		NewEntry(96, 85.00),
		NewEntry(97, 86.00),
	}
}

// DefaultTable returns the built-in table. The defaults are known valid.
func DefaultTable() *Table {
	t, err := NewTable(DefaultEntries())
	if err != nil {
		panic("valuation: invalid default table: " + err.Error())
	}
	return t
}
