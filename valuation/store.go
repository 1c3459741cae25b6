package valuation

import (
	"context"
	"fmt"
)

// TableStore persists the coefficient table. SaveTable replaces the whole
// table; concurrent saves are not reconciled (last writer wins).
type TableStore interface {
	// LoadTable returns the stored rows and whether a table was ever saved.
	// An administrator may deliberately save an empty table, so "no rows"
	// and "never saved" are different states.
	LoadTable(ctx context.Context) ([]Entry, bool, error)

	SaveTable(ctx context.Context, entries []Entry) error
}

// LoadOrSeed returns the stored table, saving seed first if nothing was ever
// stored. It returns true when the seed was written.
func LoadOrSeed(ctx context.Context, store TableStore, seed *Table) (*Table, bool, error) {
	entries, saved, err := store.LoadTable(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load coefficient table: %w", err)
	}
	if !saved {
		if err := store.SaveTable(ctx, seed.Entries()); err != nil {
			return nil, false, fmt.Errorf("failed to seed coefficient table: %w", err)
		}
		return seed, true, nil
	}
	table, err := NewTable(entries)
	if err != nil {
		return nil, false, fmt.Errorf("stored coefficient table is invalid: %w", err)
	}
	return table, false, nil
}
