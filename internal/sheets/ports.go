package sheets

import (
	"context"
	"errors"

	"finboard/internal/dataset"
)

// ErrTableNotFound is returned when a source has no table with the given name.
var ErrTableNotFound = errors.New("table not found")

// Ports for inbound table sources.
type (
	// TableReader loads one raw table by name. The name is a file name for
	// file stores, a tab title for spreadsheets and a snapshot name for the
	// SQLite store.
	TableReader interface {
		ReadTable(ctx context.Context, name string) (*dataset.Table, error)
	}

	// TableWriter stores a table snapshot under its name.
	TableWriter interface {
		ImportTable(ctx context.Context, t *dataset.Table) error
	}
)
