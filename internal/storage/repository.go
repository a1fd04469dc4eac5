// Package storage keeps SQLite snapshots of source tables. A snapshot is
// written once by the importer and read back by the dashboard as an
// alternative to the original files.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"finboard/internal/dataset"
	ports "finboard/internal/sheets"

	_ "modernc.org/sqlite"
)

var (
	_ ports.TableReader = (*SQLiteRepository)(nil)
	_ ports.TableWriter = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Snapshot schema ready", "db_path", dbPath, "version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ImportTable replaces the snapshot named t.Name with the content of t in a
// single transaction.
func (r *SQLiteRepository) ImportTable(ctx context.Context, t *dataset.Table) error {
	if t == nil || t.Name == "" {
		return errors.New("table must have a name")
	}
	header, err := json.Marshal(t.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	params := UpsertSourceTableParams{
		Name:     t.Name,
		Header:   string(header),
		RowCount: int64(len(t.Rows)),
	}
	if t.Raw != nil {
		params.Delimiter = sql.NullString{String: string(t.Raw.Delimiter), Valid: true}
		params.Terminator = sql.NullString{String: string(t.Raw.Terminator), Valid: true}
		params.RawHeader = t.Raw.Header
	}
	if err := q.UpsertSourceTable(ctx, params); err != nil {
		return fmt.Errorf("save table %s: %w", t.Name, err)
	}
	if err := q.DeleteSourceRows(ctx, t.Name); err != nil {
		return fmt.Errorf("clear rows of %s: %w", t.Name, err)
	}

	for i, row := range t.Rows {
		cells, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		arg := InsertSourceRowParams{TableName: t.Name, Position: int64(i), Cells: string(cells)}
		if t.Raw != nil {
			arg.RawLine = t.Raw.Lines[i]
		}
		if err := q.InsertSourceRow(ctx, arg); err != nil {
			return fmt.Errorf("insert row %d of %s: %w", i, t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot %s: %w", t.Name, err)
	}
	slog.InfoContext(ctx, "Table snapshot imported",
		"table", t.Name,
		"rows", len(t.Rows),
		"text", t.Raw != nil)
	return nil
}

// ReadTable implements sheets.TableReader
func (r *SQLiteRepository) ReadTable(ctx context.Context, name string) (*dataset.Table, error) {
	meta, err := r.queries.GetSourceTable(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", name, err)
	}
	var header []string
	if err := json.Unmarshal([]byte(meta.Header), &header); err != nil {
		return nil, fmt.Errorf("decode header of %s: %w", name, err)
	}

	stored, err := r.queries.ListSourceRows(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", name, err)
	}
	if int64(len(stored)) != meta.RowCount {
		return nil, fmt.Errorf("snapshot %s: expected %d rows, found %d", name, meta.RowCount, len(stored))
	}

	rows := make([][]string, len(stored))
	lines := make([][]byte, len(stored))
	for i, s := range stored {
		if err := json.Unmarshal([]byte(s.Cells), &rows[i]); err != nil {
			return nil, fmt.Errorf("decode row %d of %s: %w", s.Position, name, err)
		}
		lines[i] = s.RawLine
	}

	if !meta.Delimiter.Valid {
		return dataset.NewTable(name, header, rows), nil
	}
	delim := []rune(meta.Delimiter.String)
	if len(delim) != 1 {
		return nil, fmt.Errorf("snapshot %s: invalid delimiter %q", name, meta.Delimiter.String)
	}
	return dataset.NewTextTable(name, header, rows, dataset.RawText{
		Delimiter:  delim[0],
		Terminator: []byte(meta.Terminator.String),
		Header:     meta.RawHeader,
		Lines:      lines,
	})
}

// TableInfo describes one stored snapshot.
type TableInfo struct {
	Name       string
	Rows       int
	Text       bool
	ImportedAt string
}

// ListTables returns the stored snapshots ordered by name.
func (r *SQLiteRepository) ListTables(ctx context.Context) ([]TableInfo, error) {
	tables, err := r.queries.ListSourceTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make([]TableInfo, len(tables))
	for i, t := range tables {
		out[i] = TableInfo{
			Name:       t.Name,
			Rows:       int(t.RowCount),
			Text:       t.Delimiter.Valid,
			ImportedAt: t.ImportedAt,
		}
	}
	return out, nil
}
