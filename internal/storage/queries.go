package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type SourceTable struct {
	Name       string
	Header     string
	Delimiter  sql.NullString
	Terminator sql.NullString
	RawHeader  []byte
	RowCount   int64
	ImportedAt string
}

type SourceRow struct {
	TableName string
	Position  int64
	Cells     string
	RawLine   []byte
}

const upsertSourceTable = `
INSERT INTO source_tables (name, header, delimiter, terminator, raw_header, row_count)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    header = excluded.header,
    delimiter = excluded.delimiter,
    terminator = excluded.terminator,
    raw_header = excluded.raw_header,
    row_count = excluded.row_count,
    imported_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
`

type UpsertSourceTableParams struct {
	Name       string
	Header     string
	Delimiter  sql.NullString
	Terminator sql.NullString
	RawHeader  []byte
	RowCount   int64
}

func (q *Queries) UpsertSourceTable(ctx context.Context, arg UpsertSourceTableParams) error {
	_, err := q.db.ExecContext(ctx, upsertSourceTable,
		arg.Name,
		arg.Header,
		arg.Delimiter,
		arg.Terminator,
		arg.RawHeader,
		arg.RowCount,
	)
	return err
}

const deleteSourceRows = `DELETE FROM source_rows WHERE table_name = ?`

func (q *Queries) DeleteSourceRows(ctx context.Context, tableName string) error {
	_, err := q.db.ExecContext(ctx, deleteSourceRows, tableName)
	return err
}

const insertSourceRow = `
INSERT INTO source_rows (table_name, position, cells, raw_line)
VALUES (?, ?, ?, ?)
`

type InsertSourceRowParams struct {
	TableName string
	Position  int64
	Cells     string
	RawLine   []byte
}

func (q *Queries) InsertSourceRow(ctx context.Context, arg InsertSourceRowParams) error {
	_, err := q.db.ExecContext(ctx, insertSourceRow,
		arg.TableName,
		arg.Position,
		arg.Cells,
		arg.RawLine,
	)
	return err
}

const getSourceTable = `
SELECT name, header, delimiter, terminator, raw_header, row_count, imported_at
FROM source_tables
WHERE name = ?
`

func (q *Queries) GetSourceTable(ctx context.Context, name string) (SourceTable, error) {
	row := q.db.QueryRowContext(ctx, getSourceTable, name)
	var i SourceTable
	err := row.Scan(
		&i.Name,
		&i.Header,
		&i.Delimiter,
		&i.Terminator,
		&i.RawHeader,
		&i.RowCount,
		&i.ImportedAt,
	)
	return i, err
}

const listSourceTables = `
SELECT name, header, delimiter, terminator, raw_header, row_count, imported_at
FROM source_tables
ORDER BY name
`

func (q *Queries) ListSourceTables(ctx context.Context) ([]SourceTable, error) {
	rows, err := q.db.QueryContext(ctx, listSourceTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SourceTable
	for rows.Next() {
		var i SourceTable
		if err := rows.Scan(
			&i.Name,
			&i.Header,
			&i.Delimiter,
			&i.Terminator,
			&i.RawHeader,
			&i.RowCount,
			&i.ImportedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listSourceRows = `
SELECT table_name, position, cells, raw_line
FROM source_rows
WHERE table_name = ?
ORDER BY position
`

func (q *Queries) ListSourceRows(ctx context.Context, tableName string) ([]SourceRow, error) {
	rows, err := q.db.QueryContext(ctx, listSourceRows, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SourceRow
	for rows.Next() {
		var i SourceRow
		if err := rows.Scan(
			&i.TableName,
			&i.Position,
			&i.Cells,
			&i.RawLine,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
