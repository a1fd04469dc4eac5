// Package dataset turns raw tables into typed, read-only datasets and
// serializes selected rows back out as CSV or XLSX.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

var (
	ErrEmptyTable    = errors.New("empty table")
	ErrMissingColumn = errors.New("missing column")
	ErrMalformedRow  = errors.New("malformed row")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is the raw content of one source: header names and cell text.
// Tables read from delimited text also keep each line's original bytes so
// exports can reproduce the input format exactly.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string

	// Raw is nil for tables that did not come from delimited text.
	Raw *RawText
}

// RawText is the byte layout of a delimited text table.
type RawText struct {
	Delimiter  rune
	Terminator []byte
	Header     []byte   // BOM and header line, including its terminator
	Lines      [][]byte // one entry per row of Rows
}

// NewTable builds a table from already split cells, as returned by
// spreadsheet and database sources.
func NewTable(name string, header []string, rows [][]string) *Table {
	return &Table{Name: name, Header: header, Rows: rows}
}

// NewTextTable rebuilds a text table from stored cells and raw bytes.
func NewTextTable(name string, header []string, rows [][]string, raw RawText) (*Table, error) {
	if len(raw.Lines) != len(rows) {
		return nil, fmt.Errorf("%s: %d raw lines for %d rows", name, len(raw.Lines), len(rows))
	}
	if len(raw.Terminator) == 0 {
		raw.Terminator = []byte("\n")
	}
	return &Table{Name: name, Header: header, Rows: rows, Raw: &raw}, nil
}

// IsText reports whether the table keeps the raw bytes of a text file.
func (t *Table) IsText() bool { return t.Raw != nil }

// Delimiter returns the detected field delimiter, ',' for non-text tables.
func (t *Table) Delimiter() rune {
	if t.Raw == nil {
		return ','
	}
	return t.Raw.Delimiter
}

// ColumnIndex maps header names, trimmed and case-folded, to positions.
func (t *Table) ColumnIndex() map[string]int {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := normalizeColumn(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func normalizeColumn(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ReadCSV reads a delimited text table. The delimiter is detected from the
// header line among ',', ';', tab and '|'. A UTF-8 BOM and CRLF line endings
// are accepted and remembered.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	bom := bytes.HasPrefix(data, utf8BOM)
	body := bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyTable)
	}

	layout := &RawText{Delimiter: detectDelimiter(body)}
	cr := csv.NewReader(bytes.NewReader(body))
	cr.Comma = layout.Delimiter

	var prev int64
	next := func() ([]string, []byte, error) {
		rec, err := cr.Read()
		if err != nil {
			return nil, nil, err
		}
		off := cr.InputOffset()
		raw := trimLeadingBlankLines(body[prev:off])
		prev = off
		return rec, raw, nil
	}

	header, raw, err := next()
	if err != nil {
		return nil, fmt.Errorf("%s: header: %w", name, err)
	}
	if bom {
		raw = append(slices.Clone(utf8BOM), raw...)
	}
	layout.Header = raw
	layout.Terminator = []byte("\n")
	if bytes.HasSuffix(raw, []byte("\r\n")) {
		layout.Terminator = []byte("\r\n")
	}

	t := &Table{Name: name, Header: header, Raw: layout}
	for {
		rec, raw, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("%s: %w", name, &RowError{Row: pe.Line, Err: pe.Err})
			}
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		t.Rows = append(t.Rows, rec)
		layout.Lines = append(layout.Lines, raw)
	}
	return t, nil
}

func trimLeadingBlankLines(b []byte) []byte {
	return bytes.TrimLeft(b, "\r\n")
}

// detectDelimiter picks the candidate that occurs most often outside quotes
// on the first non-blank line.
func detectDelimiter(body []byte) rune {
	line := bytes.TrimLeft(body, "\r\n")
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	counts := map[rune]int{}
	inQuotes := false
	for _, c := range string(line) {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case !inQuotes && strings.ContainsRune(",;\t|", c):
			counts[c]++
		}
	}
	best, n := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if counts[c] > n {
			best, n = c, counts[c]
		}
	}
	return best
}

// WriteRows writes the header and the rows at the given positions. Text
// tables are reproduced from their original bytes; other tables are written
// as comma separated CSV.
func (t *Table) WriteRows(w io.Writer, rows []int) error {
	for _, i := range rows {
		if i < 0 || i >= len(t.Rows) {
			return fmt.Errorf("%s: row %d out of range", t.Name, i)
		}
	}
	if t.Raw == nil {
		return t.writeCanonical(w, rows)
	}

	var buf bytes.Buffer
	buf.Write(t.Raw.Header)
	if len(rows) > 0 && !endsWithNewline(t.Raw.Header) {
		buf.Write(t.Raw.Terminator)
	}
	for n, i := range rows {
		line := t.Raw.Lines[i]
		buf.Write(line)
		if n < len(rows)-1 && !endsWithNewline(line) {
			buf.Write(t.Raw.Terminator)
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func endsWithNewline(b []byte) bool {
	return bytes.HasSuffix(b, []byte("\n"))
}

func (t *Table) writeCanonical(w io.Writer, rows []int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, i := range rows {
		if err := cw.Write(t.Rows[i]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
