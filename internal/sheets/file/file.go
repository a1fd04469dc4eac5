// Package file reads tables from CSV and XLSX files in a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"finboard/internal/dataset"
	ports "finboard/internal/sheets"
)

var _ ports.TableReader = (*Store)(nil)

// Store resolves table names relative to a base directory. Absolute names
// are used as given.
type Store struct {
	dir string
}

func New(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// ReadTable opens name and decodes it by extension: .csv, .tsv and .txt as
// delimited text, .xlsx as a workbook (first sheet).
func (s *Store) ReadTable(_ context.Context, name string) (*dataset.Table, error) {
	p := s.path(name)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ports.ErrTableNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".csv", ".tsv", ".txt", "":
		return dataset.ReadCSV(filepath.Base(p), f)
	case ".xlsx", ".xlsm":
		return dataset.ReadXLSX(filepath.Base(p), f, "")
	default:
		return nil, fmt.Errorf("%s: unsupported file type %q", p, ext)
	}
}
