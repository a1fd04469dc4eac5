// Package memory keeps tables in process memory. It backs tests and lets
// callers serve tables they built themselves.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finboard/internal/dataset"
	ports "finboard/internal/sheets"
)

var (
	_ ports.TableReader = (*Store)(nil)
	_ ports.TableWriter = (*Store)(nil)
)

type Store struct {
	mu     sync.RWMutex
	tables map[string]*dataset.Table
}

func New(tables ...*dataset.Table) *Store {
	s := &Store{tables: make(map[string]*dataset.Table, len(tables))}
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	return s
}

// ImportTable stores t under its name, replacing any previous table.
func (s *Store) ImportTable(_ context.Context, t *dataset.Table) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("table must have a name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name] = t
	return nil
}

func (s *Store) ReadTable(_ context.Context, name string) (*dataset.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
	}
	return t, nil
}

// Names lists the stored table names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for n := range s.tables {
		out = append(out, n)
	}
	return out
}
