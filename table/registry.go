package table

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
)

type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewRegistry() *Registry {
	return &Registry{tables: map[string]*Table{}}
}

func (r *Registry) Add(t *Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, t.Name)
	}
	r.tables[t.Name] = t
	return nil
}

func (r *Registry) Get(name string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// Names lists the registered tables in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
