package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/dreschagin/install-monitor/internal/domain/failure"
)

// Table is a telemetry table together with the record type it stores.
type Table struct {
	Name    string
	Columns []ColumnMapping

	recordType reflect.Type
}

// NewTable resolves the columns of record's type once and binds them to name.
func NewTable(name string, record any) (Table, error) {
	if strings.TrimSpace(name) == "" {
		return Table{}, fmt.Errorf("%w: table name is required", failure.ErrSchema)
	}

	columns, err := Resolve(record)
	if err != nil {
		return Table{}, err
	}

	return Table{
		Name:       name,
		Columns:    columns,
		recordType: indirectType(reflect.TypeOf(record)),
	}, nil
}

// Accepts reports whether record has the type this table was registered with.
func (t Table) Accepts(record any) bool {
	if record == nil || t.recordType == nil {
		return false
	}
	return indirectType(reflect.TypeOf(record)) == t.recordType
}

// Document returns the JSON document ingested for record.
func (t Table) Document(record any) ([]byte, error) {
	if !t.Accepts(record) {
		return nil, fmt.Errorf("%w: table %s does not accept %T", failure.ErrSchema, t.Name, record)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s row: %w", t.Name, err)
	}
	return raw, nil
}

// Project returns the column values of record, read through the column paths.
// Numbers are returned as json.Number, missing or null values as nil.
func (t Table) Project(record any) (map[string]any, error) {
	raw, err := t.Document(record)
	if err != nil {
		return nil, err
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s row: %w", t.Name, err)
	}

	values := make(map[string]any, len(t.Columns))
	for _, column := range t.Columns {
		value, _ := lookupPath(doc, column.Path)
		values[column.Column] = value
	}
	return values, nil
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Column
	}
	return names
}

// Registry holds the tables registered at startup.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Table
	order  []Table
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[reflect.Type]Table)}
}

// Register binds the record type of sample to a new table.
func (r *Registry) Register(name string, sample any) (Table, error) {
	table, err := NewTable(name, sample)
	if err != nil {
		return Table{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byType[table.recordType]; ok {
		return Table{}, fmt.Errorf("%w: %s is already registered as %s", failure.ErrSchema, table.recordType, existing.Name)
	}
	for _, other := range r.order {
		if other.Name == name {
			return Table{}, fmt.Errorf("%w: table %s is already registered", failure.ErrSchema, name)
		}
	}

	r.byType[table.recordType] = table
	r.order = append(r.order, table)
	return table, nil
}

// TableFor finds the table registered for the type of record.
func (r *Registry) TableFor(record any) (Table, error) {
	if record == nil {
		return Table{}, fmt.Errorf("%w: nil record", failure.ErrSchema)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	table, ok := r.byType[indirectType(reflect.TypeOf(record))]
	if !ok {
		return Table{}, fmt.Errorf("%w: no table registered for %T", failure.ErrSchema, record)
	}
	return table, nil
}

// Tables returns the registered tables in registration order.
func (r *Registry) Tables() []Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Table(nil), r.order...)
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
