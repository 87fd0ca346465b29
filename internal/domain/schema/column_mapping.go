// Package schema maps telemetry record types onto column-oriented tables.
//
// Mappings are direct: every serializable field becomes one column named after its
// JSON name and read from the JSON path "$.<name>".
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/failure"
)

// ColumnType is the storage type a column is declared with.
type ColumnType string

const (
	ColumnString   ColumnType = "string"
	ColumnInt      ColumnType = "int"
	ColumnLong     ColumnType = "long"
	ColumnReal     ColumnType = "real"
	ColumnBool     ColumnType = "bool"
	ColumnDateTime ColumnType = "datetime"
	ColumnDynamic  ColumnType = "dynamic"
)

// ColumnMapping binds one column to the JSON path it is read from.
type ColumnMapping struct {
	Column   string
	Path     string
	Type     ColumnType
	Nullable bool
}

var timeType = reflect.TypeOf(time.Time{})

// Resolve returns the ordered column mappings for the type of record.
// A record that is not a struct (or pointer to one) is a programming error.
func Resolve(record any) ([]ColumnMapping, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: cannot resolve columns of a nil record", failure.ErrSchema)
	}
	return resolveType(reflect.TypeOf(record))
}

func resolveType(t reflect.Type) ([]ColumnMapping, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return nil, fmt.Errorf("%w: failed to resolve columns of %s: not an object type", failure.ErrSchema, t.String())
	}

	columns := make([]ColumnMapping, 0, t.NumField())
	seen := make(map[string]struct{}, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, skip := jsonName(field)
		if skip {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s declares column %q twice", failure.ErrSchema, t.String(), name)
		}
		seen[name] = struct{}{}

		colType, nullable := columnTypeOf(field.Type)
		columns = append(columns, ColumnMapping{
			Column:   name,
			Path:     "$." + name,
			Type:     colType,
			Nullable: nullable,
		})
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s has no serializable fields", failure.ErrSchema, t.String())
	}

	return columns, nil
}

func jsonName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, false
}

func columnTypeOf(t reflect.Type) (ColumnType, bool) {
	nullable := false
	if t.Kind() == reflect.Pointer {
		nullable = true
		t = t.Elem()
	}

	if t == timeType {
		return ColumnDateTime, nullable
	}

	switch t.Kind() {
	case reflect.String:
		return ColumnString, nullable
	case reflect.Bool:
		return ColumnBool, nullable
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return ColumnInt, nullable
	case reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return ColumnLong, nullable
	case reflect.Float32, reflect.Float64:
		return ColumnReal, nullable
	default:
		return ColumnDynamic, true
	}
}

// lookupPath evaluates a "$.a.b" path against a decoded JSON document.
func lookupPath(doc map[string]any, path string) (any, bool) {
	rest, ok := strings.CutPrefix(path, "$.")
	if !ok {
		return nil, false
	}

	var current any = doc
	for _, segment := range strings.Split(rest, ".") {
		obj, isObj := current.(map[string]any)
		if !isObj {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func decodeDocument(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
