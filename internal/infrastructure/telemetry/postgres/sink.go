package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/lib/pq"

	"github.com/dreschagin/install-monitor/internal/domain/schema"
)

// Sink реализует port.TelemetrySink поверх PostgreSQL.
// Каждая зарегистрированная таблица хранится как обычная таблица с колонками из маппинга;
// строка вставляется как JSON-документ и раскладывается по колонкам через пути маппинга.
type Sink struct {
	db *sql.DB

	mu      sync.RWMutex
	inserts map[string]string
}

// NewSink создает sink и заранее строит INSERT для всех таблиц реестра
func NewSink(db *sql.DB, tables *schema.Registry) *Sink {
	s := &Sink{
		db:      db,
		inserts: make(map[string]string),
	}
	for _, table := range tables.Tables() {
		s.inserts[table.Name] = buildInsert(table)
	}
	return s
}

// EnsureSchema создает недостающие таблицы
func (s *Sink) EnsureSchema(ctx context.Context, tables *schema.Registry) error {
	for _, table := range tables.Tables() {
		if _, err := s.db.ExecContext(ctx, buildCreateTable(table)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
	}
	return nil
}

// InsertRow вставляет одну запись
func (s *Sink) InsertRow(ctx context.Context, table schema.Table, record any) error {
	doc, err := table.Document(record)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.insertFor(table), string(doc)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table.Name, err)
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает пул: sink владеет *sql.DB, переданным в NewSink
func (s *Sink) Close(context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *Sink) insertFor(table schema.Table) string {
	s.mu.RLock()
	query, ok := s.inserts[table.Name]
	s.mu.RUnlock()
	if ok {
		return query
	}

	query = buildInsert(table)
	s.mu.Lock()
	s.inserts[table.Name] = query
	s.mu.Unlock()
	return query
}

func buildCreateTable(table schema.Table) string {
	columns := make([]string, 0, len(table.Columns)+2)
	columns = append(columns, "id BIGSERIAL PRIMARY KEY")
	for _, c := range table.Columns {
		def := pq.QuoteIdentifier(c.Column) + " " + sqlType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		columns = append(columns, def)
	}
	columns = append(columns, "ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()")

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		pq.QuoteIdentifier(TableName(table.Name)),
		strings.Join(columns, ",\n\t"),
	)
}

// buildInsert проецирует документ $1 на колонки: ($1::jsonb #>> '{path}')::type
func buildInsert(table schema.Table) string {
	names := make([]string, len(table.Columns))
	values := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = pq.QuoteIdentifier(c.Column)

		path := pq.QuoteLiteral("{" + strings.Join(pathSegments(c.Path), ",") + "}")
		if c.Type == schema.ColumnDynamic {
			values[i] = fmt.Sprintf("($1::jsonb #> %s)", path)
			continue
		}
		values[i] = fmt.Sprintf("($1::jsonb #>> %s)::%s", path, sqlType(c.Type))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s",
		pq.QuoteIdentifier(TableName(table.Name)),
		strings.Join(names, ", "),
		strings.Join(values, ", "),
	)
}

func pathSegments(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "$."), ".")
}

func sqlType(t schema.ColumnType) string {
	switch t {
	case schema.ColumnInt:
		return "INTEGER"
	case schema.ColumnLong:
		return "BIGINT"
	case schema.ColumnReal:
		return "DOUBLE PRECISION"
	case schema.ColumnBool:
		return "BOOLEAN"
	case schema.ColumnDateTime:
		return "TIMESTAMPTZ"
	case schema.ColumnDynamic:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// TableName переводит имя таблицы в snake_case: UrlAccessLogs -> url_access_logs
func TableName(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
