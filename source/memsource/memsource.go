// Package memsource provides an in-memory table Source with synchronous
// change notification.
//
// Each table has ordered columns, the first of which is the row key. Writes
// to a row notify the target "<table>/<key>", so listeners on "<table>" see
// them only when they subscribed with notifyForDescendants. Replace rewrites
// the whole table and notifies "<table>" itself.
package memsource

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/source"
)

// QueryHook runs before every query. It may block, and a non-nil error is
// returned from Query.
type QueryHook func(ctx context.Context, q source.Query) error

// Option configures a Source.
type Option func(*Source)

// WithQueryHook installs a hook that runs before every query.
func WithQueryHook(h QueryHook) Option {
	return func(s *Source) { s.hook = h }
}

// Source is an in-memory, observable set of tables.
type Source struct {
	*source.Hub

	mu       sync.RWMutex
	tables   map[string]*table
	failNext error
	queries  int
	hook     QueryHook
	log      *logger.Logger
}

type table struct {
	columns []string
	rows    []map[string]any
}

var _ source.Source = (*Source)(nil)

// New creates an empty Source.
func New(opts ...Option) *Source {
	s := &Source{
		Hub:    source.NewHub("memsource"),
		tables: make(map[string]*table),
		log:    logger.Get("memsource"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTable defines a table. The first column is the row key.
func (s *Source) CreateTable(name string, columns ...string) error {
	if name == "" || strings.Contains(name, "/") {
		return errors.InvalidInput("table", "table name must be non-empty and must not contain '/'")
	}
	if len(columns) == 0 {
		return errors.MissingField("columns")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return errors.InvalidInput("table", fmt.Sprintf("table %q already exists", name))
	}
	s.tables[name] = &table{columns: append([]string(nil), columns...)}
	return nil
}

// Insert appends a row and notifies "<table>/<key>".
func (s *Source) Insert(name string, row map[string]any) error {
	s.mu.Lock()
	t, err := s.table(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	key, err := t.key(row)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if t.find(key) >= 0 {
		s.mu.Unlock()
		return errors.InvalidInput("row", fmt.Sprintf("duplicate key %q in table %q", key, name))
	}
	t.rows = append(t.rows, t.normalize(row))
	s.mu.Unlock()

	s.notify(name + "/" + key)
	return nil
}

// Update merges fields into the row with the given key and notifies
// "<table>/<key>". The key column itself cannot change.
func (s *Source) Update(name, key string, fields map[string]any) error {
	s.mu.Lock()
	t, err := s.table(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := t.find(key)
	if i < 0 {
		s.mu.Unlock()
		return errors.NotFound(name, key)
	}
	updated := make(map[string]any, len(t.columns))
	for k, v := range t.rows[i] {
		updated[k] = v
	}
	for k, v := range fields {
		if k == t.columns[0] {
			continue
		}
		if _, ok := updated[k]; !ok {
			s.mu.Unlock()
			return errors.InvalidInput("row", fmt.Sprintf("unknown column %q", k))
		}
		updated[k] = v
	}
	t.rows[i] = updated
	s.mu.Unlock()

	s.notify(name + "/" + key)
	return nil
}

// Delete removes the row with the given key and notifies "<table>/<key>".
func (s *Source) Delete(name, key string) error {
	s.mu.Lock()
	t, err := s.table(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := t.find(key)
	if i < 0 {
		s.mu.Unlock()
		return errors.NotFound(name, key)
	}
	t.rows = append(t.rows[:i:i], t.rows[i+1:]...)
	s.mu.Unlock()

	s.notify(name + "/" + key)
	return nil
}

// Replace swaps the whole content of a table and notifies "<table>".
func (s *Source) Replace(name string, rows []map[string]any) error {
	s.mu.Lock()
	t, err := s.table(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	next := make([]map[string]any, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		key, err := t.key(row)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if seen[key] {
			s.mu.Unlock()
			return errors.InvalidInput("row", fmt.Sprintf("duplicate key %q in table %q", key, name))
		}
		seen[key] = true
		next = append(next, t.normalize(row))
	}
	t.rows = next
	s.mu.Unlock()

	s.notify(name)
	return nil
}

// FailNext makes the next Query return err instead of reading.
func (s *Source) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// Queries returns how many queries have run, including failed ones.
func (s *Source) Queries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

// Query reads a table, or a single row when the target is "<table>/<key>".
func (s *Source) Query(ctx context.Context, q source.Query) (source.Cursor, error) {
	if s.hook != nil {
		if err := s.hook(ctx, q); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, key, _ := strings.Cut(q.Target, "/")

	s.mu.Lock()
	s.queries++
	if err := s.failNext; err != nil {
		s.failNext = nil
		s.mu.Unlock()
		return nil, err
	}
	t, err := s.table(name)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	columns := t.columns
	rows := make([][]any, 0, len(t.rows))
	for _, r := range t.rows {
		if key != "" && fmt.Sprint(r[columns[0]]) != key {
			continue
		}
		vals := make([]any, len(columns))
		for i, c := range columns {
			vals[i] = r[c]
		}
		rows = append(rows, vals)
	}
	s.mu.Unlock()

	return source.Apply(columns, rows, q)
}

func (s *Source) notify(target string) {
	n := s.Notify(target)
	s.log.Debug("change notified", logger.Fields(logger.FieldTarget, target, logger.FieldSubscribers, n))
}

func (s *Source) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, errors.NotFound("table", name)
	}
	return t, nil
}

func (t *table) key(row map[string]any) (string, error) {
	v, ok := row[t.columns[0]]
	if !ok || v == nil {
		return "", errors.MissingField(t.columns[0])
	}
	for col := range row {
		if !t.has(col) {
			return "", errors.InvalidInput("row", fmt.Sprintf("unknown column %q", col))
		}
	}
	return fmt.Sprint(v), nil
}

func (t *table) has(col string) bool {
	for _, c := range t.columns {
		if c == col {
			return true
		}
	}
	return false
}

func (t *table) find(key string) int {
	for i, r := range t.rows {
		if fmt.Sprint(r[t.columns[0]]) == key {
			return i
		}
	}
	return -1
}

// normalize copies row and fills missing columns with nil.
func (t *table) normalize(row map[string]any) map[string]any {
	out := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		out[c] = row[c]
	}
	return out
}
