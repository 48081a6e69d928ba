package source

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/kbukum/queryflow/errors"
)

// RowsCursor is a Cursor over rows held in memory.
type RowsCursor struct {
	columns []string
	rows    [][]any
	pos     int
	closed  bool
}

var _ Cursor = (*RowsCursor)(nil)

// NewRowsCursor returns a cursor positioned before the first row. Every row
// must have one value per column.
func NewRowsCursor(columns []string, rows [][]any) *RowsCursor {
	return &RowsCursor{columns: columns, rows: rows}
}

// Next advances to the next row.
func (c *RowsCursor) Next() bool {
	if c.closed || c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Scan copies the current row into dest, one destination per column.
func (c *RowsCursor) Scan(dest ...any) error {
	if c.closed {
		return fmt.Errorf("scan: cursor is closed")
	}
	if c.pos == 0 || c.pos > len(c.rows) {
		return fmt.Errorf("scan: called without a current row")
	}
	row := c.rows[c.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d destination arguments, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("scan column %q: %w", c.columns[i], err)
		}
	}
	return nil
}

// Columns returns the column names.
func (c *RowsCursor) Columns() ([]string, error) {
	if c.closed {
		return nil, fmt.Errorf("columns: cursor is closed")
	}
	return append([]string(nil), c.columns...), nil
}

// Err always returns nil; an in-memory cursor cannot fail mid-iteration.
func (c *RowsCursor) Err() error { return nil }

// Close releases the cursor. Further calls to Next return false.
func (c *RowsCursor) Close() error {
	c.closed = true
	return nil
}

// Len returns the total number of rows.
func (c *RowsCursor) Len() int { return len(c.rows) }

// MapRows reads every remaining row of c into a column-to-value map. It does
// not close the cursor.
func MapRows(c Cursor) ([]map[string]any, error) {
	cols, err := c.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for c.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := c.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				vals[i] = string(b)
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, c.Err()
}

// assign stores src into the pointer dest, converting between the value
// kinds that in-memory, CSV and hash-backed sources produce.
func assign(dest, src any) error {
	switch d := dest.(type) {
	case *any:
		*d = src
		return nil
	case sql.Scanner:
		return d.Scan(src)
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return errors.InvalidInput("dest", fmt.Sprintf("destination %T is not a non-nil pointer", dest))
	}
	ev := dv.Elem()
	if src == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(ev.Type()) {
		ev.Set(sv)
		return nil
	}

	if b, ok := src.([]byte); ok {
		return assignString(ev, string(b))
	}
	if s, ok := src.(string); ok {
		return assignString(ev, s)
	}
	if ev.Kind() == reflect.String {
		ev.SetString(fmt.Sprint(src))
		return nil
	}
	if isNumber(sv.Kind()) && isNumber(ev.Kind()) {
		ev.Set(sv.Convert(ev.Type()))
		return nil
	}
	return fmt.Errorf("cannot scan %T into %T", src, dest)
}

func assignString(ev reflect.Value, s string) error {
	switch ev.Kind() {
	case reflect.String:
		ev.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		ev.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		ev.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		ev.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		ev.SetBool(b)
	default:
		if ev.Type() == reflect.TypeOf(time.Time{}) {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return err
			}
			ev.Set(reflect.ValueOf(t))
			return nil
		}
		return fmt.Errorf("cannot scan string into %s", ev.Type())
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
