package source

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/validation"
)

// SortTerm is one "column [ASC|DESC]" entry of a sort order.
type SortTerm struct {
	Column string
	Desc   bool
}

// ParseSortOrder splits a sort order such as "name, created_at DESC".
// An empty string yields no terms.
func ParseSortOrder(s string) ([]SortTerm, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if !validation.IsSortOrder(s) {
		return nil, errors.InvalidFormat("sort_order", "column [ASC|DESC], ...")
	}
	var terms []SortTerm
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		term := SortTerm{Column: fields[0]}
		if len(fields) == 2 && strings.EqualFold(fields[1], "desc") {
			term.Desc = true
		}
		terms = append(terms, term)
	}
	return terms, nil
}

// Condition is one "column = ?" term of a selection with its bound value.
type Condition struct {
	Column string
	Value  any
}

var (
	andSplit      = regexp.MustCompile(`(?i)\s+and\s+`)
	equalityMatch = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s*=\s*\?\s*$`)
)

// ParseSelection parses selections made of "column = ?" terms joined by AND,
// the subset that sources without a query engine support.
func ParseSelection(selection string, args []any) ([]Condition, error) {
	if strings.TrimSpace(selection) == "" {
		if len(args) > 0 {
			return nil, errors.InvalidInput("selection_args", "arguments given without a selection")
		}
		return nil, nil
	}
	parts := andSplit.Split(strings.TrimSpace(selection), -1)
	if len(parts) != len(args) {
		return nil, errors.InvalidInput("selection", fmt.Sprintf("has %d terms but %d arguments", len(parts), len(args)))
	}
	conds := make([]Condition, 0, len(parts))
	for i, part := range parts {
		m := equalityMatch.FindStringSubmatch(part)
		if m == nil {
			return nil, errors.InvalidInput("selection", fmt.Sprintf("unsupported term %q, expected \"column = ?\"", part))
		}
		conds = append(conds, Condition{Column: m[1], Value: args[i]})
	}
	return conds, nil
}

// Apply evaluates q's selection, sort order and projection over in-memory
// rows and returns a cursor over the result. Rows are not modified.
func Apply(columns []string, rows [][]any, q Query) (*RowsCursor, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	lookup := func(field, col string) (int, error) {
		i, ok := index[col]
		if !ok {
			return 0, errors.InvalidInput(field, fmt.Sprintf("unknown column %q", col))
		}
		return i, nil
	}

	conds, err := ParseSelection(q.Selection, q.SelectionArgs)
	if err != nil {
		return nil, err
	}
	condIdx := make([]int, len(conds))
	for i, c := range conds {
		if condIdx[i], err = lookup("selection", c.Column); err != nil {
			return nil, err
		}
	}

	terms, err := ParseSortOrder(q.SortOrder)
	if err != nil {
		return nil, err
	}
	termIdx := make([]int, len(terms))
	for i, t := range terms {
		if termIdx[i], err = lookup("sort_order", t.Column); err != nil {
			return nil, err
		}
	}

	outCols := columns
	projIdx := make([]int, len(columns))
	for i := range projIdx {
		projIdx[i] = i
	}
	if len(q.Projection) > 0 {
		outCols = q.Projection
		projIdx = make([]int, len(q.Projection))
		for i, col := range q.Projection {
			if projIdx[i], err = lookup("projection", col); err != nil {
				return nil, err
			}
		}
	}

	selected := make([][]any, 0, len(rows))
	for _, row := range rows {
		match := true
		for i, c := range conds {
			if !EqualValues(row[condIdx[i]], c.Value) {
				match = false
				break
			}
		}
		if match {
			selected = append(selected, row)
		}
	}

	if len(terms) > 0 {
		sort.SliceStable(selected, func(a, b int) bool {
			for i, t := range terms {
				c := CompareValues(selected[a][termIdx[i]], selected[b][termIdx[i]])
				if c == 0 {
					continue
				}
				if t.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	out := make([][]any, len(selected))
	for r, row := range selected {
		projected := make([]any, len(projIdx))
		for i, idx := range projIdx {
			projected[i] = row[idx]
		}
		out[r] = projected
	}
	return NewRowsCursor(append([]string(nil), outCols...), out), nil
}

// EqualValues compares two column values, treating numbers of any kind and
// their decimal string forms as equal when they denote the same number.
func EqualValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// CompareValues orders two column values: nil first, then numbers
// numerically, times chronologically, everything else by string form.
func CompareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	}
	return 0, false
}
