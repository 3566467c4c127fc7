package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrColumnNotFound is returned when a named column is not part of the frame.
	ErrColumnNotFound = errors.New("column not found")

	errRowWidth = errors.New("row width does not match column count")
)

// Record is a single row keyed by column name.
type Record map[string]any

// Frame is an ordered, column-named table. Cells hold float64, string or nil (missing).
// Frames returned by this package never share row storage with their source.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty frame with the given column names.
func New(columns ...string) (*Frame, error) {
	f := &Frame{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
		rows:    make([][]any, 0),
	}
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, errors.New("column name cannot be empty")
		}
		if _, ok := f.index[c]; ok {
			return nil, fmt.Errorf("duplicate column: %s", c)
		}
		f.index[c] = len(f.columns)
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// FromRecords builds a frame from records using the given column order.
// Keys not listed in columns are dropped; listed columns absent from a record are nil.
func FromRecords(columns []string, records ...Record) (*Frame, error) {
	f, err := New(columns...)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		row := make([]any, len(f.columns))
		for i, c := range f.columns {
			row[i] = normalize(r[c])
		}
		f.rows = append(f.rows, row)
	}
	return f, nil
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Has reports whether the frame has the named column.
func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// Missing returns the names from want that the frame does not have, in want order.
func (f *Frame) Missing(want ...string) []string {
	list := make([]string, 0)
	for _, w := range want {
		if !f.Has(w) {
			list = append(list, w)
		}
	}
	return list
}

// Append adds a row. The row is copied.
func (f *Frame) Append(values ...any) error {
	if len(values) != len(f.columns) {
		return fmt.Errorf("%w: got %d, want %d", errRowWidth, len(values), len(f.columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = normalize(v)
	}
	f.rows = append(f.rows, row)
	return nil
}

// Value returns the raw cell value.
func (f *Frame) Value(row int, column string) (any, error) {
	i, ok := f.index[column]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, column)
	}
	if row < 0 || row >= len(f.rows) {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, len(f.rows))
	}
	return f.rows[row][i], nil
}

// Float returns the cell as a float64. Missing cells return NaN.
// Text cells are parsed; unparsable text is an error.
func (f *Frame) Float(row int, column string) (float64, error) {
	v, err := f.Value(row, column)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return math.NaN(), nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("row %d, column %s: %q is not a number", row, column, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("row %d, column %s: unsupported type %T", row, column, v)
	}
}

// Text returns the cell as a string and whether it is present.
// Numbers are formatted in their shortest form.
func (f *Frame) Text(row int, column string) (string, bool, error) {
	v, err := f.Value(row, column)
	if err != nil {
		return "", false, err
	}
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return t, true, nil
	case float64:
		if math.IsNaN(t) {
			return "", false, nil
		}
		return FormatFloat(t), true, nil
	default:
		return fmt.Sprint(t), true, nil
	}
}

// Record returns the row as a map.
func (f *Frame) Record(row int) Record {
	r := make(Record, len(f.columns))
	if row < 0 || row >= len(f.rows) {
		return r
	}
	for i, c := range f.columns {
		r[c] = f.rows[row][i]
	}
	return r
}

// Records returns all rows as maps.
func (f *Frame) Records() []Record {
	list := make([]Record, 0, len(f.rows))
	for i := range f.rows {
		list = append(list, f.Record(i))
	}
	return list
}

// Row returns a copy of the row values in column order.
func (f *Frame) Row(row int) []any {
	if row < 0 || row >= len(f.rows) {
		return nil
	}
	out := make([]any, len(f.rows[row]))
	copy(out, f.rows[row])
	return out
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		columns: f.Columns(),
		index:   make(map[string]int, len(f.index)),
		rows:    make([][]any, 0, len(f.rows)),
	}
	for k, v := range f.index {
		c.index[k] = v
	}
	for i := range f.rows {
		c.rows = append(c.rows, f.Row(i))
	}
	return c
}

// WithColumn returns a copy of the frame with the column set to values.
// An existing column of the same name is replaced in place, otherwise it is appended.
func (f *Frame) WithColumn(name string, values []any) (*Frame, error) {
	if len(values) != len(f.rows) {
		return nil, fmt.Errorf("column %s: got %d values for %d rows", name, len(values), len(f.rows))
	}
	c := f.Clone()
	i, ok := c.index[name]
	if !ok {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("column name cannot be empty")
		}
		i = len(c.columns)
		c.index[name] = i
		c.columns = append(c.columns, name)
		for r := range c.rows {
			c.rows[r] = append(c.rows[r], nil)
		}
	}
	for r, v := range values {
		c.rows[r][i] = normalize(v)
	}
	return c, nil
}

// Head returns a copy holding at most the first n rows.
func (f *Frame) Head(n int) *Frame {
	c := f.Clone()
	if n >= 0 && n < len(c.rows) {
		c.rows = c.rows[:n]
	}
	return c
}

// FormatFloat renders v in its shortest round-trip form.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case bool:
		if t {
			return float64(1)
		}
		return float64(0)
	default:
		return fmt.Sprint(t)
	}
}
