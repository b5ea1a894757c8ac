package pseudobulk

import (
	"fmt"
	"sort"
)

// Table is a column-oriented table with string-valued key columns (sample
// identifiers, cell type labels, gene names, and other categorical metadata)
// and float64-valued value columns (counts and statistics). All columns have
// the same length and column names are unique across both kinds.
type Table struct {
	keyNames   []string
	valueNames []string
	keyCols    [][]string
	valueCols  [][]float64
	nrows      int
}

// NewTable creates an empty table with the given key and value column names.
func NewTable(keyNames, valueNames []string) (*Table, error) {
	seen := make(map[string]struct{}, len(keyNames)+len(valueNames))
	for _, name := range keyNames {
		if name == "" {
			return nil, fmt.Errorf("column names may not be empty")
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = struct{}{}
	}
	for _, name := range valueNames {
		if name == "" {
			return nil, fmt.Errorf("column names may not be empty")
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = struct{}{}
	}

	return &Table{
		keyNames:   append([]string{}, keyNames...),
		valueNames: append([]string{}, valueNames...),
		keyCols:    make([][]string, len(keyNames)),
		valueCols:  make([][]float64, len(valueNames)),
	}, nil
}

func (t *Table) NRows() int {
	return t.nrows
}

func (t *Table) KeyNames() []string {
	return append([]string{}, t.keyNames...)
}

func (t *Table) ValueNames() []string {
	return append([]string{}, t.valueNames...)
}

func (t *Table) keyIndex(name string) (int, bool) {
	for i, n := range t.keyNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) valueIndex(name string) (int, bool) {
	for i, n := range t.valueNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// AppendRow adds one row. keys and values must match the column counts in
// declaration order.
func (t *Table) AppendRow(keys []string, values []float64) error {
	if len(keys) != len(t.keyNames) || len(values) != len(t.valueNames) {
		return fmt.Errorf("expected %d keys and %d values, got %d and %d",
			len(t.keyNames), len(t.valueNames), len(keys), len(values))
	}

	for i := range keys {
		t.keyCols[i] = append(t.keyCols[i], keys[i])
	}
	for i := range values {
		t.valueCols[i] = append(t.valueCols[i], values[i])
	}
	t.nrows++

	return nil
}

// KeyColumn returns the contents of the named key column. The returned slice
// is shared with the table; callers that need to modify it must copy it.
func (t *Table) KeyColumn(name string) ([]string, error) {
	i, ok := t.keyIndex(name)
	if !ok {
		return nil, SchemaError{Field: name}
	}
	return t.keyCols[i], nil
}

// ValueColumn returns the contents of the named value column. The returned
// slice is shared with the table; callers that need to modify it must copy
// it.
func (t *Table) ValueColumn(name string) ([]float64, error) {
	i, ok := t.valueIndex(name)
	if !ok {
		return nil, SchemaError{Field: name}
	}
	return t.valueCols[i], nil
}

// Row returns copies of the key and value fields of row i.
func (t *Table) Row(i int) ([]string, []float64) {
	keys := make([]string, len(t.keyNames))
	for c := range t.keyCols {
		keys[c] = t.keyCols[c][i]
	}
	values := make([]float64, len(t.valueNames))
	for c := range t.valueCols {
		values[c] = t.valueCols[c][i]
	}
	return keys, values
}

// SetValue replaces the value at the given row of the named value column.
func (t *Table) SetValue(name string, row int, v float64) error {
	i, ok := t.valueIndex(name)
	if !ok {
		return SchemaError{Field: name}
	}
	if row < 0 || row >= t.nrows {
		return fmt.Errorf("row %d out of range (table has %d rows)", row, t.nrows)
	}
	t.valueCols[i][row] = v

	return nil
}

// AddValueColumn appends a new value column whose length must equal the
// current row count. The values are copied.
func (t *Table) AddValueColumn(name string, values []float64) error {
	if name == "" {
		return fmt.Errorf("column names may not be empty")
	}
	if _, exists := t.keyIndex(name); exists {
		return fmt.Errorf("duplicate column name %q", name)
	}
	if _, exists := t.valueIndex(name); exists {
		return fmt.Errorf("duplicate column name %q", name)
	}
	if len(values) != t.nrows {
		return fmt.Errorf("column %q has %d values but the table has %d rows", name, len(values), t.nrows)
	}

	t.valueNames = append(t.valueNames, name)
	t.valueCols = append(t.valueCols, append([]float64{}, values...))

	return nil
}

// Select returns a new table containing the given rows, in order. The new
// table shares no storage with the original.
func (t *Table) Select(rows []int) (*Table, error) {
	out, err := NewTable(t.keyNames, t.valueNames)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		if r < 0 || r >= t.nrows {
			return nil, fmt.Errorf("row %d out of range (table has %d rows)", r, t.nrows)
		}
		keys, values := t.Row(r)
		if err := out.AppendRow(keys, values); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		keyNames:   append([]string{}, t.keyNames...),
		valueNames: append([]string{}, t.valueNames...),
		keyCols:    make([][]string, len(t.keyCols)),
		valueCols:  make([][]float64, len(t.valueCols)),
		nrows:      t.nrows,
	}
	for i := range t.keyCols {
		out.keyCols[i] = append([]string{}, t.keyCols[i]...)
	}
	for i := range t.valueCols {
		out.valueCols[i] = append([]float64{}, t.valueCols[i]...)
	}

	return out
}

// Equal reports whether two tables have the same schema and the same cell
// contents in the same row order. Float comparison is exact; NaN != NaN.
func (t *Table) Equal(o *Table) bool {
	if o == nil || t.nrows != o.nrows ||
		len(t.keyNames) != len(o.keyNames) || len(t.valueNames) != len(o.valueNames) {
		return false
	}
	for i := range t.keyNames {
		if t.keyNames[i] != o.keyNames[i] {
			return false
		}
	}
	for i := range t.valueNames {
		if t.valueNames[i] != o.valueNames[i] {
			return false
		}
	}
	for c := range t.keyCols {
		for r := 0; r < t.nrows; r++ {
			if t.keyCols[c][r] != o.keyCols[c][r] {
				return false
			}
		}
	}
	for c := range t.valueCols {
		for r := 0; r < t.nrows; r++ {
			if t.valueCols[c][r] != o.valueCols[c][r] {
				return false
			}
		}
	}

	return true
}

// PartitionBy splits the table by the distinct values of the named key
// column. Each partition is an independent copy, so downstream work on one
// partition can never observe or mutate another's data. The returned key list
// is sorted.
func (t *Table) PartitionBy(name string) (map[string]*Table, []string, error) {
	i, ok := t.keyIndex(name)
	if !ok {
		return nil, nil, SchemaError{Field: name}
	}

	rowsByKey := make(map[string][]int)
	keys := make([]string, 0)
	for r := 0; r < t.nrows; r++ {
		k := t.keyCols[i][r]
		if _, seen := rowsByKey[k]; !seen {
			keys = append(keys, k)
		}
		rowsByKey[k] = append(rowsByKey[k], r)
	}
	sort.Strings(keys)

	out := make(map[string]*Table, len(keys))
	for _, k := range keys {
		sub, err := t.Select(rowsByKey[k])
		if err != nil {
			return nil, nil, err
		}
		out[k] = sub
	}

	return out, keys, nil
}
