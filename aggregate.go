package pseudobulk

import (
	"sort"
	"strings"
)

// compositeKeySep joins key fields into partition map keys. The ASCII unit
// separator should never appear in real sample, cell type, or gene labels.
const compositeKeySep = "\x1f"

// Aggregate collapses observations into one row per distinct combination of
// groupKeys values, reducing each of valueFields with reducer. A nil reducer
// sums. Grouping is order-independent over the input rows; the output is
// sorted by the group key tuple so that identical input always yields an
// identical table.
func Aggregate(obs *Table, groupKeys, valueFields []string, reducer Reducer) (*Table, error) {
	if obs == nil || obs.NRows() == 0 {
		return nil, EmptyInputError{Operation: "aggregate"}
	}
	if reducer == nil {
		reducer = Sum
	}

	keyIdx := make([]int, len(groupKeys))
	for i, name := range groupKeys {
		idx, ok := obs.keyIndex(name)
		if !ok {
			return nil, SchemaError{Field: name}
		}
		keyIdx[i] = idx
	}

	valIdx := make([]int, len(valueFields))
	for i, name := range valueFields {
		idx, ok := obs.valueIndex(name)
		if !ok {
			return nil, SchemaError{Field: name}
		}
		valIdx[i] = idx
	}

	type partition struct {
		keys []string
		rows []int
	}

	parts := make(map[string]*partition)
	composites := make([]string, 0)
	for r := 0; r < obs.nrows; r++ {
		keys := make([]string, len(keyIdx))
		for i, idx := range keyIdx {
			keys[i] = obs.keyCols[idx][r]
		}
		composite := strings.Join(keys, compositeKeySep)

		p, ok := parts[composite]
		if !ok {
			p = &partition{keys: keys}
			parts[composite] = p
			composites = append(composites, composite)
		}
		p.rows = append(p.rows, r)
	}

	sort.Strings(composites)

	out, err := NewTable(groupKeys, valueFields)
	if err != nil {
		return nil, err
	}

	for _, composite := range composites {
		p := parts[composite]

		reduced := make([]float64, len(valIdx))
		for i, idx := range valIdx {
			values := make([]float64, 0, len(p.rows))
			for _, r := range p.rows {
				values = append(values, obs.valueCols[idx][r])
			}
			reduced[i] = reducer(values)
		}

		if err := out.AppendRow(p.keys, reduced); err != nil {
			return nil, err
		}
	}

	return out, nil
}
