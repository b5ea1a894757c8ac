package pseudobulk

import (
	"errors"
	"math"
	"testing"
)

func makeObservations(t *testing.T) *Table {
	t.Helper()

	obs, err := NewTable([]string{"sample_id", "cell_type", "gene"}, []string{"count"})
	if err != nil {
		t.Fatal(err)
	}

	rows := []struct {
		keys  []string
		count float64
	}{
		{[]string{"s1", "tcell", "ACTB"}, 1},
		{[]string{"s1", "tcell", "ACTB"}, 2},
		{[]string{"s1", "tcell", "CD3E"}, 5},
		{[]string{"s1", "bcell", "ACTB"}, 7},
		{[]string{"s2", "tcell", "ACTB"}, 3},
		{[]string{"s2", "bcell", "CD19"}, 4},
		{[]string{"s2", "bcell", "CD19"}, 6},
	}
	for _, r := range rows {
		if err := obs.AppendRow(r.keys, []float64{r.count}); err != nil {
			t.Fatal(err)
		}
	}

	return obs
}

func TestAggregateWorkedExample(t *testing.T) {
	obs, err := NewTable([]string{"group", "treatment"}, []string{"value"})
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range []struct {
		treatment string
		value     float64
	}{
		{"x", 1},
		{"x", 2},
		{"y", 3},
	} {
		if err := obs.AppendRow([]string{"A", row.treatment}, []float64{row.value}); err != nil {
			t.Fatal(err)
		}
	}

	agg, err := Aggregate(obs, []string{"group", "treatment"}, []string{"value"}, Sum)
	if err != nil {
		t.Fatal(err)
	}

	if agg.NRows() != 2 {
		t.Fatalf("Expected 2 aggregated rows, got %d", agg.NRows())
	}

	values, err := agg.ValueColumn("value")
	if err != nil {
		t.Fatal(err)
	}
	treatments, err := agg.KeyColumn("treatment")
	if err != nil {
		t.Fatal(err)
	}

	for i, treatment := range treatments {
		if values[i] != 3 {
			t.Fatalf("Partition %q: expected 3, got %f", treatment, values[i])
		}
	}
}

func TestAggregateRowCountEqualsDistinctTuples(t *testing.T) {
	obs := makeObservations(t)

	for _, v := range []struct {
		keys     []string
		expected int
	}{
		{[]string{"sample_id"}, 2},
		{[]string{"cell_type"}, 2},
		{[]string{"sample_id", "cell_type"}, 4},
		{[]string{"sample_id", "cell_type", "gene"}, 6},
	} {
		agg, err := Aggregate(obs, v.keys, []string{"count"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if agg.NRows() != v.expected {
			t.Fatalf("Grouping by %v: expected %d rows, got %d", v.keys, v.expected, agg.NRows())
		}
	}
}

func TestAggregateIdempotentUnderMax(t *testing.T) {
	obs := makeObservations(t)
	keys := []string{"sample_id", "cell_type"}

	once, err := Aggregate(obs, keys, []string{"count"}, Max)
	if err != nil {
		t.Fatal(err)
	}

	twice, err := Aggregate(once, keys, []string{"count"}, Max)
	if err != nil {
		t.Fatal(err)
	}

	if !once.Equal(twice) {
		t.Fatalf("Re-aggregating with max changed the table:\nonce: %+v\ntwice: %+v", once, twice)
	}
}

func TestAggregateStableAcrossInputOrder(t *testing.T) {
	obs := makeObservations(t)

	reversed, err := NewTable(obs.KeyNames(), obs.ValueNames())
	if err != nil {
		t.Fatal(err)
	}
	for i := obs.NRows() - 1; i >= 0; i-- {
		keys, values := obs.Row(i)
		if err := reversed.AppendRow(keys, values); err != nil {
			t.Fatal(err)
		}
	}

	a, err := Aggregate(obs, []string{"sample_id", "gene"}, []string{"count"}, Sum)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Aggregate(reversed, []string{"sample_id", "gene"}, []string{"count"}, Sum)
	if err != nil {
		t.Fatal(err)
	}

	if !a.Equal(b) {
		t.Fatal("Aggregation depended on input row order")
	}
}

func TestAggregateSchemaError(t *testing.T) {
	obs := makeObservations(t)

	for _, v := range []struct {
		groupKeys   []string
		valueFields []string
		field       string
	}{
		{[]string{"donor"}, []string{"count"}, "donor"},
		{[]string{"sample_id"}, []string{"umis"}, "umis"},
		// A value column is not usable as a grouping key.
		{[]string{"count"}, []string{"count"}, "count"},
	} {
		_, err := Aggregate(obs, v.groupKeys, v.valueFields, nil)
		var schemaErr SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("Grouping by %v on %v: expected SchemaError, got %v", v.groupKeys, v.valueFields, err)
		}
		if schemaErr.Field != v.field {
			t.Fatalf("Expected SchemaError for %q, got %q", v.field, schemaErr.Field)
		}
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	empty, err := NewTable([]string{"sample_id"}, []string{"count"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = Aggregate(empty, []string{"sample_id"}, []string{"count"}, nil)
	var emptyErr EmptyInputError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("Expected EmptyInputError, got %v", err)
	}
}

func TestReducers(t *testing.T) {
	values := []float64{4, 1, 3, 2}

	for _, v := range []struct {
		name     string
		expected float64
	}{
		{"sum", 10},
		{"mean", 2.5},
		{"max", 4},
		{"min", 1},
		{"median", 2.5},
	} {
		reducer, err := ReducerByName(v.name)
		if err != nil {
			t.Fatal(err)
		}
		if got := reducer(append([]float64{}, values...)); math.Abs(got-v.expected) > 1e-12 {
			t.Fatalf("%s(%v): expected %f, got %f", v.name, values, v.expected, got)
		}
	}

	if got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); math.Abs(got-2.138089935299395) > 1e-9 {
		t.Fatalf("StdDev: expected sample standard deviation 2.138, got %f", got)
	}

	if _, err := ReducerByName("mode"); err == nil {
		t.Fatal("Expected an error for an unknown reducer name")
	}
}
