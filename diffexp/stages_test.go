package diffexp

import (
	"math"
	"testing"

	"github.com/carbocation/pseudobulk"
)

func longTable(t *testing.T, cells []struct {
	sample string
	gene   string
	count  float64
}) *pseudobulk.Table {
	t.Helper()

	tab, err := pseudobulk.NewTable([]string{SampleField, GeneField}, []string{CountField})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cells {
		if err := tab.AppendRow([]string{c.sample, c.gene}, []float64{c.count}); err != nil {
			t.Fatal(err)
		}
	}

	return tab
}

func TestNewMatrixPivots(t *testing.T) {
	tab := longTable(t, []struct {
		sample string
		gene   string
		count  float64
	}{
		{"s2", "g1", 3},
		{"s1", "g2", 5},
		{"s1", "g1", 1},
		{"s1", "g1", 1}, // duplicate cells are summed
	})

	m, err := NewMatrix(tab)
	if err != nil {
		t.Fatal(err)
	}

	if len(m.Samples) != 2 || m.Samples[0] != "s1" || m.Samples[1] != "s2" {
		t.Fatalf("Unexpected samples %v", m.Samples)
	}
	if len(m.Genes) != 2 || m.Genes[0] != "g1" || m.Genes[1] != "g2" {
		t.Fatalf("Unexpected genes %v", m.Genes)
	}

	for _, v := range []struct {
		i, j     int
		expected float64
	}{
		{0, 0, 2}, // s1 g1, summed
		{0, 1, 5}, // s1 g2
		{1, 0, 3}, // s2 g1
		{1, 1, 0}, // s2 g2, absent
	} {
		if got := m.Counts.At(v.i, v.j); got != v.expected {
			t.Fatalf("Counts(%d,%d): expected %f, got %f", v.i, v.j, v.expected, got)
		}
	}
}

func TestFilterAbundant(t *testing.T) {
	tab := longTable(t, []struct {
		sample string
		gene   string
		count  float64
	}{
		{"s1", "g1", 6}, {"s2", "g1", 7}, // abundant in both
		{"s1", "g2", 6}, {"s2", "g2", 0}, // abundant in one
		{"s1", "g3", 1}, {"s2", "g3", 2}, // abundant in none
	})

	out, err := FilterAbundant(5, 2)(tab)
	if err != nil {
		t.Fatal(err)
	}

	genes, err := out.KeyColumn(GeneField)
	if err != nil {
		t.Fatal(err)
	}
	if out.NRows() != 2 {
		t.Fatalf("Expected 2 surviving rows, got %d", out.NRows())
	}
	for _, g := range genes {
		if g != "g1" {
			t.Fatalf("Expected only g1 to survive, got %q", g)
		}
	}

	// A filter nothing survives yields an empty, well-formed table.
	empty, err := FilterAbundant(100, 2)(tab)
	if err != nil {
		t.Fatal(err)
	}
	if empty.NRows() != 0 {
		t.Fatalf("Expected 0 rows, got %d", empty.NRows())
	}
}

func TestSizeFactors(t *testing.T) {
	tab := longTable(t, []struct {
		sample string
		gene   string
		count  float64
	}{
		{"s1", "g1", 2}, {"s1", "g2", 4}, {"s1", "g3", 8},
		{"s2", "g1", 4}, {"s2", "g2", 8}, {"s2", "g3", 16},
	})

	m, err := NewMatrix(tab)
	if err != nil {
		t.Fatal(err)
	}

	factors, err := SizeFactors(m)
	if err != nil {
		t.Fatal(err)
	}

	if ratio := factors["s2"] / factors["s1"]; math.Abs(ratio-2) > 1e-12 {
		t.Fatalf("Expected s2 to be scaled 2x relative to s1, got %f", ratio)
	}
	if product := factors["s1"] * factors["s2"]; math.Abs(product-1) > 1e-12 {
		t.Fatalf("Expected geometric centering (product 1), got %f", product)
	}

	// With a zero in every gene, no reference feature exists.
	zeroTab := longTable(t, []struct {
		sample string
		gene   string
		count  float64
	}{
		{"s1", "g1", 0}, {"s2", "g1", 4},
		{"s1", "g2", 3}, {"s2", "g2", 0},
	})
	zm, err := NewMatrix(zeroTab)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SizeFactors(zm); err == nil {
		t.Fatal("Expected an error when no feature is nonzero everywhere")
	}
}

func TestNormalizeSizeFactors(t *testing.T) {
	tab := longTable(t, []struct {
		sample string
		gene   string
		count  float64
	}{
		{"s1", "g1", 2}, {"s1", "g2", 4},
		{"s2", "g1", 4}, {"s2", "g2", 8},
	})

	out, err := NormalizeSizeFactors()(tab)
	if err != nil {
		t.Fatal(err)
	}

	m, err := NewMatrix(out)
	if err != nil {
		t.Fatal(err)
	}

	// After scaling, both samples should have identical profiles.
	for j := range m.Genes {
		if a, b := m.Counts.At(0, j), m.Counts.At(1, j); math.Abs(a-b) > 1e-9 {
			t.Fatalf("Gene %s: expected equal normalized counts, got %f and %f", m.Genes[j], a, b)
		}
	}
}

func TestNormalizeCPM(t *testing.T) {
	tab := longTable(t, []struct {
		sample string
		gene   string
		count  float64
	}{
		{"s1", "g1", 2}, {"s1", "g2", 8},
	})

	out, err := NormalizeCPM(false)(tab)
	if err != nil {
		t.Fatal(err)
	}

	counts, err := out.ValueColumn(CountField)
	if err != nil {
		t.Fatal(err)
	}
	if counts[0] != 200000 || counts[1] != 800000 {
		t.Fatalf("Expected CPM [200000 800000], got %v", counts)
	}

	logged, err := NormalizeCPM(true)(tab)
	if err != nil {
		t.Fatal(err)
	}
	loggedCounts, err := logged.ValueColumn(CountField)
	if err != nil {
		t.Fatal(err)
	}
	if expected := math.Log2(200001); math.Abs(loggedCounts[0]-expected) > 1e-12 {
		t.Fatalf("Expected log2 CPM %f, got %f", expected, loggedCounts[0])
	}
}

func TestWelchTest(t *testing.T) {
	tab := longTable(t, []struct {
		sample string
		gene   string
		count  float64
	}{
		{"s1", "g1", 10}, {"s2", "g1", 12}, {"s3", "g1", 20}, {"s4", "g1", 22},
		{"s1", "g2", 5}, {"s2", "g2", 5}, {"s3", "g2", 5}, {"s4", "g2", 5},
		{"s1", "g3", 5}, {"s2", "g3", 5}, {"s3", "g3", 9}, {"s4", "g3", 9},
	})

	conditions := map[string]string{"s1": "ctrl", "s2": "ctrl", "s3": "treated", "s4": "treated"}

	out, err := WelchTest(conditions, "ctrl", "treated")(tab)
	if err != nil {
		t.Fatal(err)
	}

	if out.NRows() != 3 {
		t.Fatalf("Expected 3 genes, got %d", out.NRows())
	}

	genes, err := out.KeyColumn(GeneField)
	if err != nil {
		t.Fatal(err)
	}
	tstats, err := out.ValueColumn(TStatField)
	if err != nil {
		t.Fatal(err)
	}
	pvals, err := out.ValueColumn(PValueField)
	if err != nil {
		t.Fatal(err)
	}
	logFC, err := out.ValueColumn(Log2FCField)
	if err != nil {
		t.Fatal(err)
	}

	byGene := make(map[string]int)
	for i, g := range genes {
		byGene[g] = i
	}

	// g1: meanA=11 varA=2, meanB=21 varB=2, t=10/sqrt(2), df=2.
	// Truth values from R: t.test(c(10,12), c(20,22))
	g1 := byGene["g1"]
	if math.Abs(tstats[g1]-7.0710678) > 1e-6 {
		t.Fatalf("g1 t: expected 7.071068, got %f", tstats[g1])
	}
	if math.Abs(pvals[g1]-0.0194193) > 1e-4 {
		t.Fatalf("g1 p: expected 0.019419, got %f", pvals[g1])
	}
	if expected := math.Log2(21.5 / 11.5); math.Abs(logFC[g1]-expected) > 1e-12 {
		t.Fatalf("g1 log2FC: expected %f, got %f", expected, logFC[g1])
	}

	// g2 is constant everywhere.
	g2 := byGene["g2"]
	if tstats[g2] != 0 || pvals[g2] != 1 {
		t.Fatalf("g2: expected t=0 p=1, got t=%f p=%f", tstats[g2], pvals[g2])
	}

	// g3 is constant within each group but differs between them.
	g3 := byGene["g3"]
	if !math.IsInf(tstats[g3], 1) || pvals[g3] != 0 {
		t.Fatalf("g3: expected t=+Inf p=0, got t=%f p=%f", tstats[g3], pvals[g3])
	}

	// Too few samples per condition.
	if _, err := WelchTest(map[string]string{"s1": "ctrl", "s3": "treated", "s4": "treated"}, "ctrl", "treated")(tab); err == nil {
		t.Fatal("Expected an error with fewer than 2 samples per condition")
	}
}

func TestBenjaminiHochberg(t *testing.T) {
	p := []float64{0.1, 0.005, 0.05, 0.009}
	q := BenjaminiHochberg(p)

	expected := []float64{0.1, 0.018, 2.0 / 30, 0.018}
	for i := range expected {
		if math.Abs(q[i]-expected[i]) > 1e-12 {
			t.Fatalf("q[%d]: expected %f, got %f (all: %v)", i, expected[i], q[i], q)
		}
	}
}

func TestAdjustBH(t *testing.T) {
	tab, err := pseudobulk.NewTable([]string{GeneField}, []string{PValueField})
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range []float64{0.005, 0.009, 0.05, 0.1} {
		if err := tab.AppendRow([]string{string(rune('a' + i))}, []float64{p}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := AdjustBH()(tab)
	if err != nil {
		t.Fatal(err)
	}

	q, err := out.ValueColumn(QValueField)
	if err != nil {
		t.Fatal(err)
	}
	expected := []float64{0.018, 0.018, 2.0 / 30, 0.1}
	for i := range expected {
		if math.Abs(q[i]-expected[i]) > 1e-12 {
			t.Fatalf("q[%d]: expected %f, got %f", i, expected[i], q[i])
		}
	}

	// The source table must be left alone.
	if _, err := tab.ValueColumn(QValueField); err == nil {
		t.Fatal("AdjustBH mutated its input table")
	}
}
