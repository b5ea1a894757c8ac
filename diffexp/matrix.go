// Package diffexp provides the standard pseudobulk differential-expression
// stages: abundance filtering, size-factor and CPM normalization, per-feature
// Welch tests with Benjamini-Hochberg adjustment, gene set enrichment, and
// PCA, each usable as a grouprunner stage so the workflow runs independently
// per cell type.
package diffexp

import (
	"fmt"
	"sort"

	"github.com/carbocation/pseudobulk"
	"gonum.org/v1/gonum/mat"
)

// Column names shared by the long-format tables this package operates on.
const (
	SampleField = "sample_id"
	GeneField   = "gene"
	CountField  = "count"
)

// Matrix is a dense samples-by-genes view of a long-format pseudobulk table.
// Sample and gene labels are sorted; entries absent from the long table are
// zero, and duplicate (sample, gene) rows are summed.
type Matrix struct {
	Samples []string
	Genes   []string
	Counts  *mat.Dense
}

// NewMatrix pivots a long-format table (sample_id, gene, count) into a dense
// matrix.
func NewMatrix(t *pseudobulk.Table) (*Matrix, error) {
	samples, err := t.KeyColumn(SampleField)
	if err != nil {
		return nil, err
	}
	genes, err := t.KeyColumn(GeneField)
	if err != nil {
		return nil, err
	}
	counts, err := t.ValueColumn(CountField)
	if err != nil {
		return nil, err
	}
	if t.NRows() == 0 {
		return nil, pseudobulk.EmptyInputError{Operation: "pivot to matrix"}
	}

	sampleIdx := make(map[string]int)
	geneIdx := make(map[string]int)
	for i := range samples {
		if _, ok := sampleIdx[samples[i]]; !ok {
			sampleIdx[samples[i]] = 0
		}
		if _, ok := geneIdx[genes[i]]; !ok {
			geneIdx[genes[i]] = 0
		}
	}

	out := &Matrix{
		Samples: make([]string, 0, len(sampleIdx)),
		Genes:   make([]string, 0, len(geneIdx)),
	}
	for s := range sampleIdx {
		out.Samples = append(out.Samples, s)
	}
	for g := range geneIdx {
		out.Genes = append(out.Genes, g)
	}
	sort.Strings(out.Samples)
	sort.Strings(out.Genes)
	for i, s := range out.Samples {
		sampleIdx[s] = i
	}
	for i, g := range out.Genes {
		geneIdx[g] = i
	}

	out.Counts = mat.NewDense(len(out.Samples), len(out.Genes), nil)
	for i := range samples {
		r, c := sampleIdx[samples[i]], geneIdx[genes[i]]
		out.Counts.Set(r, c, out.Counts.At(r, c)+counts[i])
	}

	return out, nil
}

// Long converts the matrix back to a long-format table, one row per
// (sample, gene) cell.
func (m *Matrix) Long() (*pseudobulk.Table, error) {
	out, err := pseudobulk.NewTable([]string{SampleField, GeneField}, []string{CountField})
	if err != nil {
		return nil, err
	}

	for i, s := range m.Samples {
		for j, g := range m.Genes {
			if err := out.AppendRow([]string{s, g}, []float64{m.Counts.At(i, j)}); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// SampleRow returns the counts of one sample across all genes.
func (m *Matrix) SampleRow(i int) []float64 {
	_, c := m.Counts.Dims()
	out := make([]float64, c)
	mat.Row(out, i, m.Counts)

	return out
}

// GeneColumn returns the counts of one gene across all samples.
func (m *Matrix) GeneColumn(j int) []float64 {
	r, _ := m.Counts.Dims()
	out := make([]float64, r)
	mat.Col(out, j, m.Counts)

	return out
}

func (m *Matrix) String() string {
	r, c := m.Counts.Dims()
	return fmt.Sprintf("%d samples x %d genes", r, c)
}
