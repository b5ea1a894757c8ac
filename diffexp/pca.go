package diffexp

import (
	"fmt"

	"github.com/carbocation/pseudobulk"
	"github.com/carbocation/pseudobulk/grouprunner"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCAResult holds per-sample principal component scores and the fraction of
// variance each component explains.
type PCAResult struct {
	Scores            *pseudobulk.Table
	ExplainedVariance []float64
}

// ComputePCA projects the samples of a long-format table (usually normalized,
// log-scale counts) onto their first k principal components. k is clamped to
// the number of available components.
func ComputePCA(t *pseudobulk.Table, k int) (*PCAResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("need at least 1 component, got %d", k)
	}

	m, err := NewMatrix(t)
	if err != nil {
		return nil, err
	}

	nSamples, nGenes := m.Counts.Dims()
	if nSamples < 2 {
		return nil, fmt.Errorf("need at least 2 samples for PCA, got %d", nSamples)
	}

	// Center each gene on its mean across samples.
	centered := mat.NewDense(nSamples, nGenes, nil)
	col := make([]float64, nSamples)
	for j := 0; j < nGenes; j++ {
		mat.Col(col, j, m.Counts)
		mean := stat.Mean(col, nil)
		for i := 0; i < nSamples; i++ {
			centered.Set(i, j, col[i]-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD failed to converge")
	}

	var u mat.Dense
	svd.UTo(&u)
	singular := svd.Values(nil)

	if k > len(singular) {
		k = len(singular)
	}

	total := 0.0
	for _, s := range singular {
		total += s * s
	}

	explained := make([]float64, k)
	for c := 0; c < k; c++ {
		if total > 0 {
			explained[c] = singular[c] * singular[c] / total
		}
	}

	valueNames := make([]string, k)
	for c := 0; c < k; c++ {
		valueNames[c] = fmt.Sprintf("pc%d", c+1)
	}

	scores, err := pseudobulk.NewTable([]string{SampleField}, valueNames)
	if err != nil {
		return nil, err
	}

	for i, sample := range m.Samples {
		row := make([]float64, k)
		for c := 0; c < k; c++ {
			row[c] = u.At(i, c) * singular[c]
		}
		if err := scores.AppendRow([]string{sample}, row); err != nil {
			return nil, err
		}
	}

	return &PCAResult{Scores: scores, ExplainedVariance: explained}, nil
}

// PCAStage wraps ComputePCA as a pipeline stage, yielding the score table.
func PCAStage(k int) grouprunner.Stage {
	return func(t *pseudobulk.Table) (*pseudobulk.Table, error) {
		res, err := ComputePCA(t, k)
		if err != nil {
			return nil, err
		}
		return res.Scores, nil
	}
}
