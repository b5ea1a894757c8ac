package diffexp

import (
	"fmt"
	"math"
	"sort"

	"github.com/carbocation/pseudobulk"
	"github.com/carbocation/pseudobulk/grouprunner"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Output columns of the Welch test stage.
const (
	MeanAField  = "mean_a"
	MeanBField  = "mean_b"
	BaseMean    = "base_mean"
	Log2FCField = "log2_fold_change"
	TStatField  = "t_statistic"
	PValueField = "p_value"
	QValueField = "q_value"
)

// Fold changes are computed on means offset by a half-count pseudocount so
// that unexpressed genes don't divide by zero.
const pseudocount = 0.5

// FilterAbundant keeps features whose count is at least minCount in at least
// minSamples pseudobulk samples, dropping the remaining rows. A partition in
// which no feature passes yields an empty table; whether that partition is
// kept or skipped is the runner's choice.
func FilterAbundant(minCount float64, minSamples int) grouprunner.Stage {
	return func(t *pseudobulk.Table) (*pseudobulk.Table, error) {
		m, err := NewMatrix(t)
		if err != nil {
			return nil, err
		}

		nSamples, nGenes := m.Counts.Dims()
		keep := make(map[string]bool, nGenes)
		for j := 0; j < nGenes; j++ {
			n := 0
			for i := 0; i < nSamples; i++ {
				if m.Counts.At(i, j) >= minCount {
					n++
				}
			}
			if n >= minSamples {
				keep[m.Genes[j]] = true
			}
		}

		genes, err := t.KeyColumn(GeneField)
		if err != nil {
			return nil, err
		}

		rows := make([]int, 0, len(genes))
		for i, g := range genes {
			if keep[g] {
				rows = append(rows, i)
			}
		}

		return t.Select(rows)
	}
}

// SizeFactors computes DESeq-style median-of-ratios scaling factors per
// sample: each sample's counts are compared against a reference built from
// the geometric mean of every feature that is nonzero in all samples.
func SizeFactors(m *Matrix) (map[string]float64, error) {
	nSamples, nGenes := m.Counts.Dims()

	// Log-scale geometric mean per gene; genes with a zero anywhere can't
	// contribute to the reference.
	logRef := make([]float64, 0, nGenes)
	refCols := make([]int, 0, nGenes)
	for j := 0; j < nGenes; j++ {
		sumLog := 0.0
		usable := true
		for i := 0; i < nSamples; i++ {
			v := m.Counts.At(i, j)
			if v <= 0 {
				usable = false
				break
			}
			sumLog += math.Log(v)
		}
		if usable {
			logRef = append(logRef, sumLog/float64(nSamples))
			refCols = append(refCols, j)
		}
	}

	if len(refCols) == 0 {
		return nil, fmt.Errorf("no feature is nonzero in every sample; cannot compute size factors")
	}

	out := make(map[string]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		logRatios := make([]float64, len(refCols))
		for x, j := range refCols {
			logRatios[x] = math.Log(m.Counts.At(i, j)) - logRef[x]
		}
		med, err := stats.Median(logRatios)
		if err != nil {
			return nil, err
		}
		out[m.Samples[i]] = math.Exp(med)
	}

	return out, nil
}

// NormalizeSizeFactors divides each sample's counts by its median-of-ratios
// size factor.
func NormalizeSizeFactors() grouprunner.Stage {
	return func(t *pseudobulk.Table) (*pseudobulk.Table, error) {
		m, err := NewMatrix(t)
		if err != nil {
			return nil, err
		}

		factors, err := SizeFactors(m)
		if err != nil {
			return nil, err
		}

		samples, err := t.KeyColumn(SampleField)
		if err != nil {
			return nil, err
		}
		counts, err := t.ValueColumn(CountField)
		if err != nil {
			return nil, err
		}

		out := t.Clone()
		for i := range counts {
			if err := out.SetValue(CountField, i, counts[i]/factors[samples[i]]); err != nil {
				return nil, err
			}
		}

		return out, nil
	}
}

// NormalizeCPM rescales each sample's counts to counts per million, with an
// optional log2(x+1) transform.
func NormalizeCPM(logTransform bool) grouprunner.Stage {
	return func(t *pseudobulk.Table) (*pseudobulk.Table, error) {
		samples, err := t.KeyColumn(SampleField)
		if err != nil {
			return nil, err
		}
		counts, err := t.ValueColumn(CountField)
		if err != nil {
			return nil, err
		}

		totals := make(map[string]float64)
		for i := range counts {
			totals[samples[i]] += counts[i]
		}

		out := t.Clone()
		for i, v := range counts {
			total := totals[samples[i]]
			if total == 0 {
				return nil, fmt.Errorf("sample %q has zero total counts", samples[i])
			}
			scaled := v * 1e6 / total
			if logTransform {
				scaled = math.Log2(scaled + 1)
			}
			if err := out.SetValue(CountField, i, scaled); err != nil {
				return nil, err
			}
		}

		return out, nil
	}
}

// WelchTest runs a per-feature two-sided Welch t-test between the samples
// labeled condA and those labeled condB in conditions (sample_id ->
// condition). Samples with any other label are ignored. The result table has
// one row per feature with means, log2 fold change (B over A), t statistic,
// and p value.
func WelchTest(conditions map[string]string, condA, condB string) grouprunner.Stage {
	return func(t *pseudobulk.Table) (*pseudobulk.Table, error) {
		m, err := NewMatrix(t)
		if err != nil {
			return nil, err
		}

		var aIdx, bIdx []int
		for i, s := range m.Samples {
			switch conditions[s] {
			case condA:
				aIdx = append(aIdx, i)
			case condB:
				bIdx = append(bIdx, i)
			}
		}

		if len(aIdx) < 2 || len(bIdx) < 2 {
			return nil, fmt.Errorf("need at least 2 samples per condition: %q has %d, %q has %d",
				condA, len(aIdx), condB, len(bIdx))
		}

		out, err := pseudobulk.NewTable(
			[]string{GeneField},
			[]string{BaseMean, MeanAField, MeanBField, Log2FCField, TStatField, PValueField},
		)
		if err != nil {
			return nil, err
		}

		na, nb := float64(len(aIdx)), float64(len(bIdx))
		for j, gene := range m.Genes {
			a := make([]float64, len(aIdx))
			for x, i := range aIdx {
				a[x] = m.Counts.At(i, j)
			}
			b := make([]float64, len(bIdx))
			for x, i := range bIdx {
				b[x] = m.Counts.At(i, j)
			}

			meanA, varA := stat.MeanVariance(a, nil)
			meanB, varB := stat.MeanVariance(b, nil)

			tstat, p := welch(meanA, varA, na, meanB, varB, nb)

			baseMean := (meanA*na + meanB*nb) / (na + nb)
			logFC := math.Log2((meanB + pseudocount) / (meanA + pseudocount))

			row := []float64{baseMean, meanA, meanB, logFC, tstat, p}
			if err := out.AppendRow([]string{gene}, row); err != nil {
				return nil, err
			}
		}

		return out, nil
	}
}

func welch(meanA, varA, na, meanB, varB, nb float64) (tstat, p float64) {
	seSq := varA/na + varB/nb

	if seSq == 0 {
		// Both groups are constant.
		if meanA == meanB {
			return 0, 1
		}
		if meanB > meanA {
			return math.Inf(1), 0
		}
		return math.Inf(-1), 0
	}

	tstat = (meanB - meanA) / math.Sqrt(seSq)

	// Welch-Satterthwaite degrees of freedom
	df := seSq * seSq / (varA*varA/(na*na*(na-1)) + varB*varB/(nb*nb*(nb-1)))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * dist.CDF(-math.Abs(tstat))

	return tstat, p
}

// AdjustBH appends Benjamini-Hochberg adjusted p values (the q_value column)
// to a table carrying a p_value column.
func AdjustBH() grouprunner.Stage {
	return func(t *pseudobulk.Table) (*pseudobulk.Table, error) {
		p, err := t.ValueColumn(PValueField)
		if err != nil {
			return nil, err
		}

		out := t.Clone()
		if err := out.AddValueColumn(QValueField, BenjaminiHochberg(p)); err != nil {
			return nil, err
		}

		return out, nil
	}
}

// BenjaminiHochberg returns FDR-adjusted p values in the input order.
func BenjaminiHochberg(p []float64) []float64 {
	n := len(p)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return p[order[i]] < p[order[j]] })

	q := make([]float64, n)
	running := 1.0
	for rank := n - 1; rank >= 0; rank-- {
		i := order[rank]
		v := p[i] * float64(n) / float64(rank+1)
		if v < running {
			running = v
		}
		q[i] = running
	}

	return q
}
