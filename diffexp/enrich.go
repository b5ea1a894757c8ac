package diffexp

import (
	"github.com/carbocation/pseudobulk"
	"github.com/carbocation/pseudobulk/grouprunner"
	fet "github.com/glycerine/golang-fisher-exact"
)

// Output columns of the enrichment stage.
const (
	SetField         = "gene_set"
	SetSizeField     = "set_size"
	SigInSetField    = "significant_in_set"
	EnrichmentPField = "p_value"
)

// GeneSet names a group of features to test for overrepresentation.
type GeneSet struct {
	Name  string
	Genes []string
}

// FisherEnrichment tests each gene set for overrepresentation among the
// features whose q_value falls below alpha, using a two-tailed Fisher exact
// test on the 2x2 table of set membership versus significance. Set members
// absent from the input table are ignored.
func FisherEnrichment(sets []GeneSet, alpha float64) grouprunner.Stage {
	return func(t *pseudobulk.Table) (*pseudobulk.Table, error) {
		genes, err := t.KeyColumn(GeneField)
		if err != nil {
			return nil, err
		}
		q, err := t.ValueColumn(QValueField)
		if err != nil {
			return nil, err
		}

		universe := make(map[string]bool, len(genes))
		significant := make(map[string]bool)
		for i, g := range genes {
			universe[g] = true
			if q[i] < alpha {
				significant[g] = true
			}
		}

		out, err := pseudobulk.NewTable(
			[]string{SetField},
			[]string{SetSizeField, SigInSetField, EnrichmentPField},
		)
		if err != nil {
			return nil, err
		}

		for _, set := range sets {
			inSetSig, inSetNot := 0, 0
			for _, g := range set.Genes {
				if !universe[g] {
					continue
				}
				if significant[g] {
					inSetSig++
				} else {
					inSetNot++
				}
			}

			setSize := inSetSig + inSetNot
			outSetSig := len(significant) - inSetSig
			outSetNot := len(universe) - len(significant) - inSetNot

			p := 1.0
			if setSize > 0 {
				_, _, _, p = fet.FisherExactTest(inSetSig, inSetNot, outSetSig, outSetNot)
			}

			row := []float64{float64(setSize), float64(inSetSig), p}
			if err := out.AppendRow([]string{set.Name}, row); err != nil {
				return nil, err
			}
		}

		return out, nil
	}
}
