package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/pseudobulk"
	"github.com/carbocation/pseudobulk/diffexp"
)

const (
	geneSetNameColumn = iota
	geneSetGeneColumn
)

// ImportGeneSets reads a two-column tab-delimited file (gene_set, gene), one
// member gene per line, into named gene sets sorted by set name.
func ImportGeneSets(path string, client *storage.Client) ([]diffexp.GeneSet, error) {
	rc, err := pseudobulk.Open(path, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.Comma = '\t'

	byName := make(map[string][]string)
	for i := 0; ; i++ {
		line, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		if i == 0 {
			// Skip the header
			continue
		}

		if len(line) < 2 {
			return nil, fmt.Errorf("gene set file %s line %d: expected 2 columns, got %d", path, i+1, len(line))
		}

		byName[line[geneSetNameColumn]] = append(byName[line[geneSetNameColumn]], line[geneSetGeneColumn])
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]diffexp.GeneSet, 0, len(names))
	for _, name := range names {
		out = append(out, diffexp.GeneSet{Name: name, Genes: byName[name]})
	}

	return out, nil
}
