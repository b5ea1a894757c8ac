// diffexp runs a standard pseudobulk differential-expression workflow
// independently for each cell type of a pseudobulk counts table: abundance
// filtering, median-of-ratios normalization, a per-gene Welch test between
// two conditions, and Benjamini-Hochberg adjustment. It writes one
// tab-delimited result table per cell type, with optional gene set
// enrichment, volcano/MA plots, and PCA of the normalized counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pseudobulk"
	_ "github.com/carbocation/pseudobulk/compileinfoprint"
	"github.com/carbocation/pseudobulk/diffexp"
	"github.com/carbocation/pseudobulk/grouprunner"
)

type options struct {
	pseudobulkPath string
	metaPath       string
	geneSetsPath   string
	splitKey       string
	condA, condB   string
	minCount       float64
	minSamples     int
	alpha          float64
	mode           string
	parallel       int
	skipEmpty      bool
	outDir         string
	plots          bool
}

func main() {
	var opts options

	flag.StringVar(&opts.pseudobulkPath, "pseudobulk", "", "Pseudobulk counts table with sample_id, cell_type, gene, and count columns (output of the pseudobulk tool). Local path, http(s) URL, or gs:// path.")
	flag.StringVar(&opts.metaPath, "meta", "", "Sample metadata file with sample_id and condition columns (batch optional).")
	flag.StringVar(&opts.geneSetsPath, "genesets", "", "Optional tab-delimited gene set file with gene_set and gene columns; enables Fisher enrichment per cell type.")
	flag.StringVar(&opts.splitKey, "split", "cell_type", "Key column whose distinct values are analyzed independently.")
	flag.StringVar(&opts.condA, "condition-a", "", "Reference condition label.")
	flag.StringVar(&opts.condB, "condition-b", "", "Comparison condition label.")
	flag.Float64Var(&opts.minCount, "min-count", 10, "A gene is abundant if it has at least this many counts...")
	flag.IntVar(&opts.minSamples, "min-samples", 2, "...in at least this many pseudobulk samples.")
	flag.Float64Var(&opts.alpha, "alpha", 0.05, "Adjusted p-value cutoff used for plots and enrichment.")
	flag.StringVar(&opts.mode, "mode", "fail-fast", "Failure policy across cell types: fail-fast or best-effort.")
	flag.IntVar(&opts.parallel, "parallel", runtime.NumCPU(), "Number of cell types to process concurrently.")
	flag.BoolVar(&opts.skipEmpty, "skip-empty", false, "Drop cell types in which no gene survives the abundance filter, instead of emitting an empty result.")
	flag.StringVar(&opts.outDir, "out", "./", "Directory for result tables and plots.")
	flag.BoolVar(&opts.plots, "plots", false, "Render volcano and MA plots per cell type, plus PCA of log-CPM counts.")

	flag.Parse()

	if opts.pseudobulkPath == "" || opts.metaPath == "" || opts.condA == "" || opts.condB == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		log.Fatalln(err)
	}
}

func run(opts options) error {
	var mode grouprunner.Mode
	switch opts.mode {
	case "fail-fast":
		mode = grouprunner.FailFast
	case "best-effort":
		mode = grouprunner.BestEffort
	default:
		return fmt.Errorf("unknown mode %q (want fail-fast or best-effort)", opts.mode)
	}

	var client *storage.Client
	for _, path := range []string{opts.pseudobulkPath, opts.metaPath, opts.geneSetsPath} {
		if strings.HasPrefix(path, "gs://") {
			var err error
			client, err = storage.NewClient(context.Background())
			if err != nil {
				return err
			}
			break
		}
	}

	table, err := pseudobulk.ReadTable(opts.pseudobulkPath, []string{diffexp.CountField}, 0, client)
	if err != nil {
		return err
	}
	log.Println("Read", table.NRows(), "pseudobulk rows from", opts.pseudobulkPath)

	conditions, err := ImportSampleMeta(opts.metaPath, client)
	if err != nil {
		return err
	}

	var geneSets []diffexp.GeneSet
	if opts.geneSetsPath != "" {
		geneSets, err = ImportGeneSets(opts.geneSetsPath, client)
		if err != nil {
			return err
		}
		log.Println("Read", len(geneSets), "gene sets")
	}

	runner := grouprunner.Runner{Mode: mode, MaxParallel: opts.parallel, SkipEmpty: opts.skipEmpty}

	stages := []grouprunner.Stage{
		diffexp.FilterAbundant(opts.minCount, opts.minSamples),
		diffexp.NormalizeSizeFactors(),
		diffexp.WelchTest(conditions, opts.condA, opts.condB),
		diffexp.AdjustBH(),
	}

	results, failures, err := runner.Run(table, opts.splitKey, stages)
	if err != nil {
		return err
	}
	for _, f := range failures {
		log.Println("Cell type failed:", f)
	}

	for _, key := range sortedKeys(results) {
		de := results[key]

		outPath := filepath.Join(opts.outDir, "de_"+sanitize(key)+".tsv")
		if err := writeTableFile(outPath, de); err != nil {
			return err
		}
		log.Println("Wrote", de.NRows(), "gene results for", key, "to", outPath)

		if len(geneSets) > 0 && de.NRows() > 0 {
			enrich := diffexp.FisherEnrichment(geneSets, opts.alpha)
			enr, err := enrich(de)
			if err != nil {
				return err
			}
			enrPath := filepath.Join(opts.outDir, "enrichment_"+sanitize(key)+".tsv")
			if err := writeTableFile(enrPath, enr); err != nil {
				return err
			}
		}

		if opts.plots && de.NRows() > 0 {
			if err := diffexp.VolcanoPlot(filepath.Join(opts.outDir, "volcano_"+sanitize(key)+".png"), de, opts.alpha); err != nil {
				return err
			}
			if err := diffexp.MAPlot(filepath.Join(opts.outDir, "ma_"+sanitize(key)+".png"), de); err != nil {
				return err
			}
		}
	}

	if opts.plots {
		return plotPCA(table, opts, runner)
	}

	return nil
}

// plotPCA renders per-cell-type PCA of the abundant, log-CPM-normalized
// counts, which is diagnostic of sample-level structure rather than of any
// single gene.
func plotPCA(table *pseudobulk.Table, opts options, runner grouprunner.Runner) error {
	normStages := []grouprunner.Stage{
		diffexp.FilterAbundant(opts.minCount, opts.minSamples),
		diffexp.NormalizeCPM(true),
	}

	normalized, failures, err := runner.Run(table, opts.splitKey, normStages)
	if err != nil {
		return err
	}
	for _, f := range failures {
		log.Println("Cell type failed during normalization:", f)
	}

	for _, key := range sortedKeys(normalized) {
		norm := normalized[key]
		if norm.NRows() == 0 {
			continue
		}

		res, err := diffexp.ComputePCA(norm, 10)
		if err != nil {
			// PCA needs at least two samples; an undersized cell type is not
			// fatal to the rest of the report.
			log.Println("Skipping PCA for", key, ":", err)
			continue
		}
		if len(res.ExplainedVariance) < 2 {
			continue
		}

		if err := diffexp.PCAPlot(filepath.Join(opts.outDir, "pca_"+sanitize(key)+".png"), res); err != nil {
			return err
		}
		if err := diffexp.ScreePlot(filepath.Join(opts.outDir, "scree_"+sanitize(key)+".png"), res); err != nil {
			return err
		}
	}

	return nil
}

func writeTableFile(path string, t *pseudobulk.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return pseudobulk.WriteTable(f, t)
}

func sortedKeys(m map[string]*pseudobulk.Table) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, key)
}
