// pseudobulk collapses a long-format table of per-cell measurements (one row
// per cell per gene) into pseudobulk profiles: one aggregated value per
// group, where the grouping keys are typically the sample identifier, the
// cell type label, and the gene. Input may be a local file, an http(s) URL,
// or a gs:// path, optionally compressed; the delimiter is sniffed unless
// set. Output is tab-delimited.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pseudobulk"
	_ "github.com/carbocation/pseudobulk/compileinfoprint"
)

func main() {
	var input, output, groupArg, valueArg, reducerName, delimiter string

	flag.StringVar(&input, "file", "", "Delimited file of per-cell observations with a header row. Local path, http(s) URL, or gs:// path. May be gzip/zip/xz/bzip2 compressed.")
	flag.StringVar(&output, "out", "", "Output file for the tab-delimited pseudobulk table. Prints to stdout if empty.")
	flag.StringVar(&groupArg, "group", "sample_id,cell_type,gene", "Comma-separated key columns that define one pseudobulk group.")
	flag.StringVar(&valueArg, "values", "count", "Comma-separated numeric columns to aggregate.")
	flag.StringVar(&reducerName, "reducer", "sum", "How to collapse each group's values: sum, mean, stddev, max, min, or median.")
	flag.StringVar(&delimiter, "delimiter", "", "Field delimiter of the input. Sniffed from the content if empty.")

	flag.Parse()

	if input == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(input, output, groupArg, valueArg, reducerName, delimiter); err != nil {
		log.Fatalln(err)
	}
}

func run(input, output, groupArg, valueArg, reducerName, delimiter string) error {
	var client *storage.Client
	if strings.HasPrefix(input, "gs://") {
		var err error
		client, err = storage.NewClient(context.Background())
		if err != nil {
			return err
		}
	}

	var delim rune
	if delimiter != "" {
		delim = rune(delimiter[0])
	}

	valueFields := strings.Split(valueArg, ",")
	groupKeys := strings.Split(groupArg, ",")

	reducer, err := pseudobulk.ReducerByName(reducerName)
	if err != nil {
		return err
	}

	observations, err := pseudobulk.ReadTable(input, valueFields, delim, client)
	if err != nil {
		return err
	}
	log.Println("Read", observations.NRows(), "observations from", input)

	aggregated, err := pseudobulk.Aggregate(observations, groupKeys, valueFields, reducer)
	if err != nil {
		return err
	}
	log.Println("Aggregated into", aggregated.NRows(), "pseudobulk rows across", strings.Join(groupKeys, "+"))

	var out io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	return pseudobulk.WriteTable(out, aggregated)
}
