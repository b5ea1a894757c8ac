package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"log"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/pseudobulk"
	"github.com/gocarina/gocsv"
	"gopkg.in/guregu/null.v3"
)

// SampleMeta is one row of the sample metadata file. Batch is optional and is
// only reported, not modeled.
type SampleMeta struct {
	SampleID  string      `csv:"sample_id"`
	Condition string      `csv:"condition"`
	Batch     null.String `csv:"batch"`
}

// ImportSampleMeta reads the sample metadata file and returns the
// sample_id -> condition mapping.
func ImportSampleMeta(path string, client *storage.Client) (map[string]string, error) {
	rc, err := pseudobulk.Open(path, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(err)
	}

	delim := pseudobulk.DetermineDelimiter(bytes.NewReader(data))

	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = delim
		r.LazyQuotes = true
		return r
	})

	records := []*SampleMeta{}
	if err := gocsv.UnmarshalBytes(data, &records); err != nil {
		return nil, pfx.Err(err)
	}

	conditions := make(map[string]string, len(records))
	batches := make(map[string]struct{})
	for _, rec := range records {
		if rec.SampleID == "" || rec.Condition == "" {
			return nil, fmt.Errorf("metadata file %s: every row needs sample_id and condition", path)
		}
		conditions[rec.SampleID] = rec.Condition
		if rec.Batch.Valid {
			batches[rec.Batch.String] = struct{}{}
		}
	}

	if len(batches) > 0 {
		log.Println("Read", len(conditions), "samples across", len(batches), "batches")
	} else {
		log.Println("Read", len(conditions), "samples")
	}

	return conditions, nil
}
