package pseudobulk

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the single most likely rune that would delimit
// the values in the reader, assuming a CSV-like file.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}

	return ','
}

// ExpandHome expands ~ to its proper path, where appropriate.
func ExpandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		usr, err := user.Current()
		if err != nil {
			return path, pfx.Err(err)
		}
		path = filepath.Join(usr.HomeDir, path[2:])
	}

	return path, nil
}

// Open opens a local file, an http(s) URL, or (when client is non-nil) a
// gs:// object for reading, transparently decompressing gzip, zip, xz, zlib,
// or bzip2 content.
func Open(path string, client *storage.Client) (io.ReadCloser, error) {
	var rc io.ReadCloser

	switch {
	case strings.HasPrefix(path, "gs://"):
		gsr, err := OpenGoogleStorage(path, client)
		if err != nil {
			return nil, err
		}
		rc = gsr
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		resp, err := http.Get(path)
		if err != nil {
			return nil, pfx.Err(err)
		}
		rc = resp.Body
	default:
		expanded, err := ExpandHome(path)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(expanded)
		if err != nil {
			return nil, pfx.Err(err)
		}
		rc = f
	}

	return MaybeDecompress(rc)
}

// ReadTable reads a delimited file into a Table. Columns named in valueFields
// are parsed as float64 value columns; every other column becomes a string
// key column. A zero delim sniffs the delimiter from the content.
func ReadTable(path string, valueFields []string, delim rune, client *storage.Client) (*Table, error) {
	rc, err := Open(path, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return ReadTableFrom(rc, valueFields, delim)
}

// ReadTableFrom is ReadTable over an arbitrary reader.
func ReadTableFrom(r io.Reader, valueFields []string, delim rune) (*Table, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, pfx.Err(err)
	}

	if delim == 0 {
		delim = DetermineDelimiter(bytes.NewReader(data))
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, EmptyInputError{Operation: "read table"}
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	wantValue := make(map[string]bool, len(valueFields))
	for _, f := range valueFields {
		wantValue[f] = true
	}

	var keyNames, valueNames []string
	var keyPos, valuePos []int
	for i, name := range header {
		if wantValue[name] {
			valueNames = append(valueNames, name)
			valuePos = append(valuePos, i)
			continue
		}
		keyNames = append(keyNames, name)
		keyPos = append(keyPos, i)
	}

	for _, f := range valueFields {
		found := false
		for _, name := range valueNames {
			if name == f {
				found = true
				break
			}
		}
		if !found {
			return nil, SchemaError{Field: f}
		}
	}

	out, err := NewTable(keyNames, valueNames)
	if err != nil {
		return nil, err
	}

	for lineNum := 2; ; lineNum++ {
		line, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		keys := make([]string, len(keyPos))
		for i, pos := range keyPos {
			keys[i] = line[pos]
		}

		values := make([]float64, len(valuePos))
		for i, pos := range valuePos {
			v, err := strconv.ParseFloat(line[pos], 64)
			if err != nil {
				return nil, pfx.Err(fmt.Errorf("line %d, column %q: %v", lineNum, header[pos], err))
			}
			values[i] = v
		}

		if err := out.AppendRow(keys, values); err != nil {
			return nil, err
		}
	}

	if out.NRows() == 0 {
		return nil, EmptyInputError{Operation: "read table"}
	}

	return out, nil
}
