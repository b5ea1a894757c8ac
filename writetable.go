package pseudobulk

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteTable writes t as tab-delimited text with a header row. Key columns
// come first, in declaration order, followed by the value columns.
func WriteTable(w io.Writer, t *Table) error {
	if t == nil {
		return fmt.Errorf("cannot write a nil table")
	}

	header := append(t.KeyNames(), t.ValueNames()...)
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}

	fields := make([]string, 0, len(header))
	for i := 0; i < t.NRows(); i++ {
		keys, values := t.Row(i)

		fields = fields[:0]
		fields = append(fields, keys...)
		for _, v := range values {
			fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
		}

		if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}

	return nil
}
