package pseudobulk

import "fmt"

// SchemaError indicates that a caller named a column that does not exist in
// the table it was applied to. Schema problems are caller contract violations
// and are never retried.
type SchemaError struct {
	Field string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("no column named %q", e.Field)
}

// EmptyInputError indicates that an operation which requires at least one row
// of input was given none.
type EmptyInputError struct {
	Operation string
}

func (e EmptyInputError) Error() string {
	if e.Operation == "" {
		return "no rows in input"
	}

	return fmt.Sprintf("%s: no rows in input", e.Operation)
}
