// Package grouprunner splits a table by a key column and applies an ordered
// sequence of transformations independently to each partition
// (split-apply-combine). Partitions never share data, so a stage operating on
// one cell type can never affect another.
package grouprunner

import (
	"fmt"

	"github.com/carbocation/pseudobulk"
)

// Stage is one unit of transformation in a per-partition pipeline. Each stage
// receives the previous stage's output and returns a replacement table.
// Stages must not retain or mutate their input after returning.
type Stage func(*pseudobulk.Table) (*pseudobulk.Table, error)

// StageError reports that one partition's pipeline failed, identifying which
// partition and which stage.
type StageError struct {
	PartitionKey string
	StageIndex   int
	Cause        error
}

func (e StageError) Error() string {
	return fmt.Sprintf("partition %q: stage %d: %v", e.PartitionKey, e.StageIndex, e.Cause)
}

func (e StageError) Unwrap() error {
	return e.Cause
}
