package grouprunner

import (
	"errors"
	"sort"
	"sync"

	"github.com/carbocation/pseudobulk"
)

// Mode selects how stage failures propagate across partitions.
type Mode int

const (
	// FailFast aborts the whole run on the first stage failure. Partitions
	// that are already in flight are allowed to finish; partitions that have
	// not started are skipped.
	FailFast Mode = iota

	// BestEffort processes every partition, returning partial results along
	// with a record of each partition's failure.
	BestEffort
)

// Runner applies a stage pipeline to each partition of a table.
//
// The zero value runs serially, fails fast, and keeps partitions whose final
// table is empty.
type Runner struct {
	Mode Mode

	// MaxParallel caps the number of partitions processed concurrently.
	// Values below 2 run serially.
	MaxParallel int

	// SkipEmpty drops partitions whose final table has zero rows (for
	// example, when an abundance filter removed every feature of one cell
	// type) instead of returning an empty entry for them.
	SkipEmpty bool
}

// Run partitions t by the distinct values of splitKey and applies stages in
// order to each partition. An empty stage list is the identity. The returned
// map holds each partition's final table; in BestEffort mode the second
// return collects the failed partitions, which are absent from the map. The
// map contents depend only on the input, never on completion order.
func (r Runner) Run(t *pseudobulk.Table, splitKey string, stages []Stage) (map[string]*pseudobulk.Table, []StageError, error) {
	if t == nil {
		return nil, nil, pseudobulk.EmptyInputError{Operation: "run grouped"}
	}

	parts, keys, err := t.PartitionBy(splitKey)
	if err != nil {
		return nil, nil, err
	}

	if r.MaxParallel > 1 {
		return r.runParallel(parts, keys, stages)
	}

	results := make(map[string]*pseudobulk.Table, len(keys))
	var failures []StageError

	for _, key := range keys {
		out, serr := applyStages(key, parts[key], stages)
		if serr != nil {
			if r.Mode == FailFast {
				return nil, nil, *serr
			}
			failures = append(failures, *serr)
			continue
		}
		if r.SkipEmpty && out.NRows() == 0 {
			continue
		}
		results[key] = out
	}

	return results, failures, nil
}

func (r Runner) runParallel(parts map[string]*pseudobulk.Table, keys []string, stages []Stage) (map[string]*pseudobulk.Table, []StageError, error) {
	concurrencyLimit := make(chan struct{}, r.MaxParallel)

	var pool sync.WaitGroup
	var mu sync.Mutex

	results := make(map[string]*pseudobulk.Table, len(keys))
	var failures []StageError
	aborted := false

	for _, key := range keys {
		mu.Lock()
		stop := aborted
		mu.Unlock()
		if stop {
			// Fail-fast: a partition already failed, so don't start new ones.
			break
		}

		concurrencyLimit <- struct{}{}
		pool.Add(1)

		go func(key string, part *pseudobulk.Table) {
			defer pool.Done()
			defer func() { <-concurrencyLimit }()

			out, serr := applyStages(key, part, stages)

			mu.Lock()
			defer mu.Unlock()

			if serr != nil {
				failures = append(failures, *serr)
				if r.Mode == FailFast {
					aborted = true
				}
				return
			}
			if r.SkipEmpty && out.NRows() == 0 {
				return
			}
			results[key] = out
		}(key, parts[key])
	}

	pool.Wait()

	// Report failures in partition-key order so the outcome does not depend
	// on goroutine scheduling.
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].PartitionKey != failures[j].PartitionKey {
			return failures[i].PartitionKey < failures[j].PartitionKey
		}
		return failures[i].StageIndex < failures[j].StageIndex
	})

	if r.Mode == FailFast && len(failures) > 0 {
		return nil, nil, failures[0]
	}

	return results, failures, nil
}

func applyStages(key string, t *pseudobulk.Table, stages []Stage) (*pseudobulk.Table, *StageError) {
	current := t
	for i, stage := range stages {
		next, err := stage(current)
		if err != nil {
			return nil, &StageError{PartitionKey: key, StageIndex: i, Cause: err}
		}
		if next == nil {
			return nil, &StageError{PartitionKey: key, StageIndex: i, Cause: errors.New("stage returned a nil table")}
		}
		current = next
	}

	return current, nil
}
