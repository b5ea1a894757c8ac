package pseudobulk

import (
	"fmt"
	"math"
	"strings"

	"github.com/carbocation/runningvariance"
	"github.com/montanaflynn/stats"
)

// Reducer collapses the values of one column within one partition to a single
// number. Reducers receive a private slice and may reorder it.
type Reducer func(values []float64) float64

func Sum(values []float64) float64 {
	out := 0.0
	for _, v := range values {
		out += v
	}

	return out
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	rs := runningvariance.NewRunningStat()
	for _, v := range values {
		rs.Push(v)
	}

	return rs.Mean()
}

func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	rs := runningvariance.NewRunningStat()
	for _, v := range values {
		rs.Push(v)
	}

	return rs.StandardDeviation()
}

func Max(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	out := math.Inf(-1)
	for _, v := range values {
		if v > out {
			out = v
		}
	}

	return out
}

func Min(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	out := math.Inf(1)
	for _, v := range values {
		if v < out {
			out = v
		}
	}

	return out
}

func Median(values []float64) float64 {
	med, err := stats.Median(values)
	if err != nil {
		return math.NaN()
	}

	return med
}

// ReducerByName maps the reducer names accepted on the command line to their
// implementations.
func ReducerByName(name string) (Reducer, error) {
	switch strings.ToLower(name) {
	case "sum":
		return Sum, nil
	case "mean":
		return Mean, nil
	case "stddev":
		return StdDev, nil
	case "max":
		return Max, nil
	case "min":
		return Min, nil
	case "median":
		return Median, nil
	}

	return nil, fmt.Errorf("unknown reducer %q (want sum, mean, stddev, max, min, or median)", name)
}
