package indexer

import (
	"fmt"

	"github.com/dshills/shardex/pkg/types"
)

// Partition splits lines [0, lines) into workers contiguous half-open
// ranges in worker-id order. The remainder goes one line each to the lowest
// worker ids, so no line is dropped. Workers beyond the line count get empty
// ranges.
func Partition(lines, workers int) []types.LineRange {
	if workers <= 0 {
		return nil
	}
	if lines < 0 {
		lines = 0
	}
	base, extra := lines/workers, lines%workers
	ranges := make([]types.LineRange, workers)
	start := 0
	for w := range ranges {
		n := base
		if w < extra {
			n++
		}
		ranges[w] = types.LineRange{Start: start, End: start + n}
		start += n
	}
	return ranges
}

// ValidatePartition checks that ranges tile [0, lines) with no gap or
// overlap, in order.
func ValidatePartition(path string, lines int, ranges []types.LineRange) error {
	if len(ranges) == 0 {
		return &types.PartitionError{Path: path, Reason: "no worker ranges"}
	}
	next := 0
	for w, r := range ranges {
		if r.End < r.Start {
			return &types.PartitionError{Path: path,
				Reason: fmt.Sprintf("worker %d range %s is inverted", w, r)}
		}
		if r.Start != next {
			kind := "gap"
			if r.Start < next {
				kind = "overlap"
			}
			return &types.PartitionError{Path: path,
				Reason: fmt.Sprintf("%s before worker %d: range %s, expected start %d", kind, w, r, next)}
		}
		next = r.End
	}
	if next != lines {
		return &types.PartitionError{Path: path,
			Reason: fmt.Sprintf("ranges cover %d of %d lines", next, lines)}
	}
	return nil
}
