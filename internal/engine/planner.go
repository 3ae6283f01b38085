package engine

import "github.com/tanq16/rangeflow/internal/utils"

// PlanRanges splits size bytes into workers contiguous inclusive ranges. The
// last range absorbs the remainder of the integer division.
func PlanRanges(size int64, workers int) []utils.ByteRange {
	if workers < 1 {
		workers = 1
	}
	chunkSize := size / int64(workers)
	ranges := make([]utils.ByteRange, workers)
	for i := range workers {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if i == workers-1 {
			end = size - 1
		}
		ranges[i] = utils.ByteRange{Start: start, End: end}
	}
	return ranges
}
