package procman

// Slice is a half-open range [Start, End) into a caller's descriptor list.
type Slice struct {
	Start int
	End   int
}

// Len reports the number of descriptors the slice covers.
func (s Slice) Len() int {
	return s.End - s.Start
}

// Partition splits n descriptors across workers for fast fork-safe mode.
// It computes C = min(cores, n-1) and returns C+1 slices; worker w covers
// [w*floor(n/C), (w+1)*floor(n/C)), and the last worker absorbs any
// remainder up to n. When C is 0 or less (a single descriptor, or no cores
// reported), it returns a single slice covering the whole list.
func Partition(n, cores int) []Slice {
	if n <= 0 {
		return nil
	}
	c := cores
	if n-1 < c {
		c = n - 1
	}
	if c <= 0 {
		return []Slice{{Start: 0, End: n}}
	}
	step := n / c
	slices := make([]Slice, c+1)
	for w := 0; w <= c; w++ {
		start := w * step
		end := start + step
		if w == c || end > n {
			end = n
		}
		slices[w] = Slice{Start: start, End: end}
	}
	return slices
}

// SlowParallelRounds splits n descriptors into rounds of at most
// maxPerRound single-descriptor slices, for slow-parallel mode: each
// worker in a round takes exactly one descriptor, bounding the loss from
// any single timeout to that one descriptor.
func SlowParallelRounds(n, maxPerRound int) [][]Slice {
	if n <= 0 || maxPerRound <= 0 {
		return nil
	}
	var rounds [][]Slice
	for start := 0; start < n; {
		var round []Slice
		for len(round) < maxPerRound && start < n {
			round = append(round, Slice{Start: start, End: start + 1})
			start++
		}
		rounds = append(rounds, round)
	}
	return rounds
}
