// Package compact removes empty cells from a level's scratch grid: a pre-scan flags
// live cells, a blocked prefix sum turns the flags into dense addresses, and a
// scatter pass writes every live cell to its address.
package compact

import (
	"github.com/gekko3d/lgh/lghrt/rt/parallel"
)

// BlockSize is the number of elements one scan block covers.
const BlockSize = 512

// Scanner computes inclusive prefix sums in blocks. Block totals are scanned
// recursively with the same routine; their buffers are kept between calls.
type Scanner struct {
	totals [][]uint32
	// Depth is the recursion depth reached by the last scan (0 for a single block).
	Depth int
}

func (s *Scanner) buffer(depth, n int) []uint32 {
	for len(s.totals) <= depth {
		s.totals = append(s.totals, nil)
	}
	if cap(s.totals[depth]) < n {
		s.totals[depth] = make([]uint32, n)
	}
	return s.totals[depth][:n]
}

// InclusiveScan replaces data with its inclusive prefix sum.
func (s *Scanner) InclusiveScan(data []uint32) {
	s.Depth = 0
	s.scan(data, 0)
}

func (s *Scanner) scan(data []uint32, depth int) {
	n := len(data)

	// scan 1: independent scan inside every block
	parallel.Dispatch1D(n, BlockSize, func(_, lo, hi int) {
		for i := lo + 1; i < hi; i++ {
			data[i] += data[i-1]
		}
	})

	blocks := parallel.NumGroups(n, BlockSize)
	if blocks <= 1 {
		return
	}
	s.Depth = max(s.Depth, depth+1)

	// scan 2: scan of the block totals (the last slot of every block)
	totals := s.buffer(depth, blocks)
	parallel.For(blocks, BlockSize, func(b int) {
		totals[b] = data[min((b+1)*BlockSize, n)-1]
	})
	s.scan(totals, depth+1)

	// scan 3: add the preceding cumulative total back into every block
	parallel.Dispatch1D(n, BlockSize, func(b, lo, hi int) {
		if b == 0 {
			return
		}
		add := totals[b-1]
		for i := lo; i < hi; i++ {
			data[i] += add
		}
	})
}
