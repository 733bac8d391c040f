package compact

import (
	"github.com/gekko3d/lgh/lghrt/rt/parallel"
)

// Compactor owns the address buffer and scan intermediates. It is reused for every
// level and every rebuild.
type Compactor struct {
	scanner Scanner
	addr    []uint32
	size    int
}

func NewCompactor(maxCells int) *Compactor {
	return &Compactor{addr: make([]uint32, 0, maxCells)}
}

// Scan flags the live cells among the first m and prefix-sums the flags. It returns
// the number of live cells, read from the last scanned slot once the scan is done.
func (c *Compactor) Scan(m int, alive func(i int) bool) int {
	c.size = m
	if m <= 0 {
		return 0
	}
	if cap(c.addr) < m {
		c.addr = make([]uint32, m)
	}
	addr := c.addr[:m]

	// pre-scan
	parallel.Dispatch1D(m, BlockSize, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if alive(i) {
				addr[i] = 1
			} else {
				addr[i] = 0
			}
		}
	})

	c.scanner.InclusiveScan(addr)
	return int(addr[m-1])
}

// Depth reports how many block-total levels the last scan needed.
func (c *Compactor) Depth() int { return c.scanner.Depth }

// Scatter calls emit for every live cell of the last Scan with its dense address.
// Addresses keep the input order and start at 0.
func (c *Compactor) Scatter(alive func(i int) bool, emit func(src, dst int)) {
	addr := c.addr[:c.size]
	parallel.Dispatch1D(c.size, BlockSize, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if alive(i) {
				emit(i, int(addr[i])-1)
			}
		}
	})
}

// Slice compacts src into dst, keeping elements for which keep is true, and returns
// the survivor count. dst must be able to hold every survivor.
func Slice[T any](c *Compactor, src, dst []T, keep func(T) bool) int {
	alive := func(i int) bool { return keep(src[i]) }
	n := c.Scan(len(src), alive)
	c.Scatter(alive, func(s, d int) { dst[d] = src[s] })
	return n
}
