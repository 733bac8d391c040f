// Package parallel runs flat data-parallel passes on a goroutine pool.
// Every Dispatch call returns only after all of its groups finished, which is the
// barrier the next dependent pass relies on.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Workers is the number of goroutines a pass fans out to.
func Workers() int {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	return workers
}

// NumGroups is ceil(n / groupSize).
func NumGroups(n, groupSize int) int {
	if n <= 0 {
		return 0
	}
	return (n + groupSize - 1) / groupSize
}

// Dispatch1D splits [0,n) into groups of groupSize and calls fn once per group with
// its half-open range. Groups are handed out through a shared counter so uneven
// groups do not stall a worker.
func Dispatch1D(n, groupSize int, fn func(group, lo, hi int)) {
	if n <= 0 {
		return
	}
	if groupSize < 1 {
		groupSize = 1
	}
	groups := NumGroups(n, groupSize)
	workers := min(Workers(), groups)

	run := func(g int) {
		lo := g * groupSize
		hi := min(lo+groupSize, n)
		fn(g, lo, hi)
	}

	if workers == 1 {
		for g := 0; g < groups; g++ {
			run(g)
		}
		return
	}

	var next int64 = -1
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				g := int(atomic.AddInt64(&next, 1))
				if g >= groups {
					return
				}
				run(g)
			}
		}()
	}
	wg.Wait()
}

// For is Dispatch1D for passes that do not care about group boundaries.
func For(n, groupSize int, fn func(i int)) {
	Dispatch1D(n, groupSize, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			fn(i)
		}
	})
}
