package annotate

import "sync/atomic"

// IDAllocator hands out comment ids which are unique for the lifetime of the
// process, no matter how many documents are written concurrently.
type IDAllocator struct {
	last atomic.Int64
}

// NewIDAllocator returns allocator whose first id is first.
func NewIDAllocator(first int64) *IDAllocator {
	a := &IDAllocator{}
	a.last.Store(first - 1)
	return a
}

// Allocate reserves n consecutive ids, all of them greater than floor. Floor
// is the largest id already present in the target document.
func (a *IDAllocator) Allocate(n int, floor int64) []int64 {
	if n <= 0 {
		return nil
	}
	for {
		last := a.last.Load()
		start := max(last, floor) + 1
		end := start + int64(n) - 1
		if a.last.CompareAndSwap(last, end) {
			ids := make([]int64, n)
			for i := range ids {
				ids[i] = start + int64(i)
			}
			return ids
		}
	}
}

// Last returns the most recently allocated id.
func (a *IDAllocator) Last() int64 {
	return a.last.Load()
}
