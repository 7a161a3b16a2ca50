package creation

import (
	"container/heap"
	"errors"
)

// ErrCycleDetected is returned when in-batch parent references form a cycle.
var ErrCycleDetected = errors.New("creation: the created mailboxes introduce a cycle")

// SortFromRootToLeaf orders batch so that every request comes after the
// in-batch request its ParentRef names. References to anything outside the
// batch impose no ordering. Among requests that are ready at the same time,
// the one earlier in the batch goes first, so the order is reproducible.
//
// Returns ErrCycleDetected, and no partial order, if some requests can never
// become ready. A request that is its own parent is a cycle.
func SortFromRootToLeaf(batch Batch) (Batch, error) {
	index := make(map[CreationID]int, len(batch))
	for i, req := range batch {
		if _, dup := index[req.CreationID]; !dup {
			index[req.CreationID] = i
		}
	}

	// Kahn's algorithm: inDegree counts unresolved in-batch parents (0 or 1),
	// dependents lists children by parent position.
	inDegree := make([]int, len(batch))
	dependents := make([][]int, len(batch))
	for i, req := range batch {
		if !req.HasParent() {
			continue
		}
		parent, ok := index[CreationID(req.ParentRef)]
		if !ok {
			continue
		}
		inDegree[i]++
		dependents[parent] = append(dependents[parent], i)
	}

	ready := &positionHeap{}
	for i, deg := range inDegree {
		if deg == 0 {
			heap.Push(ready, i)
		}
	}

	sorted := make(Batch, 0, len(batch))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		sorted = append(sorted, batch[i])
		for _, child := range dependents[i] {
			inDegree[child]--
			if inDegree[child] == 0 {
				heap.Push(ready, child)
			}
		}
	}

	if len(sorted) != len(batch) {
		return nil, ErrCycleDetected
	}
	return sorted, nil
}

// positionHeap is a min-heap of batch positions.
type positionHeap []int

func (h positionHeap) Len() int           { return len(h) }
func (h positionHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h positionHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *positionHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *positionHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
