package txn

import (
	"container/heap"
)

type idHeap []uint64

func (h *idHeap) Len() int           { return len(*h) }
func (h *idHeap) Less(i, j int) bool { return (*h)[i] < (*h)[j] }
func (h *idHeap) Swap(i, j int)      { (*h)[i], (*h)[j] = (*h)[j], (*h)[i] }
func (h *idHeap) Push(x any)         { *h = append(*h, x.(uint64)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// idTracker is owned by the WaterMark loop goroutine; it is not safe for
// concurrent use.
type idTracker struct {
	doneTill uint64
	ids      idHeap                     // min heap of ids with outstanding events
	pending  map[uint64]int             // id -> begun but not done
	waiters  map[uint64][]chan struct{} // id -> waitChs
}

func newIDTracker() *idTracker {
	t := &idTracker{
		ids:     make(idHeap, 0),
		pending: make(map[uint64]int),
		waiters: make(map[uint64][]chan struct{}),
	}
	heap.Init(&t.ids)
	return t
}

func (t *idTracker) begin(id uint64) {
	if _, ok := t.pending[id]; !ok {
		heap.Push(&t.ids, id)
	}
	t.pending[id] += 1
}

func (t *idTracker) done(id uint64) {
	if _, ok := t.pending[id]; !ok {
		heap.Push(&t.ids, id)
	}
	t.pending[id] -= 1
}

func (t *idTracker) addWaiter(id uint64, ch chan struct{}) {
	t.waiters[id] = append(t.waiters[id], ch)
}

// advance pops every leading id with nothing pending and returns the new
// done-till mark.
func (t *idTracker) advance() uint64 {
	for len(t.ids) > 0 {
		lowest := t.ids[0]
		if t.pending[lowest] > 0 {
			break
		}
		heap.Pop(&t.ids)
		delete(t.pending, lowest)
		t.doneTill = lowest
	}
	return t.doneTill
}

func (t *idTracker) closeWaitersUntil(id uint64) {
	for ts, chs := range t.waiters {
		if ts <= id {
			for _, ch := range chs {
				close(ch)
			}
			delete(t.waiters, ts)
		}
	}
}

func (t *idTracker) closeAll() {
	for ts, chs := range t.waiters {
		for _, ch := range chs {
			close(ch)
		}
		delete(t.waiters, ts)
	}
}
