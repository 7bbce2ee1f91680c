package reactor

// timerHeap is a container/heap.Interface over *timerReg ordered by
// deadline, giving Dispatch O(log n) access to the next-due timer.
type timerHeap []*timerReg

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool   { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timerReg)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
