package strategy

import (
	"container/heap"
	"math/rand/v2"
)

type fifoBacklog struct {
	items []Item
}

func (b *fifoBacklog) Push(it Item) { b.items = append(b.items, it) }

func (b *fifoBacklog) Pop() (Item, bool) {
	if len(b.items) == 0 {
		return nil, false
	}
	it := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	return it, true
}

func (b *fifoBacklog) Len() int { return len(b.items) }

// randomBacklog removes an arbitrary element on each Pop.
type randomBacklog struct {
	items []Item
}

func (b *randomBacklog) Push(it Item) { b.items = append(b.items, it) }

func (b *randomBacklog) Pop() (Item, bool) {
	n := len(b.items)
	if n == 0 {
		return nil, false
	}
	i := rand.IntN(n)
	it := b.items[i]
	b.items[i] = b.items[n-1]
	b.items[n-1] = nil
	b.items = b.items[:n-1]
	return it, true
}

func (b *randomBacklog) Len() int { return len(b.items) }

// heapBacklog is a priority queue ordered by less.
type heapBacklog struct {
	items []Item
	less  func(a, b Item) bool
}

func (b *heapBacklog) Push(it Item) { heap.Push((*itemHeap)(b), it) }

func (b *heapBacklog) Pop() (Item, bool) {
	if len(b.items) == 0 {
		return nil, false
	}
	return heap.Pop((*itemHeap)(b)).(Item), true
}

func (b *heapBacklog) Len() int { return len(b.items) }

// itemHeap adapts heapBacklog to heap.Interface.
type itemHeap heapBacklog

func (h *itemHeap) Len() int           { return len(h.items) }
func (h *itemHeap) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *itemHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *itemHeap) Push(x any)         { h.items = append(h.items, x.(Item)) }

func (h *itemHeap) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	return it
}
