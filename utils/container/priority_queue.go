package container

import (
	"cmp"
	"container/heap"
)

// item 优先队列中单个元素
type item[T any, P cmp.Ordered] struct {
	Value    T // 元素的值
	Priority P // 优先级（越小越优先）
	index    int
}

// priorityQueue 实现heap.Interface的最小堆
type priorityQueue[T any, P cmp.Ordered] []*item[T, P]

func (pq priorityQueue[T, P]) Len() int { return len(pq) }

func (pq priorityQueue[T, P]) Less(i, j int) bool {
	return pq[i].Priority < pq[j].Priority
}

func (pq priorityQueue[T, P]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue[T, P]) Push(x any) {
	it := x.(*item[T, P])
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *priorityQueue[T, P]) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	it.index = -1
	*pq = old[0 : n-1]
	return it
}

// PriorityQueue 优先队列
// 功能：按优先级（越小越优先）存取任意类型元素，优先级可以是任意有序类型
// 说明：预约台账用离散时间作为优先级，按时间顺序清理过期占用
type PriorityQueue[T any, P cmp.Ordered] struct {
	queue priorityQueue[T, P]
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any, P cmp.Ordered]() *PriorityQueue[T, P] {
	return &PriorityQueue[T, P]{queue: make(priorityQueue[T, P], 0)}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T, P]) Len() int {
	return len(q.queue)
}

// First 获取优先级数值最小的元素（不移除）
func (q *PriorityQueue[T, P]) First() T {
	return q.queue[0].Value
}

// HeapPush 加入元素并维护堆结构
func (q *PriorityQueue[T, P]) HeapPush(value T, priority P) {
	heap.Push(&q.queue, &item[T, P]{
		Value:    value,
		Priority: priority,
	})
}

// HeapPop 弹出优先级数值最小的元素
func (q *PriorityQueue[T, P]) HeapPop() (value T, priority P) {
	it := heap.Pop(&q.queue).(*item[T, P])
	return it.Value, it.Priority
}

// PopWhile 依次弹出满足条件的队首元素
// 功能：只要队首优先级满足keep条件就弹出，并对每个弹出元素调用fn
// 参数：keep-判定函数，fn-回调
// 返回：弹出元素个数
func (q *PriorityQueue[T, P]) PopWhile(keep func(priority P) bool, fn func(value T, priority P)) int {
	n := 0
	for len(q.queue) > 0 && keep(q.queue[0].Priority) {
		v, p := q.HeapPop()
		fn(v, p)
		n++
	}
	return n
}
