package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/container"
)

func TestListInit(t *testing.T) {
	l := &container.List[int32]{}
	assert.Nil(t, l.First())
	assert.Nil(t, l.PopFront())
	assert.Equal(t, 0, l.Len())
}

func TestListOperation(t *testing.T) {
	l := &container.List[int32]{}

	// ^, 1, ^
	n1 := &container.ListNode[int32]{S: 1, Value: 1}
	l.PushBack(n1)
	// ^, 2, 1, ^
	n2 := &container.ListNode[int32]{S: 2, Value: 2}
	n1.InsertBefore(n2)
	// ^, 3, 2, 1, ^
	n3 := &container.ListNode[int32]{S: 3, Value: 3}
	n2.InsertBefore(n3)
	// ^, 3, 2, 1, 4, ^
	n4 := &container.ListNode[int32]{S: 4, Value: 4}
	n1.InsertAfter(n4)
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []int32{3, 2, 1, 4}, l.Values())

	n := l.First()
	assert.Equal(t, n3, n)
	n = n.Next()
	assert.Equal(t, n2, n)
	n = n.Next()
	assert.Equal(t, n1, n)
	assert.Nil(t, n.Next().Next())
	assert.Equal(t, l, n4.Parent())

	// remove
	l.Remove(n4)
	assert.Nil(t, n1.Next())
	assert.Nil(t, n4.Parent())
	assert.Equal(t, 3, l.Len())

	// pop
	assert.Equal(t, n3, l.PopFront())
	assert.Equal(t, n2, l.First())
	assert.Equal(t, []int32{2, 1}, l.Values())
	assert.Equal(t, 2, l.Len())
}

func TestListInsertSorted(t *testing.T) {
	l := &container.List[string]{}
	l.InsertSorted(&container.ListNode[string]{S: 2, Value: "b"})
	l.InsertSorted(&container.ListNode[string]{S: 0, Value: "a"})
	l.InsertSorted(&container.ListNode[string]{S: 2, Value: "c"})
	l.InsertSorted(&container.ListNode[string]{S: 5, Value: "d"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, l.Values())
}

func TestListPanicOnDoubleInsert(t *testing.T) {
	l := &container.List[int32]{}
	n := &container.ListNode[int32]{Value: 1}
	l.PushBack(n)
	assert.Panics(t, func() { l.PushBack(n) })
	other := &container.List[int32]{}
	assert.Panics(t, func() { other.Remove(n) })
}

func TestPriorityQueue(t *testing.T) {
	q := container.NewPriorityQueue[string, int64]()
	assert.Equal(t, 0, q.Len())

	q.HeapPush("c", 30)
	q.HeapPush("a", 10)
	q.HeapPush("b", 20)
	q.HeapPush("a2", 10)
	assert.Equal(t, 4, q.Len())
	assert.Contains(t, []string{"a", "a2"}, q.First())

	popped := []string{}
	n := q.PopWhile(func(p int64) bool { return p < 25 }, func(v string, _ int64) {
		popped = append(popped, v)
	})
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"a", "a2", "b"}, popped)
	assert.Equal(t, "c", q.First())

	q.HeapPush("z", 1)
	q.HeapPush("y", 50)
	v, p := q.HeapPop()
	assert.Equal(t, "z", v)
	assert.Equal(t, int64(1), p)
}
