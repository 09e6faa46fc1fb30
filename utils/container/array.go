package container

import (
	"log"
	"sync"
)

// IIncrementalItem 可以放入增量数组的元素，元素自己记录在数组中的下标
type IIncrementalItem interface {
	Index() int
	SetIndex(index int)
}

// IncrementalItemBase 下标字段，嵌入到元素结构体中即实现IIncrementalItem
type IncrementalItemBase struct {
	index int
}

func (b *IncrementalItemBase) Index() int {
	return b.index
}

func (b *IncrementalItemBase) SetIndex(index int) {
	b.index = index
}

// IncrementalArray 增量数组
// 功能：更新阶段并发登记增删，准备阶段统一生效，两次Prepare之间Data保持不变
// 说明：删除时用末尾元素填补空位，元素顺序不保证稳定
type IncrementalArray[T IIncrementalItem] struct {
	data    []T
	add     []T
	remove  []T
	pending sync.Mutex
}

// NewIncrementalArray 创建增量数组
func NewIncrementalArray[T IIncrementalItem]() *IncrementalArray[T] {
	return &IncrementalArray[T]{
		data: make([]T, 0),
	}
}

func (a *IncrementalArray[T]) Len() int {
	return len(a.data)
}

// Data 当前数据，调用方不得修改
func (a *IncrementalArray[T]) Data() []T {
	return a.data
}

// Add 登记加入，Prepare时生效
func (a *IncrementalArray[T]) Add(value T) {
	a.pending.Lock()
	defer a.pending.Unlock()
	a.add = append(a.add, value)
}

// Remove 登记删除，Prepare时生效
// 说明：元素必须已在Data中，同一元素在一个周期内只能删除一次
func (a *IncrementalArray[T]) Remove(value T) {
	a.pending.Lock()
	defer a.pending.Unlock()
	a.remove = append(a.remove, value)
}

// Prepare 执行登记的增删
// 算法说明：
// 1. 依次删除：被删元素的位置由当前末尾元素填补，数组长度减一
// 2. 新元素追加到末尾
// 3. 所有移动过的元素更新下标
func (a *IncrementalArray[T]) Prepare() {
	a.pending.Lock()
	defer a.pending.Unlock()
	for _, x := range a.remove {
		ind, last := x.Index(), len(a.data)-1
		if ind < 0 || ind > last {
			log.Panicf("container: remove item with index %d from array of length %d", ind, len(a.data))
		}
		if ind != last {
			a.data[ind] = a.data[last]
			a.data[ind].SetIndex(ind)
		}
		x.SetIndex(-1)
		a.data = a.data[:last]
	}
	for _, x := range a.add {
		x.SetIndex(len(a.data))
		a.data = append(a.data, x)
	}
	a.add = a.add[:0]
	a.remove = a.remove[:0]
}
