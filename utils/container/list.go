package container

import (
	"fmt"
	"log"
)

// ListNode 双向链表中的节点
// 功能：表示双向链表中的一个节点，包含排序键和值
// 说明：FIFO场景下S通常为入队时刻
type ListNode[T any] struct {
	parent     *List[T]     // 所属链表
	prev, next *ListNode[T] // 前驱和后继节点
	S          float64      // 键值
	Value      T            // 主要值
}

// String 获取节点的字符串表示
func (n *ListNode[T]) String() string {
	return fmt.Sprintf("Node{Key:%v, Value:%+v}", n.S, n.Value)
}

// Next 获取节点的下一个节点
func (n *ListNode[T]) Next() *ListNode[T] {
	return n.next
}

// Parent 获取节点所在的链表，不在链表中时为nil
func (n *ListNode[T]) Parent() *List[T] {
	return n.parent
}

// InsertBefore 在节点前插入新节点
// 功能：在当前节点之前插入一个新节点
// 参数：add-要插入的新节点，不能已经位于某个链表中
func (n *ListNode[T]) InsertBefore(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.next = n
	add.prev = n.prev
	n.prev = add
	if add.prev != nil {
		add.prev.next = add
	} else {
		add.parent.head = add
	}
	n.parent.length++
}

// InsertAfter 在节点后插入新节点
// 功能：在当前节点之后插入一个新节点
// 参数：add-要插入的新节点，不能已经位于某个链表中
func (n *ListNode[T]) InsertAfter(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.prev = n
	add.next = n.next
	n.next = add
	if add.next != nil {
		add.next.prev = add
	} else {
		add.parent.tail = add
	}
	n.parent.length++
}

// List 双向链表
// 功能：实现一个通用的双向链表数据结构
// 说明：路口的等待队列（FCFS、串行队列）都建立在它之上
type List[T any] struct {
	ID         string       // 链表标识符
	head, tail *ListNode[T] // 头尾节点指针
	length     int          // 链表长度
}

// String 获取链表的字符串表示
func (l *List[T]) String() string {
	return fmt.Sprintf("List{ID:%v, Len:%v}", l.ID, l.length)
}

// Values 获取双向链表中所有节点的值（从头到尾）
func (l *List[T]) Values() []T {
	values := make([]T, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		values = append(values, node.Value)
	}
	return values
}

// Len 获取双向链表长度
func (l *List[T]) Len() int {
	return l.length
}

// PushBack 向链表尾部插入节点
func (l *List[T]) PushBack(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("push back node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.tail == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertAfter中处理
		l.tail.InsertAfter(add)
	}
}

// Remove 从链表中移除节点
// 功能：从链表中删除指定的节点
// 参数：node-要删除的节点，必须属于当前链表
func (l *List[T]) Remove(node *ListNode[T]) {
	if node.parent != l {
		log.Panic("remove node from wrong list")
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.parent = nil
	l.length--
}

// PopFront 移除并返回头部节点，空链表返回nil
func (l *List[T]) PopFront() *ListNode[T] {
	node := l.head
	if node != nil {
		l.Remove(node)
	}
	return node
}

// First 获取链表头部节点
func (l *List[T]) First() *ListNode[T] {
	return l.head
}

// InsertSorted 按S升序插入节点，S相同时插在已有节点之后
// 功能：保持链表按S有序，用于按优先级排队
// 参数：add-要插入的节点
func (l *List[T]) InsertSorted(add *ListNode[T]) {
	node := l.head
	for node != nil && node.S <= add.S {
		node = node.next
	}
	if node != nil {
		node.InsertBefore(add)
	} else {
		l.PushBack(add)
	}
}
