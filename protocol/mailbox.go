package protocol

import "errors"

var ErrMailboxFull = errors.New("protocol: mailbox full")

// Mailbox 每步的有界消息通道
// 功能：生产者在一个仿真步内写入，消费者在处理阶段一次性取出全部消息
// 说明：Drain取出的消息不会再次出现，保证每条消息只被处理一次
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox 创建容量为size的消息通道
func NewMailbox[T any](size int) *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, size)}
}

// Put 写入一条消息，通道已满时返回ErrMailboxFull
func (m *Mailbox[T]) Put(msg T) error {
	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Drain 按写入顺序取出当前全部消息
// 说明：至多取出一个容量的消息，处理期间新写入的消息留到下一步
func (m *Mailbox[T]) Drain() []T {
	n := len(m.ch)
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for range n {
		out = append(out, <-m.ch)
	}
	return out
}

// Len 当前待处理消息数
func (m *Mailbox[T]) Len() int {
	return len(m.ch)
}

// Cap 通道容量
func (m *Mailbox[T]) Cap() int {
	return cap(m.ch)
}
