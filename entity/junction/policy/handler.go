package policy

import (
	"fmt"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/container"
)

// Callback 请求处理器可调用的引擎原语
type Callback interface {
	Now() float64
	// Reserve 过滤候选方案并尝试预约，成功时占用已登记到台账与准入控制区
	Reserve(msg *protocol.Request) (*Grant, protocol.Reason)
	Confirm(msg *protocol.Request, g *Grant)
	Reject(msg *protocol.Request, reason protocol.Reason)
}

// RequestHandler 请求处理器：决定何时、以什么顺序尝试预约
type RequestHandler interface {
	ProcessRequest(cb Callback, msg *protocol.Request)
	Act(now float64)  // 每步一次
	Forget(vin int32) // 车辆不再需要排队（取消、驶出或离开）
	Waiting() []int32 // 排队中的车辆，按先后顺序
}

// NewHandler 按名称创建请求处理器
func NewHandler(name string, staleTimeout float64) (RequestHandler, error) {
	switch name {
	case "", "fcfs":
		return NewFCFS(staleTimeout), nil
	case "priority":
		return NewPriority(staleTimeout), nil
	case "plain":
		return Plain{}, nil
	}
	return nil, fmt.Errorf("unknown request handler %q", name)
}

// Plain 不排序，只判断可行性
type Plain struct{}

func (Plain) ProcessRequest(cb Callback, msg *protocol.Request) {
	if g, reason := cb.Reserve(msg); g != nil {
		cb.Confirm(msg, g)
	} else {
		cb.Reject(msg, reason)
	}
}

func (Plain) Act(float64)      {}
func (Plain) Forget(int32)     {}
func (Plain) Waiting() []int32 { return nil }

// FCFS 先到先服务
// 功能：车辆第一次请求时进入等待队列，只有队首车辆可以尝试预约，获得授权后出队
// 说明：队列节点的S记录入队时刻；长时间没有再次请求的车辆会被移出队列，避免已离开的队首阻塞后车
type FCFS struct {
	queue        container.List[int32]
	nodes        map[int32]*container.ListNode[int32]
	lastHeard    map[int32]float64
	staleTimeout float64
}

// NewFCFS 创建先到先服务处理器
// 参数：staleTimeout-车辆失联多久后移出队列（秒），非正数表示不淘汰
func NewFCFS(staleTimeout float64) *FCFS {
	return &FCFS{
		nodes:        make(map[int32]*container.ListNode[int32]),
		lastHeard:    make(map[int32]float64),
		staleTimeout: staleTimeout,
	}
}

// enqueue 车辆不在队列中时加入队尾
func (f *FCFS) enqueue(vin int32, now float64) *container.ListNode[int32] {
	node, ok := f.nodes[vin]
	if !ok {
		node = &container.ListNode[int32]{S: now, Value: vin}
		f.queue.PushBack(node)
		f.nodes[vin] = node
	}
	f.lastHeard[vin] = now
	return node
}

func (f *FCFS) ProcessRequest(cb Callback, msg *protocol.Request) {
	node := f.enqueue(msg.VIN, cb.Now())
	if f.queue.First() != node {
		cb.Reject(msg, protocol.NoClearPath)
		return
	}
	g, reason := cb.Reserve(msg)
	if g == nil {
		cb.Reject(msg, reason)
		return
	}
	f.Forget(msg.VIN)
	cb.Confirm(msg, g)
}

// Act 淘汰失联车辆
func (f *FCFS) Act(now float64) {
	if f.staleTimeout <= 0 {
		return
	}
	for _, vin := range f.queue.Values() {
		if now-f.lastHeard[vin] > f.staleTimeout {
			log.Debugf("fcfs: drop stale vehicle %d", vin)
			f.Forget(vin)
		}
	}
}

func (f *FCFS) Forget(vin int32) {
	if node, ok := f.nodes[vin]; ok {
		f.queue.Remove(node)
		delete(f.nodes, vin)
		delete(f.lastHeard, vin)
	}
}

func (f *FCFS) Waiting() []int32 {
	return f.queue.Values()
}

// Priority 紧急车辆优先
// 功能：紧急车辆不进入等待队列，直接尝试预约；其他车辆按先到先服务处理
type Priority struct {
	*FCFS
}

// NewPriority 创建紧急车辆优先处理器
func NewPriority(staleTimeout float64) *Priority {
	return &Priority{FCFS: NewFCFS(staleTimeout)}
}

func (p *Priority) ProcessRequest(cb Callback, msg *protocol.Request) {
	if !msg.Spec.Emergency {
		p.FCFS.ProcessRequest(cb, msg)
		return
	}
	Plain{}.ProcessRequest(cb, msg)
}
