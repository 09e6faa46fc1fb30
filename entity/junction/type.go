package junction

import (
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
)

// 依赖倒置，表达junction对协商协议实现的接口需求
// 实现：policy.Engine（fcfs/priority/plain）与queue.Queue（queue）

// INegotiationProtocol 协商协议
type INegotiationProtocol interface {
	ProcessMessage(now float64, msg protocol.V2I) // 处理一条车辆消息，回复进入协议的发件箱
	Act(now float64) []protocol.I2V               // 每步一次的维护，返回本步发出的全部消息
	Snapshot() entity.JunctionSnapshot            // 当前协商状态
}
