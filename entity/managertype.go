package entity

import (
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/rpcserver"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(layouts []config.JunctionLayout, defaultACZ float64) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)
	// 路口的全部车道
	OfJunction(junctionID int32) []ILane
	// 全部驶入车道
	Entries() []ILane

	Prepare() // 准备阶段：车辆链表更新
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(layouts []config.JunctionLayout, laneManager ILaneManager) // 初始化
	Register(server *rpcserver.Server)                              // 注册RPC服务

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)

	// 取出上一步所有路口发出的消息，按路口ID顺序
	Collect() []protocol.I2V
	// 暂存发往非本地车辆的消息，等待RPC拉取
	Hold(msg protocol.I2V)

	Prepare()           // 准备阶段
	Update(now float64) // 更新阶段
}

// entity/vehicle/manager.go的依赖倒置
type IVehicleManager interface {
	Init(laneManager ILaneManager, junctionManager IJunctionManager) // 初始化

	// 输入车辆ID，查找车辆，如果不存在则返回error
	GetOrError(id int32) (IVehicle, error)
	// 投递路口消息，车辆不在本地时返回false
	Deliver(msg protocol.I2V) bool

	Prepare()          // 准备阶段：增删车辆
	Update(dt float64) // 更新阶段
	Len() int
	Stats() TripStats // 已完成行程的统计（截至上一步）
}
