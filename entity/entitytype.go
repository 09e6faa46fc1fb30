package entity

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/container"
)

// 车道类型
const (
	LaneEntry = "entry" // 驶入路口
	LaneExit  = "exit"  // 驶出路口
)

// entity/lane/lane.go的依赖倒置
type ILane interface {
	ID() int32            // 车道ID
	JunctionID() int32    // 所属路口ID
	Kind() string         // 车道类型
	Line() orb.LineString // 中心线
	Length() float64      // 长度
	ACZ() float64         // 驶出车道的准入控制区长度，不设置时为0
	PointAt(s float64) orb.Point
	String() string

	// 车辆链表，按S升序（从上游到下游）

	AddVehicle(node *VehicleNode)    // 加入车辆，prepare阶段生效
	RemoveVehicle(node *VehicleNode) // 移除车辆，prepare阶段生效
	FirstVehicle() *VehicleNode      // 最上游的车辆
	Vehicles() []IVehicle
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32                                     // 路口ID
	Protocol() string                              // 协商协议名
	Area() orb.Bound                               // 路口区域
	Path(entry, exit int32) (orb.LineString, bool) // 路口内的通行路径
	Deliver(msg protocol.V2I) error                // 投递车辆发来的消息
	Snapshot() JunctionSnapshot                    // 当前预约状态
}

// entity/vehicle/vehicle.go的依赖倒置
type IVehicle interface {
	ID() int32                      // 车辆ID
	Deliver(msg protocol.I2V) error // 投递路口发来的消息
	S() float64                     // 车头在当前车道上的位置
	V() float64                     // 速度
	Length() float64                // 车长
	String() string
}

// 车辆链表节点类型
type VehicleNode = container.ListNode[IVehicle]

// 车辆链表类型
type VehicleList = container.List[IVehicle]

// ReservationInfo 一条有效预约的概要
type ReservationInfo struct {
	ID        int32   `json:"id"`
	VIN       int32   `json:"vin"`
	RequestID int32   `json:"request_id"`
	ExitLane  int32   `json:"exit_lane"`
	ExitTime  float64 `json:"exit_time"`
	Claims    int     `json:"claims"`
}

// JunctionSnapshot 路口协商状态的快照
type JunctionSnapshot struct {
	JunctionID   int32             `json:"junction_id"`
	Protocol     string            `json:"protocol"`
	Reservations []ReservationInfo `json:"reservations,omitempty"`
	Waiting      []int32           `json:"waiting,omitempty"` // 等待队列中的车辆
	Go           int32             `json:"go,omitempty"`      // 串行队列中持有通行权的车辆
	ACZ          int               `json:"acz"`               // 准入控制区记录数
}

// TripStats 已完成行程的统计
type TripStats struct {
	NumCompletedTrips int32   `json:"num_completed_trips"` // 驶出驶出车道终点的车辆数
	TravelTime        float64 `json:"travel_time"`         // 总行驶时间
	Spawned           int32   `json:"spawned"`             // 生成的车辆数
}

// 统计事件类型
type EventKind int32

const (
	EventConfirm EventKind = iota
	EventReject
	EventCancel
	EventDone
	EventAway
	EventQConfirm
	EventQReject
	EventQGo
	EventQDone
)

var eventKindNames = [...]string{
	"confirm", "reject", "cancel", "done", "away", "qconfirm", "qreject", "qgo", "qdone",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", k)
	}
	return eventKindNames[k]
}

// Event 一次协商结果
type Event struct {
	T          float64
	JunctionID int32
	VIN        int32
	Kind       EventKind
	Reason     string // 拒绝原因，其他事件为空
}

// 统计模块的依赖倒置
// 说明：多个路口并行调用，实现必须并发安全
type IRecorder interface {
	Record(ev Event)
}

// NopRecorder 丢弃所有事件
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}
