package protocol

import "fmt"

// Kind 消息类型
type Kind int32

const (
	KindUnknown Kind = iota
	// 车辆 -> 路口
	KindRequest
	KindCancel
	KindDone
	KindAway
	KindQRequest
	KindQDone
	// 路口 -> 车辆
	KindConfirm
	KindReject
	KindQConfirm
	KindQReject
	KindQGo
)

var kindNames = map[Kind]string{
	KindUnknown:  "UNKNOWN",
	KindRequest:  "REQUEST",
	KindCancel:   "CANCEL",
	KindDone:     "DONE",
	KindAway:     "AWAY",
	KindQRequest: "Q_REQUEST",
	KindQDone:    "Q_DONE",
	KindConfirm:  "CONFIRM",
	KindReject:   "REJECT",
	KindQConfirm: "Q_CONFIRM",
	KindQReject:  "Q_REJECT",
	KindQGo:      "Q_GO",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// IsV2I 是否为车辆发往路口的消息
func (k Kind) IsV2I() bool {
	return k >= KindRequest && k <= KindQDone
}

// IsI2V 是否为路口发往车辆的消息
func (k Kind) IsI2V() bool {
	return k >= KindConfirm && k <= KindQGo
}

// Reason 预约被拒绝的原因（封闭枚举）
type Reason int32

const (
	NoClearPath             Reason = iota // 找不到无冲突的通行方案
	ConfirmedAnotherRequest               // 该车辆已持有本路口的预约
	ArrivalTimeTooLarge                   // 到达时间超出可预约范围
	ArrivalTimeTooLate                    // 到达时间已过
	BeforeNextAllowedComm                 // 退避时间未到
)

var reasonNames = map[Reason]string{
	NoClearPath:             "NO_CLEAR_PATH",
	ConfirmedAnotherRequest: "CONFIRMED_ANOTHER_REQUEST",
	ArrivalTimeTooLarge:     "ARRIVAL_TIME_TOO_LARGE",
	ArrivalTimeTooLate:      "ARRIVAL_TIME_TOO_LATE",
	BeforeNextAllowedComm:   "BEFORE_NEXT_ALLOWED_COMM",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reason(%d)", int32(r))
}

// QReason 串行队列拒绝原因
type QReason int32

const (
	TooFar                   QReason = iota // 距离合流点太远
	AlreadyInQueue                          // 已在队列中
	VehicleInFrontNotInQueue                // 前车尚未入队
)

var qReasonNames = map[QReason]string{
	TooFar:                   "TOO_FAR",
	AlreadyInQueue:           "ALREADY_IN_QUEUE",
	VehicleInFrontNotInQueue: "VEHICLE_IN_FRONT_NOT_IN_QUEUE",
}

func (r QReason) String() string {
	if name, ok := qReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("QReason(%d)", int32(r))
}
