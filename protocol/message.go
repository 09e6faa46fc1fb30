// 车辆与路口之间交换的消息定义
package protocol

// Header 消息路由信息
type Header struct {
	JunctionID int32 // 路口ID
	VIN        int32 // 车辆ID
}

// Route 获取消息路由信息
func (h Header) Route() Header {
	return h
}

// Message 所有消息的公共接口
type Message interface {
	Kind() Kind
	Route() Header
}

// V2I 车辆发往路口的消息
type V2I interface {
	Message
	v2i()
}

// I2V 路口发往车辆的消息
type I2V interface {
	Message
	i2v()
}

// AccelSegment 加速度曲线中的一段：以Acceleration持续Duration秒
type AccelSegment struct {
	Acceleration float64
	Duration     float64
}

// VehicleSpec 请求中附带的车辆参数
type VehicleSpec struct {
	Length          float64
	Width           float64
	MaxVelocity     float64
	MaxAcceleration float64
	Emergency       bool
}

// Proposal 一个候选通行方案
type Proposal struct {
	ArrivalTime     float64        // 到达路口边界的时刻
	ArrivalVelocity float64        // 到达速度
	EntryLane       int32          // 驶入车道
	ExitLane        int32          // 驶出车道
	AccelProfile    []AccelSegment // 可选，为空时由路口按车辆性能推算
}

// Request 预约请求，Proposals按优先顺序排列
type Request struct {
	Header
	RequestID int32
	Spec      VehicleSpec
	Proposals []Proposal
}

// Cancel 取消预约
type Cancel struct {
	Header
	ReservationID int32
}

// Done 车辆已驶出路口
type Done struct {
	Header
	ReservationID int32
}

// Away 车辆已驶离准入控制区
type Away struct {
	Header
	ReservationID int32
}

// QRequest 串行队列入队请求，VehicleInFront<0表示前方无车
type QRequest struct {
	Header
	VehicleInFront  int32
	DistanceToMerge float64
}

// QDone 车辆已通过合流区
type QDone struct {
	Header
}

// Confirm 预约成功
type Confirm struct {
	Header
	ReservationID   int32
	RequestID       int32
	ArrivalTime     float64
	EarlyError      float64
	LateError       float64
	ArrivalVelocity float64
	EntryLane       int32
	ExitLane        int32
	ACZDistance     float64 // 驶出路口后需要行驶该距离才可发送Away
	AccelProfile    []AccelSegment
}

// Reject 预约被拒绝，NextAllowedComm之前不得再次请求
type Reject struct {
	Header
	RequestID       int32
	NextAllowedComm float64
	Reason          Reason
}

// QConfirm 已入队
type QConfirm struct {
	Header
}

// QReject 入队被拒绝
type QReject struct {
	Header
	Reason QReason
}

// QGo 允许通过合流区
type QGo struct {
	Header
}

func (*Request) Kind() Kind  { return KindRequest }
func (*Cancel) Kind() Kind   { return KindCancel }
func (*Done) Kind() Kind     { return KindDone }
func (*Away) Kind() Kind     { return KindAway }
func (*QRequest) Kind() Kind { return KindQRequest }
func (*QDone) Kind() Kind    { return KindQDone }
func (*Confirm) Kind() Kind  { return KindConfirm }
func (*Reject) Kind() Kind   { return KindReject }
func (*QConfirm) Kind() Kind { return KindQConfirm }
func (*QReject) Kind() Kind  { return KindQReject }
func (*QGo) Kind() Kind      { return KindQGo }

func (*Request) v2i()  {}
func (*Cancel) v2i()   {}
func (*Done) v2i()     {}
func (*Away) v2i()     {}
func (*QRequest) v2i() {}
func (*QDone) v2i()    {}
func (*Confirm) i2v()  {}
func (*Reject) i2v()   {}
func (*QConfirm) i2v() {}
func (*QReject) i2v()  {}
func (*QGo) i2v()      {}
