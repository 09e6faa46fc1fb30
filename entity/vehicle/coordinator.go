package vehicle

import (
	"flag"
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

var strict = flag.Bool("vehicle.strict", false, "panic on coordinator bugs instead of logging them")

// State 协调器状态
type State int32

const (
	StateIdle          State = iota // 没有预约
	StateAwaitingReply              // 已发送请求，等待回复
	StateConfirmed                  // 已获授权，驶向路口
	StateTraversing                 // 正在通过路口
	StateDeparted                   // 已驶出路口，等待驶离准入控制区
)

var stateNames = [...]string{"idle", "awaiting_reply", "confirmed", "traversing", "departed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", s)
	}
	return stateNames[s]
}

// Identity 协调器所属车辆与路线
type Identity struct {
	VIN             int32
	JunctionID      int32
	EntryLane       int32
	ExitLane        int32
	Spec            protocol.VehicleSpec
	MaxDeceleration float64 // 正数
}

func (id Identity) header() protocol.Header {
	return protocol.Header{JunctionID: id.JunctionID, VIN: id.VIN}
}

// Observation 协调器每步读取的车辆状态
type Observation struct {
	T                float64 // 观测时刻（本步运动结束时）
	DT               float64 // 仿真步长
	V                float64
	Segment          Segment
	DistanceToEntry  float64 // 车头到路口入口的距离，驶过入口后为0
	DistancePastExit float64 // 车头驶过路口出口的距离，未驶出时为负数
	Blocked          bool    // 前车使车辆无法按授权方案行驶
	VehicleInFront   int32   // 同一驶入车道上的前车，没有时为-1
}

// Coordinator 车辆一侧的协商状态机
// 说明：每步先Receive上一步路口发来的消息，车辆运动后再以新的状态调用Act
type Coordinator interface {
	Receive(msg protocol.I2V)
	Act(obs Observation) []protocol.V2I
	// Schedule 获得授权后[t, t+dt]内应采用的平均加速度，没有授权方案时返回false
	Schedule(t, dt float64) (float64, bool)
	// MayEnter 是否允许驶入路口
	MayEnter() bool
	State() State
	// Abort 车辆被移除时需要发出的消息
	Abort() []protocol.V2I
	// Dropped 消息未能投递到路口
	Dropped(msg protocol.V2I)
}

// V2ICoordinator 网格预约协议的车辆协调器
// 功能：Idle时按当前状态生成候选方案并请求，获得授权后按方案行驶，驶出路口后发送Done，
// 驶离准入控制区后发送Away
// 说明：Confirmed与Traversing期间偏离授权方案（前车阻挡或超出时间窗口）则取消预约
type V2ICoordinator struct {
	// 协调器自身的错误（如重复请求）时panic
	Strict bool

	id  Identity
	cfg config.Policy

	state         State
	nextRequestID int32
	nextAllowed   float64

	// 等待回复的请求
	requestID int32
	requestAt float64
	proposals []protocol.Proposal
	plans     []approach

	// 当前预约
	confirm *protocol.Confirm
	start   float64                 // 授权方案的起始时刻
	clearBy float64                 // 车尾最迟驶离路口的时刻
	profile []protocol.AccelSegment // 从start起驶向入口并通过路口的加速度曲线

	outbox []protocol.V2I
}

// NewV2ICoordinator 创建网格预约协调器
func NewV2ICoordinator(id Identity, cfg config.Policy) *V2ICoordinator {
	return &V2ICoordinator{
		Strict: *strict,
		id:     id,
		cfg:    cfg,
	}
}

func (c *V2ICoordinator) State() State {
	return c.state
}

func (c *V2ICoordinator) MayEnter() bool {
	return c.state == StateConfirmed || c.state == StateTraversing
}

// Reservation 当前预约，没有时返回nil
func (c *V2ICoordinator) Reservation() *protocol.Confirm {
	return c.confirm
}

func (c *V2ICoordinator) violation(format string, args ...any) {
	if c.Strict {
		log.Panicf("vehicle %d: "+format, append([]any{c.id.VIN}, args...)...)
	}
	log.Warnf("vehicle %d: "+format, append([]any{c.id.VIN}, args...)...)
}

// Receive 处理路口回复
func (c *V2ICoordinator) Receive(msg protocol.I2V) {
	switch m := msg.(type) {
	case *protocol.Confirm:
		c.receiveConfirm(m)
	case *protocol.Reject:
		c.receiveReject(m)
	default:
		log.Warnf("vehicle %d: grid coordinator ignores %v", c.id.VIN, msg.Kind())
	}
}

func (c *V2ICoordinator) receiveConfirm(m *protocol.Confirm) {
	if c.state != StateAwaitingReply || m.RequestID != c.requestID {
		c.violation("confirm %d of request %d in state %v", m.ReservationID, m.RequestID, c.state)
		c.outbox = append(c.outbox, &protocol.Cancel{Header: c.id.header(), ReservationID: m.ReservationID})
		return
	}
	index := -1
	for i, p := range c.proposals {
		if p.ArrivalTime == m.ArrivalTime && p.EntryLane == m.EntryLane && p.ExitLane == m.ExitLane {
			index = i
			break
		}
	}
	if index < 0 {
		c.violation("confirm %d matches no proposal of request %d", m.ReservationID, m.RequestID)
		c.outbox = append(c.outbox, &protocol.Cancel{Header: c.id.header(), ReservationID: m.ReservationID})
		c.reset()
		return
	}
	c.confirm = m
	c.start = c.requestAt
	c.clearBy = m.ArrivalTime + m.LateError + lo.SumBy(m.AccelProfile, func(seg protocol.AccelSegment) float64 {
		return seg.Duration
	})
	c.profile = append(append([]protocol.AccelSegment{}, c.plans[index].Profile...), m.AccelProfile...)
	c.proposals, c.plans = nil, nil
	c.state = StateConfirmed
}

func (c *V2ICoordinator) receiveReject(m *protocol.Reject) {
	if c.state != StateAwaitingReply || m.RequestID != c.requestID {
		log.Warnf("vehicle %d: reject of request %d in state %v", c.id.VIN, m.RequestID, c.state)
		return
	}
	switch m.Reason {
	case protocol.ArrivalTimeTooLate, protocol.ArrivalTimeTooLarge, protocol.BeforeNextAllowedComm:
		c.violation("request %d rejected: %v", m.RequestID, m.Reason)
	}
	c.nextAllowed = m.NextAllowedComm
	c.reset()
}

func (c *V2ICoordinator) reset() {
	c.state = StateIdle
	c.proposals, c.plans = nil, nil
	c.confirm, c.profile = nil, nil
}

// Act 根据本步运动后的状态推进状态机，返回需要发往路口的消息
func (c *V2ICoordinator) Act(obs Observation) []protocol.V2I {
	if c.state == StateIdle && obs.Segment == SegmentEntry && obs.T >= c.nextAllowed-1e-9 {
		c.request(obs)
	}
	if c.state == StateConfirmed {
		switch {
		case obs.Segment == SegmentEntry && obs.Blocked:
			log.Debugf("vehicle %d: blocked, cancel reservation %d", c.id.VIN, c.confirm.ReservationID)
			c.cancel()
		case obs.Segment != SegmentEntry:
			if c.onTime(obs) {
				c.state = StateTraversing
			} else {
				log.Warnf("vehicle %d: arrived at %.2f with %.2f m/s, reservation %d expects %.2f with %.2f m/s",
					c.id.VIN, obs.T, obs.V, c.confirm.ReservationID, c.confirm.ArrivalTime, c.confirm.ArrivalVelocity)
				c.cancel()
			}
		}
	}
	if c.state == StateTraversing {
		switch {
		case obs.DistancePastExit >= c.id.Spec.Length:
			c.send(&protocol.Done{Header: c.id.header(), ReservationID: c.confirm.ReservationID})
			c.state = StateDeparted
		case obs.Blocked || obs.T-obs.DT > c.clearBy:
			log.Warnf("vehicle %d: still in junction at %.2f, reservation %d expects to clear by %.2f",
				c.id.VIN, obs.T, c.confirm.ReservationID, c.clearBy)
			c.cancel()
		}
	}
	if c.state == StateDeparted && obs.DistancePastExit > c.confirm.ACZDistance {
		c.send(&protocol.Away{Header: c.id.header(), ReservationID: c.confirm.ReservationID})
		c.reset()
	}
	out := c.outbox
	c.outbox = nil
	return out
}

// send 发送消息前检查状态
func (c *V2ICoordinator) send(msg protocol.V2I) {
	switch msg.Kind() {
	case protocol.KindRequest:
		if c.state != StateIdle {
			c.violation("request in state %v", c.state)
			return
		}
	case protocol.KindDone, protocol.KindAway, protocol.KindCancel:
		if c.state == StateAwaitingReply || c.confirm == nil {
			c.violation("%v in state %v", msg.Kind(), c.state)
			return
		}
	}
	c.outbox = append(c.outbox, msg)
}

// request 生成候选方案并发送请求
// 算法说明：
// 1. 目标速度依次取最大速度的n/n, (n-1)/n, ..., 1/n，每个目标速度生成一个驶向入口的方案
// 2. 丢弃到达时间不在[T+min_future, T-dt+horizon]内或与前一方案相同的方案
// 3. 没有可用方案时本步不请求
func (c *V2ICoordinator) request(obs Observation) {
	n := c.cfg.ProposalCount
	proposals := make([]protocol.Proposal, 0, n)
	plans := make([]approach, 0, n)
	for i := 0; i < n; i++ {
		target := c.id.Spec.MaxVelocity * float64(n-i) / float64(n)
		plan, ok := planApproach(obs.DistanceToEntry, obs.V, target, c.id.Spec.MaxAcceleration, c.id.MaxDeceleration)
		if !ok {
			continue
		}
		arrival := obs.T + plan.Duration
		if arrival < obs.T+c.cfg.MinFuture || arrival > obs.T-obs.DT+c.cfg.Horizon {
			continue
		}
		if k := len(proposals); k > 0 && math.Abs(proposals[k-1].ArrivalTime-arrival) < 1e-9 {
			continue
		}
		proposals = append(proposals, protocol.Proposal{
			ArrivalTime:     arrival,
			ArrivalVelocity: plan.Velocity,
			EntryLane:       c.id.EntryLane,
			ExitLane:        c.id.ExitLane,
		})
		plans = append(plans, plan)
	}
	if len(proposals) == 0 {
		return
	}
	c.send(&protocol.Request{
		Header:    c.id.header(),
		RequestID: c.nextRequestID,
		Spec:      c.id.Spec,
		Proposals: proposals,
	})
	c.requestID = c.nextRequestID
	c.nextRequestID++
	c.requestAt = obs.T
	c.proposals, c.plans = proposals, plans
	c.state = StateAwaitingReply
}

// onTime 本步(T-dt, T]内驶过入口，与授权窗口[arrival-early, arrival+late]相交且速度误差在容许范围内
func (c *V2ICoordinator) onTime(obs Observation) bool {
	a1, a2 := obs.T-obs.DT, obs.T
	b1, b2 := c.confirm.ArrivalTime-c.confirm.EarlyError, c.confirm.ArrivalTime+c.confirm.LateError
	if !(a1 < b2 && b1 <= a2) {
		return false
	}
	return math.Abs(obs.V-c.confirm.ArrivalVelocity) <= c.cfg.VelocityTolerance
}

func (c *V2ICoordinator) cancel() {
	c.send(&protocol.Cancel{Header: c.id.header(), ReservationID: c.confirm.ReservationID})
	c.reset()
}

func (c *V2ICoordinator) Schedule(t, dt float64) (float64, bool) {
	if c.state != StateConfirmed && c.state != StateTraversing {
		return 0, false
	}
	return meanAccel(c.profile, t-c.start, t+dt-c.start), true
}

// Abort 车辆被移除：仍持有的预约需要取消或报告驶离
func (c *V2ICoordinator) Abort() []protocol.V2I {
	switch c.state {
	case StateConfirmed, StateTraversing:
		c.cancel()
	case StateDeparted:
		c.send(&protocol.Away{Header: c.id.header(), ReservationID: c.confirm.ReservationID})
		c.reset()
	}
	out := c.outbox
	c.outbox = nil
	return out
}

// Dropped 请求未送达时不会有回复，退避后重新请求
func (c *V2ICoordinator) Dropped(msg protocol.V2I) {
	req, ok := msg.(*protocol.Request)
	if !ok || c.state != StateAwaitingReply || req.RequestID != c.requestID {
		return
	}
	c.nextAllowed = c.requestAt + c.cfg.RejectBackoff
	c.reset()
}
