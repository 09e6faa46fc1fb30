package vehicle

import (
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

// QueueCoordinator 串行队列协议的车辆协调器
// 功能：进入queue_max_distance后请求入队，收到QGo前在入口前停车，车尾驶出路口后发送QDone
// 说明：状态复用State，Confirmed表示已入队，Traversing表示持有通行权
type QueueCoordinator struct {
	Strict bool

	id  Identity
	cfg config.Policy

	state       State
	now         float64
	nextAllowed float64
	outbox      []protocol.V2I
}

// NewQueueCoordinator 创建串行队列协调器
func NewQueueCoordinator(id Identity, cfg config.Policy) *QueueCoordinator {
	return &QueueCoordinator{
		Strict: *strict,
		id:     id,
		cfg:    cfg,
	}
}

func (c *QueueCoordinator) State() State {
	return c.state
}

func (c *QueueCoordinator) MayEnter() bool {
	return c.state == StateTraversing
}

func (c *QueueCoordinator) Schedule(float64, float64) (float64, bool) {
	return 0, false
}

func (c *QueueCoordinator) violation(format string, args ...any) {
	if c.Strict {
		log.Panicf("vehicle %d: "+format, append([]any{c.id.VIN}, args...)...)
	}
	log.Warnf("vehicle %d: "+format, append([]any{c.id.VIN}, args...)...)
}

func (c *QueueCoordinator) Receive(msg protocol.I2V) {
	switch m := msg.(type) {
	case *protocol.QConfirm:
		if c.state != StateAwaitingReply {
			c.violation("QConfirm in state %v", c.state)
			return
		}
		c.state = StateConfirmed
	case *protocol.QReject:
		if c.state != StateAwaitingReply {
			c.violation("QReject in state %v", c.state)
			return
		}
		if m.Reason == protocol.AlreadyInQueue {
			c.violation("QRequest rejected: %v", m.Reason)
		}
		c.nextAllowed = c.now + c.cfg.RejectBackoff
		c.state = StateIdle
	case *protocol.QGo:
		if c.state != StateConfirmed {
			c.violation("QGo in state %v", c.state)
			return
		}
		c.state = StateTraversing
	default:
		log.Warnf("vehicle %d: queue coordinator ignores %v", c.id.VIN, msg.Kind())
	}
}

func (c *QueueCoordinator) Act(obs Observation) []protocol.V2I {
	c.now = obs.T
	switch c.state {
	case StateIdle:
		if obs.Segment == SegmentEntry && obs.DistanceToEntry <= c.cfg.QueueMaxDistance && obs.T >= c.nextAllowed-1e-9 {
			c.outbox = append(c.outbox, &protocol.QRequest{
				Header:          c.id.header(),
				VehicleInFront:  obs.VehicleInFront,
				DistanceToMerge: obs.DistanceToEntry,
			})
			c.state = StateAwaitingReply
		}
	case StateTraversing:
		if obs.DistancePastExit >= c.id.Spec.Length {
			c.outbox = append(c.outbox, &protocol.QDone{Header: c.id.header()})
			c.state = StateDeparted
		}
	}
	out := c.outbox
	c.outbox = nil
	return out
}

// Abort 持有通行权的车辆被移除时释放合流区
func (c *QueueCoordinator) Abort() []protocol.V2I {
	if c.state == StateTraversing {
		c.state = StateDeparted
		return []protocol.V2I{&protocol.QDone{Header: c.id.header()}}
	}
	return nil
}

func (c *QueueCoordinator) Dropped(msg protocol.V2I) {
	if msg.Kind() == protocol.KindQRequest && c.state == StateAwaitingReply {
		c.nextAllowed = c.now + c.cfg.RejectBackoff
		c.state = StateIdle
	}
}
