// 串行队列协议：车辆按入队顺序逐辆通过合流区，同一时刻至多一辆车持有通行权
package queue

import (
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/container"
)

// 已通过合流区车辆的缓存容量
const clearedCacheSize = 64

// Queue 串行队列
// 功能：处理QRequest/QDone，在合流区空闲时向队首车辆发送QGo
// 说明：不是并发安全的，由所属路口在更新阶段串行调用
type Queue struct {
	junctionID  int32
	maxDistance float64
	recorder    entity.IRecorder

	queue container.List[int32]
	nodes map[int32]*container.ListNode[int32]

	goVIN int32 // 持有通行权的车辆
	busy  bool  // 合流区被goVIN占用

	// 最近通过合流区的车辆，供后车校验前车
	cleared      map[int32]struct{}
	clearedOrder []int32

	now    float64
	outbox []protocol.I2V
}

// New 创建串行队列
// 参数：junctionID-路口ID，maxDistance-允许入队的最远距离，recorder-统计模块（可为nil）
func New(junctionID int32, maxDistance float64, recorder entity.IRecorder) *Queue {
	if recorder == nil {
		recorder = entity.NopRecorder{}
	}
	return &Queue{
		junctionID:  junctionID,
		maxDistance: maxDistance,
		recorder:    recorder,
		nodes:       make(map[int32]*container.ListNode[int32]),
		cleared:     make(map[int32]struct{}),
	}
}

func (q *Queue) header(vin int32) protocol.Header {
	return protocol.Header{JunctionID: q.junctionID, VIN: vin}
}

func (q *Queue) report(vin int32, kind entity.EventKind, reason string) {
	q.recorder.Record(entity.Event{T: q.now, JunctionID: q.junctionID, VIN: vin, Kind: kind, Reason: reason})
}

// known 车辆在队列中、持有通行权或刚通过合流区
func (q *Queue) known(vin int32) bool {
	if _, ok := q.nodes[vin]; ok {
		return true
	}
	if q.busy && q.goVIN == vin {
		return true
	}
	_, ok := q.cleared[vin]
	return ok
}

// ProcessMessage 处理一条车辆消息，回复进入发件箱
func (q *Queue) ProcessMessage(now float64, msg protocol.V2I) {
	q.now = now
	switch m := msg.(type) {
	case *protocol.QRequest:
		q.request(m)
	case *protocol.QDone:
		q.done(m.VIN)
	default:
		log.Warnf("junction %d: queue ignores %v from vehicle %d", q.junctionID, msg.Kind(), msg.Route().VIN)
	}
}

func (q *Queue) request(m *protocol.QRequest) {
	reject := func(reason protocol.QReason) {
		q.outbox = append(q.outbox, &protocol.QReject{Header: q.header(m.VIN), Reason: reason})
		q.report(m.VIN, entity.EventQReject, reason.String())
	}
	_, queued := q.nodes[m.VIN]
	switch {
	case queued || (q.busy && q.goVIN == m.VIN):
		reject(protocol.AlreadyInQueue)
	case m.DistanceToMerge > q.maxDistance:
		reject(protocol.TooFar)
	case m.VehicleInFront >= 0 && !q.known(m.VehicleInFront):
		reject(protocol.VehicleInFrontNotInQueue)
	default:
		node := &container.ListNode[int32]{S: q.now, Value: m.VIN}
		q.queue.PushBack(node)
		q.nodes[m.VIN] = node
		q.outbox = append(q.outbox, &protocol.QConfirm{Header: q.header(m.VIN)})
		q.report(m.VIN, entity.EventQConfirm, "")
	}
}

func (q *Queue) done(vin int32) {
	if !q.busy || q.goVIN != vin {
		log.Warnf("junction %d: QDone from vehicle %d which does not hold the merge", q.junctionID, vin)
		return
	}
	q.busy = false
	q.cleared[vin] = struct{}{}
	q.clearedOrder = append(q.clearedOrder, vin)
	if len(q.clearedOrder) > clearedCacheSize {
		delete(q.cleared, q.clearedOrder[0])
		q.clearedOrder = q.clearedOrder[1:]
	}
	q.report(vin, entity.EventQDone, "")
}

// Act 合流区空闲时向队首车辆发送QGo，返回本步发出的全部消息
func (q *Queue) Act(now float64) []protocol.I2V {
	q.now = now
	if !q.busy {
		if node := q.queue.PopFront(); node != nil {
			delete(q.nodes, node.Value)
			q.goVIN, q.busy = node.Value, true
			q.outbox = append(q.outbox, &protocol.QGo{Header: q.header(node.Value)})
			q.report(node.Value, entity.EventQGo, "")
		}
	}
	out := q.outbox
	q.outbox = nil
	return out
}

// Holder 持有通行权的车辆
func (q *Queue) Holder() (int32, bool) {
	return q.goVIN, q.busy
}

// Snapshot 当前队列状态
func (q *Queue) Snapshot() entity.JunctionSnapshot {
	s := entity.JunctionSnapshot{JunctionID: q.junctionID, Waiting: q.queue.Values()}
	if q.busy {
		s.Go = q.goVIN
	}
	return s
}
