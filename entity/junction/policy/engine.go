// 路口网格预约策略：过滤候选方案、推算时空占用、原子预约与准入控制、回复确认或拒绝
package policy

import (
	"flag"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/acz"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/reservation"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

var strict = flag.Bool("policy.strict", false, "panic on protocol violations instead of logging them")

// Grant 一次成功的预约
type Grant struct {
	ReservationID int32
	Proposal      protocol.Proposal
	Traversal     *Traversal
}

// record 引擎保存的预约记录
type record struct {
	id        int32
	vin       int32
	requestID int32
	exitLane  int32
	exitTime  float64
	done      bool // 车辆已驶出路口，台账占用已释放
}

// Engine 网格预约策略引擎
// 功能：独占一个路口的预约台账、准入控制区与请求处理器，每步处理一次收到的消息
// 说明：不是并发安全的，同一路口的消息只在该路口的更新阶段串行处理
type Engine struct {
	// 协议违规时panic
	Strict bool

	junctionID int32
	cfg        config.Policy
	planner    *Planner
	ledger     *reservation.Ledger
	zones      *acz.Manager
	handler    RequestHandler
	recorder   entity.IRecorder

	records     map[int32]*record
	byVIN       map[int32]int32   // 车辆ID -> 未驶出路口的预约ID
	nextAllowed map[int32]float64 // 车辆ID -> 允许再次请求的时刻
	batch       map[int32]struct{}
	nextID      int32

	now    float64
	steps  int32
	outbox []protocol.I2V
}

// NewEngine 创建策略引擎
// 参数：junctionID-路口ID，planner-通行推算器，zones-准入控制区，handler-请求处理器，
// cfg-策略参数，recorder-统计模块（可为nil）
func NewEngine(
	junctionID int32, planner *Planner, zones *acz.Manager, handler RequestHandler,
	cfg config.Policy, recorder entity.IRecorder,
) *Engine {
	if recorder == nil {
		recorder = entity.NopRecorder{}
	}
	return &Engine{
		Strict:      *strict,
		junctionID:  junctionID,
		cfg:         cfg,
		planner:     planner,
		ledger:      reservation.NewLedger(),
		zones:       zones,
		handler:     handler,
		recorder:    recorder,
		records:     make(map[int32]*record),
		byVIN:       make(map[int32]int32),
		nextAllowed: make(map[int32]float64),
		batch:       make(map[int32]struct{}),
		nextID:      1,
	}
}

// Ledger 预约台账（只读使用）
func (e *Engine) Ledger() *reservation.Ledger {
	return e.ledger
}

// Now 当前处理时刻
func (e *Engine) Now() float64 {
	return e.now
}

func (e *Engine) emit(msg protocol.I2V) {
	e.outbox = append(e.outbox, msg)
}

func (e *Engine) report(vin int32, kind entity.EventKind, reason string) {
	e.recorder.Record(entity.Event{T: e.now, JunctionID: e.junctionID, VIN: vin, Kind: kind, Reason: reason})
}

func (e *Engine) violation(format string, args ...any) {
	if e.Strict {
		log.Panicf("junction %d: "+format, append([]any{e.junctionID}, args...)...)
	}
	log.Warnf("junction %d: "+format, append([]any{e.junctionID}, args...)...)
}

// ProcessMessage 处理一条车辆消息，回复进入发件箱
func (e *Engine) ProcessMessage(now float64, msg protocol.V2I) {
	e.now = now
	switch m := msg.(type) {
	case *protocol.Request:
		e.processRequest(m)
	case *protocol.Cancel:
		e.Cancel(m.VIN, m.ReservationID)
	case *protocol.Done:
		e.Done(m.VIN, m.ReservationID)
	case *protocol.Away:
		e.Away(m.VIN, m.ReservationID)
	default:
		log.Warnf("junction %d: grid policy ignores %v from vehicle %d", e.junctionID, msg.Kind(), msg.Route().VIN)
	}
}

func (e *Engine) processRequest(msg *protocol.Request) {
	if _, ok := e.batch[msg.VIN]; ok {
		e.violation("vehicle %d sent more than one request in a step", msg.VIN)
	}
	e.batch[msg.VIN] = struct{}{}
	if _, ok := e.byVIN[msg.VIN]; ok {
		e.Reject(msg, protocol.ConfirmedAnotherRequest)
		return
	}
	if t, ok := e.nextAllowed[msg.VIN]; ok && e.now < t-1e-9 {
		e.Reject(msg, protocol.BeforeNextAllowedComm)
		return
	}
	// 到达时间全部越界的请求不进入处理器，也不占用先到先服务队列的位置
	if len(msg.Proposals) > 0 {
		if kept, reason := e.filter(msg.Proposals); len(kept) == 0 {
			e.Reject(msg, reason)
			return
		}
	}
	e.handler.ProcessRequest(e, msg)
}

// filter 丢弃到达时间不在[now+min_future, now+horizon]内的方案
// 返回：保留的方案；全部被丢弃时返回拒绝原因（任一过早则为TOO_LATE）
func (e *Engine) filter(proposals []protocol.Proposal) ([]protocol.Proposal, protocol.Reason) {
	late := false
	kept := lo.Filter(proposals, func(p protocol.Proposal, _ int) bool {
		switch {
		case p.ArrivalTime < e.now+e.cfg.MinFuture:
			late = true
			return false
		case p.ArrivalTime > e.now+e.cfg.Horizon:
			return false
		}
		return true
	})
	if late {
		return kept, protocol.ArrivalTimeTooLate
	}
	return kept, protocol.ArrivalTimeTooLarge
}

// Reserve 按顺序尝试各个候选方案
// 功能：推算占用，尝试登记到台账，再向驶出车道的准入控制区申请；准入失败时撤销台账中的占用
// 返回：成功时的授权；否则nil与拒绝原因
func (e *Engine) Reserve(msg *protocol.Request) (*Grant, protocol.Reason) {
	if len(msg.Proposals) == 0 {
		return nil, protocol.NoClearPath
	}
	proposals, reason := e.filter(msg.Proposals)
	if len(proposals) == 0 {
		return nil, reason
	}
	for _, p := range proposals {
		trav, err := e.planner.Plan(p, msg.Spec)
		if err != nil {
			log.Debugf("junction %d: vehicle %d proposal %+v: %v", e.junctionID, msg.VIN, p, err)
			continue
		}
		rid := e.nextID
		if !e.ledger.Reserve(rid, trav.Claims) {
			continue
		}
		capacity := e.zones.Capacity(p.ExitLane)
		clearTime := trav.ExitTime + (capacity+msg.Spec.Length)/math.Max(trav.ExitVelocity, 1)
		if !e.zones.Admit(p.ExitLane, rid, msg.VIN, trav.ExitTime, clearTime, msg.Spec.Length) {
			e.ledger.Cancel(rid)
			continue
		}
		e.nextID++
		e.records[rid] = &record{
			id:        rid,
			vin:       msg.VIN,
			requestID: msg.RequestID,
			exitLane:  p.ExitLane,
			exitTime:  trav.ExitTime,
		}
		e.byVIN[msg.VIN] = rid
		return &Grant{ReservationID: rid, Proposal: p, Traversal: trav}, protocol.NoClearPath
	}
	return nil, protocol.NoClearPath
}

// Confirm 回复授权
func (e *Engine) Confirm(msg *protocol.Request, g *Grant) {
	delete(e.nextAllowed, msg.VIN)
	aczDistance := 0.0
	if capacity := e.zones.Capacity(g.Proposal.ExitLane); capacity > 0 {
		aczDistance = capacity + msg.Spec.Length
	}
	e.emit(&protocol.Confirm{
		Header:          protocol.Header{JunctionID: e.junctionID, VIN: msg.VIN},
		ReservationID:   g.ReservationID,
		RequestID:       msg.RequestID,
		ArrivalTime:     g.Proposal.ArrivalTime,
		EarlyError:      e.cfg.EarlyError,
		LateError:       e.cfg.LateError,
		ArrivalVelocity: g.Proposal.ArrivalVelocity,
		EntryLane:       g.Proposal.EntryLane,
		ExitLane:        g.Proposal.ExitLane,
		ACZDistance:     aczDistance,
		AccelProfile:    g.Traversal.Profile,
	})
	e.report(msg.VIN, entity.EventConfirm, "")
}

// Reject 回复拒绝，并要求车辆在固定退避时长后再请求
func (e *Engine) Reject(msg *protocol.Request, reason protocol.Reason) {
	next := e.now + e.cfg.RejectBackoff
	switch reason {
	case protocol.ConfirmedAnotherRequest:
	case protocol.BeforeNextAllowedComm:
		// 不延长已有的退避
		next = e.nextAllowed[msg.VIN]
	default:
		e.nextAllowed[msg.VIN] = next
	}
	e.emit(&protocol.Reject{
		Header:          protocol.Header{JunctionID: e.junctionID, VIN: msg.VIN},
		RequestID:       msg.RequestID,
		NextAllowedComm: next,
		Reason:          reason,
	})
	e.report(msg.VIN, entity.EventReject, reason.String())
}

// owned 预约存在且属于该车辆
func (e *Engine) owned(vin, rid int32, op string) (*record, bool) {
	r, ok := e.records[rid]
	if !ok {
		log.Warnf("junction %d: %s of unknown reservation %d from vehicle %d", e.junctionID, op, rid, vin)
		return nil, false
	}
	if r.vin != vin {
		log.Warnf("junction %d: %s of reservation %d by vehicle %d, owned by %d", e.junctionID, op, rid, vin, r.vin)
		return nil, false
	}
	return r, true
}

// Cancel 取消预约：释放台账占用与准入控制区记录
// 返回：预约不存在时返回false
func (e *Engine) Cancel(vin, rid int32) bool {
	r, ok := e.owned(vin, rid, "cancel")
	if !ok {
		return false
	}
	e.handler.Forget(vin)
	e.ledger.Cancel(rid)
	e.zones.Release(rid)
	e.drop(r)
	e.report(vin, entity.EventCancel, "")
	return true
}

// Done 车辆已驶出路口：释放台账占用，准入控制区记录保留到Away
// 返回：预约不存在时返回false
func (e *Engine) Done(vin, rid int32) bool {
	r, ok := e.owned(vin, rid, "done")
	if !ok || r.done {
		return false
	}
	e.handler.Forget(vin)
	e.ledger.Cancel(rid)
	r.done = true
	delete(e.byVIN, vin)
	e.report(vin, entity.EventDone, "")
	return true
}

// Away 车辆已驶离准入控制区：释放准入控制区记录
// 返回：预约不存在时返回false
func (e *Engine) Away(vin, rid int32) bool {
	r, ok := e.owned(vin, rid, "away")
	if !ok {
		return false
	}
	e.handler.Forget(vin)
	e.zones.Release(rid)
	e.drop(r)
	e.report(vin, entity.EventAway, "")
	return true
}

func (e *Engine) drop(r *record) {
	delete(e.records, r.id)
	if e.byVIN[r.vin] == r.id {
		delete(e.byVIN, r.vin)
	}
}

// Act 每步一次的维护，返回本步发出的全部消息
// 算法说明：
// 1. 请求处理器维护（如淘汰失联车辆）
// 2. 每cleanup_period步清理过期占用，台账与准入控制区中都已不存在的预约记录被删除
// 3. 清空本步的请求记录，取出发件箱
func (e *Engine) Act(now float64) []protocol.I2V {
	e.now = now
	e.handler.Act(now)
	e.steps++
	if e.cfg.CleanupPeriod > 0 && e.steps%e.cfg.CleanupPeriod == 0 {
		e.cleanup(now)
	}
	clear(e.batch)
	out := e.outbox
	e.outbox = nil
	return out
}

func (e *Engine) cleanup(now float64) {
	expired := e.ledger.Cleanup(e.planner.Timer().Discrete(now))
	released := e.zones.Cleanup(now)
	for _, r := range e.records {
		if !e.ledger.Has(r.id) && !e.zones.Has(r.id) {
			e.drop(r)
		}
	}
	for vin, t := range e.nextAllowed {
		if t < now {
			delete(e.nextAllowed, vin)
		}
	}
	log.Debugf("junction %d: cleanup at %.2f, %d expired, %d released", e.junctionID, now, len(expired), len(released))
}

// Snapshot 当前预约状态
func (e *Engine) Snapshot() entity.JunctionSnapshot {
	ids := lo.Keys(e.records)
	slices.Sort(ids)
	return entity.JunctionSnapshot{
		JunctionID: e.junctionID,
		Reservations: lo.Map(ids, func(id int32, _ int) entity.ReservationInfo {
			r := e.records[id]
			return entity.ReservationInfo{
				ID:        r.id,
				VIN:       r.vin,
				RequestID: r.requestID,
				ExitLane:  r.exitLane,
				ExitTime:  r.exitTime,
				Claims:    len(e.ledger.Claims(id)),
			}
		}),
		Waiting: e.handler.Waiting(),
		ACZ:     e.zones.Len(),
	}
}
