package vehicle

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/tile"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/container"
)

// 车辆之间、车辆与停止线之间的最小距离（米）
const hardGap = 0.5

// Vehicle 车辆实体
// 功能：沿驶入车道 -> 路口内通行路径 -> 驶出车道行驶，由协调器与路口协商通行
// 说明：更新阶段只写runtime、读其他车辆的snapshot，prepare阶段将runtime写入snapshot
type Vehicle struct {
	container.IncrementalItemBase

	id        int32
	spec      config.VehicleSpec
	emergency bool

	entry    entity.ILane
	exit     entity.ILane
	junction entity.IJunction
	path     orb.LineString
	pathLen  float64

	coord    Coordinator
	follower follower
	inbox    *protocol.Mailbox[protocol.I2V]

	node              *entity.VehicleNode // 所在车道的链表节点，在路口内时为nil
	snapshot, runtime motion
	departTime        float64
}

// newVehicle 创建车辆，车头位于驶入车道起点
// 参数：id-车辆ID，spec-车辆参数，emergency-是否为紧急车辆，entry/exit-驶入/驶出车道，
// j-所在路口，cfg-策略参数，dt-仿真步长，v0-初速度，now-出发时刻
// 返回：车辆；驶入与驶出车道之间没有通行路径时返回错误
func newVehicle(
	id int32, spec config.VehicleSpec, emergency bool,
	entry, exit entity.ILane, j entity.IJunction,
	cfg config.Policy, dt, v0, now float64,
) (*Vehicle, error) {
	path, ok := j.Path(entry.ID(), exit.ID())
	if !ok {
		return nil, fmt.Errorf("no path from lane %d to lane %d in junction %d", entry.ID(), exit.ID(), j.ID())
	}
	v := &Vehicle{
		id:        id,
		spec:      spec,
		emergency: emergency,
		entry:     entry,
		exit:      exit,
		junction:  j,
		path:      path,
		pathLen:   planar.Length(path),
		follower: follower{
			maxA:          spec.MaxAcceleration,
			usualBrakingA: -spec.MaxDeceleration / 2,
			maxBrakingA:   -spec.MaxDeceleration,
			maxV:          spec.MaxVelocity,
			dt:            dt,
		},
		inbox:      protocol.NewMailbox[protocol.I2V](cfg.MailboxSize),
		departTime: now,
	}
	ident := Identity{
		VIN:             id,
		JunctionID:      j.ID(),
		EntryLane:       entry.ID(),
		ExitLane:        exit.ID(),
		Spec:            v.protocolSpec(),
		MaxDeceleration: spec.MaxDeceleration,
	}
	if j.Protocol() == junction.ProtocolQueue {
		v.coord = NewQueueCoordinator(ident, cfg)
	} else {
		v.coord = NewV2ICoordinator(ident, cfg)
	}
	v.runtime = motion{Segment: SegmentEntry, V: v0}
	v.snapshot = v.runtime
	v.node = &entity.VehicleNode{S: 0, Value: v}
	entry.AddVehicle(v.node)
	return v, nil
}

func (v *Vehicle) protocolSpec() protocol.VehicleSpec {
	return protocol.VehicleSpec{
		Length:          v.spec.Length,
		Width:           v.spec.Width,
		MaxVelocity:     v.spec.MaxVelocity,
		MaxAcceleration: v.spec.MaxAcceleration,
		Emergency:       v.emergency,
	}
}

func (v *Vehicle) ID() int32 {
	return v.id
}

// Deliver 投递路口发来的消息，下一次update时处理
func (v *Vehicle) Deliver(msg protocol.I2V) error {
	return v.inbox.Put(msg)
}

// S 车头在当前路段上的位置（上一步结束时）
func (v *Vehicle) S() float64 {
	return v.snapshot.S
}

// V 速度（上一步结束时）
func (v *Vehicle) V() float64 {
	return v.snapshot.V
}

func (v *Vehicle) Length() float64 {
	return v.spec.Length
}

// Segment 所在路段（上一步结束时）
func (v *Vehicle) Segment() Segment {
	return v.snapshot.Segment
}

// Coordinator 车辆的协调器
func (v *Vehicle) Coordinator() Coordinator {
	return v.coord
}

// Position 车头坐标
func (v *Vehicle) Position() orb.Point {
	switch v.snapshot.Segment {
	case SegmentEntry:
		return v.entry.PointAt(v.snapshot.S)
	case SegmentJunction:
		p, _ := tile.PointAt(v.path, v.snapshot.S)
		return p
	default:
		return v.exit.PointAt(v.snapshot.S)
	}
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle{ID:%d, Lane:%d->%d, %v S:%.2f, V:%.2f, State:%v}",
		v.id, v.entry.ID(), v.exit.ID(), v.snapshot.Segment, v.snapshot.S, v.snapshot.V, v.coord.State())
}

// leader 同一车道上的前车
func (v *Vehicle) leader() entity.IVehicle {
	if v.node == nil || v.node.Parent() == nil {
		return nil
	}
	if next := v.node.Next(); next != nil {
		return next.Value
	}
	return nil
}

// prepare 准备阶段，发布上一步的运动状态
func (v *Vehicle) prepare() {
	v.snapshot = v.runtime
	if v.node != nil {
		v.node.S = v.snapshot.S
	}
}

// update 更新阶段
// 参数：now-本步开始时刻，dt-步长
// 返回：车辆是否驶出驶出车道终点
// 算法说明：
// 1. 处理上一步路口发来的消息
// 2. 有授权方案时按方案加速，前车过近时改为跟车并标记受阻；否则跟车，未获准入时在入口前停车
// 3. 运动并处理路段切换，不越过前车与停止线
// 4. 以运动后的状态推进协调器，发出的消息投递到路口
func (v *Vehicle) update(now, dt float64) (finished bool) {
	for _, msg := range v.inbox.Drain() {
		v.coord.Receive(msg)
	}
	r := v.snapshot
	leader := v.leader()
	gap := math.Inf(1)
	a := v.follower.free(r.V)
	if leader != nil {
		gap = leader.S() - leader.Length() - r.S
		a = math.Min(a, v.follower.follow(r.V, leader.V(), gap))
	}
	blocked := false
	if sched, ok := v.coord.Schedule(now, dt); ok {
		if leader != nil && gap < minGap+math.Max(0, (r.V*r.V-leader.V()*leader.V())/(2*v.spec.MaxDeceleration)) {
			blocked = true
			a = math.Min(a, sched)
		} else {
			a = sched
		}
	} else if r.Segment == SegmentEntry && !v.coord.MayEnter() {
		a = math.Min(a, v.follower.stop(r.V, v.entry.Length()-r.S))
	}

	vNew, ds := computeVAndDistance(r.V, a, dt)
	next := motion{Segment: r.Segment, S: r.S + ds, V: vNew, A: a}
	if leader != nil {
		if bound := leader.S() - leader.Length() - hardGap; next.S > bound {
			next.S, next.V = math.Max(r.S, bound), math.Min(vNew, leader.V())
		}
	}
	if next.Segment == SegmentEntry && !v.coord.MayEnter() {
		if bound := v.entry.Length() - hardGap; next.S > bound {
			next.S, next.V = math.Max(r.S, bound), 0
		}
	}
loop:
	for {
		switch next.Segment {
		case SegmentEntry:
			if next.S < v.entry.Length() {
				break loop
			}
			next.S -= v.entry.Length()
			next.Segment = SegmentJunction
			v.entry.RemoveVehicle(v.node)
			v.node = nil
		case SegmentJunction:
			if next.S < v.pathLen {
				break loop
			}
			next.S -= v.pathLen
			next.Segment = SegmentExit
			v.node = &entity.VehicleNode{S: next.S, Value: v}
			v.exit.AddVehicle(v.node)
		default:
			// 节点尚未插入车道时推迟一步
			finished = next.S >= v.exit.Length() && v.node.Parent() != nil
			break loop
		}
	}
	v.runtime = next

	obs := Observation{
		T:              now + dt,
		DT:             dt,
		V:              next.V,
		Segment:        next.Segment,
		Blocked:        blocked,
		VehicleInFront: -1,
	}
	switch next.Segment {
	case SegmentEntry:
		obs.DistanceToEntry = v.entry.Length() - next.S
		obs.DistancePastExit = -(obs.DistanceToEntry + v.pathLen)
		if leader != nil {
			obs.VehicleInFront = leader.ID()
		}
	case SegmentJunction:
		obs.DistancePastExit = next.S - v.pathLen
	default:
		obs.DistancePastExit = next.S
	}
	msgs := v.coord.Act(obs)
	if finished {
		msgs = append(msgs, v.coord.Abort()...)
		if v.node != nil {
			v.exit.RemoveVehicle(v.node)
			v.node = nil
		}
	}
	for _, msg := range msgs {
		if err := v.junction.Deliver(msg); err != nil {
			log.Warnf("vehicle %d: drop %v to junction %d: %v", v.id, msg.Kind(), v.junction.ID(), err)
			v.coord.Dropped(msg)
		}
	}
	return
}
