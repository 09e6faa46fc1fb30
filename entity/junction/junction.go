package junction

import (
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/acz"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/policy"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/queue"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/tile"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

const (
	ProtocolFCFS     = "fcfs"
	ProtocolPriority = "priority"
	ProtocolPlain    = "plain"
	ProtocolQueue    = "queue"

	defaultGranularity = 1.0 // 默认网格边长（米）
)

var (
	ErrWrongJunction = errors.New("message is routed to another junction")
)

type pathKey struct {
	Entry int32
	Exit  int32
}

// Junction 路口实体
// 功能：持有协商协议与收发件箱，每步处理一次收到的车辆消息
type Junction struct {
	id          int32
	protoc      string
	area        orb.Bound
	lanes       map[int32]entity.ILane
	paths       map[pathKey]orb.LineString
	negotiation INegotiationProtocol

	inbox  *protocol.Mailbox[protocol.V2I]
	outbox *protocol.Mailbox[protocol.I2V]

	snapshot    entity.JunctionSnapshot // 上一步结束时的协商状态
	snapshotMtx sync.RWMutex
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据布局建立路口区域、通行路径与协商协议
// 参数：base-路口布局，laneManager-车道管理器，cfg-策略参数，recorder-统计模块
// 返回：初始化完成的Junction实例与布局错误
// 算法说明：
// 1. 路口区域为布局中的矩形，通行路径连接驶入车道终点与驶出车道起点
// 2. 连接为空时每条驶入车道连接到所有驶出车道
// 3. queue协议使用串行队列，其余协议使用网格预约，驶出车道的准入控制区按车道设置
func newJunction(
	base config.JunctionLayout,
	laneManager entity.ILaneManager,
	cfg config.Policy,
	recorder entity.IRecorder,
) (*Junction, error) {
	if len(base.Min) != 2 || len(base.Max) != 2 {
		return nil, fmt.Errorf("junction %d: min and max must be [x, y]", base.ID)
	}
	j := &Junction{
		id:     base.ID,
		protoc: lo.Ternary(base.Protocol == "", ProtocolFCFS, base.Protocol),
		area: orb.Bound{
			Min: orb.Point{base.Min[0], base.Min[1]},
			Max: orb.Point{base.Max[0], base.Max[1]},
		},
		lanes:  make(map[int32]entity.ILane),
		paths:  make(map[pathKey]orb.LineString),
		inbox:  protocol.NewMailbox[protocol.V2I](cfg.MailboxSize),
		outbox: protocol.NewMailbox[protocol.I2V](cfg.MailboxSize),
	}
	var entries, exits []entity.ILane
	for _, l := range laneManager.OfJunction(j.id) {
		j.lanes[l.ID()] = l
		if l.Kind() == entity.LaneEntry {
			entries = append(entries, l)
		} else {
			exits = append(exits, l)
		}
	}
	conns := base.Connections
	if len(conns) == 0 {
		for _, in := range entries {
			for _, out := range exits {
				conns = append(conns, config.Connection{Entry: in.ID(), Exit: out.ID()})
			}
		}
	}
	for _, c := range conns {
		in, ok1 := j.lanes[c.Entry]
		out, ok2 := j.lanes[c.Exit]
		if !ok1 || !ok2 || in.Kind() != entity.LaneEntry || out.Kind() != entity.LaneExit {
			return nil, fmt.Errorf("junction %d: bad connection %d -> %d", j.id, c.Entry, c.Exit)
		}
		from, to := in.Line()[len(in.Line())-1], out.Line()[0]
		if from.Equal(to) {
			return nil, fmt.Errorf("junction %d: connection %d -> %d has zero length", j.id, c.Entry, c.Exit)
		}
		j.paths[pathKey{c.Entry, c.Exit}] = orb.LineString{from, to}
	}

	switch j.protoc {
	case ProtocolQueue:
		j.negotiation = queue.New(j.id, cfg.QueueMaxDistance, recorder)
	default:
		handler, err := policy.NewHandler(j.protoc, cfg.FCFSStaleTimeout)
		if err != nil {
			return nil, fmt.Errorf("junction %d: %w", j.id, err)
		}
		granularity := lo.Ternary(base.Granularity > 0, base.Granularity, defaultGranularity)
		grid, err := tile.NewGrid(j.area, granularity)
		if err != nil {
			return nil, fmt.Errorf("junction %d: %w", j.id, err)
		}
		planner, err := policy.NewPlanner(grid, j, cfg)
		if err != nil {
			return nil, fmt.Errorf("junction %d: %w", j.id, err)
		}
		zones := acz.NewManager()
		for _, l := range exits {
			if l.ACZ() > 0 {
				zones.AddZone(l.ID(), l.ACZ())
			}
		}
		j.negotiation = policy.NewEngine(j.id, planner, zones, handler, cfg, recorder)
	}
	j.publish()
	return j, nil
}

func (j *Junction) ID() int32 {
	return j.id
}

// Protocol 协商协议名
func (j *Junction) Protocol() string {
	return j.protoc
}

func (j *Junction) Area() orb.Bound {
	return j.area
}

// Path 驶入车道到驶出车道的通行路径
func (j *Junction) Path(entry, exit int32) (orb.LineString, bool) {
	p, ok := j.paths[pathKey{entry, exit}]
	return p, ok
}

// Deliver 投递车辆发来的消息，下一次update时处理
// 说明：并发安全，收件箱满时返回protocol.ErrMailboxFull
func (j *Junction) Deliver(msg protocol.V2I) error {
	if msg.Route().JunctionID != j.id {
		return fmt.Errorf("%w: %d != %d", ErrWrongJunction, msg.Route().JunctionID, j.id)
	}
	return j.inbox.Put(msg)
}

// Snapshot 上一步结束时的协商状态，并发安全
func (j *Junction) Snapshot() entity.JunctionSnapshot {
	j.snapshotMtx.RLock()
	defer j.snapshotMtx.RUnlock()
	return j.snapshot
}

func (j *Junction) publish() {
	s := j.negotiation.Snapshot()
	s.JunctionID = j.id
	s.Protocol = j.protoc
	j.snapshotMtx.Lock()
	j.snapshot = s
	j.snapshotMtx.Unlock()
}

// collect 取出上一步发出的全部消息
func (j *Junction) collect() []protocol.I2V {
	return j.outbox.Drain()
}

// prepare 准备阶段，发布上一步结束时的协商状态
func (j *Junction) prepare() {
	j.publish()
}

// update 更新阶段
// 算法说明：
// 1. 一次性取出收件箱中的全部消息，按到达顺序逐条处理
// 2. 执行协议每步的维护，发出的消息写入发件箱，在下一步的prepare阶段投递给车辆
func (j *Junction) update(now float64) {
	for _, msg := range j.inbox.Drain() {
		j.negotiation.ProcessMessage(now, msg)
	}
	for _, msg := range j.negotiation.Act(now) {
		if err := j.outbox.Put(msg); err != nil {
			log.Warnf("junction %d: drop %v to vehicle %d: %v", j.id, msg.Kind(), msg.Route().VIN, err)
		}
	}
}
