package junction

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/parallel"
)

// Junction管理器
type JunctionManager struct {
	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction // 按ID升序

	// 发往非本地车辆的消息，等待RPC拉取
	pending    map[int32][]protocol.I2V
	pendingLen int
	pendingMtx sync.Mutex
}

// NewManager 创建Junction管理器实例
// 功能：初始化Junction管理器，创建内部数据结构
// 参数：ctx-任务上下文
// 返回：新创建的Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
		pending:   make(map[int32][]protocol.I2V),
	}
}

func (m *JunctionManager) policy() config.Policy {
	if m.ctx == nil || m.ctx.RuntimeConfig() == nil {
		return config.DefaultPolicy()
	}
	return m.ctx.RuntimeConfig().P
}

func (m *JunctionManager) recorder() entity.IRecorder {
	if m.ctx == nil || m.ctx.Recorder() == nil {
		return entity.NopRecorder{}
	}
	return m.ctx.Recorder()
}

// Init 初始化所有Junction
// 功能：根据布局初始化所有Junction对象，建立通行路径与协商协议
// 参数：layouts-路口布局列表，laneManager-车道管理器（须已初始化）
// 说明：使用并行处理提高初始化效率，布局错误或ID重复时panic
func (m *JunctionManager) Init(layouts []config.JunctionLayout, laneManager entity.ILaneManager) {
	cfg, recorder := m.policy(), m.recorder()
	type result struct {
		j   *Junction
		err error
	}
	results := parallel.GoMap(layouts, func(base config.JunctionLayout) result {
		j, err := newJunction(base, laneManager, cfg, recorder)
		return result{j, err}
	})
	for _, r := range results {
		if r.err != nil {
			log.Panicf("init junction: %v", r.err)
		}
	}
	m.junctions = lo.Map(results, func(r result, _ int) *Junction { return r.j })
	sort.Slice(m.junctions, func(i, k int) bool { return m.junctions[i].id < m.junctions[k].id })
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	if len(m.data) != len(m.junctions) {
		log.Panicf("duplicate junction id in layouts")
	}
	log.Infof("init %d junctions", len(m.junctions))
}

// Get 根据ID获取Junction实例
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例（带错误处理）
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return junction, nil
	}
}

// Collect 取出上一步所有路口发出的消息
// 说明：按路口ID顺序拼接，同一路口内保持发出顺序
func (m *JunctionManager) Collect() []protocol.I2V {
	outs := parallel.GoMap(m.junctions, func(j *Junction) []protocol.I2V { return j.collect() })
	return lo.Flatten(outs)
}

// Hold 暂存发往非本地车辆的消息
// 说明：并发安全，暂存总数超过收件箱容量时丢弃并告警
func (m *JunctionManager) Hold(msg protocol.I2V) {
	m.pendingMtx.Lock()
	defer m.pendingMtx.Unlock()
	if m.pendingLen >= m.policy().MailboxSize {
		log.Warnf("drop %v to unknown vehicle %d: pending box full", msg.Kind(), msg.Route().VIN)
		return
	}
	vin := msg.Route().VIN
	m.pending[vin] = append(m.pending[vin], msg)
	m.pendingLen++
}

// take 取出发往vin的全部暂存消息
func (m *JunctionManager) take(vin int32) []protocol.I2V {
	m.pendingMtx.Lock()
	defer m.pendingMtx.Unlock()
	msgs := m.pending[vin]
	delete(m.pending, vin)
	m.pendingLen -= len(msgs)
	return msgs
}

// Prepare 准备阶段，发布各路口上一步结束时的协商状态
func (m *JunctionManager) Prepare() {
	parallel.GoFor(m.junctions, func(j *Junction) { j.prepare() })
}

// Update 更新阶段，各路口并行处理本步收到的消息
// 参数：now-当前仿真时间
func (m *JunctionManager) Update(now float64) {
	parallel.GoFor(m.junctions, func(j *Junction) { j.update(now) })
}
