package vehicle

import (
	"fmt"
	"math"
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/container"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/parallel"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/randengine"
)

// VehicleManager Vehicle管理器
// 功能：按生成率在驶入车道起点生成车辆，投递路口消息，并行推进所有车辆
type VehicleManager struct {
	ctx entity.ITaskContext

	laneManager     entity.ILaneManager
	junctionManager entity.IJunctionManager

	data     map[int32]*Vehicle
	vehicles *container.IncrementalArray[*Vehicle]

	removed      []*Vehicle // 本步驶离的车辆
	removedMutex sync.Mutex
	nextID       int32

	rand    *randengine.Engine
	entries []entity.ILane

	snapshot, runtime entity.TripStats
	runtimeMtx        sync.Mutex
}

// NewManager 创建Vehicle管理器实例
// 参数：ctx-任务上下文，提供时钟与配置
func NewManager(ctx entity.ITaskContext) *VehicleManager {
	return &VehicleManager{
		ctx:      ctx,
		data:     make(map[int32]*Vehicle),
		vehicles: container.NewIncrementalArray[*Vehicle](),
		removed:  make([]*Vehicle, 0),
		nextID:   1,
	}
}

// Init 初始化
// 参数：laneManager-车道管理器，junctionManager-路口管理器（均须已初始化）
func (m *VehicleManager) Init(laneManager entity.ILaneManager, junctionManager entity.IJunctionManager) {
	m.laneManager = laneManager
	m.junctionManager = junctionManager
	m.entries = laneManager.Entries()
	m.rand = randengine.New(m.ctx.RuntimeConfig().C.Spawn.Seed)
	log.Infof("%d entry lanes, spawn rate %.3f veh/s per lane",
		len(m.entries), m.ctx.RuntimeConfig().C.Spawn.Rate)
}

// GetOrError 根据ID获取车辆，如果不存在则返回错误
func (m *VehicleManager) GetOrError(id int32) (entity.IVehicle, error) {
	if v, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in vehicle data", id)
	} else {
		return v, nil
	}
}

// Deliver 将路口消息投递给车辆，车辆不在本地时返回false
func (m *VehicleManager) Deliver(msg protocol.I2V) bool {
	v, ok := m.data[msg.Route().VIN]
	if !ok {
		return false
	}
	if err := v.Deliver(msg); err != nil {
		log.Warnf("vehicle %d: drop %v from junction %d: %v", v.id, msg.Kind(), msg.Route().JunctionID, err)
	}
	return true
}

func (m *VehicleManager) Len() int {
	return m.vehicles.Len()
}

// Stats 截至上一步的行程统计
func (m *VehicleManager) Stats() entity.TripStats {
	return m.snapshot
}

// Vehicles 当前全部车辆，顺序不稳定
func (m *VehicleManager) Vehicles() []*Vehicle {
	return m.vehicles.Data()
}

// Spawn 在entry起点生成一辆驶向exit的车辆，下一次Prepare后生效
// 说明：初速度取能在前车车尾（或停止线）前停住的最大速度
func (m *VehicleManager) Spawn(entry, exit entity.ILane, emergency bool) (*Vehicle, error) {
	return m.SpawnSpec(entry, exit, m.ctx.RuntimeConfig().C.Spawn.Vehicle, emergency)
}

// SpawnSpec 以指定车型生成车辆，其余同Spawn
func (m *VehicleManager) SpawnSpec(entry, exit entity.ILane, spec config.VehicleSpec, emergency bool) (*Vehicle, error) {
	j, err := m.junctionManager.GetOrError(entry.JunctionID())
	if err != nil {
		return nil, err
	}
	room := entry.Length()
	if first := entry.FirstVehicle(); first != nil {
		room = first.Value.S() - first.Value.Length()
	}
	v0 := math.Min(spec.MaxVelocity, math.Sqrt(2*spec.MaxDeceleration*math.Max(0, room-minGap)))
	clock := m.ctx.Clock()
	v, err := newVehicle(m.nextID, spec, emergency, entry, exit, j, m.ctx.RuntimeConfig().P, clock.DT, v0, clock.T)
	if err != nil {
		return nil, err
	}
	m.nextID++
	m.vehicles.Add(v)
	m.data[v.id] = v
	m.runtime.Spawned++
	return v, nil
}

// pickSpec 按权重抽取车型，未配置混合车型时使用默认车型
func (m *VehicleManager) pickSpec() config.VehicleSpec {
	cfg := m.ctx.RuntimeConfig().C.Spawn
	if len(cfg.Mix) == 0 {
		return cfg.Vehicle
	}
	weights := lo.Map(cfg.Mix, func(w config.WeightedVehicle, _ int) float64 { return w.Weight })
	return cfg.Mix[m.rand.DiscreteDistribution(weights)].VehicleSpec
}

// spawn 每条驶入车道以rate*dt的概率生成一辆车，起点被占用时跳过
func (m *VehicleManager) spawn() {
	cfg := m.ctx.RuntimeConfig().C.Spawn
	if cfg.Rate <= 0 {
		return
	}
	p := cfg.Rate * m.ctx.Clock().DT
	for _, entry := range m.entries {
		if !m.rand.PTrue(p) {
			continue
		}
		spec := m.pickSpec()
		if first := entry.FirstVehicle(); first != nil && first.Value.S()-first.Value.Length() < spec.Length+minGap {
			continue
		}
		j := m.junctionManager.Get(entry.JunctionID())
		exits := lo.Filter(m.laneManager.OfJunction(entry.JunctionID()), func(l entity.ILane, _ int) bool {
			_, ok := j.Path(entry.ID(), l.ID())
			return l.Kind() == entity.LaneExit && ok
		})
		if len(exits) == 0 {
			continue
		}
		exit := randengine.Choice(m.rand, exits)
		if _, err := m.SpawnSpec(entry, exit, spec, m.rand.PTrue(cfg.EmergencyRatio)); err != nil {
			log.Warnf("spawn on lane %d: %v", entry.ID(), err)
		}
	}
}

// Prepare 准备阶段
// 算法说明：
// 1. 删除上一步驶离的车辆，发布行程统计
// 2. 按生成率生成新车辆
// 3. 增量数组生效后并行发布车辆运动状态
func (m *VehicleManager) Prepare() {
	for _, v := range m.removed {
		delete(m.data, v.id)
	}
	m.removed = m.removed[:0]
	m.snapshot = m.runtime

	m.spawn()
	m.vehicles.Prepare()
	parallel.GoFor(m.vehicles.Data(), func(v *Vehicle) { v.prepare() })
}

// Update 更新阶段，并行推进所有车辆
func (m *VehicleManager) Update(dt float64) {
	now := m.ctx.Clock().T
	parallel.GoFor(m.vehicles.Data(), func(v *Vehicle) {
		if !v.update(now, dt) {
			return
		}
		m.vehicles.Remove(v)
		m.removedMutex.Lock()
		m.removed = append(m.removed, v)
		m.removedMutex.Unlock()

		m.runtimeMtx.Lock()
		m.runtime.NumCompletedTrips++
		m.runtime.TravelTime += now + dt - v.departTime
		m.runtimeMtx.Unlock()
	})
}
