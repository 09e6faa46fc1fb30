package lane

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/parallel"
)

// LaneManager Lane管理器
// 功能：管理所有路口的车道，提供创建、查找、准备阶段的车辆链表更新
type LaneManager struct {
	data       map[int32]*Lane
	lanes      []*Lane
	byJunction map[int32][]entity.ILane
}

// NewManager 创建Lane管理器实例
func NewManager() *LaneManager {
	return &LaneManager{
		data:       make(map[int32]*Lane),
		lanes:      make([]*Lane, 0),
		byJunction: make(map[int32][]entity.ILane),
	}
}

// Init 初始化所有Lane
// 功能：根据路口布局创建全部车道，车道ID全局唯一
// 参数：layouts-路口布局，defaultACZ-驶出车道的默认准入控制区长度
func (m *LaneManager) Init(layouts []config.JunctionLayout, defaultACZ float64) {
	for _, j := range layouts {
		for _, base := range j.Lanes {
			if _, ok := m.data[base.ID]; ok {
				log.Panicf("duplicate lane id %d in junction %d", base.ID, j.ID)
			}
			l, err := newLane(j.ID, base, defaultACZ)
			if err != nil {
				log.Panicf("junction %d: %v", j.ID, err)
			}
			m.data[l.id] = l
			m.lanes = append(m.lanes, l)
			m.byJunction[j.ID] = append(m.byJunction[j.ID], l)
		}
	}
	log.Infof("%d lanes in %d junctions", len(m.lanes), len(lo.Keys(m.byJunction)))
}

// Get 根据ID获取Lane实例，如果不存在则panic
func (m *LaneManager) Get(id int32) entity.ILane {
	if lane, ok := m.data[id]; !ok {
		log.Panicf("no id %d in lane data", id)
		return nil
	} else {
		return lane
	}
}

// GetOrError 根据ID获取Lane实例，如果不存在则返回错误
func (m *LaneManager) GetOrError(id int32) (entity.ILane, error) {
	if lane, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in lane data", id)
	} else {
		return lane, nil
	}
}

// OfJunction 路口的全部车道，按布局顺序
func (m *LaneManager) OfJunction(junctionID int32) []entity.ILane {
	return m.byJunction[junctionID]
}

// Entries 全部驶入车道，按初始化顺序
func (m *LaneManager) Entries() []entity.ILane {
	res := make([]entity.ILane, 0, len(m.lanes))
	for _, l := range m.lanes {
		if l.kind == entity.LaneEntry {
			res = append(res, l)
		}
	}
	return res
}

// Prepare 准备阶段，应用所有车道车辆链表的缓冲操作
func (m *LaneManager) Prepare() {
	parallel.GoFor(m.lanes, func(l *Lane) { l.prepare() })
}
