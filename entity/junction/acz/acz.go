// 准入控制区（ACZ）：限制每条驶出车道下游同时存在的车辆，防止车辆回溢到路口内
package acz

import (
	"slices"

	"github.com/samber/lo"
)

// Entry 一辆车在准入控制区中的预计占用
type Entry struct {
	ReservationID int32
	VIN           int32
	Length        float64 // 车长（米）
	Enter         float64 // 驶入时刻（即驶出路口时刻）
	Clear         float64 // 预计驶离时刻
}

// Zone 一条驶出车道的准入控制区
type Zone struct {
	Lane     int32
	Capacity float64 // 容量（米）
	entries  map[int32]Entry
}

// NewZone 创建准入控制区
func NewZone(lane int32, capacity float64) *Zone {
	return &Zone{
		Lane:     lane,
		Capacity: capacity,
		entries:  make(map[int32]Entry),
	}
}

// Occupancy 时间窗口[enter, clear)内与之重叠的车辆总长度
func (z *Zone) Occupancy(enter, clear float64) float64 {
	return lo.SumBy(lo.Values(z.entries), func(e Entry) float64 {
		if e.Enter < clear && enter < e.Clear {
			return e.Length
		}
		return 0
	})
}

// Admissible 加入该车辆后容量是否仍然足够（不修改状态）
func (z *Zone) Admissible(enter, clear, length float64) bool {
	return z.Occupancy(enter, clear)+length <= z.Capacity+1e-9
}

// Entries 当前全部记录，按驶入时刻排序
func (z *Zone) Entries() []Entry {
	res := lo.Values(z.entries)
	slices.SortFunc(res, func(a, b Entry) int {
		switch {
		case a.Enter < b.Enter:
			return -1
		case a.Enter > b.Enter:
			return 1
		}
		return int(a.ReservationID - b.ReservationID)
	})
	return res
}

// Manager 路口所有驶出车道的准入控制区
// 说明：由所属路口的策略引擎独占，不会撤销台账中的占用，撤销由引擎回滚完成
type Manager struct {
	zones map[int32]*Zone
	byRsv map[int32]int32 // 预约ID -> 车道
}

// NewManager 创建准入控制区管理器
func NewManager() *Manager {
	return &Manager{
		zones: make(map[int32]*Zone),
		byRsv: make(map[int32]int32),
	}
}

// AddZone 为驶出车道设置准入控制区
func (m *Manager) AddZone(lane int32, capacity float64) {
	m.zones[lane] = NewZone(lane, capacity)
}

// Zone 获取驶出车道的准入控制区
func (m *Manager) Zone(lane int32) (*Zone, bool) {
	z, ok := m.zones[lane]
	return z, ok
}

// Capacity 车道准入控制区的容量，没有设置时返回0
func (m *Manager) Capacity(lane int32) float64 {
	if z, ok := m.zones[lane]; ok {
		return z.Capacity
	}
	return 0
}

// Admit 判断并登记一辆车进入驶出车道下游
// 功能：车道没有准入控制区时总是允许；否则仅当[enter, clear)内的占用加上车长不超过容量时允许并登记
// 参数：lane-驶出车道，rid-预约ID，vin-车辆ID，enter/clear-预计驶入/驶离时刻，length-车长
// 返回：是否允许
func (m *Manager) Admit(lane, rid, vin int32, enter, clear, length float64) bool {
	z, ok := m.zones[lane]
	if !ok {
		return true
	}
	if !z.Admissible(enter, clear, length) {
		return false
	}
	z.entries[rid] = Entry{ReservationID: rid, VIN: vin, Length: length, Enter: enter, Clear: clear}
	m.byRsv[rid] = lane
	return true
}

// Release 移除预约对应的记录
// 返回：记录不存在时返回false
func (m *Manager) Release(rid int32) bool {
	lane, ok := m.byRsv[rid]
	if !ok {
		return false
	}
	delete(m.zones[lane].entries, rid)
	delete(m.byRsv, rid)
	return true
}

// Cleanup 移除预计驶离时刻早于now的记录
// 返回：被移除的预约ID
func (m *Manager) Cleanup(now float64) (removed []int32) {
	for _, z := range m.zones {
		for rid, e := range z.entries {
			if e.Clear < now {
				delete(z.entries, rid)
				delete(m.byRsv, rid)
				removed = append(removed, rid)
			}
		}
	}
	slices.Sort(removed)
	return
}

// Has 预约是否有记录
func (m *Manager) Has(rid int32) bool {
	_, ok := m.byRsv[rid]
	return ok
}

// Len 全部记录数量
func (m *Manager) Len() int {
	return len(m.byRsv)
}
