// 统计输出：协商事件计数、周期汇总、websocket实时推送与MongoDB落库
package output

import (
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
)

// Summary 一个统计周期的汇总
type Summary struct {
	Step     int32            `json:"step" bson:"step"`
	T        float64          `json:"t" bson:"t"`
	Vehicles int              `json:"vehicles" bson:"vehicles"` // 当前车辆数
	Trips    entity.TripStats `json:"trips" bson:"trips"`
	Events   map[string]int64 `json:"events" bson:"events"`                       // 本周期各类事件数
	Rejects  map[string]int64 `json:"rejects,omitempty" bson:"rejects,omitempty"` // 本周期各拒绝原因数
	Totals   map[string]int64 `json:"totals" bson:"totals"`                       // 累计各类事件数
}

// Recorder 协商事件统计
// 功能：路口并发上报事件，Flush时生成本周期汇总并清零周期计数
type Recorder struct {
	events  map[entity.EventKind]int64
	rejects map[string]int64
	totals  map[entity.EventKind]int64
	mtx     sync.Mutex
}

// NewRecorder 创建事件统计
func NewRecorder() *Recorder {
	return &Recorder{
		events:  make(map[entity.EventKind]int64),
		rejects: make(map[string]int64),
		totals:  make(map[entity.EventKind]int64),
	}
}

// Record 记录一次协商结果，并发安全
func (r *Recorder) Record(ev entity.Event) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.events[ev.Kind]++
	r.totals[ev.Kind]++
	if ev.Reason != "" {
		r.rejects[ev.Reason]++
	}
}

// Total 某类事件的累计数
func (r *Recorder) Total(kind entity.EventKind) int64 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.totals[kind]
}

// Flush 生成本周期汇总并清零周期计数
// 参数：step/t-当前步数与时刻，vehicles-当前车辆数，trips-行程统计
func (r *Recorder) Flush(step int32, t float64, vehicles int, trips entity.TripStats) Summary {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	byName := func(k entity.EventKind, n int64) (string, int64) { return k.String(), n }
	s := Summary{
		Step:     step,
		T:        t,
		Vehicles: vehicles,
		Trips:    trips,
		Events:   lo.MapEntries(r.events, byName),
		Totals:   lo.MapEntries(r.totals, byName),
	}
	if len(r.rejects) > 0 {
		s.Rejects = r.rejects
		r.rejects = make(map[string]int64)
	}
	clear(r.events)
	return s
}
