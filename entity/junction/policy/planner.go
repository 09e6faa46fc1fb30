package policy

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/reservation"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/tile"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

var (
	ErrNoPath  = errors.New("policy: no path between lanes")
	ErrStalled = errors.New("policy: vehicle cannot clear the junction within horizon")
)

// IPaths 路口内驶入车道到驶出车道的通行路径
type IPaths interface {
	Path(entry, exit int32) (orb.LineString, bool)
}

// Traversal 一次通行的时空占用推算结果
type Traversal struct {
	Claims       []reservation.Claim
	ExitTime     float64 // 车尾驶离路口区域的时刻
	ExitVelocity float64
	Profile      []protocol.AccelSegment
}

// Planner 通行推算器
// 功能：按候选方案与车辆参数，沿路口内路径逐个预约时间步推进车辆外廓，得到需要占用的(网格, 离散时间)
// 说明：只读，不修改台账
type Planner struct {
	grid         *tile.Grid
	paths        IPaths
	timer        reservation.Timer
	staticBuffer float64
	internalBuf  reservation.DiscreteTime
	edgeBuf      reservation.DiscreteTime
	horizon      float64
}

// NewPlanner 创建通行推算器
func NewPlanner(grid *tile.Grid, paths IPaths, cfg config.Policy) (*Planner, error) {
	timer, err := reservation.NewTimer(cfg.GridTimeStep)
	if err != nil {
		return nil, err
	}
	p := &Planner{
		grid:         grid,
		paths:        paths,
		timer:        timer,
		staticBuffer: cfg.StaticBuffer,
		internalBuf:  timer.Steps(cfg.InternalTileTimeBuffer),
		horizon:      cfg.Horizon,
	}
	if cfg.EdgeTileBufferEnabled {
		p.edgeBuf = timer.Steps(cfg.EdgeTileTimeBuffer)
	} else {
		p.edgeBuf = p.internalBuf
	}
	return p, nil
}

// Timer 预约时间换算器
func (p *Planner) Timer() reservation.Timer {
	return p.timer
}

// Grid 网格
func (p *Planner) Grid() *tile.Grid {
	return p.grid
}

// Profile 推算加速度曲线
// 功能：方案自带加速度曲线时直接使用；否则在车辆能加速时先以最大加速度加速到最高速度再匀速，
// 不能加速时以到达速度匀速，曲线总时长恰好覆盖distance
// 返回：加速度曲线，车辆静止且不能加速时返回ErrStalled
func Profile(prop protocol.Proposal, spec protocol.VehicleSpec, distance float64) ([]protocol.AccelSegment, error) {
	if len(prop.AccelProfile) > 0 {
		return prop.AccelProfile, nil
	}
	v, a, vMax := prop.ArrivalVelocity, spec.MaxAcceleration, spec.MaxVelocity
	if a > 0 && vMax > v {
		dA := (vMax*vMax - v*v) / (2 * a)
		if dA >= distance {
			t := (-v + math.Sqrt(v*v+2*a*distance)) / a
			return []protocol.AccelSegment{{Acceleration: a, Duration: t}}, nil
		}
		return []protocol.AccelSegment{
			{Acceleration: a, Duration: (vMax - v) / a},
			{Acceleration: 0, Duration: (distance - dA) / vMax},
		}, nil
	}
	if v <= 0 {
		return nil, ErrStalled
	}
	return []protocol.AccelSegment{{Acceleration: 0, Duration: distance / v}}, nil
}

// accelAt 曲线中elapsed时刻的加速度，曲线结束后为0
func accelAt(profile []protocol.AccelSegment, elapsed float64) float64 {
	for _, seg := range profile {
		if elapsed < seg.Duration-1e-9 {
			return seg.Acceleration
		}
		elapsed -= seg.Duration
	}
	return 0
}

// Plan 推算一个候选方案的时空占用
// 功能：从到达时刻开始，每个预约时间步计算车辆（含空间缓冲）外廓覆盖的网格，
// 对每个网格占用[d-buf, d+buf]的离散时间，直到车尾驶离路径终点
// 参数：prop-候选方案，spec-车辆参数
// 返回：推算结果；路径不存在返回ErrNoPath，无法在预约范围内驶离返回ErrStalled
func (p *Planner) Plan(prop protocol.Proposal, spec protocol.VehicleSpec) (*Traversal, error) {
	path, ok := p.paths.Path(prop.EntryLane, prop.ExitLane)
	if !ok {
		return nil, ErrNoPath
	}
	total := tile.Length(path) + spec.Length
	profile, err := Profile(prop, spec, total)
	if err != nil {
		return nil, err
	}
	dt := p.timer.Step
	t, s, v := prop.ArrivalTime, 0.0, prop.ArrivalVelocity
	seen := make(map[reservation.Claim]struct{})
	claims := make([]reservation.Claim, 0)
	for elapsed := 0.0; ; elapsed += dt {
		fp := tile.Footprint(path, s, spec.Length, spec.Width, p.staticBuffer)
		d := p.timer.Discrete(t)
		for _, id := range p.grid.Occupied(fp) {
			buf := p.internalBuf
			if p.grid.IsEdge(id) {
				buf = p.edgeBuf
			}
			for k := d - buf; k <= d+buf; k++ {
				c := reservation.Claim{Tile: id, Time: k}
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					claims = append(claims, c)
				}
			}
		}
		if s >= total-1e-9 {
			break
		}
		if elapsed > p.horizon {
			return nil, ErrStalled
		}
		a := accelAt(profile, elapsed)
		nv := v + a*dt
		if spec.MaxVelocity > 0 {
			nv = math.Min(nv, spec.MaxVelocity)
		}
		nv = math.Max(nv, 0)
		s += (v + nv) / 2 * dt
		v = nv
		t += dt
	}
	return &Traversal{
		Claims:       claims,
		ExitTime:     t,
		ExitVelocity: v,
		Profile:      profile,
	}, nil
}
