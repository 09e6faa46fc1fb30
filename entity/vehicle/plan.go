package vehicle

import (
	"math"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
)

// approach 从当前状态驶到路口入口的一种方案
type approach struct {
	Profile  []protocol.AccelSegment
	Duration float64 // 到达入口所需时间
	Velocity float64 // 到达入口时的速度
}

// planApproach 以恒定加（减）速度将速度调整到target后匀速行驶distance
// 参数：distance-到入口的距离，v-当前速度，target-目标速度，maxA-最大加速度，maxD-最大减速度（正数）
// 返回：方案；到不了入口时返回false
// 算法说明：
// 1. 距离不足以把速度调整到target时，在调整过程中到达入口
// 2. 否则先调整速度再匀速行驶剩余距离
func planApproach(distance, v, target, maxA, maxD float64) (approach, bool) {
	if distance <= 0 {
		return approach{}, false
	}
	var a float64
	switch {
	case target > v+1e-9:
		a = maxA
	case target < v-1e-9:
		a = -maxD
	default:
		if v <= 0 {
			return approach{}, false
		}
		return approach{
			Profile:  []protocol.AccelSegment{{Acceleration: 0, Duration: distance / v}},
			Duration: distance / v,
			Velocity: v,
		}, true
	}
	if a == 0 {
		return approach{}, false
	}
	t1 := (target - v) / a
	d1 := (v + target) / 2 * t1
	if d1 >= distance {
		sq := v*v + 2*a*distance
		if sq <= 0 {
			// 减速途中停在入口前
			return approach{}, false
		}
		ve := math.Sqrt(sq)
		t := (ve - v) / a
		return approach{
			Profile:  []protocol.AccelSegment{{Acceleration: a, Duration: t}},
			Duration: t,
			Velocity: ve,
		}, true
	}
	if target <= 0 {
		return approach{}, false
	}
	t2 := (distance - d1) / target
	return approach{
		Profile: []protocol.AccelSegment{
			{Acceleration: a, Duration: t1},
			{Acceleration: 0, Duration: t2},
		},
		Duration: t1 + t2,
		Velocity: target,
	}, true
}

// meanAccel 加速度曲线在[t0, t1]内的平均加速度
// 说明：仿真步长与曲线分段不对齐，取平均值保证每步结束时的速度与曲线一致
func meanAccel(profile []protocol.AccelSegment, t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0
	}
	dv, start := 0.0, 0.0
	for _, seg := range profile {
		end := start + seg.Duration
		from, to := math.Max(start, t0), math.Min(end, t1)
		if to > from {
			dv += seg.Acceleration * (to - from)
		}
		start = end
	}
	return dv / (t1 - t0)
}
