package vehicle

import (
	"math"

	"github.com/samber/lo"
)

const (
	minGap  = 2.0 // 停车时与前车或停止线保持的距离（米）
	headway = 1.5 // 安全车头时距（秒）
	theta   = 4   // IDM速度指数
)

// Segment 车辆所在路段
type Segment int32

const (
	SegmentEntry    Segment = iota // 驶入车道
	SegmentJunction                // 路口内
	SegmentExit                    // 驶出车道
)

func (s Segment) String() string {
	switch s {
	case SegmentEntry:
		return "entry"
	case SegmentJunction:
		return "junction"
	case SegmentExit:
		return "exit"
	}
	return "unknown"
}

// motion 车辆运动状态
type motion struct {
	Segment Segment
	S       float64 // 车头在当前路段上的位置
	V       float64
	A       float64 // 上一步采用的加速度
}

// computeVAndDistance 计算本时刻的速度与移动距离
// v(t)=v(t-1)+acc*dt, ds=v(t-1)*dt+acc*dt*dt/2，减速到0后停止
func computeVAndDistance(v, a, dt float64) (float64, float64) {
	dv := a * dt
	if v+dv < 0 {
		// 刹车到停止
		return 0, v * v / 2 / -a
	}
	return v + dv, (v + dv/2) * dt
}

// follower 跟车模型参数
type follower struct {
	maxA          float64 // 最大加速度
	usualBrakingA float64 // 舒适减速度（负数）
	maxBrakingA   float64 // 最大减速度（负数）
	maxV          float64
	dt            float64
}

// followImpl 智能驾驶模型(IDM)
// 算法说明：
// 1. 期望车距 s_star = minGap + max(0, v*headway + v*(v-v_ahead)/(2*sqrt(a*b)))
// 2. 加速度 a = maxA * (1 - (v/targetV)^4 - (s_star/distance)^2)，限制在制动与加速范围内
func (f follower) followImpl(selfV, targetV, aheadV, distance, gap, headway float64) float64 {
	var acc float64
	if distance <= 0 {
		acc = f.maxBrakingA
	} else {
		sStar := gap + math.Max(0, selfV*headway+selfV*(selfV-aheadV)/2/math.Sqrt(-f.usualBrakingA*f.maxA))
		acc = f.maxA * (1 - math.Pow(selfV/targetV, theta) - math.Pow(sStar/distance, 2))
	}
	return lo.Clamp(acc, f.maxBrakingA, f.maxA)
}

// free 前方无车时的加速度
func (f follower) free(v float64) float64 {
	return lo.Clamp(f.maxA*(1-math.Pow(v/f.maxV, theta)), f.maxBrakingA, f.maxA)
}

// follow 跟随前车
func (f follower) follow(v, aheadV, distance float64) float64 {
	return f.followImpl(v, f.maxV, aheadV, distance, minGap, headway)
}

// stop 在distance内刹停，预判dt而不使用跟车的车头时距
func (f follower) stop(v, distance float64) float64 {
	return f.followImpl(v, f.maxV, 0, distance, minGap, f.dt)
}
