package reservation

import (
	"fmt"
	"math"
)

// DiscreteTime 离散时间：连续时间除以预约时间步长后取整
// 说明：台账中的所有比较都在离散时间上进行，保证相等与先后判断精确
type DiscreteTime int64

// Timer 连续时间与离散时间的换算
type Timer struct {
	Step float64 // 预约时间步长（秒）
}

// NewTimer 创建换算器，步长必须为正
func NewTimer(step float64) (Timer, error) {
	if step <= 0 {
		return Timer{}, fmt.Errorf("invalid reservation time step %v", step)
	}
	return Timer{Step: step}, nil
}

// Discrete 连续时间 -> 离散时间（向下取整，容忍浮点误差）
func (t Timer) Discrete(time float64) DiscreteTime {
	return DiscreteTime(math.Floor(time/t.Step + 1e-9))
}

// DiscreteCeil 连续时间 -> 不早于该时刻的第一个离散时间
func (t Timer) DiscreteCeil(time float64) DiscreteTime {
	return DiscreteTime(math.Ceil(time/t.Step - 1e-9))
}

// Time 离散时间 -> 连续时间
func (t Timer) Time(d DiscreteTime) float64 {
	return float64(d) * t.Step
}

// Steps 时长对应的离散步数（向上取整）
func (t Timer) Steps(duration float64) DiscreteTime {
	if duration <= 0 {
		return 0
	}
	return t.DiscreteCeil(duration)
}
