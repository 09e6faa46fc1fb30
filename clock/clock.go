package clock

import (
	"fmt"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

// Clock 仿真时钟管理器
// 功能：管理仿真系统的时间推进
// 说明：维护当前仿真时间、步数等信息，提供时间格式化和RPC服务
type Clock struct {
	DT         float64 // 每个模拟步时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，模拟区间[START, END)

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数
}

// New 根据配置创建新的时钟实例
// 参数：stepConfig-控制步配置，包含起始步、总步数与时间间隔
// 返回：初始化完成的时钟实例
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
	}
	c.Init()
	return c
}

// Init 重置内部步数为起始步，重新计算当前时间
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

// Tick 前进一步
func (c *Clock) Tick() {
	c.InternalStep++
	c.T = float64(c.InternalStep) * c.DT
}

// Done 是否已到达结束步
func (c *Clock) Done() bool {
	return c.InternalStep >= c.END_STEP
}

// String 获取时钟的字符串表示
// 返回：格式化的时间字符串（HH:MM:SS.ss）
// 算法说明：
// 1. 将总秒数转换为小时、分钟、秒
// 2. 格式化为标准时间格式
func (c *Clock) String() string {
	h, m, s := c.GetHourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%05.2f", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
