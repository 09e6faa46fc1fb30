// 随机数引擎，包装了golang.org/x/exp/rand，提供车辆生成用到的随机数方法
package randengine

import (
	"flag"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成

	log = logrus.WithField("module", "rand")
)

// Engine 随机数引擎
// 说明：非线程安全，只在准备阶段由单个协程使用
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
// 参数：seed-随机数种子，实际种子为seed加上rand.seed_offset
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// PTrue 以概率p返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// DiscreteDistribution 按权重随机选择下标
// 参数：weight-非负权重，总和须大于0
// 返回：[0, len(weight))内的下标
func (e *Engine) DiscreteDistribution(weight []float64) int {
	total := .0
	for _, w := range weight {
		total += w
	}
	if total <= 0 {
		log.Panicf("DiscreteDistribution: bad weights %v", weight)
	}
	random := total * e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return i
		}
	}
	return len(weight) - 1
}

// Choice 从非空切片中等概率选择一个元素
func Choice[T any](e *Engine, items []T) T {
	if len(items) == 0 {
		log.Panic("Choice from empty slice")
	}
	return items[e.Intn(len(items))]
}
