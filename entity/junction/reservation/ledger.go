// 预约台账：记录每个(网格, 离散时间)被哪个预约占用
package reservation

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/tile"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/container"
)

// Claim 一个(网格, 离散时间)占用
type Claim struct {
	Tile tile.ID
	Time DiscreteTime
}

// Ledger 预约台账
// 功能：维护占用到预约、预约到占用的双向索引，支持全有或全无的预约、取消与过期清理
// 算法说明：
// 1. owners：占用 -> 预约ID，保证任一占用至多属于一个预约
// 2. claims：预约ID -> 占用集合，取消时一次性释放
// 3. index：每个网格一个按离散时间排序的最小堆，清理时只弹出过期的堆顶；
// 取消造成的失效堆元素在弹出时丢弃
// 说明：预约与取消的复杂度与占用数量成正比，与台账规模无关；非并发安全，由所属路口独占
type Ledger struct {
	owners map[Claim]int32
	claims map[int32]map[Claim]struct{}
	index  map[tile.ID]*container.PriorityQueue[int32, DiscreteTime]
}

// NewLedger 创建空台账
func NewLedger() *Ledger {
	return &Ledger{
		owners: make(map[Claim]int32),
		claims: make(map[int32]map[Claim]struct{}),
		index:  make(map[tile.ID]*container.PriorityQueue[int32, DiscreteTime]),
	}
}

// IsReserved (tile, d)是否已被占用
func (l *Ledger) IsReserved(t tile.ID, d DiscreteTime) bool {
	_, ok := l.owners[Claim{Tile: t, Time: d}]
	return ok
}

// Owner (tile, d)的占用者
func (l *Ledger) Owner(t tile.ID, d DiscreteTime) (int32, bool) {
	id, ok := l.owners[Claim{Tile: t, Time: d}]
	return id, ok
}

// Has 预约是否存在
func (l *Ledger) Has(id int32) bool {
	_, ok := l.claims[id]
	return ok
}

// Len 预约数量
func (l *Ledger) Len() int {
	return len(l.claims)
}

// Reservations 全部预约ID（升序）
func (l *Ledger) Reservations() []int32 {
	ids := lo.Keys(l.claims)
	slices.Sort(ids)
	return ids
}

// Claims 预约持有的全部占用，按时间、网格排序
func (l *Ledger) Claims(id int32) []Claim {
	set, ok := l.claims[id]
	if !ok {
		return nil
	}
	res := lo.Keys(set)
	slices.SortFunc(res, func(a, b Claim) int {
		if a.Time != b.Time {
			return cmp.Compare(a.Time, b.Time)
		}
		return cmp.Compare(a.Tile, b.Tile)
	})
	return res
}

// Conflicts 检查一组占用是否与已有预约冲突（不修改台账）
func (l *Ledger) Conflicts(claims []Claim) bool {
	for _, c := range claims {
		if _, ok := l.owners[c]; ok {
			return true
		}
	}
	return false
}

// Reserve 为预约id登记一组占用
// 功能：全有或全无：任何一个占用已被占则不登记任何占用
// 参数：id-新预约ID（不能已存在），claims-占用列表，允许重复
// 返回：是否登记成功
func (l *Ledger) Reserve(id int32, claims []Claim) bool {
	if _, ok := l.claims[id]; ok || len(claims) == 0 {
		return false
	}
	if l.Conflicts(claims) {
		return false
	}
	set := make(map[Claim]struct{}, len(claims))
	for _, c := range claims {
		if _, ok := set[c]; ok {
			continue
		}
		set[c] = struct{}{}
		l.owners[c] = id
		q, ok := l.index[c.Tile]
		if !ok {
			q = container.NewPriorityQueue[int32, DiscreteTime]()
			l.index[c.Tile] = q
		}
		q.HeapPush(id, c.Time)
	}
	l.claims[id] = set
	return true
}

// Cancel 释放预约的全部占用
// 返回：预约不存在时返回false
func (l *Ledger) Cancel(id int32) bool {
	set, ok := l.claims[id]
	if !ok {
		return false
	}
	for c := range set {
		delete(l.owners, c)
	}
	delete(l.claims, id)
	return true
}

// Cleanup 清除离散时间早于d的全部占用
// 功能：释放过期占用，占用被清空的预约整体移除
// 返回：被整体移除的预约ID
func (l *Ledger) Cleanup(d DiscreteTime) (removed []int32) {
	for t, q := range l.index {
		q.PopWhile(func(time DiscreteTime) bool { return time < d }, func(id int32, time DiscreteTime) {
			c := Claim{Tile: t, Time: time}
			if owner, ok := l.owners[c]; !ok || owner != id {
				// 已取消或被后来的预约重新占用
				return
			}
			delete(l.owners, c)
			set := l.claims[id]
			delete(set, c)
			if len(set) == 0 {
				delete(l.claims, id)
				removed = append(removed, id)
			}
		})
		if q.Len() == 0 {
			delete(l.index, t)
		}
	}
	slices.Sort(removed)
	return removed
}
