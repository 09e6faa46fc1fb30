package tile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PointAt 折线上弧长s处的点及该处的单位方向
// 说明：s<0时沿第一段反向外推，s超过折线长度时沿最后一段外推
func PointAt(path orb.LineString, s float64) (p orb.Point, dir orb.Point) {
	if len(path) == 0 {
		return orb.Point{}, orb.Point{1, 0}
	}
	if len(path) == 1 {
		return path[0], orb.Point{1, 0}
	}
	last := len(path) - 2
	for i := 0; i <= last; i++ {
		a, b := path[i], path[i+1]
		l := planar.Distance(a, b)
		if l == 0 {
			continue
		}
		if s <= l || i == last {
			dir = orb.Point{(b[0] - a[0]) / l, (b[1] - a[1]) / l}
			return orb.Point{a[0] + dir[0]*s, a[1] + dir[1]*s}, dir
		}
		s -= l
	}
	// 所有线段长度为0
	return path[0], orb.Point{1, 0}
}

// Length 折线长度
func Length(path orb.LineString) float64 {
	return planar.Length(path)
}

// Footprint 车辆外廓
// 功能：计算车头位于折线弧长front处、车长length、车宽width的车辆外廓矩形
// 参数：buffer-向四周扩展的空间缓冲
// 返回：闭合的矩形环，方向取车身中点处的折线方向
func Footprint(path orb.LineString, front, length, width, buffer float64) orb.Ring {
	c, d := PointAt(path, front-length/2)
	hl, hw := length/2+buffer, width/2+buffer
	n := orb.Point{-d[1], d[0]}
	corner := func(sl, sw float64) orb.Point {
		return orb.Point{
			c[0] + d[0]*hl*sl + n[0]*hw*sw,
			c[1] + d[1]*hl*sl + n[1]*hw*sw,
		}
	}
	r := orb.Ring{corner(1, 1), corner(-1, 1), corner(-1, -1), corner(1, -1)}
	return append(r, r[0])
}
