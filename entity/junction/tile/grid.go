// 路口区域的网格划分与车辆占用区域计算
package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ID 网格编号，从区域左下角开始按行编号
type ID = int32

// Grid 路口区域的均匀网格
// 功能：将路口的矩形区域划分为边长为granularity的网格，提供网格与车辆外廓的重叠判断
// 说明：网格在构造时确定，之后只读，可在多个协程中共享
type Grid struct {
	area        orb.Bound
	granularity float64
	nx, ny      int
	edge        []bool
}

// NewGrid 创建网格
// 参数：area-路口矩形区域，granularity-网格边长（米）
// 返回：网格与错误，区域为空或边长非正时返回错误
func NewGrid(area orb.Bound, granularity float64) (*Grid, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("invalid tile granularity %v", granularity)
	}
	w, h := area.Right()-area.Left(), area.Top()-area.Bottom()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid junction area %v", area)
	}
	g := &Grid{
		area:        area,
		granularity: granularity,
		nx:          int(math.Ceil(w/granularity - 1e-9)),
		ny:          int(math.Ceil(h/granularity - 1e-9)),
	}
	g.edge = make([]bool, g.nx*g.ny)
	for j := range g.ny {
		for i := range g.nx {
			g.edge[j*g.nx+i] = i == 0 || j == 0 || i == g.nx-1 || j == g.ny-1
		}
	}
	return g, nil
}

// Len 网格数量
func (g *Grid) Len() int {
	return g.nx * g.ny
}

// Area 路口区域
func (g *Grid) Area() orb.Bound {
	return g.area
}

// Size 网格列数与行数
func (g *Grid) Size() (nx, ny int) {
	return g.nx, g.ny
}

// Bound 网格的矩形范围，最后一行/列被裁剪到区域边界
func (g *Grid) Bound(id ID) orb.Bound {
	i, j := int(id)%g.nx, int(id)/g.nx
	minX := g.area.Left() + float64(i)*g.granularity
	minY := g.area.Bottom() + float64(j)*g.granularity
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{math.Min(minX+g.granularity, g.area.Right()), math.Min(minY+g.granularity, g.area.Top())},
	}
}

// IsEdge 是否为贴着路口边界的网格
func (g *Grid) IsEdge(id ID) bool {
	return g.edge[id]
}

// Overlaps 网格与凸多边形外廓是否重叠
// 功能：分离轴判定，仅接触边界不算重叠
// 参数：id-网格编号，footprint-闭合或不闭合的凸多边形
func (g *Grid) Overlaps(id ID, footprint orb.Ring) bool {
	return overlaps(g.Bound(id), footprint)
}

// Occupied 外廓覆盖的所有网格，编号升序
func (g *Grid) Occupied(footprint orb.Ring) []ID {
	if len(footprint) < 3 {
		return nil
	}
	b := footprint.Bound()
	if !b.Intersects(g.area) {
		return nil
	}
	i0 := g.clamp(int(math.Floor((b.Left()-g.area.Left())/g.granularity)), g.nx)
	i1 := g.clamp(int(math.Floor((b.Right()-g.area.Left())/g.granularity)), g.nx)
	j0 := g.clamp(int(math.Floor((b.Bottom()-g.area.Bottom())/g.granularity)), g.ny)
	j1 := g.clamp(int(math.Floor((b.Top()-g.area.Bottom())/g.granularity)), g.ny)
	ids := make([]ID, 0, (i1-i0+1)*(j1-j0+1))
	for j := j0; j <= j1; j++ {
		for i := i0; i <= i1; i++ {
			id := ID(j*g.nx + i)
			if g.Overlaps(id, footprint) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (g *Grid) clamp(v, n int) int {
	return max(0, min(v, n-1))
}

// overlaps 矩形与凸多边形的分离轴判定
func overlaps(b orb.Bound, poly orb.Ring) bool {
	pts := poly
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return false
	}
	box := b.ToRing()[:4]
	axes := []orb.Point{{1, 0}, {0, 1}}
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		axes = append(axes, orb.Point{q[1] - p[1], p[0] - q[0]})
	}
	for _, axis := range axes {
		if axis[0] == 0 && axis[1] == 0 {
			continue
		}
		minA, maxA := project(box, axis)
		minB, maxB := project(pts, axis)
		if maxA <= minB+1e-9 || maxB <= minA+1e-9 {
			return false
		}
	}
	return true
}

func project(pts []orb.Point, axis orb.Point) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		d := p[0]*axis[0] + p[1]*axis[1]
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return
}
