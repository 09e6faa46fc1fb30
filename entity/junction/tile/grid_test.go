package tile_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/tile"
)

func newGrid(t *testing.T) *tile.Grid {
	g, err := tile.NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, 1)
	require.NoError(t, err)
	return g
}

func TestNewGrid(t *testing.T) {
	g := newGrid(t)
	assert.Equal(t, 100, g.Len())
	assert.True(t, g.IsEdge(0))
	assert.True(t, g.IsEdge(9))
	assert.True(t, g.IsEdge(95))
	assert.False(t, g.IsEdge(55))
	assert.Equal(t, orb.Bound{Min: orb.Point{3, 2}, Max: orb.Point{4, 3}}, g.Bound(23))

	// 不能整除时最后一列被裁剪
	g2, err := tile.NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10.5, 2}}, 1)
	require.NoError(t, err)
	nx, ny := g2.Size()
	assert.Equal(t, 11, nx)
	assert.Equal(t, 2, ny)
	assert.InDelta(t, 10.5, g2.Bound(10).Max[0], 1e-9)

	_, err = tile.NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0, 2}}, 1)
	assert.Error(t, err)
	_, err = tile.NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 2}}, 0)
	assert.Error(t, err)
}

func TestOccupiedAxisAligned(t *testing.T) {
	g := newGrid(t)
	path := orb.LineString{{0, 5}, {10, 5}}
	fp := tile.Footprint(path, 3, 2, 1, 0)
	assert.Equal(t, []tile.ID{41, 42, 51, 52}, g.Occupied(fp))

	// 空间缓冲扩大占用范围
	fp = tile.Footprint(path, 3, 2, 1, 0.1)
	assert.Equal(t, []tile.ID{40, 41, 42, 43, 50, 51, 52, 53}, g.Occupied(fp))

	// 完全在区域外
	fp = tile.Footprint(path, -5, 2, 1, 0)
	assert.Empty(t, g.Occupied(fp))
}

func TestOverlapsRotated(t *testing.T) {
	g := newGrid(t)
	path := orb.LineString{{0, 0}, {10, 10}}
	fp := tile.Footprint(path, 5*math.Sqrt2+1, 2, 2, 0)
	assert.True(t, g.Overlaps(44, fp))
	assert.True(t, g.Overlaps(56, fp))
	// 外接矩形相交但旋转后的外廓并不覆盖
	assert.False(t, g.Overlaps(66, fp))
	assert.False(t, g.Overlaps(33, fp))
	assert.NotContains(t, g.Occupied(fp), tile.ID(66))
}

func TestPointAt(t *testing.T) {
	path := orb.LineString{{0, 0}, {4, 0}, {4, 3}}
	assert.InDelta(t, 7, tile.Length(path), 1e-9)

	p, d := tile.PointAt(path, 2)
	assert.Equal(t, orb.Point{2, 0}, p)
	assert.Equal(t, orb.Point{1, 0}, d)

	p, d = tile.PointAt(path, 5)
	assert.InDelta(t, 4, p[0], 1e-9)
	assert.InDelta(t, 1, p[1], 1e-9)
	assert.Equal(t, orb.Point{0, 1}, d)

	p, _ = tile.PointAt(path, -1)
	assert.Equal(t, orb.Point{-1, 0}, p)
	p, _ = tile.PointAt(path, 9)
	assert.InDelta(t, 5, p[1], 1e-9)
}
