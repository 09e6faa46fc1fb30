package lane_test

import (
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/lane"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

type fakeVehicle struct {
	id int32
	s  float64
}

func (v *fakeVehicle) ID() int32                  { return v.id }
func (v *fakeVehicle) Deliver(protocol.I2V) error { return nil }
func (v *fakeVehicle) S() float64                 { return v.s }
func (v *fakeVehicle) V() float64                 { return 0 }
func (v *fakeVehicle) Length() float64            { return 4 }
func (v *fakeVehicle) String() string             { return fmt.Sprintf("fake %d", v.id) }

var layouts = []config.JunctionLayout{{
	ID: 1,
	Lanes: []config.LaneLayout{
		{ID: 10, Kind: "entry", Line: [][]float64{{-100, 5}, {0, 5}}},
		{ID: 11, Kind: "exit", Line: [][]float64{{10, 5}, {110, 5}}},
		{ID: 12, Kind: "exit", Line: [][]float64{{5, 10}, {5, 60}}, ACZ: 25},
		{ID: 13, Kind: "exit", Line: [][]float64{{5, 0}, {5, -60}}, ACZ: -1},
	},
}}

func TestInit(t *testing.T) {
	m := lane.NewManager()
	m.Init(layouts, 40)
	l := m.Get(10)
	assert.Equal(t, int32(1), l.JunctionID())
	assert.Equal(t, entity.LaneEntry, l.Kind())
	assert.InDelta(t, 100, l.Length(), 1e-9)
	assert.Equal(t, 0.0, l.ACZ())
	assert.Equal(t, orb.Point{-50, 5}, l.PointAt(50))
	assert.Equal(t, orb.Point{10, 5}, l.PointAt(110))

	assert.Equal(t, 40.0, m.Get(11).ACZ())
	assert.Equal(t, 25.0, m.Get(12).ACZ())
	assert.Equal(t, 0.0, m.Get(13).ACZ())
	assert.Len(t, m.OfJunction(1), 4)
	assert.Empty(t, m.OfJunction(2))
	require.Len(t, m.Entries(), 1)
	assert.Equal(t, int32(10), m.Entries()[0].ID())

	_, err := m.GetOrError(99)
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get(99) })
}

func TestInitBadLayout(t *testing.T) {
	for _, bad := range []config.LaneLayout{
		{ID: 1, Kind: "side", Line: [][]float64{{0, 0}, {1, 0}}},
		{ID: 1, Kind: "entry", Line: [][]float64{{0, 0}}},
		{ID: 1, Kind: "entry", Line: [][]float64{{0, 0}, {0, 0}}},
		{ID: 1, Kind: "entry", Line: [][]float64{{0, 0, 0}, {1, 0, 0}}},
	} {
		m := lane.NewManager()
		assert.Panics(t, func() {
			m.Init([]config.JunctionLayout{{ID: 1, Lanes: []config.LaneLayout{bad}}}, 40)
		})
	}
	// 重复ID
	m := lane.NewManager()
	assert.Panics(t, func() { m.Init(append(layouts, layouts...), 40) })
}

func TestVehicleListIsBuffered(t *testing.T) {
	m := lane.NewManager()
	m.Init(layouts, 40)
	l := m.Get(10)

	a := &entity.VehicleNode{S: 30, Value: &fakeVehicle{id: 1, s: 30}}
	b := &entity.VehicleNode{S: 5, Value: &fakeVehicle{id: 2, s: 5}}
	l.AddVehicle(a)
	l.AddVehicle(b)
	assert.Empty(t, l.Vehicles())
	assert.Nil(t, l.FirstVehicle())

	m.Prepare()
	require.Len(t, l.Vehicles(), 2)
	assert.Equal(t, int32(2), l.FirstVehicle().Value.ID())
	assert.Equal(t, a, l.FirstVehicle().Next())

	l.RemoveVehicle(b)
	assert.Len(t, l.Vehicles(), 2)
	m.Prepare()
	assert.Equal(t, []entity.IVehicle{a.Value}, l.Vehicles())

	// 不在该车道上的节点
	assert.Panics(t, func() { m.Get(11).RemoveVehicle(a) })
	assert.Panics(t, func() { l.AddVehicle(a) })
}
