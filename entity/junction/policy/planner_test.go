package policy_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/policy"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/tile"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

func newPlanner(t *testing.T, cfg config.Policy) *policy.Planner {
	t.Helper()
	grid, err := tile.NewGrid(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, 2)
	require.NoError(t, err)
	p, err := policy.NewPlanner(grid, testPaths, cfg)
	require.NoError(t, err)
	return p
}

func TestProfile(t *testing.T) {
	given := []protocol.AccelSegment{{Acceleration: 1, Duration: 2}}
	prof, err := policy.Profile(protocol.Proposal{AccelProfile: given}, car, 14)
	require.NoError(t, err)
	assert.Equal(t, given, prof)

	// 匀速
	prof, err = policy.Profile(protocol.Proposal{ArrivalVelocity: 10}, car, 14)
	require.NoError(t, err)
	require.Len(t, prof, 1)
	assert.InDelta(t, 1.4, prof[0].Duration, 1e-9)

	// 加速后匀速：从5加速到10需要2.5秒、18.75米
	spec := car
	spec.MaxAcceleration = 2
	prof, err = policy.Profile(protocol.Proposal{ArrivalVelocity: 5}, spec, 28.75)
	require.NoError(t, err)
	require.Len(t, prof, 2)
	assert.InDelta(t, 2, prof[0].Acceleration, 1e-9)
	assert.InDelta(t, 2.5, prof[0].Duration, 1e-9)
	assert.InDelta(t, 0, prof[1].Acceleration, 1e-9)
	assert.InDelta(t, 1, prof[1].Duration, 1e-9)

	// 路程不足以加速到最高速度：0 -> 6米 at 2m/s^2 需要sqrt(6)秒
	prof, err = policy.Profile(protocol.Proposal{ArrivalVelocity: 0}, spec, 6)
	require.NoError(t, err)
	require.Len(t, prof, 1)
	assert.InDelta(t, 2.449489742783178, prof[0].Duration, 1e-9)

	_, err = policy.Profile(protocol.Proposal{ArrivalVelocity: 0}, car, 14)
	assert.ErrorIs(t, err, policy.ErrStalled)
}

func TestPlanCruise(t *testing.T) {
	p := newPlanner(t, config.DefaultPolicy())
	trav, err := p.Plan(protocol.Proposal{ArrivalTime: 1, ArrivalVelocity: 10, EntryLane: 1, ExitLane: 2}, car)
	require.NoError(t, err)
	assert.InDelta(t, 2.4, trav.ExitTime, 1e-9)
	assert.InDelta(t, 10, trav.ExitVelocity, 1e-9)

	// 车身加缓冲覆盖y=[3.75, 6.25]，即第1~3行网格
	rows := map[int32]bool{}
	first, last := map[tile.ID]int64{}, map[tile.ID]int64{}
	for _, c := range trav.Claims {
		rows[c.Tile/5] = true
		if v, ok := first[c.Tile]; !ok || int64(c.Time) < v {
			first[c.Tile] = int64(c.Time)
		}
		if v, ok := last[c.Tile]; !ok || int64(c.Time) > v {
			last[c.Tile] = int64(c.Time)
		}
	}
	assert.Equal(t, map[int32]bool{1: true, 2: true, 3: true}, rows)
	// 边缘网格（第0列）从到达时刻前3步开始占用
	assert.Equal(t, int64(7), first[10])
	// 内部网格的时间缓冲为1步
	assert.Equal(t, int64(13), first[12])
	assert.Equal(t, int64(27), last[14])

	// 没有重复占用
	seen := map[any]bool{}
	for _, c := range trav.Claims {
		assert.False(t, seen[c])
		seen[c] = true
	}
}

func TestPlanWithoutEdgeBuffer(t *testing.T) {
	cfg := config.DefaultPolicy()
	cfg.EdgeTileBufferEnabled = false
	p := newPlanner(t, cfg)
	trav, err := p.Plan(protocol.Proposal{ArrivalTime: 1, ArrivalVelocity: 10, EntryLane: 1, ExitLane: 2}, car)
	require.NoError(t, err)
	minTime := int64(1 << 40)
	for _, c := range trav.Claims {
		minTime = min(minTime, int64(c.Time))
	}
	assert.Equal(t, int64(9), minTime)
}

func TestPlanErrors(t *testing.T) {
	p := newPlanner(t, config.DefaultPolicy())
	_, err := p.Plan(protocol.Proposal{ArrivalTime: 1, ArrivalVelocity: 10, EntryLane: 1, ExitLane: 3}, car)
	assert.ErrorIs(t, err, policy.ErrNoPath)

	// 给定的加速度曲线让车辆停在路口内
	_, err = p.Plan(protocol.Proposal{
		ArrivalTime: 1, ArrivalVelocity: 2, EntryLane: 1, ExitLane: 2,
		AccelProfile: []protocol.AccelSegment{{Acceleration: -2, Duration: 1}},
	}, car)
	assert.ErrorIs(t, err, policy.ErrStalled)
}
