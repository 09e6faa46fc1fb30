package vehicle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/vehicle"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

var ident = vehicle.Identity{
	VIN:             7,
	JunctionID:      1,
	EntryLane:       10,
	ExitLane:        11,
	Spec:            protocol.VehicleSpec{Length: 4, Width: 2, MaxVelocity: 10, MaxAcceleration: 3},
	MaxDeceleration: 4.5,
}

var header = protocol.Header{JunctionID: 1, VIN: 7}

// approaching 车辆以10m/s行驶，距入口50m
func approaching(t float64) vehicle.Observation {
	return vehicle.Observation{
		T:                t,
		DT:               0.1,
		V:                10,
		Segment:          vehicle.SegmentEntry,
		DistanceToEntry:  50,
		DistancePastExit: -70,
		VehicleInFront:   -1,
	}
}

func requestOf(t *testing.T, msgs []protocol.V2I) *protocol.Request {
	t.Helper()
	require.Len(t, msgs, 1)
	req, ok := msgs[0].(*protocol.Request)
	require.True(t, ok, "got %v", msgs[0].Kind())
	return req
}

func confirmOf(req *protocol.Request, i int) *protocol.Confirm {
	p := req.Proposals[i]
	return &protocol.Confirm{
		Header:          header,
		ReservationID:   5,
		RequestID:       req.RequestID,
		ArrivalTime:     p.ArrivalTime,
		EarlyError:      0.2,
		LateError:       0.2,
		ArrivalVelocity: p.ArrivalVelocity,
		EntryLane:       p.EntryLane,
		ExitLane:        p.ExitLane,
		ACZDistance:     44,
		AccelProfile:    []protocol.AccelSegment{{Acceleration: 0, Duration: 2}},
	}
}

func TestV2IRequest(t *testing.T) {
	c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	req := requestOf(t, c.Act(approaching(1)))
	assert.Equal(t, vehicle.StateAwaitingReply, c.State())
	assert.Equal(t, header, req.Header)
	assert.Equal(t, ident.Spec, req.Spec)
	// 目标速度3.33m/s的方案超出可预约范围
	require.Len(t, req.Proposals, 2)
	assert.InDelta(t, 6, req.Proposals[0].ArrivalTime, 1e-9)
	assert.InDelta(t, 10, req.Proposals[0].ArrivalVelocity, 1e-9)
	assert.InDelta(t, 10.0*2/3, req.Proposals[1].ArrivalVelocity, 1e-9)
	assert.Greater(t, req.Proposals[1].ArrivalTime, req.Proposals[0].ArrivalTime)
	assert.False(t, c.MayEnter())

	// 等待回复期间不再请求
	assert.Empty(t, c.Act(approaching(1.1)))
}

func TestV2ILifecycle(t *testing.T) {
	c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	req := requestOf(t, c.Act(approaching(1)))
	c.Receive(confirmOf(req, 0))
	assert.Equal(t, vehicle.StateConfirmed, c.State())
	assert.True(t, c.MayEnter())
	require.NotNil(t, c.Reservation())
	assert.Equal(t, int32(5), c.Reservation().ReservationID)

	a, ok := c.Schedule(1, 0.1)
	assert.True(t, ok)
	assert.InDelta(t, 0, a, 1e-9)

	// 在授权窗口内以授权速度驶过入口
	obs := vehicle.Observation{T: 6, DT: 0.1, V: 10, Segment: vehicle.SegmentJunction, DistancePastExit: -19, VehicleInFront: -1}
	assert.Empty(t, c.Act(obs))
	assert.Equal(t, vehicle.StateTraversing, c.State())

	obs = vehicle.Observation{T: 8.5, DT: 0.1, V: 10, Segment: vehicle.SegmentExit, DistancePastExit: 4, VehicleInFront: -1}
	msgs := c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, &protocol.Done{Header: header, ReservationID: 5}, msgs[0])
	assert.Equal(t, vehicle.StateDeparted, c.State())

	obs.DistancePastExit = 44
	assert.Empty(t, c.Act(obs))
	obs.DistancePastExit = 45
	msgs = c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, &protocol.Away{Header: header, ReservationID: 5}, msgs[0])
	assert.Equal(t, vehicle.StateIdle, c.State())
	assert.Nil(t, c.Reservation())
}

func TestV2IScheduleFollowsApproach(t *testing.T) {
	c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	req := requestOf(t, c.Act(approaching(1)))
	c.Receive(confirmOf(req, 1))
	require.Equal(t, vehicle.StateConfirmed, c.State())
	// 先以最大减速度减速到6.67m/s
	a, ok := c.Schedule(1, 0.1)
	assert.True(t, ok)
	assert.InDelta(t, -4.5, a, 1e-9)
}

func TestV2IBlockedAndLate(t *testing.T) {
	c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	req := requestOf(t, c.Act(approaching(1)))
	c.Receive(confirmOf(req, 0))
	obs := approaching(1.1)
	obs.Blocked = true
	msgs := c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, &protocol.Cancel{Header: header, ReservationID: 5}, msgs[0])
	assert.Equal(t, vehicle.StateIdle, c.State())

	c = vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	req = requestOf(t, c.Act(approaching(1)))
	c.Receive(confirmOf(req, 0))
	obs = vehicle.Observation{T: 7, DT: 0.1, V: 10, Segment: vehicle.SegmentJunction, DistancePastExit: -19, VehicleInFront: -1}
	msgs = c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.KindCancel, msgs[0].Kind())
	assert.Equal(t, vehicle.StateIdle, c.State())
	assert.False(t, c.MayEnter())
}

func TestV2IReject(t *testing.T) {
	c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	req := requestOf(t, c.Act(approaching(1)))
	c.Receive(&protocol.Reject{Header: header, RequestID: req.RequestID, NextAllowedComm: 3, Reason: protocol.NoClearPath})
	assert.Equal(t, vehicle.StateIdle, c.State())
	assert.Empty(t, c.Act(approaching(2)))
	req2 := requestOf(t, c.Act(approaching(3)))
	assert.Equal(t, req.RequestID+1, req2.RequestID)
}

func TestV2IViolation(t *testing.T) {
	c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	stray := &protocol.Confirm{Header: header, ReservationID: 9, RequestID: 3}
	c.Receive(stray)
	// 非预期的授权被立即取消
	obs := vehicle.Observation{T: 1, DT: 0.1, Segment: vehicle.SegmentExit, DistancePastExit: 10, VehicleInFront: -1}
	msgs := c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, &protocol.Cancel{Header: header, ReservationID: 9}, msgs[0])

	c.Strict = true
	assert.Panics(t, func() { c.Receive(stray) })
	assert.Panics(t, func() {
		// 状态不符的拒绝只记录日志
		c.Receive(&protocol.Reject{Header: header, Reason: protocol.ArrivalTimeTooLate})
		c.Act(approaching(2))
		c.Receive(&protocol.Reject{Header: header, Reason: protocol.ArrivalTimeTooLate})
	})
}

func TestV2IAbort(t *testing.T) {
	c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
	assert.Empty(t, c.Abort())
	req := requestOf(t, c.Act(approaching(1)))
	c.Receive(confirmOf(req, 0))
	msgs := c.Abort()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.KindCancel, msgs[0].Kind())
	assert.Equal(t, vehicle.StateIdle, c.State())
}

func TestQueueCoordinator(t *testing.T) {
	cfg := config.DefaultPolicy()
	c := vehicle.NewQueueCoordinator(ident, cfg)
	far := approaching(1)
	far.DistanceToEntry = cfg.QueueMaxDistance + 1
	assert.Empty(t, c.Act(far))
	assert.False(t, c.MayEnter())

	near := approaching(1.1)
	near.VehicleInFront = 3
	msgs := c.Act(near)
	require.Len(t, msgs, 1)
	assert.Equal(t, &protocol.QRequest{Header: header, VehicleInFront: 3, DistanceToMerge: 50}, msgs[0])
	assert.Equal(t, vehicle.StateAwaitingReply, c.State())

	// 拒绝后退避
	c.Receive(&protocol.QReject{Header: header, Reason: protocol.VehicleInFrontNotInQueue})
	assert.Equal(t, vehicle.StateIdle, c.State())
	assert.Empty(t, c.Act(approaching(1.2)))
	require.Len(t, c.Act(approaching(1.1+cfg.RejectBackoff)), 1)

	c.Receive(&protocol.QConfirm{Header: header})
	assert.Equal(t, vehicle.StateConfirmed, c.State())
	assert.False(t, c.MayEnter())
	_, ok := c.Schedule(2, 0.1)
	assert.False(t, ok)

	c.Receive(&protocol.QGo{Header: header})
	assert.Equal(t, vehicle.StateTraversing, c.State())
	assert.True(t, c.MayEnter())

	obs := vehicle.Observation{T: 5, DT: 0.1, V: 10, Segment: vehicle.SegmentExit, DistancePastExit: 3, VehicleInFront: -1}
	assert.Empty(t, c.Act(obs))
	obs.DistancePastExit = 4
	msgs = c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, &protocol.QDone{Header: header}, msgs[0])
	assert.Equal(t, vehicle.StateDeparted, c.State())
	assert.Empty(t, c.Abort())
}

func TestQueueCoordinatorAbort(t *testing.T) {
	c := vehicle.NewQueueCoordinator(ident, config.DefaultPolicy())
	c.Act(approaching(1))
	c.Receive(&protocol.QConfirm{Header: header})
	c.Receive(&protocol.QGo{Header: header})
	msgs := c.Abort()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.KindQDone, msgs[0].Kind())

	c.Strict = true
	assert.Panics(t, func() { c.Receive(&protocol.QGo{Header: header}) })
}

func TestV2IDivergesWhileTraversing(t *testing.T) {
	enter := func() *vehicle.V2ICoordinator {
		c := vehicle.NewV2ICoordinator(ident, config.DefaultPolicy())
		req := requestOf(t, c.Act(approaching(1)))
		c.Receive(confirmOf(req, 0))
		obs := vehicle.Observation{T: 6, DT: 0.1, V: 10, Segment: vehicle.SegmentJunction, DistancePastExit: -19, VehicleInFront: -1}
		require.Empty(t, c.Act(obs))
		require.Equal(t, vehicle.StateTraversing, c.State())
		return c
	}

	// 授权：6s到达，通过用时2s，允许延迟0.2s
	c := enter()
	obs := vehicle.Observation{T: 8.2, DT: 0.1, V: 1, Segment: vehicle.SegmentJunction, DistancePastExit: -2, VehicleInFront: -1}
	assert.Empty(t, c.Act(obs))
	assert.Equal(t, vehicle.StateTraversing, c.State())
	obs.T, obs.V = 26, 0
	msgs := c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, &protocol.Cancel{Header: header, ReservationID: 5}, msgs[0])
	assert.Equal(t, vehicle.StateIdle, c.State())
	// 不在驶入车道上时不再请求
	assert.Empty(t, c.Act(obs))

	c = enter()
	obs = vehicle.Observation{T: 7, DT: 0.1, V: 0, Segment: vehicle.SegmentExit, DistancePastExit: 1, Blocked: true, VehicleInFront: -1}
	msgs = c.Act(obs)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.KindCancel, msgs[0].Kind())
	assert.Equal(t, vehicle.StateIdle, c.State())
}

func TestDroppedRequest(t *testing.T) {
	cfg := config.DefaultPolicy()
	c := vehicle.NewV2ICoordinator(ident, cfg)
	req := requestOf(t, c.Act(approaching(1)))
	c.Dropped(&protocol.Cancel{Header: header, ReservationID: 5})
	assert.Equal(t, vehicle.StateAwaitingReply, c.State())
	c.Dropped(req)
	assert.Equal(t, vehicle.StateIdle, c.State())
	assert.Empty(t, c.Act(approaching(1.2)))
	req2 := requestOf(t, c.Act(approaching(1+cfg.RejectBackoff)))
	assert.Equal(t, req.RequestID+1, req2.RequestID)

	q := vehicle.NewQueueCoordinator(ident, cfg)
	msgs := q.Act(approaching(1))
	require.Len(t, msgs, 1)
	q.Dropped(msgs[0])
	assert.Equal(t, vehicle.StateIdle, q.State())
	assert.Empty(t, q.Act(approaching(1.2)))
	assert.Len(t, q.Act(approaching(1+cfg.RejectBackoff)), 1)
}
