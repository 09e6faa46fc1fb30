package junction_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/lane"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/rpcserver"
)

var layouts = []config.JunctionLayout{
	{
		ID:          1,
		Min:         []float64{0, 0},
		Max:         []float64{20, 20},
		Granularity: 2,
		Lanes: []config.LaneLayout{
			{ID: 10, Kind: "entry", Line: [][]float64{{-100, 10}, {0, 10}}},
			{ID: 11, Kind: "exit", Line: [][]float64{{20, 10}, {120, 10}}},
		},
	},
	{
		ID:       2,
		Protocol: "queue",
		Min:      []float64{200, 0},
		Max:      []float64{220, 20},
		Lanes: []config.LaneLayout{
			{ID: 20, Kind: "entry", Line: [][]float64{{100, 10}, {200, 10}}},
			{ID: 21, Kind: "exit", Line: [][]float64{{220, 10}, {320, 10}}},
		},
	},
}

func newManager(t *testing.T) *junction.JunctionManager {
	t.Helper()
	lm := lane.NewManager()
	lm.Init(layouts, 40)
	m := junction.NewManager(nil)
	m.Init(layouts, lm)
	return m
}

func request(vin int32, now float64) *protocol.Request {
	return &protocol.Request{
		Header:    protocol.Header{JunctionID: 1, VIN: vin},
		RequestID: 1,
		Spec:      protocol.VehicleSpec{Length: 4, Width: 2, MaxVelocity: 10},
		Proposals: []protocol.Proposal{{ArrivalTime: now + 1, ArrivalVelocity: 10, EntryLane: 10, ExitLane: 11}},
	}
}

func TestInit(t *testing.T) {
	m := newManager(t)
	j := m.Get(1)
	assert.Equal(t, junction.ProtocolFCFS, j.Protocol())
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{20, 20}}, j.Area())
	path, ok := j.Path(10, 11)
	require.True(t, ok)
	assert.Equal(t, orb.LineString{{0, 10}, {20, 10}}, path)
	_, ok = j.Path(11, 10)
	assert.False(t, ok)

	assert.Equal(t, junction.ProtocolQueue, m.Get(2).Protocol())
	_, err := m.GetOrError(3)
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get(3) })
}

func TestInitBadLayout(t *testing.T) {
	bad := layouts[0]
	bad.Connections = []config.Connection{{Entry: 11, Exit: 10}}
	lm := lane.NewManager()
	lm.Init([]config.JunctionLayout{bad}, 40)
	assert.Panics(t, func() { junction.NewManager(nil).Init([]config.JunctionLayout{bad}, lm) })

	bad = layouts[0]
	bad.Protocol = "roundabout"
	lm = lane.NewManager()
	lm.Init([]config.JunctionLayout{bad}, 40)
	assert.Panics(t, func() { junction.NewManager(nil).Init([]config.JunctionLayout{bad}, lm) })
}

func TestOneStepLatency(t *testing.T) {
	m := newManager(t)
	j := m.Get(1)
	require.NoError(t, j.Deliver(request(5, 0)))
	assert.Empty(t, m.Collect())

	m.Update(0)
	// 快照在prepare阶段发布
	assert.Empty(t, j.Snapshot().Reservations)
	m.Prepare()
	snapshot := j.Snapshot()
	require.Len(t, snapshot.Reservations, 1)
	assert.Equal(t, int32(5), snapshot.Reservations[0].VIN)
	assert.Equal(t, int32(11), snapshot.Reservations[0].ExitLane)
	assert.Equal(t, 1, snapshot.ACZ)

	out := m.Collect()
	require.Len(t, out, 1)
	c, ok := out[0].(*protocol.Confirm)
	require.True(t, ok)
	assert.Equal(t, int32(5), c.VIN)
	assert.Equal(t, 44.0, c.ACZDistance)
	assert.Empty(t, m.Collect())
}

func TestDeliverWrongJunction(t *testing.T) {
	m := newManager(t)
	msg := request(5, 0)
	msg.JunctionID = 2
	err := m.Get(1).Deliver(msg)
	assert.True(t, errors.Is(err, junction.ErrWrongJunction))
}

func TestRPC(t *testing.T) {
	m := newManager(t)
	server := rpcserver.New("")
	m.Register(server)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()
	ctx := context.Background()

	send := rpcserver.NewClient[junction.SendRequest, junction.SendResponse](ts.Client(), ts.URL, junction.SendProcedure)
	poll := rpcserver.NewClient[junction.PollRequest, junction.PollResponse](ts.Client(), ts.URL, junction.PollProcedure)
	get := rpcserver.NewClient[junction.GetReservationsRequest, junction.GetReservationsResponse](
		ts.Client(), ts.URL, junction.GetReservationsProcedure,
	)

	_, err := send.CallUnary(ctx, connect.NewRequest(&junction.SendRequest{JunctionID: 1, Message: []byte{0xff}}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = send.CallUnary(ctx, connect.NewRequest(&junction.SendRequest{JunctionID: 9, Message: protocol.Marshal(request(5, 0))}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = send.CallUnary(ctx, connect.NewRequest(&junction.SendRequest{JunctionID: 1, Message: protocol.Marshal(request(5, 0))}))
	require.NoError(t, err)

	m.Update(0)
	m.Prepare()
	for _, msg := range m.Collect() {
		m.Hold(msg)
	}

	res, err := poll.CallUnary(ctx, connect.NewRequest(&junction.PollRequest{VIN: 5}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Messages, 1)
	msg, err := protocol.UnmarshalI2V(res.Msg.Messages[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.KindConfirm, msg.Kind())

	res, err = poll.CallUnary(ctx, connect.NewRequest(&junction.PollRequest{VIN: 5}))
	require.NoError(t, err)
	assert.Empty(t, res.Msg.Messages)

	all, err := get.CallUnary(ctx, connect.NewRequest(&junction.GetReservationsRequest{}))
	require.NoError(t, err)
	require.Len(t, all.Msg.Junctions, 2)
	assert.Len(t, all.Msg.Junctions[0].Reservations, 1)
	assert.Equal(t, junction.ProtocolQueue, all.Msg.Junctions[1].Protocol)

	_, err = get.CallUnary(ctx, connect.NewRequest(&junction.GetReservationsRequest{JunctionIDs: []int32{1, 9}}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
