package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/policy"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
)

// fakeCallback 可行性由feasible决定的引擎原语
type fakeCallback struct {
	now       float64
	feasible  map[int32]bool
	confirmed []int32
	rejected  []int32
}

func (f *fakeCallback) Now() float64 { return f.now }

func (f *fakeCallback) Reserve(msg *protocol.Request) (*policy.Grant, protocol.Reason) {
	if f.feasible[msg.VIN] {
		return &policy.Grant{ReservationID: msg.VIN}, protocol.NoClearPath
	}
	return nil, protocol.NoClearPath
}

func (f *fakeCallback) Confirm(msg *protocol.Request, _ *policy.Grant) {
	f.confirmed = append(f.confirmed, msg.VIN)
}

func (f *fakeCallback) Reject(msg *protocol.Request, _ protocol.Reason) {
	f.rejected = append(f.rejected, msg.VIN)
}

func TestNewHandler(t *testing.T) {
	for name, want := range map[string]any{
		"":         &policy.FCFS{},
		"fcfs":     &policy.FCFS{},
		"priority": &policy.Priority{},
		"plain":    policy.Plain{},
	} {
		h, err := policy.NewHandler(name, 2)
		require.NoError(t, err)
		assert.IsType(t, want, h, name)
	}
	_, err := policy.NewHandler("lottery", 2)
	assert.Error(t, err)
}

func TestFCFSOrder(t *testing.T) {
	e := newEngine(t, policy.NewFCFS(2), nil)
	out := step(e, 0, request(1, 1, 1, 1.0), request(2, 1, 1, 1.0), request(3, 1, 1, 1.0))
	require.Len(t, out, 3)
	requireConfirm(t, out[0], 1)
	requireReject(t, out[1], 2, protocol.NoClearPath)
	requireReject(t, out[2], 3, protocol.NoClearPath)
	assert.Equal(t, []int32{2, 3}, e.Snapshot().Waiting)

	// 车辆3先发出可行的请求，但车辆2仍在队首
	out = step(e, 0.5, request(3, 2, 1, 5.0), request(2, 2, 1, 5.0))
	require.Len(t, out, 2)
	requireReject(t, out[0], 3, protocol.NoClearPath)
	requireConfirm(t, out[1], 2)
	assert.Equal(t, []int32{3}, e.Snapshot().Waiting)

	out = step(e, 1.0, request(3, 3, 1, 8.0))
	require.Len(t, out, 1)
	requireConfirm(t, out[0], 3)
	assert.Empty(t, e.Snapshot().Waiting)
}

func TestFCFSDropsStaleHead(t *testing.T) {
	f := policy.NewFCFS(2)
	cb := &fakeCallback{feasible: map[int32]bool{}}
	f.ProcessRequest(cb, request(1, 1, 1, 1))
	f.ProcessRequest(cb, request(2, 1, 1, 1))
	assert.Equal(t, []int32{1, 2}, cb.rejected)
	f.Act(1)
	assert.Equal(t, []int32{1, 2}, f.Waiting())

	cb.now = 2
	f.ProcessRequest(cb, request(2, 2, 1, 3))
	f.Act(2.5)
	assert.Equal(t, []int32{2}, f.Waiting())

	cb.now = 3
	cb.feasible[2] = true
	f.ProcessRequest(cb, request(2, 3, 1, 4))
	assert.Equal(t, []int32{2}, cb.confirmed)
	assert.Empty(t, f.Waiting())
}

func TestFCFSForget(t *testing.T) {
	f := policy.NewFCFS(0)
	cb := &fakeCallback{feasible: map[int32]bool{2: true}}
	f.ProcessRequest(cb, request(1, 1, 1, 1))
	f.ProcessRequest(cb, request(2, 1, 1, 1))
	assert.Empty(t, cb.confirmed)
	// 不淘汰失联车辆
	f.Act(100)
	assert.Equal(t, []int32{1, 2}, f.Waiting())

	f.Forget(1)
	f.Forget(1)
	f.ProcessRequest(cb, request(2, 2, 1, 1))
	assert.Equal(t, []int32{2}, cb.confirmed)
}

func TestPriorityBypassesQueue(t *testing.T) {
	p := policy.NewPriority(2)
	cb := &fakeCallback{feasible: map[int32]bool{9: true}}
	p.ProcessRequest(cb, request(1, 1, 1, 1))
	emergency := request(9, 1, 1, 1)
	emergency.Spec.Emergency = true
	p.ProcessRequest(cb, emergency)
	assert.Equal(t, []int32{9}, cb.confirmed)
	assert.Equal(t, []int32{1}, p.Waiting())

	// 不可行的紧急车辆被拒绝且不排队
	cb.feasible[9] = false
	p.ProcessRequest(cb, emergency)
	assert.Equal(t, []int32{1, 9}, cb.rejected)
	assert.Equal(t, []int32{1}, p.Waiting())
}

func TestPlain(t *testing.T) {
	cb := &fakeCallback{feasible: map[int32]bool{2: true}}
	policy.Plain{}.ProcessRequest(cb, request(1, 1, 1, 1))
	policy.Plain{}.ProcessRequest(cb, request(2, 1, 1, 1))
	assert.Equal(t, []int32{1}, cb.rejected)
	assert.Equal(t, []int32{2}, cb.confirmed)
	assert.Nil(t, policy.Plain{}.Waiting())
}

func TestFCFSRejectsOutOfRangeBeforeQueueing(t *testing.T) {
	e := newEngine(t, policy.NewFCFS(10), nil)
	out := step(e, 0, request(1, 1, 1, 1.0), request(2, 1, 1, 1.0))
	requireConfirm(t, out[0], 1)
	requireReject(t, out[1], 2, protocol.NoClearPath)
	require.Equal(t, []int32{2}, e.Snapshot().Waiting)

	out = step(e, 5, request(3, 1, 1, 0.5))
	require.Len(t, out, 1)
	requireReject(t, out[0], 3, protocol.ArrivalTimeTooLate)
	assert.Equal(t, []int32{2}, e.Snapshot().Waiting)

	out = step(e, 5.5, request(4, 1, 1, 100))
	require.Len(t, out, 1)
	requireReject(t, out[0], 4, protocol.ArrivalTimeTooLarge)
	assert.Equal(t, []int32{2}, e.Snapshot().Waiting)
}

func TestForeignReleaseKeepsQueuePosition(t *testing.T) {
	e := newEngine(t, policy.NewFCFS(10), nil)
	step(e, 0, request(1, 1, 1, 1.0), request(2, 1, 1, 1.0))
	require.Equal(t, []int32{2}, e.Snapshot().Waiting)

	assert.False(t, e.Cancel(2, 1))
	assert.False(t, e.Done(2, 1))
	assert.False(t, e.Away(2, 99))
	assert.Equal(t, []int32{2}, e.Snapshot().Waiting)
}
