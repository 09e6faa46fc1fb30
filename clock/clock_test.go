package clock_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/clock"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/rpcserver"
)

func TestClock(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 36000, Total: 3, Interval: 0.1})
	assert.InDelta(t, 3600, c.T, 1e-9)
	assert.False(t, c.Done())
	for range 3 {
		c.Tick()
	}
	assert.True(t, c.Done())
	assert.Equal(t, int32(36003), c.InternalStep)
	assert.Equal(t, "01:00:00.30", c.String())
}

func TestNowRPC(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 10, Total: 5, Interval: 0.5})
	server := rpcserver.New("")
	c.Register(server)
	assert.Equal(t, []string{clock.ClockServiceName}, server.Services())
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	client := rpcserver.NewClient[clock.NowRequest, clock.NowResponse](ts.Client(), ts.URL, clock.NowProcedure)
	res, err := client.CallUnary(context.Background(), connect.NewRequest(&clock.NowRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.Msg.T)
	assert.Equal(t, int32(10), res.Msg.Step)
}
