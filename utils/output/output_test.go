package output_test

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/output"
)

func TestRecorderFlush(t *testing.T) {
	r := output.NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(vin int32) {
			defer wg.Done()
			r.Record(entity.Event{VIN: vin, Kind: entity.EventConfirm})
			r.Record(entity.Event{VIN: vin, Kind: entity.EventReject, Reason: "NO_CLEAR_PATH"})
		}(int32(i))
	}
	wg.Wait()

	s := r.Flush(10, 1, 3, entity.TripStats{NumCompletedTrips: 2})
	assert.Equal(t, int32(10), s.Step)
	assert.Equal(t, 3, s.Vehicles)
	assert.Equal(t, int32(2), s.Trips.NumCompletedTrips)
	assert.Equal(t, map[string]int64{"confirm": 8, "reject": 8}, s.Events)
	assert.Equal(t, map[string]int64{"NO_CLEAR_PATH": 8}, s.Rejects)

	// 周期计数清零，累计计数保留
	r.Record(entity.Event{Kind: entity.EventDone})
	s = r.Flush(20, 2, 0, entity.TripStats{})
	assert.Equal(t, map[string]int64{"done": 1}, s.Events)
	assert.Nil(t, s.Rejects)
	assert.Equal(t, map[string]int64{"confirm": 8, "reject": 8, "done": 1}, s.Totals)
	assert.Equal(t, int64(8), r.Total(entity.EventConfirm))
}

func TestBroadcast(t *testing.T) {
	o := output.New(config.Output{Interval: 5}, "")
	defer o.Close()
	srv := httptest.NewServer(o.Hub())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return o.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)

	o.Record(entity.Event{Kind: entity.EventQGo})
	_, ok := o.Flush(3, 0.3, 1, entity.TripStats{})
	assert.False(t, ok)
	sent, ok := o.Flush(5, 0.5, 1, entity.TripStats{Spawned: 1})
	require.True(t, ok)

	var got output.Summary
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sent, got)
	assert.Equal(t, int64(1), got.Events["qgo"])
	assert.Equal(t, int32(1), got.Trips.Spawned)

	conn.Close()
	assert.Eventually(t, func() bool { return o.Hub().Len() == 0 }, time.Second, 10*time.Millisecond)
}
