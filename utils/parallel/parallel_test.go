package parallel_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/parallel"
)

func TestGoFor(t *testing.T) {
	data := make([]int, 1000)
	for i := range data {
		data[i] = i
	}
	var sum atomic.Int64
	parallel.GoFor(data, func(x int) { sum.Add(int64(x)) })
	assert.Equal(t, int64(999*1000/2), sum.Load())

	parallel.GoFor([]int{}, func(int) { t.Fatal("must not be called") })
}

func TestGoMapKeepsOrder(t *testing.T) {
	data := []int{5, 4, 3, 2, 1, 0, 9, 8, 7}
	res := parallel.GoMap(data, func(x int) int { return x * 10 })
	assert.Equal(t, []int{50, 40, 30, 20, 10, 0, 90, 80, 70}, res)
	assert.Empty(t, parallel.GoMap([]int{}, func(x int) int { return x }))
}

func TestGoForErr(t *testing.T) {
	errBoom := errors.New("boom")
	err := parallel.GoForErr(context.Background(), []int{1, 2, 3}, func(_ context.Context, x int) error {
		if x == 2 {
			return errBoom
		}
		return nil
	})
	assert.ErrorIs(t, err, errBoom)
}
