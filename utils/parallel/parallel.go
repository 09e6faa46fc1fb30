// 基于errgroup的并行for与map，并发度默认为CPU核数
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// batch 将n个任务切分为不超过workers段的区间
func batch(n int) (workers int, size int) {
	workers = runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers == 0 {
		return 0, 0
	}
	size = (n + workers - 1) / workers
	return workers, size
}

// GoFor 并行地对每个元素执行f，返回时所有f均已完成
func GoFor[T any](data []T, f func(T)) {
	_ = GoForErr(context.Background(), data, func(_ context.Context, x T) error {
		f(x)
		return nil
	})
}

// GoForErr 并行地对每个元素执行f
// 功能：按CPU核数切分任务并发执行，任何一个f返回错误时取消ctx并返回第一个错误
// 参数：ctx-上下文，data-待处理元素，f-处理函数
// 返回：第一个错误
func GoForErr[T any](ctx context.Context, data []T, f func(context.Context, T) error) error {
	workers, size := batch(len(data))
	if workers == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		part := data[start:end]
		g.Go(func() error {
			for _, x := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := f(gctx, x); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// GoMap 并行地将data映射为新切片，保持原顺序
func GoMap[T any, R any](data []T, f func(T) R) []R {
	res := make([]R, len(data))
	workers, size := batch(len(data))
	if workers == 0 {
		return res
	}
	var g errgroup.Group
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		g.Go(func() error {
			for i := start; i < end; i++ {
				res[i] = f(data[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return res
}
