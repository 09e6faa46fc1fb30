package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/rpcserver"
)

const (
	ClockServiceName = "clock.v1.ClockService"
	NowProcedure     = "/clock.v1.ClockService/Now"
)

type NowRequest struct{}

type NowResponse struct {
	T    float64 `json:"t"`
	Step int32   `json:"step"`
}

// Register 将ClockService注册到RPC服务器
func (c *Clock) Register(server *rpcserver.Server) {
	server.Register(
		ClockServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return NowProcedure, connect.NewUnaryHandler(NowProcedure, c.Now, opts...)
		},
	)
}

// Now 获取当前仿真时间
// 功能：RPC接口，返回当前仿真时间与步数
func (c *Clock) Now(ctx context.Context, in *connect.Request[NowRequest]) (*connect.Response[NowResponse], error) {
	return connect.NewResponse(&NowResponse{
		T:    c.T,
		Step: c.InternalStep,
	}), nil
}
