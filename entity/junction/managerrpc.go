package junction

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/protocol"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/rpcserver"
)

const (
	JunctionServiceName = "junction.v1.JunctionService"

	SendProcedure            = "/junction.v1.JunctionService/Send"
	PollProcedure            = "/junction.v1.JunctionService/Poll"
	GetReservationsProcedure = "/junction.v1.JunctionService/GetReservations"
)

// SendRequest 外部车辆发往路口的一条消息（protocol二进制编码）
type SendRequest struct {
	JunctionID int32  `json:"junction_id"`
	Message    []byte `json:"message"`
}

type SendResponse struct{}

// PollRequest 外部车辆拉取路口发来的消息
type PollRequest struct {
	VIN int32 `json:"vin"`
}

type PollResponse struct {
	Messages [][]byte `json:"messages,omitempty"`
}

// GetReservationsRequest junction_ids为空时返回全部路口
type GetReservationsRequest struct {
	JunctionIDs []int32 `json:"junction_ids,omitempty"`
}

type GetReservationsResponse struct {
	Junctions []entity.JunctionSnapshot `json:"junctions"`
}

// Register 将Junction管理器注册到RPC服务器
// 功能：将Junction管理器注册为RPC服务，供仿真外部的车辆收发协商消息
// 参数：server-RPC服务器
func (m *JunctionManager) Register(server *rpcserver.Server) {
	server.Register(
		JunctionServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			mux := http.NewServeMux()
			mux.Handle(SendProcedure, connect.NewUnaryHandler(SendProcedure, m.Send, opts...))
			mux.Handle(PollProcedure, connect.NewUnaryHandler(PollProcedure, m.Poll, opts...))
			mux.Handle(GetReservationsProcedure, connect.NewUnaryHandler(GetReservationsProcedure, m.GetReservations, opts...))
			return "/" + JunctionServiceName + "/", mux
		},
	)
}

// Send RPC接口：向路口投递一条车辆消息
// 功能：解码消息并放入路口收件箱，在下一次更新阶段处理
// 说明：消息无法解码或路口不存在时返回InvalidArgument，收件箱已满时返回ResourceExhausted
func (m *JunctionManager) Send(
	ctx context.Context, in *connect.Request[SendRequest],
) (*connect.Response[SendResponse], error) {
	req := in.Msg
	msg, err := protocol.UnmarshalV2I(req.Message)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	j, ok := m.data[req.JunctionID]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if err := j.Deliver(msg); err != nil {
		if errors.Is(err, protocol.ErrMailboxFull) {
			return nil, connect.NewError(connect.CodeResourceExhausted, err)
		}
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&SendResponse{}), nil
}

// Poll RPC接口：取出发往指定车辆的全部暂存消息
func (m *JunctionManager) Poll(
	ctx context.Context, in *connect.Request[PollRequest],
) (*connect.Response[PollResponse], error) {
	msgs := m.take(in.Msg.VIN)
	return connect.NewResponse(&PollResponse{
		Messages: lo.Map(msgs, func(msg protocol.I2V, _ int) []byte { return protocol.Marshal(msg) }),
	}), nil
}

// GetReservations RPC接口：获取路口的协商状态
// 说明：返回上一步结束时发布的快照，任意一个路口不存在时返回InvalidArgument
func (m *JunctionManager) GetReservations(
	ctx context.Context, in *connect.Request[GetReservationsRequest],
) (*connect.Response[GetReservationsResponse], error) {
	junctions, failed := utils.Find(m.data, m.junctions, in.Msg.JunctionIDs)
	if len(failed) > 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("junction ids %v do not exist", failed))
	}
	res := &GetReservationsResponse{
		Junctions: lo.Map(junctions, func(j *Junction, _ int) entity.JunctionSnapshot { return j.Snapshot() }),
	}
	return connect.NewResponse(res), nil
}
