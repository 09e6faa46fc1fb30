package output

import (
	"context"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/rpcserver"
)

// WSPattern websocket推送的HTTP路径
const WSPattern = "/ws"

// Output 统计输出
// 功能：汇总协商事件，每interval步写日志、推送websocket客户端、写入MongoDB
type Output struct {
	*Recorder

	interval int32
	hub      *Hub
	server   *rpcserver.Server // websocket监听，未配置地址时为nil
	sink     *MongoSink        // 未配置库表时为nil
}

// New 根据输出配置创建统计输出
// 参数：cfg-输出配置，uri-MongoDB连接字符串
// 说明：配置了stats库表但连接失败时panic
func New(cfg config.Output, uri string) *Output {
	o := &Output{
		Recorder: NewRecorder(),
		interval: max(cfg.Interval, 1),
		hub:      NewHub(),
	}
	if cfg.WSAddr != "" {
		o.server = rpcserver.New(cfg.WSAddr)
		o.server.Handle(WSPattern, o.hub)
		go func() {
			if err := o.server.Serve(); err != nil {
				log.Errorf("websocket server: %v", err)
			}
		}()
	}
	if cfg.Stats.DB != "" {
		sink, err := NewMongoSink(context.Background(), uri, cfg.Stats)
		if err != nil {
			log.Panicf("stats output: %v", err)
		}
		o.sink = sink
		log.Infof("write stats to %s.%s", cfg.Stats.DB, cfg.Stats.Col)
	}
	return o
}

// Hub websocket客户端集合，可挂载到其他HTTP服务上
func (o *Output) Hub() *Hub {
	return o.hub
}

// Flush 每interval步输出一次汇总
// 返回：汇总与本步是否输出
func (o *Output) Flush(step int32, t float64, vehicles int, trips entity.TripStats) (Summary, bool) {
	if step%o.interval != 0 {
		return Summary{}, false
	}
	s := o.Recorder.Flush(step, t, vehicles, trips)
	log.Infof("step %d t=%.1f: %d vehicles, %d trips done, confirm %d reject %d cancel %d qgo %d",
		step, t, vehicles, trips.NumCompletedTrips,
		s.Events[entity.EventConfirm.String()], s.Events[entity.EventReject.String()],
		s.Events[entity.EventCancel.String()], s.Events[entity.EventQGo.String()])
	if err := o.hub.Broadcast(s); err != nil {
		log.Warnf("broadcast summary: %v", err)
	}
	if o.sink != nil {
		if err := o.sink.Write(context.Background(), s); err != nil {
			log.Errorf("%v", err)
		}
	}
	return s, true
}

// Close 关闭websocket连接与MongoDB连接
func (o *Output) Close() {
	o.hub.Close()
	if o.server != nil {
		if err := o.server.Close(); err != nil {
			log.Warnf("close websocket server: %v", err)
		}
	}
	if o.sink != nil {
		if err := o.sink.Close(); err != nil {
			log.Warnf("close mongo: %v", err)
		}
	}
}
