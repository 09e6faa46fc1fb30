package task

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/clock"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/lane"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/vehicle"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/input"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/output"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/rpcserver"
)

// waitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
func waitForServerReady(addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for range retryCount {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态
// 说明：管理时钟、车道/路口/车辆管理器、配置、统计输出与RPC服务
type Context struct {
	// 停止指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// RPC服务器，提供时钟与路口服务
	server        *rpcserver.Server
	serverCloseCh chan struct{}
	serving       bool

	// Lane管理器
	laneManager entity.ILaneManager
	// Junction管理器
	junctionManager entity.IJunctionManager
	// Vehicle管理器
	vehicleManager entity.IVehicleManager

	// 统计输出
	output *output.Output

	// 运行时配置
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的路口布局
	layouts []config.JunctionLayout
}

// NewContext 创建新的仿真任务上下文
// 参数：
//   - c: 配置对象
//   - listen: RPC监听地址，为空则不提供RPC服务
//   - cacheDir: 输入缓存目录
//   - startServe: 是否启动RPC服务
//
// 返回：初始化完成的Context实例
// 算法说明：
// 1. 补全并校验配置，配置错误时panic
// 2. 创建时钟、加载路口布局、创建统计输出
// 3. 创建车道、路口、车辆管理器
// 4. 注册RPC服务并按需启动
func NewContext(c config.Config, listen string, cacheDir string, startServe bool) *Context {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		log.Panicf("bad config: %v", err)
	}
	ctx := &Context{
		runtimeConfig: rc,
		serverCloseCh: make(chan struct{}),
	}
	ctx.clock = clock.New(rc.C.Step)

	// 加载所有模拟器启动所需的数据
	ctx.layouts = input.Init(rc.All, cacheDir)

	ctx.output = output.New(rc.All.Output, rc.All.Input.URI)

	// 新建各类模拟对象
	ctx.laneManager = lane.NewManager()
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.vehicleManager = vehicle.NewManager(ctx)

	ctx.server = rpcserver.New(listen)
	ctx.clock.Register(ctx.server)
	ctx.junctionManager.Register(ctx.server)

	if startServe && listen != "" {
		ctx.serving = true
		go func() {
			if err := ctx.server.Serve(); err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.serverCloseCh <- struct{}{}
		}()
		addr := listen
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		if err := waitForServerReady("http://"+addr, 50, 100*time.Millisecond); err != nil {
			log.Panicf("%v", err)
		}
	}
	return ctx
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) VehicleManager() entity.IVehicleManager {
	return ctx.vehicleManager
}

func (ctx *Context) Recorder() entity.IRecorder {
	return ctx.output
}

// Output 统计输出
func (ctx *Context) Output() *output.Output {
	return ctx.output
}

// Server RPC服务器
func (ctx *Context) Server() *rpcserver.Server {
	return ctx.server
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Init 按依赖顺序初始化车道、路口、车辆管理器
func (ctx *Context) Init() {
	ctx.clock.Init()

	log.Infof("Junction: %v", len(ctx.layouts))
	log.Infof("Protocol: %v", ctx.runtimeConfig.P)

	ctx.laneManager.Init(ctx.layouts, ctx.runtimeConfig.P.ACZSize) // 先完成lane的所有初始化
	ctx.junctionManager.Init(ctx.layouts, ctx.laneManager)
	ctx.vehicleManager.Init(ctx.laneManager, ctx.junctionManager)
}

// Stop 请求在当前步结束后停止运行
func (ctx *Context) Stop() {
	ctx.closed.Store(true)
}

// Close 关闭RPC服务与统计输出
func (ctx *Context) Close() {
	if err := ctx.server.Close(); err != nil {
		log.Warnf("close rpc server: %v", err)
	}
	if ctx.serving {
		// wait for graceful stop
		<-ctx.serverCloseCh
		ctx.serving = false
	}
	ctx.output.Close()
}
