package task

import (
	"flag"
	"sync"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 功能：在每个仿真步骤开始时进行准备工作
// 算法说明：
// 1. 更新时钟：增加内部步数并计算当前时间
// 2. 心跳日志：定期输出系统状态信息
// 3. 投递消息：上一步各路口发出的消息交给本地车辆，其余暂存等待RPC拉取
// 4. 车辆准备：增删车辆并发布上一步的运动状态
// 5. 并行准备：车道链表更新与路口快照发布
//
// 说明：路口在第k步发出的回复在第k+1步的准备阶段投递，车辆在第k+1步的更新阶段处理
func (ctx *Context) prepare() {
	ctx.clock.Tick()

	if ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%d:%.2f) vehicles: %d",
			ctx.clock.InternalStep,
			hour, minute, second,
			ctx.vehicleManager.Len(),
		)
	}

	for _, msg := range ctx.junctionManager.Collect() {
		if !ctx.vehicleManager.Deliver(msg) {
			ctx.junctionManager.Hold(msg)
		}
	}

	// 车辆节点的S须在车道链表插入前更新
	ctx.vehicleManager.Prepare()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.laneManager.Prepare() // lane
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.junctionManager.Prepare() // junction
	}()
	wg.Wait()
}

// update 更新阶段，每步执行一次
// 算法说明：
// 1. 车辆并行更新：处理路口回复、运动、向路口发送消息
// 2. 路口并行更新：处理本步收到的全部消息
// 3. 统计输出
func (ctx *Context) update() {
	ctx.vehicleManager.Update(ctx.clock.DT)
	ctx.junctionManager.Update(ctx.clock.T)
	ctx.output.Flush(
		ctx.clock.InternalStep, ctx.clock.T,
		ctx.vehicleManager.Len(), ctx.vehicleManager.Stats(),
	)
}

// Step 执行一个完整的仿真步
func (ctx *Context) Step() {
	ctx.prepare()
	ctx.update()
}

// Run 运行
func (ctx *Context) Run() {
	// 初始化
	ctx.Init()
	for {
		ctx.prepare()
		log.Debugf("step %d: prepare complete", ctx.clock.InternalStep)
		ctx.update()
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		if ctx.clock.InternalStep+1 >= ctx.clock.END_STEP || ctx.closed.Load() {
			break
		}
	}
	stats := ctx.vehicleManager.Stats()
	log.Infof("engine complete: %d vehicles spawned, %d trips completed", stats.Spawned, stats.NumCompletedTrips)
	ctx.Close()
}
