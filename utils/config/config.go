package config

import (
	"fmt"
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息，所有零值参数已替换为默认值
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
	P   Policy  // 路口预约策略
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，补全默认值并进行配置校验
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针与校验错误
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	rc.P = config.Policy.WithDefaults()
	rc.C.Spawn.Vehicle = rc.C.Spawn.Vehicle.WithDefaults()
	if mix := config.Control.Spawn.Mix; len(mix) > 0 {
		rc.C.Spawn.Mix = make([]WeightedVehicle, len(mix))
		total := 0.0
		for i, w := range mix {
			if w.Weight < 0 {
				return nil, fmt.Errorf("control.spawn.mix[%d].weight must not be negative, got %v", i, w.Weight)
			}
			total += w.Weight
			rc.C.Spawn.Mix[i] = WeightedVehicle{Weight: w.Weight, VehicleSpec: w.VehicleSpec.WithDefaults()}
		}
		if total <= 0 {
			return nil, fmt.Errorf("control.spawn.mix weights must not all be zero")
		}
	}
	rc.All.Control = rc.C
	if rc.C.Step.Interval <= 0 {
		return nil, fmt.Errorf("control.step.interval must be positive, got %v", rc.C.Step.Interval)
	}
	if rc.C.Step.Total <= 0 {
		return nil, fmt.Errorf("control.step.total must be positive, got %v", rc.C.Step.Total)
	}
	if err := rc.P.Validate(); err != nil {
		return nil, err
	}
	if rc.All.Output.Interval <= 0 {
		rc.All.Output.Interval = 10
	}
	return rc, nil
}

// DefaultPolicy 默认预约策略参数
func DefaultPolicy() Policy {
	return Policy{
		GridTimeStep:           0.1,
		StaticBuffer:           0.25,
		InternalTileTimeBuffer: 0.1,
		EdgeTileTimeBuffer:     0.25,
		EdgeTileBufferEnabled:  true,
		Horizon:                10,
		MinFuture:              0.1,
		RejectBackoff:          0.5,
		EarlyError:             0.2,
		LateError:              0.2,
		CleanupPeriod:          30,
		ACZSize:                40,
		QueueMaxDistance:       150,
		FCFSStaleTimeout:       2,
		ProposalCount:          3,
		VelocityTolerance:      3,
		MailboxSize:            1024,
	}
}

// WithDefaults 将零值字段替换为默认值
// 说明：布尔开关无法区分零值，EdgeTileBufferEnabled以配置文件为准
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	set := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	set(&p.GridTimeStep, d.GridTimeStep)
	set(&p.StaticBuffer, d.StaticBuffer)
	set(&p.InternalTileTimeBuffer, d.InternalTileTimeBuffer)
	set(&p.EdgeTileTimeBuffer, d.EdgeTileTimeBuffer)
	set(&p.Horizon, d.Horizon)
	set(&p.MinFuture, d.MinFuture)
	set(&p.RejectBackoff, d.RejectBackoff)
	set(&p.EarlyError, d.EarlyError)
	set(&p.LateError, d.LateError)
	set(&p.ACZSize, d.ACZSize)
	set(&p.QueueMaxDistance, d.QueueMaxDistance)
	set(&p.FCFSStaleTimeout, d.FCFSStaleTimeout)
	set(&p.VelocityTolerance, d.VelocityTolerance)
	if p.CleanupPeriod == 0 {
		p.CleanupPeriod = d.CleanupPeriod
	}
	if p.ProposalCount == 0 {
		p.ProposalCount = d.ProposalCount
	}
	if p.MailboxSize == 0 {
		p.MailboxSize = d.MailboxSize
	}
	return p
}

// Validate 检查策略参数的取值范围
func (p Policy) Validate() error {
	switch {
	case p.GridTimeStep <= 0:
		return fmt.Errorf("policy.grid_time_step must be positive, got %v", p.GridTimeStep)
	case p.Horizon <= p.MinFuture:
		return fmt.Errorf("policy.horizon %v must be greater than policy.min_future %v", p.Horizon, p.MinFuture)
	case p.StaticBuffer < 0, p.InternalTileTimeBuffer < 0, p.EdgeTileTimeBuffer < 0:
		return fmt.Errorf("policy buffers must not be negative")
	case p.RejectBackoff < 0:
		return fmt.Errorf("policy.reject_backoff must not be negative, got %v", p.RejectBackoff)
	case p.CleanupPeriod < 0:
		return fmt.Errorf("policy.cleanup_period must not be negative, got %v", p.CleanupPeriod)
	case p.ProposalCount < 1:
		return fmt.Errorf("policy.proposal_count must be at least 1, got %v", p.ProposalCount)
	case p.MailboxSize < 1:
		return fmt.Errorf("policy.mailbox_size must be at least 1, got %v", p.MailboxSize)
	}
	return nil
}

// WithDefaults 将零值车辆参数替换为默认值
func (v VehicleSpec) WithDefaults() VehicleSpec {
	if v.Length == 0 {
		v.Length = 4
	}
	if v.Width == 0 {
		v.Width = 2
	}
	if v.MaxVelocity == 0 {
		v.MaxVelocity = 15
	}
	if v.MaxAcceleration == 0 {
		v.MaxAcceleration = 3
	}
	if v.MaxDeceleration == 0 {
		v.MaxDeceleration = 4.5
	}
	return v
}
