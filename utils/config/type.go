package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：文件优先级高于MongoDB，MongoDB下载结果可以缓存到本地
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.yaml
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetCachePath 获取缓存文件名
// 说明：未指定时使用默认命名规则：{数据库名}.{集合名}.yaml
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".yaml"
}

// Input 指定模拟器所有输入数据的配置项
type Input struct {
	URI    string    `yaml:"uri,omitempty"` // MongoDB连接字符串
	Layout InputPath `yaml:"layout"`        // 路口布局
}

// LaneLayout 车道布局
// 说明：驶入车道的折线终点位于路口边界，驶出车道的折线起点位于路口边界
type LaneLayout struct {
	ID   int32       `yaml:"id" bson:"id"`
	Kind string      `yaml:"kind" bson:"kind"` // entry | exit
	Line [][]float64 `yaml:"line" bson:"line"` // 折线坐标 [[x, y], ...]
	// 驶出车道的准入控制区长度（米），0表示使用默认值，负数表示不设置准入控制区
	ACZ float64 `yaml:"acz,omitempty" bson:"acz,omitempty"`
}

// Connection 路口内的一条通行连接（驶入车道 -> 驶出车道）
type Connection struct {
	Entry int32 `yaml:"entry" bson:"entry"`
	Exit  int32 `yaml:"exit" bson:"exit"`
}

// JunctionLayout 路口布局
// 功能：描述一个路口的矩形区域、网格划分、车道与协商协议
type JunctionLayout struct {
	ID          int32        `yaml:"id" bson:"id"`
	Protocol    string       `yaml:"protocol,omitempty" bson:"protocol,omitempty"` // fcfs | priority | plain | queue
	Min         []float64    `yaml:"min" bson:"min"`                               // 区域左下角 [x, y]
	Max         []float64    `yaml:"max" bson:"max"`                               // 区域右上角 [x, y]
	Granularity float64      `yaml:"granularity,omitempty" bson:"granularity,omitempty"`
	Lanes       []LaneLayout `yaml:"lanes" bson:"lanes"`
	// 为空时所有驶入车道都连接到所有驶出车道
	Connections []Connection `yaml:"connections,omitempty" bson:"connections,omitempty"`
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// VehicleSpec 车辆参数
type VehicleSpec struct {
	Length          float64 `yaml:"length"`
	Width           float64 `yaml:"width"`
	MaxVelocity     float64 `yaml:"max_velocity"`
	MaxAcceleration float64 `yaml:"max_acceleration"`
	MaxDeceleration float64 `yaml:"max_deceleration"`
}

// Spawn 车辆生成配置
type Spawn struct {
	Rate           float64     `yaml:"rate"`                      // 每条驶入车道每秒生成车辆的期望数
	EmergencyRatio float64     `yaml:"emergency_ratio,omitempty"` // 紧急车辆比例
	Seed           uint64      `yaml:"seed,omitempty"`
	Vehicle        VehicleSpec `yaml:"vehicle"`
	// 按权重混合的车型，非空时随机生成的车辆从中抽取，否则全部采用vehicle
	Mix []WeightedVehicle `yaml:"mix,omitempty"`
}

// WeightedVehicle 带抽样权重的车型
type WeightedVehicle struct {
	Weight      float64 `yaml:"weight"`
	VehicleSpec `yaml:",inline"`
}

// Control 模拟器控制配置
type Control struct {
	Step  ControlStep `yaml:"step"`
	Spawn Spawn       `yaml:"spawn"`
}

// Policy 路口预约策略参数
// 功能：定义网格预约、准入控制、队列协议与车辆协商的全部可调参数
// 说明：时间单位均为秒，距离单位均为米；零值字段在NewRuntimeConfig中被替换为默认值
type Policy struct {
	GridTimeStep           float64 `yaml:"grid_time_step,omitempty"`            // 预约离散时间步长
	StaticBuffer           float64 `yaml:"static_buffer,omitempty"`             // 车辆外廓的空间缓冲
	InternalTileTimeBuffer float64 `yaml:"internal_tile_time_buffer,omitempty"` // 内部网格的时间缓冲
	EdgeTileTimeBuffer     float64 `yaml:"edge_tile_time_buffer,omitempty"`     // 边缘网格的时间缓冲
	EdgeTileBufferEnabled  bool    `yaml:"edge_tile_buffer_enabled,omitempty"`  // 是否对边缘网格单独设置时间缓冲
	Horizon                float64 `yaml:"horizon,omitempty"`                   // 最远可预约的到达时间（相对当前）
	MinFuture              float64 `yaml:"min_future,omitempty"`                // 最近可预约的到达时间（相对当前）
	RejectBackoff          float64 `yaml:"reject_backoff,omitempty"`            // 拒绝后的固定退避时长
	EarlyError             float64 `yaml:"early_error,omitempty"`               // 允许的提前到达误差
	LateError              float64 `yaml:"late_error,omitempty"`                // 允许的延迟到达误差
	CleanupPeriod          int32   `yaml:"cleanup_period,omitempty"`            // 清理过期占用的周期（步）
	ACZSize                float64 `yaml:"acz_size,omitempty"`                  // 默认准入控制区长度
	QueueMaxDistance       float64 `yaml:"queue_max_distance,omitempty"`        // 串行队列允许入队的最远距离
	FCFSStaleTimeout       float64 `yaml:"fcfs_stale_timeout,omitempty"`        // FCFS队列中失联车辆的淘汰时长
	ProposalCount          int     `yaml:"proposal_count,omitempty"`            // 车辆每次请求携带的候选方案数
	VelocityTolerance      float64 `yaml:"velocity_tolerance,omitempty"`        // 车辆判断偏离授权方案的速度误差
	MailboxSize            int     `yaml:"mailbox_size,omitempty"`              // 每步收件箱容量
}

// Output 输出配置
type Output struct {
	WSAddr   string    `yaml:"ws_addr,omitempty"`  // 实时统计websocket监听地址，为空则不启用
	Stats    InputPath `yaml:"stats,omitempty"`    // 统计结果写入的MongoDB库表，db为空则不启用
	Interval int32     `yaml:"interval,omitempty"` // 统计汇总间隔（步）
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input            `yaml:"input"`             // 输入
	Layouts []JunctionLayout `yaml:"layouts,omitempty"` // 内联路口布局（优先于input）
	Control Control          `yaml:"control"`           // 模拟过程控制
	Policy  Policy           `yaml:"policy,omitempty"`  // 预约策略
	Output  Output           `yaml:"output,omitempty"`  // 输出
}
