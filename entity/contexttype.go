package entity

import (
	"github.com/tsinghua-fib-lab/junction-reservation-sim/clock"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	JunctionManager() IJunctionManager
	VehicleManager() IVehicleManager
	Recorder() IRecorder
	RuntimeConfig() *config.RuntimeConfig
}
