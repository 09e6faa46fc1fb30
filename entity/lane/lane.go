package lane

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity/junction/tile"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
)

// Lane 车道实体
// 功能：路口的驶入或驶出车道，提供中心线几何与车道上的车辆链表
type Lane struct {
	id         int32
	junctionID int32
	kind       string
	line       orb.LineString // 中心线
	length     float64        // 以中心线的长度为车道长度
	acz        float64        // 准入控制区长度

	vehicles vehicleList
}

// newLane 根据布局创建车道
// 参数：junctionID-所属路口，base-车道布局，defaultACZ-驶出车道的默认准入控制区长度
// 返回：车道与布局错误
func newLane(junctionID int32, base config.LaneLayout, defaultACZ float64) (*Lane, error) {
	if base.Kind != entity.LaneEntry && base.Kind != entity.LaneExit {
		return nil, fmt.Errorf("bad kind %q for lane %d", base.Kind, base.ID)
	}
	if len(base.Line) < 2 {
		return nil, fmt.Errorf("lane %d needs at least 2 points, got %d", base.ID, len(base.Line))
	}
	line := make(orb.LineString, 0, len(base.Line))
	for _, p := range base.Line {
		if len(p) != 2 {
			return nil, fmt.Errorf("lane %d: bad point %v", base.ID, p)
		}
		line = append(line, orb.Point{p[0], p[1]})
	}
	l := &Lane{
		id:         base.ID,
		junctionID: junctionID,
		kind:       base.Kind,
		line:       line,
		length:     planar.Length(line),
	}
	if l.length <= 0 {
		return nil, fmt.Errorf("lane %d has zero length", base.ID)
	}
	l.vehicles.list.ID = fmt.Sprintf("lane %d vehicles", l.id)
	// 只有驶出车道设置准入控制区，负数表示不设置
	if l.kind == entity.LaneExit {
		switch {
		case base.ACZ > 0:
			l.acz = base.ACZ
		case base.ACZ == 0:
			l.acz = defaultACZ
		}
	}
	return l, nil
}

func (l *Lane) ID() int32 {
	return l.id
}

func (l *Lane) JunctionID() int32 {
	return l.junctionID
}

func (l *Lane) Kind() string {
	return l.kind
}

func (l *Lane) Line() orb.LineString {
	return l.line
}

func (l *Lane) Length() float64 {
	return l.length
}

func (l *Lane) ACZ() float64 {
	return l.acz
}

// PointAt 中心线上距起点s处的坐标，超出两端时沿首末段延长
func (l *Lane) PointAt(s float64) orb.Point {
	p, _ := tile.PointAt(l.line, s)
	return p
}

func (l *Lane) String() string {
	return fmt.Sprintf("Lane{ID:%d, Junction:%d, Kind:%s, Length:%.2f}", l.id, l.junctionID, l.kind, l.length)
}

func (l *Lane) AddVehicle(node *entity.VehicleNode) {
	l.vehicles.add(node)
}

func (l *Lane) RemoveVehicle(node *entity.VehicleNode) {
	l.vehicles.remove(node)
}

func (l *Lane) FirstVehicle() *entity.VehicleNode {
	return l.vehicles.list.First()
}

func (l *Lane) Vehicles() []entity.IVehicle {
	return l.vehicles.list.Values()
}

func (l *Lane) prepare() {
	l.vehicles.prepare()
}
