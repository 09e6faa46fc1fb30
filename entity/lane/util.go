package lane

import (
	"sync"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/entity"
)

// vehicleList 车道上的车辆链表
// 功能：更新阶段车辆并发地申请加入或离开车道，操作先写入缓冲区，在prepare阶段统一生效
type vehicleList struct {
	list              entity.VehicleList
	addBuffer         []*entity.VehicleNode
	addBufferMutex    sync.Mutex
	removeBuffer      []*entity.VehicleNode
	removeBufferMutex sync.Mutex
}

// prepare 准备阶段，处理缓冲区的添加和删除操作
// 说明：链表按S升序，车道上不超车，新加入的车辆按当前S插入
func (l *vehicleList) prepare() {
	for _, node := range l.removeBuffer {
		l.list.Remove(node)
	}
	for _, node := range l.addBuffer {
		l.list.InsertSorted(node)
	}
	l.removeBuffer = l.removeBuffer[:0]
	l.addBuffer = l.addBuffer[:0]
}

// add 添加节点到缓冲区，节点已在某个链表中时panic
func (l *vehicleList) add(node *entity.VehicleNode) {
	if node.Parent() != nil {
		log.Panicf("add node %v who has parent", node)
	}
	l.addBufferMutex.Lock()
	l.addBuffer = append(l.addBuffer, node)
	l.addBufferMutex.Unlock()
}

// remove 将节点加入删除缓冲区，节点不在本链表中时panic
func (l *vehicleList) remove(node *entity.VehicleNode) {
	if node.Parent() != &l.list {
		log.Panicf("remove node %v (parent=%v) from wrong list %v", node, node.Parent(), &l.list)
	}
	l.removeBufferMutex.Lock()
	l.removeBuffer = append(l.removeBuffer, node)
	l.removeBufferMutex.Unlock()
}
