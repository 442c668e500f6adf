package nessi

// queue.go holds packet queues with different scheduling
// disciplines.  A queue pushes elements to a receiver function and
// blocks until the receiver calls Resume, so a data link can drain
// it at its transmission rate.

import (
	"math"
	"sort"
)

// queueCore carries the flow control state shared by all queue
// disciplines.  The queue size is counted in octets.
type queueCore struct {
	blocked bool
	rcvFun  func([]byte)
	maxLen  int
}

func (q *queueCore) initQueue() {
	q.maxLen = math.MaxInt
}

// SetQueueSize sets the maximum queue occupation in octets.
func (q *queueCore) SetQueueSize(size int) {
	q.maxLen = size
}

// QueueSize returns the maximum queue occupation in octets.
func (q *queueCore) QueueSize() int {
	return q.maxLen
}

// SetReceiver sets the function the queue pushes elements to.  The
// queue stays blocked after a push until Resume is called.
func (q *queueCore) SetReceiver(rcvFun func([]byte)) {
	q.rcvFun = rcvFun
}

// push hands the next element to the receiver unless a previous
// push is still outstanding
func (q *queueCore) push(dequeue func() []byte) {
	if q.blocked {
		return
	}
	if el := dequeue(); el != nil && !q.blocked {
		q.blocked = true
		q.rcvFun(el)
	}
}

// resume unblocks the queue and pushes the next element
func (q *queueCore) resume(dequeue func() []byte) {
	q.blocked = false
	if el := dequeue(); el != nil {
		q.blocked = true
		q.rcvFun(el)
	}
}

// pull actively retrieves an element, or nil while the queue is
// blocked or empty
func (q *queueCore) pull(dequeue func() []byte) []byte {
	if q.blocked {
		return nil
	}
	return dequeue()
}

// DropTailQueue is a FIFO queue that drops packets on overflow.
type DropTailQueue struct {
	queueCore
	queue [][]byte
	len   int

	// statistics in octets
	OctetsDropped  int64
	OctetsAccepted int64
}

// CreateDropTailQueue is a constructor.  The default queue size is
// unlimited.
func CreateDropTailQueue() *DropTailQueue {
	q := new(DropTailQueue)
	q.initQueue()
	return q
}

// CurrentOccupation returns the number of octets waiting in the
// queue.
func (q *DropTailQueue) CurrentOccupation() int {
	return q.len
}

func (q *DropTailQueue) enqueue(element []byte) {
	lth := len(element)
	if lth+q.len <= q.maxLen {
		q.len += lth
		q.OctetsAccepted += int64(lth)
		q.queue = append(q.queue, element)
	} else {
		q.OctetsDropped += int64(lth)
	}
}

func (q *DropTailQueue) dequeue() []byte {
	if q.len == 0 {
		return nil
	}
	el := q.queue[0]
	q.queue = q.queue[1:]
	q.len -= len(el)
	return el
}

// Put adds an element to the queue and pushes it to the receiver if
// the queue is not blocked.
func (q *DropTailQueue) Put(element []byte) {
	q.enqueue(element)
	q.push(q.dequeue)
}

// Get actively retrieves an element; nil while blocked or empty.
func (q *DropTailQueue) Get() []byte {
	return q.pull(q.dequeue)
}

// Resume unblocks the queue after the receiver finished handling
// the previous element and pushes the next one.
func (q *DropTailQueue) Resume() {
	q.resume(q.dequeue)
}

// PrioQueue serves strict priorities, lowest value first, with a
// shared size limit over all priorities.
type PrioQueue struct {
	queueCore
	queues     map[int][][]byte
	priorities []int
	len        int

	// statistics in octets
	OctetsDropped  int64
	OctetsAccepted int64
}

// CreatePrioQueue is a constructor.  The default queue size is
// unlimited.
func CreatePrioQueue() *PrioQueue {
	q := new(PrioQueue)
	q.initQueue()
	q.queues = make(map[int][][]byte)
	return q
}

// CurrentOccupation returns the number of octets waiting over all
// priorities.
func (q *PrioQueue) CurrentOccupation() int {
	return q.len
}

func (q *PrioQueue) enqueue(element []byte, priority int) {
	lth := len(element)
	if lth+q.len > q.maxLen {
		q.OctetsDropped += int64(lth)
		return
	}
	q.len += lth
	q.OctetsAccepted += int64(lth)
	if _, ok := q.queues[priority]; !ok {
		q.queues[priority] = nil
		q.priorities = append(q.priorities, priority)
		sort.Ints(q.priorities)
	}
	q.queues[priority] = append(q.queues[priority], element)
}

func (q *PrioQueue) dequeue() []byte {
	if q.len == 0 {
		return nil
	}
	for _, priority := range q.priorities {
		queue := q.queues[priority]
		if len(queue) == 0 {
			continue
		}
		el := queue[0]
		q.queues[priority] = queue[1:]
		q.len -= len(el)
		return el
	}
	return nil
}

// Put adds an element with the given priority and pushes the
// highest priority element to the receiver if the queue is not
// blocked.
func (q *PrioQueue) Put(element []byte, priority int) {
	q.enqueue(element, priority)
	q.push(q.dequeue)
}

// Get actively retrieves the highest priority element; nil while
// blocked or empty.
func (q *PrioQueue) Get() []byte {
	return q.pull(q.dequeue)
}

// Resume unblocks the queue after the receiver finished handling
// the previous element and pushes the next one.
func (q *PrioQueue) Resume() {
	q.resume(q.dequeue)
}
