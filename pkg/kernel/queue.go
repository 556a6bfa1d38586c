package kernel

// runQueue is a singly-linked FIFO of process-table indices, threaded
// through each PCB's QueueNext field. There are six of these, one per
// priority level 1..6.
type runQueue struct {
	head, tail int32 // -1 when empty
}

func newRunQueue() runQueue { return runQueue{head: -1, tail: -1} }

func (q *runQueue) empty() bool { return q.head == -1 }

// enqueue appends i at the tail. i must not already be linked into any
// queue.
func (q *runQueue) enqueue(t *Table, i int32) {
	slot := t.Slot(i)
	slot.QueueNext = -1
	if q.empty() {
		q.head, q.tail = i, i
		return
	}
	t.Slot(q.tail).QueueNext = i
	q.tail = i
}

// remove splices i out of the queue wherever it sits. It is a no-op if i is
// not present; callers are expected to know i's current queue from
// PCB.Priority, same as the original implementation's per-priority
// dequeue.
func (q *runQueue) remove(t *Table, i int32) {
	if q.empty() {
		return
	}
	if q.head == i {
		q.head = t.Slot(i).QueueNext
		if q.head == -1 {
			q.tail = -1
		}
		t.Slot(i).QueueNext = -1
		return
	}
	prev := q.head
	for cur := t.Slot(prev).QueueNext; cur != -1; cur = t.Slot(prev).QueueNext {
		if cur == i {
			next := t.Slot(cur).QueueNext
			t.Slot(prev).QueueNext = next
			if q.tail == cur {
				q.tail = prev
			}
			t.Slot(cur).QueueNext = -1
			return
		}
		prev = cur
	}
}

// runQueues holds the six priority queues, indexed 1..6 (index 0 unused).
type runQueues struct {
	q [7]runQueue
}

func newRunQueues() *runQueues {
	rq := &runQueues{}
	for i := range rq.q {
		rq.q[i] = newRunQueue()
	}
	return rq
}

func (rq *runQueues) at(priority int) *runQueue { return &rq.q[priority] }

// highestNonEmpty returns the lowest (highest-priority) level 1..6 with a
// non-empty queue, or 0 if every queue is empty.
func (rq *runQueues) highestNonEmpty() int {
	for p := 1; p <= 6; p++ {
		if !rq.q[p].empty() {
			return p
		}
	}
	return 0
}
