package pipeline

import (
	"time"

	"vibration-backend/internal/models"
)

// Batch interval bounds for the adaptive drain loop. The worker waits up
// to the current interval for traffic; bursts stretch it toward the upper
// bound, idle periods shrink it back.
const (
	InitialBatchInterval = 80 * time.Millisecond
	MinBatchInterval     = 40 * time.Millisecond
	MaxBatchInterval     = 200 * time.Millisecond

	growThreshold = 5
	growFactor    = 1.2
	decayFactor   = 0.92

	// DefaultQueueSize bounds the raw-message backlog between the
	// transport callback and the worker.
	DefaultQueueSize = 256
)

// Queue is the handoff between the transport callback and the frame
// worker. The callback side never blocks and the worker drains with
// latest-wins coalescing: under backlog every message except the newest
// is discarded, trading completeness for bounded latency and memory.
type Queue struct {
	messages chan *models.RawMessage

	// interval is only touched from the worker goroutine.
	interval time.Duration
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{
		messages: make(chan *models.RawMessage, capacity),
		interval: InitialBatchInterval,
	}
}

// Push enqueues a raw message without ever blocking the caller. When the
// buffer is full the oldest entry is shed to make room; the worker would
// discard it during coalescing anyway.
func (q *Queue) Push(msg *models.RawMessage) {
	for {
		select {
		case q.messages <- msg:
			return
		default:
		}
		select {
		case <-q.messages:
		default:
		}
	}
}

// Await blocks up to the current batch interval for traffic, then drains
// the entire backlog keeping only the newest message. It returns that
// message (nil when the interval elapsed idle or stop fired) and the
// number of messages drained, and adapts the interval to that count.
func (q *Queue) Await(stop <-chan struct{}) (*models.RawMessage, int) {
	timer := time.NewTimer(q.interval)
	defer timer.Stop()

	var latest *models.RawMessage
	drained := 0

	select {
	case <-stop:
		return nil, 0
	case msg := <-q.messages:
		latest = msg
		drained = 1
	case <-timer.C:
	}

	for {
		select {
		case msg := <-q.messages:
			latest = msg
			drained++
		default:
			q.adapt(drained)
			return latest, drained
		}
	}
}

func (q *Queue) adapt(drained int) {
	switch {
	case drained > growThreshold:
		q.interval = time.Duration(float64(q.interval) * growFactor)
		if q.interval > MaxBatchInterval {
			q.interval = MaxBatchInterval
		}
	case drained == 0:
		q.interval = time.Duration(float64(q.interval) * decayFactor)
		if q.interval < MinBatchInterval {
			q.interval = MinBatchInterval
		}
	}
}

// BatchInterval reports the current adaptive interval. Worker-side only.
func (q *Queue) BatchInterval() time.Duration {
	return q.interval
}
