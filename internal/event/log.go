package event

import (
	"sync"
	"time"

	"StakeVault/internal/observability"
)

// Log is the production Recorder. It assigns sequence numbers and fans
// each event out to two channels: the persist channel uses a BLOCKING
// send (backpressure, no event is lost), the publish channel uses a
// NON-BLOCKING send with silent drop (subscribers can rebuild from the
// event log if they fall behind).
type Log struct {
	mu      sync.Mutex
	seq     uint64
	metrics *observability.Metrics

	persistChan chan<- Event
	publishChan chan<- Event
}

func NewLog(persistChan, publishChan chan<- Event, metrics *observability.Metrics) *Log {
	return &Log{
		metrics:     metrics,
		persistChan: persistChan,
		publishChan: publishChan,
	}
}

func (l *Log) Record(t EventType, at time.Time, payload interface{}) {
	l.mu.Lock()
	l.seq++
	e := Event{
		Seq:     l.seq,
		Type:    t,
		At:      at,
		Payload: payload,
	}
	l.mu.Unlock()

	if l.persistChan != nil {
		l.persistChan <- e
	}

	if l.publishChan != nil {
		select {
		case l.publishChan <- e:
		default:
			// Dropped — publishers catch up from the event log
			if l.metrics != nil {
				l.metrics.EventsDropped.WithLabelValues(t.String()).Inc()
			}
		}
	}

	if l.metrics != nil {
		l.metrics.EventsRecorded.WithLabelValues(t.String()).Inc()
		l.metrics.EventSequence.Set(float64(e.Seq))
	}
}

// Sequence returns the last assigned sequence number.
func (l *Log) Sequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// SetSequence seeds the counter on warm restart from the last persisted
// sequence in the event log.
func (l *Log) SetSequence(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq = seq
}
