package pipeline

import (
	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// Event is one progress update from a running job.
type Event struct {
	JobID     string
	BatchID   string
	Status    model.JobStatus
	Page      int
	Admitted  int
	Processed int
	Total     int
	Message   string
}

// Publisher receives progress events. Implementations must not block;
// the orchestrator publishes from its processing path.
type Publisher interface {
	Publish(ev Event)
}

// LogPublisher writes progress to the global logger.
type LogPublisher struct{}

func (LogPublisher) Publish(ev Event) {
	fields := []zap.Field{
		zap.String("job_id", ev.JobID),
		zap.String("status", string(ev.Status)),
		zap.Int("processed", ev.Processed),
		zap.Int("total", ev.Total),
	}
	if ev.BatchID != "" {
		fields = append(fields, zap.String("batch_id", ev.BatchID))
	}
	if ev.Message != "" {
		fields = append(fields, zap.String("message", ev.Message))
	}
	zap.L().Info("job progress", fields...)
}

// ChanPublisher forwards events to a channel, dropping when the
// receiver lags. Use Events to consume.
type ChanPublisher struct {
	ch chan Event
}

// NewChanPublisher creates a ChanPublisher with the given buffer.
func NewChanPublisher(buffer int) *ChanPublisher {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChanPublisher{ch: make(chan Event, buffer)}
}

func (p *ChanPublisher) Publish(ev Event) {
	select {
	case p.ch <- ev:
	default:
	}
}

// Events returns the receive side of the publisher.
func (p *ChanPublisher) Events() <-chan Event { return p.ch }

// Close closes the event channel. Publish must not be called after.
func (p *ChanPublisher) Close() { close(p.ch) }

// Publishers fans one event out to several publishers.
type Publishers []Publisher

func (ps Publishers) Publish(ev Event) {
	for _, p := range ps {
		p.Publish(ev)
	}
}
