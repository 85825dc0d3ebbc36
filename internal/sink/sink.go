// Package sink contains the event sink implementations: structured logging,
// MQTT publishing, and a ring-buffered dispatcher that fans events out to
// several sinks without ever blocking the event loop.
package sink

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/essence/internal/groutine"
	"github.com/srg/essence/internal/remote"
	"github.com/srg/essence/internal/ringchan"
)

// item is one queued sink operation; exactly one of the kinds is set.
type item struct {
	kind   itemKind
	event  remote.Event
	device string
	action string
	value  float64
}

type itemKind uint8

const (
	itemEvent itemKind = iota
	itemLastAction
	itemLastValue
)

// Dispatcher implements remote.EventSink by queueing operations onto a ring
// channel and replaying them to the wrapped sinks on its own goroutine.
// Overflow drops the oldest queued operation, never the caller.
type Dispatcher struct {
	sinks  []remote.EventSink
	queue  *ringchan.RingChannel[item]
	logger *logrus.Logger

	stopOnce sync.Once
	done     chan struct{}
}

func NewDispatcher(logger *logrus.Logger, sinks ...remote.EventSink) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  ringchan.New[item](256),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start begins draining the queue.
func (d *Dispatcher) Start() {
	groutine.Go(context.Background(), "sink-dispatcher", func(ctx context.Context) {
		for it := range d.queue.C() {
			d.deliver(it)
		}
		close(d.done)
	})
}

// Stop closes the queue and waits for pending deliveries to drain.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.queue.Close()
		<-d.done
	})
}

func (d *Dispatcher) deliver(it item) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Error("Event sink panicked")
		}
	}()
	for _, s := range d.sinks {
		switch it.kind {
		case itemEvent:
			s.Emit(it.event)
		case itemLastAction:
			s.PublishLastAction(it.device, it.action)
		case itemLastValue:
			s.PublishLastValue(it.device, it.value)
		}
	}
}

func (d *Dispatcher) Emit(ev remote.Event) {
	d.queue.Send(item{kind: itemEvent, event: ev})
}

func (d *Dispatcher) PublishLastAction(deviceID, action string) {
	d.queue.Send(item{kind: itemLastAction, device: deviceID, action: action})
}

func (d *Dispatcher) PublishLastValue(deviceID string, value float64) {
	d.queue.Send(item{kind: itemLastValue, device: deviceID, value: value})
}

// ----------------------------
// Log sink
// ----------------------------

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ev remote.Event) {
	s.logger.WithFields(logrus.Fields{
		"device": ev.DeviceID,
		"action": ev.Action,
		"raw":    ev.Raw,
		"clicks": ev.Clicks,
	}).Info("Gesture event")
}

func (s *LogSink) PublishLastAction(deviceID, action string) {
	s.logger.WithFields(logrus.Fields{
		"device": deviceID,
		"action": action,
	}).Debug("Last action updated")
}

func (s *LogSink) PublishLastValue(deviceID string, value float64) {
	s.logger.WithFields(logrus.Fields{
		"device": deviceID,
		"value":  value,
	}).Debug("Last value updated")
}
