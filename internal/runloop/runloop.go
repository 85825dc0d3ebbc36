// Package runloop provides the single-goroutine executor that gives the core
// its serial callback model: transport events and timer expirations are all
// funneled through one loop, so per-connection state needs no locking.
package runloop

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/essence/internal/groutine"
)

// Loop executes posted functions one at a time, in posting order.
type Loop struct {
	name   string
	tasks  chan func()
	logger *logrus.Logger

	stopOnce sync.Once
	done     chan struct{}
}

func New(name string, logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		name:   name,
		tasks:  make(chan func(), 256),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the loop until Stop is called. Panics in posted functions are
// recovered and logged so a single bad callback cannot take the loop down.
func (l *Loop) Start() {
	groutine.Go(context.Background(), l.name, func(ctx context.Context) {
		for {
			select {
			case <-l.done:
				return
			case fn := <-l.tasks:
				l.run(fn)
			}
		}
	})
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(logrus.Fields{
				"loop":  l.name,
				"panic": r,
			}).Error("Run loop task panicked")
		}
	}()
	fn()
}

// Post enqueues fn for serial execution. Never blocks the caller once the
// loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
	case l.tasks <- fn:
	}
}

// Stop shuts the loop down. Pending tasks are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}
