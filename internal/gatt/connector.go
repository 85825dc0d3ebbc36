package gatt

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/essence/internal/remote"
	"github.com/srg/essence/internal/runloop"
	"github.com/srg/essence/internal/timer"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultReconnectDelay = 5 * time.Second
)

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	Address        string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	Session        remote.SessionConfig
}

// Connector keeps one remote connected: it dials, discovers the profile,
// hands lifecycle callbacks to the device's Session on a serial event loop,
// and re-dials after a disconnect. Sessions are registered by device identity
// and looked up freshly on every callback, so nothing captured across a
// reconnect cycle can go stale.
type Connector struct {
	opts   ConnectorOptions
	logger *logrus.Logger
	cache  *remote.HandleCache
	sink   remote.EventSink

	loop     *runloop.Loop
	timers   *timer.Service
	sessions *hashmap.Map[string, *remote.Session]

	// current per-connection transport, replaced on every dial by the Run
	// goroutine and read on the event loop, hence atomic
	transport atomic.Pointer[bleTransport]
}

func NewConnector(opts ConnectorOptions, cache *remote.HandleCache, sink remote.EventSink, logger *logrus.Logger) (*Connector, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("device address is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}

	loop := runloop.New("gatt-events", logger)
	c := &Connector{
		opts:     opts,
		logger:   logger,
		cache:    cache,
		sink:     sink,
		loop:     loop,
		timers:   timer.NewService(loop.Post),
		sessions: hashmap.New[string, *remote.Session](),
	}
	return c, nil
}

// Run connects and keeps the session alive until ctx is canceled.
func (c *Connector) Run(ctx context.Context) error {
	c.loop.Start()
	defer c.loop.Stop()
	defer c.timers.CancelAll()

	dev, err := DeviceFactory()
	if err != nil {
		return err
	}
	ble.SetDefaultDevice(dev)
	defer func() { _ = dev.Stop() }()

	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.WithError(err).Warn("Connection attempt failed")
		}

		c.logger.WithField("delay", c.opts.ReconnectDelay).Info("Reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// runOnce performs a single connect / serve / disconnect cycle.
func (c *Connector) runOnce(ctx context.Context) error {
	deviceID := c.opts.Address

	c.logger.WithField("address", deviceID).Info("Connecting to remote...")

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	client, err := ble.Dial(dialCtx, ble.NewAddr(deviceID))
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", deviceID, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return fmt.Errorf("failed to discover profile of %s: %w", deviceID, err)
	}

	c.transport.Store(newBLETransport(client, profile, func(handle uint16, data []byte) {
		// Copy before leaving the radio callback; go-ble may reuse the buffer.
		payload := append([]byte(nil), data...)
		c.loop.Post(func() {
			if s, ok := c.sessions.Get(deviceID); ok {
				s.HandleNotification(handle, payload)
			}
		})
	}, c.logger))

	session := c.ensureSession(deviceID)

	c.loop.Post(session.HandleOpen)
	c.loop.Post(session.HandleSearchComplete)

	c.logger.WithField("address", deviceID).Info("Connected")

	select {
	case <-ctx.Done():
		_ = client.CancelConnection()
		<-client.Disconnected()
	case <-client.Disconnected():
	}

	c.loop.Post(session.HandleDisconnect)
	return nil
}

// ensureSession returns the session registered for deviceID, creating it on
// first use. The session survives reconnects; only its per-connection state
// resets.
func (c *Connector) ensureSession(deviceID string) *remote.Session {
	if s, ok := c.sessions.Get(deviceID); ok {
		return s
	}
	s := remote.NewSession(deviceID, c.transportProxy(), c.cache, c.timers, c.sink, c.logger, c.opts.Session)
	c.sessions.Set(deviceID, s)
	return s
}

// transportProxy gives sessions a stable Transport whose target is swapped on
// every reconnect.
func (c *Connector) transportProxy() remote.Transport {
	return &proxyTransport{c: c}
}

type proxyTransport struct {
	c *Connector
}

func (p *proxyTransport) Attributes(start, end uint16) ([]remote.Attribute, error) {
	t := p.c.transport.Load()
	if t == nil {
		return nil, fmt.Errorf("not connected")
	}
	return t.Attributes(start, end)
}

func (p *proxyTransport) WriteDescriptor(handle uint16, value []byte) error {
	t := p.c.transport.Load()
	if t == nil {
		return fmt.Errorf("not connected")
	}
	return t.WriteDescriptor(handle, value)
}

func (p *proxyTransport) RegisterNotify(inputHandle uint16) error {
	t := p.c.transport.Load()
	if t == nil {
		return fmt.Errorf("not connected")
	}
	return t.RegisterNotify(inputHandle)
}
