package remote

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Reconnection schedule defaults. Some peripherals silently reject CCC writes
// issued too soon after link open or before authentication completes, so the
// subscription attempt runs at three scheduled offsets; retries reuse the
// same idempotent enable path.
const (
	DefaultRetryFast   = 80 * time.Millisecond
	DefaultRetrySettle = 600 * time.Millisecond
	DefaultRetryFinal  = 2000 * time.Millisecond
)

const (
	timerRetryFast   = "ccc_retry_fast"
	timerRetrySettle = "ccc_retry_settle"
	timerRetryFinal  = "ccc_retry_final"
)

// SessionConfig carries the timing knobs and the optional static fallback
// pair (the device's known-working handles, used when both cache and
// discovery come up empty).
type SessionConfig struct {
	MultiPressGap  time.Duration
	LongPress      time.Duration
	CCCMinInterval time.Duration
	RetryFast      time.Duration
	RetrySettle    time.Duration
	RetryFinal     time.Duration
	StaticFallback *NotifyPair
}

func (c *SessionConfig) applyDefaults() {
	if c.RetryFast <= 0 {
		c.RetryFast = DefaultRetryFast
	}
	if c.RetrySettle <= 0 {
		c.RetrySettle = DefaultRetrySettle
	}
	if c.RetryFinal <= 0 {
		c.RetryFinal = DefaultRetryFinal
	}
}

// Session ties the four core components together for one device. The session
// object itself survives reconnects; everything per-connection lives in the
// subscription manager and gesture engine and is reset on disconnect, while
// the handle cache deliberately is not.
//
// All Handle* callbacks must be delivered on one serial execution context
// (the transport's event loop); the session does no locking of its own.
type Session struct {
	deviceID  string
	transport Transport
	cache     *HandleCache
	timers    TimerService
	logger    *logrus.Logger
	cfg       SessionConfig

	subs     *SubscriptionManager
	gestures *GestureEngine

	// cached + discovered pairs, the only content that ever gets persisted
	// (the static fallback is runtime-only)
	cachePairs *pairSet
}

func NewSession(deviceID string, transport Transport, cache *HandleCache, timers TimerService, sink EventSink, logger *logrus.Logger, cfg SessionConfig) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	cfg.applyDefaults()

	subs := NewSubscriptionManager(transport, logger)
	subs.SetMinInterval(cfg.CCCMinInterval)

	gestures := NewGestureEngine(deviceID, timers, sink, logger)
	gestures.SetTimings(cfg.LongPress, cfg.MultiPressGap)

	return &Session{
		deviceID:   deviceID,
		transport:  transport,
		cache:      cache,
		timers:     timers,
		logger:     logger,
		cfg:        cfg,
		subs:       subs,
		gestures:   gestures,
		cachePairs: newPairSet(),
	}
}

// DeviceID returns the device identity this session is bound to.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Subscriptions exposes the per-connection subscription state.
func (s *Session) Subscriptions() *SubscriptionManager {
	return s.subs
}

// Gestures exposes the gesture engine (used by the offline decoder).
func (s *Session) Gestures() *GestureEngine {
	return s.gestures
}

// HandleOpen runs when the link is established: rebuild the subscription set
// from the persisted cache and schedule the three-point enable sequence.
func (s *Session) HandleOpen() {
	s.logger.WithField("device", s.deviceID).Info("Link open, rebuilding subscriptions from cache")

	s.cachePairs = newPairSet()
	for _, p := range s.cache.Load(s.deviceID) {
		s.cachePairs.Add(p)
		s.subs.AddPair(p, CCCValueNotify)
	}

	if len(s.subs.Pairs()) == 0 && s.cfg.StaticFallback != nil {
		s.logger.WithFields(logrus.Fields{
			"device": s.deviceID,
			"input":  s.cfg.StaticFallback.Input,
			"ccc":    s.cfg.StaticFallback.CCC,
		}).Info("Handle cache empty, using static fallback pair")
		s.subs.AddPair(*s.cfg.StaticFallback, CCCValueNotify)
	}

	s.timers.Arm(timerRetryFast, s.cfg.RetryFast, func() {
		s.subs.EnableAll("open_fast", true)
	})
	s.timers.Arm(timerRetrySettle, s.cfg.RetrySettle, func() {
		s.subs.EnableAll("open_settle", false)
	})
	s.timers.Arm(timerRetryFinal, s.cfg.RetryFinal, func() {
		s.subs.EnableAll("open_final", false)
		if !s.subs.SeenNotification() {
			s.subs.TryAlternateEncodingOnce("no_notify_after_open")
		}
	})
}

// HandleAuthComplete runs when encryption/bonding completes. Some devices
// only accept CCC writes after auth, so this is a forced re-enable.
func (s *Session) HandleAuthComplete() {
	s.logger.WithField("device", s.deviceID).Info("Auth complete, re-enabling notifications")
	s.subs.EnableAll("auth_complete", true)
}

// HandleSearchComplete runs once service topology is available: scan the
// attribute table, add findings to the cache and the subscription set, and
// enable everything.
func (s *Session) HandleSearchComplete() {
	start, end := s.subs.HIDRange()
	attrs, err := s.transport.Attributes(start, end)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"device": s.deviceID,
			"error":  err,
		}).Warn("Attribute enumeration failed, keeping cached pairs only")
		return
	}

	if hs, he, ok := HIDServiceRange(attrs); ok {
		s.subs.SetHIDRange(hs, he)
	}

	for _, d := range DiscoverPairs(attrs, s.logger) {
		s.cachePairs.Add(d.Pair)
		s.subs.AddPair(d.Pair, d.Mode)
	}

	// Change-detected inside; redundant on an unchanged table.
	s.cache.Save(s.deviceID, s.cachePairs.Pairs())

	s.subs.EnableAll("search_complete", false)
}

// HandleNotification processes one inbound notification. Unknown handles are
// still parsed and emitted; dropping them would hide real input when the
// cache is stale.
func (s *Session) HandleNotification(handle uint16, payload []byte) {
	s.subs.NoteNotification()

	if !s.subs.KnownInput(handle) {
		s.logger.WithFields(logrus.Fields{
			"device": s.deviceID,
			"handle": handle,
		}).Debug("Notification on unknown handle")
	}

	s.gestures.HandlePayload(payload)
}

// HandleDisconnect resets all per-connection state. The persisted handle
// cache is intentionally left untouched.
func (s *Session) HandleDisconnect() {
	s.logger.WithField("device", s.deviceID).Warn("Disconnected")

	s.timers.Cancel(timerRetryFast)
	s.timers.Cancel(timerRetrySettle)
	s.timers.Cancel(timerRetryFinal)

	s.subs.Reset()
	s.gestures.Reset()
	s.cachePairs = newPairSet()
}
