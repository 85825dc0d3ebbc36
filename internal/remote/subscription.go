package remote

import (
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCCCMinInterval is the minimum spacing between descriptor rewrites for
// a descriptor already marked enabled. Prevents write storms when bursty
// notifications (rapid wheel rotation) retrigger "just connected" paths.
const DefaultCCCMinInterval = 5000 * time.Millisecond

type cccRuntime struct {
	enabled     bool
	lastAttempt time.Time
}

// SubscriptionManager owns all per-connection subscription state: the active
// pair set, per-descriptor runtime state, desired CCC values, and the one-shot
// alternate-encoding flag. It is rebuilt from the handle cache on every link
// open and reset to empty on disconnect; nothing here survives a reconnect.
type SubscriptionManager struct {
	transport Transport
	logger    *logrus.Logger

	minInterval time.Duration
	now         func() time.Time

	pairs          *pairSet
	runtime        map[uint16]*cccRuntime // keyed by CCC handle
	desired        map[uint16]uint16      // CCC handle -> CCC value
	hidStart       uint16
	hidEnd         uint16
	hidRangeKnown  bool
	lastNotify     time.Time
	notifySeen     bool
	triedAlternate bool
}

func NewSubscriptionManager(transport Transport, logger *logrus.Logger) *SubscriptionManager {
	if logger == nil {
		logger = logrus.New()
	}
	m := &SubscriptionManager{
		transport:   transport,
		logger:      logger,
		minInterval: DefaultCCCMinInterval,
		now:         time.Now,
	}
	m.Reset()
	return m
}

// SetMinInterval overrides the rate-limit interval (tests, config).
func (m *SubscriptionManager) SetMinInterval(d time.Duration) {
	if d > 0 {
		m.minInterval = d
	}
}

// SetClock overrides the time source (tests).
func (m *SubscriptionManager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Reset clears all per-connection state. Called on disconnect and before
// rebuilding the set on a fresh link.
func (m *SubscriptionManager) Reset() {
	m.pairs = newPairSet()
	m.runtime = make(map[uint16]*cccRuntime)
	m.desired = make(map[uint16]uint16)
	m.hidRangeKnown = false
	m.hidStart, m.hidEnd = 0, 0
	m.notifySeen = false
	m.lastNotify = time.Time{}
	m.triedAlternate = false
}

// AddPair adds a pair with its desired CCC value to the active set. Returns
// true if the pair was new.
func (m *SubscriptionManager) AddPair(p NotifyPair, mode uint16) bool {
	if !m.pairs.Add(p) {
		return false
	}
	if mode != CCCValueNotify && mode != CCCValueIndicate && mode != CCCValueBoth {
		mode = CCCValueNotify
	}
	m.desired[p.CCC] = mode
	return true
}

// Pairs returns the active set in insertion order.
func (m *SubscriptionManager) Pairs() []NotifyPair {
	return m.pairs.Pairs()
}

// KnownInput reports whether handle is the input handle of any active pair.
func (m *SubscriptionManager) KnownInput(handle uint16) bool {
	return m.pairs.ContainsInput(handle)
}

// SetHIDRange records the HID service handle bounds for later discovery scans.
func (m *SubscriptionManager) SetHIDRange(start, end uint16) {
	m.hidStart, m.hidEnd = start, end
	m.hidRangeKnown = true
}

// HIDRange returns the recorded service bounds, or the whole handle space.
func (m *SubscriptionManager) HIDRange() (start, end uint16) {
	if m.hidRangeKnown {
		return m.hidStart, m.hidEnd
	}
	return 0x0001, 0xFFFF
}

// NoteNotification records that a notification arrived on this connection.
// Gates the alternate-encoding fallback in the final retry.
func (m *SubscriptionManager) NoteNotification() {
	m.lastNotify = m.now()
	m.notifySeen = true
}

// SeenNotification reports whether any notification arrived since link open.
func (m *SubscriptionManager) SeenNotification() bool {
	return m.notifySeen
}

// Enable writes the desired CCC value for the pair and registers for
// notification delivery on its input handle. Unless force is set, a
// descriptor already marked enabled is not rewritten more often than the
// minimum interval. Individual failures are logged, never propagated; the
// scheduled retry chain and the next reconnect are the recovery path.
func (m *SubscriptionManager) Enable(p NotifyPair, reason string, force bool) {
	value, ok := m.desired[p.CCC]
	if !ok {
		value = CCCValueNotify
	}
	m.write(p, value, reason, force)
}

// EnableAll applies Enable to every pair in the active set.
func (m *SubscriptionManager) EnableAll(reason string, force bool) {
	for _, p := range m.pairs.Pairs() {
		m.Enable(p, reason, force)
	}
}

// TryAlternateEncodingOnce force-writes the combined notify+indicate value to
// every known descriptor, once per connection. Recovers devices whose
// capability bits were mis-reported or unreadable; a no-op on every call
// after the first.
func (m *SubscriptionManager) TryAlternateEncodingOnce(reason string) {
	if m.triedAlternate {
		return
	}
	m.triedAlternate = true
	m.logger.WithField("reason", reason).Info("Trying combined notify+indicate CCC encoding")
	for _, p := range m.pairs.Pairs() {
		m.write(p, CCCValueBoth, reason, true)
	}
}

func (m *SubscriptionManager) write(p NotifyPair, value uint16, reason string, force bool) {
	rt := m.runtime[p.CCC]
	if rt == nil {
		rt = &cccRuntime{}
		m.runtime[p.CCC] = rt
	}

	now := m.now()
	if !force && rt.enabled && now.Sub(rt.lastAttempt) < m.minInterval {
		return
	}
	rt.lastAttempt = now

	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, value)

	if err := m.transport.WriteDescriptor(p.CCC, payload); err != nil {
		m.logger.WithFields(logrus.Fields{
			"ccc":    p.CCC,
			"value":  value,
			"reason": reason,
			"error":  err,
		}).Warn("CCC write failed")
		// leave enabled as-is; a later forced attempt may retry
	} else {
		rt.enabled = true
		m.logger.WithFields(logrus.Fields{
			"ccc":    p.CCC,
			"value":  value,
			"reason": reason,
		}).Info("CCC write done")
	}

	if err := m.transport.RegisterNotify(p.Input); err != nil {
		m.logger.WithFields(logrus.Fields{
			"input":  p.Input,
			"reason": reason,
			"error":  err,
		}).Warn("Notify registration failed")
	} else {
		m.logger.WithFields(logrus.Fields{
			"input":  p.Input,
			"reason": reason,
		}).Debug("Notify registration done")
	}
}
