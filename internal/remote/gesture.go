package remote

import (
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"
)

// Multi-press timing defaults, taken from the device's observed behavior.
const (
	// DefaultMultiPressGap separates bursts: a release followed by this much
	// silence finalizes the click count into single/double/triple.
	DefaultMultiPressGap = 400 * time.Millisecond

	// DefaultLongPress is how long a button must stay down to fire a
	// long-press instead of counting a click.
	DefaultLongPress = 1500 * time.Millisecond

	maxClickCount = 3
)

type buttonState struct {
	down       bool
	longFired  bool
	clickCount int
}

// GestureEngine turns the raw notification codes of one device connection
// into debounced gesture events. One state machine per button, two named
// timers per button (long-press, multi-click finalize); rotation codes bypass
// all of it. The engine assumes the serial callback model: raw codes and
// timer callbacks never run concurrently.
type GestureEngine struct {
	deviceID string
	timers   TimerService
	sink     EventSink
	logger   *logrus.Logger

	longPress time.Duration
	multiGap  time.Duration

	buttons [buttonCount]buttonState
	active  Button
}

func NewGestureEngine(deviceID string, timers TimerService, sink EventSink, logger *logrus.Logger) *GestureEngine {
	if logger == nil {
		logger = logrus.New()
	}
	return &GestureEngine{
		deviceID:  deviceID,
		timers:    timers,
		sink:      sink,
		logger:    logger,
		longPress: DefaultLongPress,
		multiGap:  DefaultMultiPressGap,
		active:    ButtonNone,
	}
}

// SetTimings overrides the long-press and multi-press durations. Zero values
// keep the current setting.
func (g *GestureEngine) SetTimings(longPress, multiGap time.Duration) {
	if longPress > 0 {
		g.longPress = longPress
	}
	if multiGap > 0 {
		g.multiGap = multiGap
	}
}

// Reset clears all button state and cancels pending timers. Called on
// disconnect.
func (g *GestureEngine) Reset() {
	for b := Button(0); b < buttonCount; b++ {
		g.timers.Cancel(longTimerName(b))
		g.timers.Cancel(finalizeTimerName(b))
	}
	g.buttons = [buttonCount]buttonState{}
	g.active = ButtonNone
}

// HandlePayload decodes a notification payload and feeds it to the state
// machine. The device sends big-endian 16-bit codes in the first two bytes;
// anything shorter is dropped with a warning.
func (g *GestureEngine) HandlePayload(payload []byte) {
	if len(payload) < 2 {
		g.logger.WithFields(logrus.Fields{
			"device": g.deviceID,
			"len":    len(payload),
		}).Warn("Input report too short, dropping")
		return
	}
	g.HandleRaw(binary.BigEndian.Uint16(payload[:2]))
}

// HandleRaw processes one decoded 16-bit code.
func (g *GestureEngine) HandleRaw(raw uint16) {
	// Wheel rotation is stateless: emitted immediately, never touches the
	// button machines.
	if isRotation(raw) {
		action := "rotate_left"
		if raw == rawRotateRight {
			action = "rotate_right"
		}
		g.emit(action, hex4(raw), -1)
		return
	}

	if b := buttonForCode(raw); b != ButtonNone {
		g.press(b, raw)
		return
	}

	if raw == rawRelease {
		g.release()
		return
	}

	// Unknown non-zero code: surface it for observability, no state change.
	g.emit("raw_"+hex4(raw), hex4(raw), -1)
}

func (g *GestureEngine) press(b Button, raw uint16) {
	// The hardware never reports overlapping presses; a new press
	// unconditionally becomes the active button.
	g.active = b
	st := &g.buttons[b]
	st.down = true
	st.longFired = false

	// A new press always supersedes a pending multi-click finalize.
	g.timers.Cancel(finalizeTimerName(b))

	g.emit(b.String()+"_pressed", hex4(raw), -1)

	g.timers.Arm(longTimerName(b), g.longPress, func() {
		g.onLongPress(b)
	})
}

func (g *GestureEngine) release() {
	if g.active == ButtonNone {
		// Release with no matching prior press (lost notification); ignore.
		g.logger.WithField("device", g.deviceID).Debug("Release with no active button, ignoring")
		return
	}

	b := g.active
	g.active = ButtonNone
	st := &g.buttons[b]
	st.down = false

	g.emit(b.String()+"_released", hex4(rawRelease), -1)

	if st.longFired {
		// The long-press already consumed this cycle; no click counting.
		st.longFired = false
		st.clickCount = 0
		return
	}

	if st.clickCount < maxClickCount {
		st.clickCount++
	}

	g.timers.Arm(finalizeTimerName(b), g.multiGap, func() {
		g.onFinalize(b)
	})
}

// onLongPress fires while the button is still held. Re-checks state because a
// stale timer from a prior press/release cycle may have raced its
// cancellation.
func (g *GestureEngine) onLongPress(b Button) {
	st := &g.buttons[b]
	if !st.down || st.longFired {
		return
	}
	st.longFired = true
	st.clickCount = 0
	g.emit(b.String()+"_long", "", -1)
}

// onFinalize closes a click burst. Re-checks state: a new press during the
// gap already canceled this timer, and a long-press voids the count.
func (g *GestureEngine) onFinalize(b Button) {
	st := &g.buttons[b]
	if st.down || st.longFired || st.clickCount == 0 {
		return
	}

	var action string
	switch st.clickCount {
	case 1:
		action = b.String() + "_single"
	case 2:
		action = b.String() + "_double"
	default:
		action = b.String() + "_triple"
	}

	g.emit(action, "", st.clickCount)
	st.clickCount = 0
}

func (g *GestureEngine) emit(action, rawHex string, clicks int) {
	ev := Event{
		Action:   action,
		Raw:      rawHex,
		Clicks:   clicks,
		DeviceID: g.deviceID,
	}
	g.sink.Emit(ev)
	g.sink.PublishLastAction(g.deviceID, action)

	value := 0.0
	if len(action) > 8 && action[len(action)-8:] == "_pressed" {
		value = 1.0
	}
	g.sink.PublishLastValue(g.deviceID, value)

	g.logger.WithFields(logrus.Fields{
		"device": g.deviceID,
		"action": action,
		"raw":    rawHex,
		"clicks": clicks,
	}).Info("Remote action")
}

func longTimerName(b Button) string {
	return "long_" + b.String()
}

func finalizeTimerName(b Button) string {
	return "finalize_" + b.String()
}
