package remote

import (
	"time"
)

// ----------------------------
// Transport collaborator
// ----------------------------

// AttributeKind classifies an entry of a peripheral's attribute table.
type AttributeKind uint8

const (
	AttrService AttributeKind = iota
	AttrCharacteristic
	AttrDescriptor
)

// Characteristic property bits as advertised in the characteristic declaration.
const (
	PropBroadcast            uint8 = 0x01
	PropRead                 uint8 = 0x02
	PropWriteWithoutResponse uint8 = 0x04
	PropWrite                uint8 = 0x08
	PropNotify               uint8 = 0x10
	PropIndicate             uint8 = 0x20
)

// Attribute is one row of the peripheral's attribute table as reported by the
// transport. UUID is normalized (lowercase, no dashes); 16-bit UUIDs are their
// 4-hex-digit short form. ValueHandle is set for characteristic declarations
// only, EndHandle for service declarations only.
type Attribute struct {
	Handle      uint16
	Kind        AttributeKind
	UUID        string
	Properties  uint8
	ValueHandle uint16
	EndHandle   uint16
}

// Transport abstracts the GATT client primitives the core needs. Connection
// lifecycle (dial, encrypt, service search) is driven by whoever owns the
// radio; the core only ever reacts to its callbacks via Session.
type Transport interface {
	// Attributes enumerates the attribute table within [start, end],
	// ascending by handle.
	Attributes(start, end uint16) ([]Attribute, error)

	// WriteDescriptor writes a raw value to the descriptor at the given handle.
	WriteDescriptor(handle uint16, value []byte) error

	// RegisterNotify asks the transport to deliver value-changed notifications
	// for the characteristic whose value lives at the given handle.
	RegisterNotify(inputHandle uint16) error
}

// ----------------------------
// Persistence collaborator
// ----------------------------

// Store is a small key -> bytes persistence collaborator. Load returns
// (nil, nil) when the key has never been saved.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

// ----------------------------
// Timer collaborator
// ----------------------------

// TimerService provides named, re-armable one-shot timers. Arming a timer
// under a name that is already armed replaces the pending one; this is the
// sole cancellation mechanism besides Cancel. Callbacks are delivered on the
// same serial execution context as transport callbacks.
type TimerService interface {
	Arm(name string, delay time.Duration, fn func())
	Cancel(name string)
}

// ----------------------------
// Event sink collaborator
// ----------------------------

// Event is one decoded gesture, rotation, or diagnostic raw event.
type Event struct {
	Action   string `json:"action"`
	Raw      string `json:"raw"`    // hex of the raw code, empty for timer-emitted events
	Clicks   int    `json:"clicks"` // -1 when not applicable
	DeviceID string `json:"device_id"`
}

// EventSink receives decoded events plus the auxiliary "last action" /
// "last value" observability publishes.
type EventSink interface {
	Emit(ev Event)
	PublishLastAction(deviceID, action string)
	PublishLastValue(deviceID string, value float64)
}
