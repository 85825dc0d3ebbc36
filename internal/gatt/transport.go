// Package gatt adapts go-ble to the core's Transport collaborator and owns
// the radio lifecycle: connect, profile discovery, notification pumping, and
// reconnect.
package gatt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/sirupsen/logrus"
	"github.com/srg/essence/internal/remote"
)

// DeviceFactory creates the HCI device (overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to open HCI device: %w", err)
	}
	return dev, nil
}

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb, dashes stripped).
const sigBaseSuffix = "00001000800000805f9b34fb"

// normalizeUUID lowercases a UUID and strips dashes, collapsing SIG base
// UUIDs to their 16-bit short form so they match the core's comparisons.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// bleTransport implements remote.Transport over a live go-ble client. A new
// instance is bound on every (re)connect; the session only ever sees it
// through the Transport interface.
type bleTransport struct {
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	// notify delivers inbound notifications; the connector points it at the
	// event loop.
	notify func(handle uint16, data []byte)

	subscribed map[uint16]bool
}

func newBLETransport(client ble.Client, profile *ble.Profile, notify func(uint16, []byte), logger *logrus.Logger) *bleTransport {
	return &bleTransport{
		client:     client,
		profile:    profile,
		logger:     logger,
		notify:     notify,
		subscribed: make(map[uint16]bool),
	}
}

// Attributes flattens the discovered profile into the core's attribute-table
// form, filtered to [start, end] and ascending by handle.
func (t *bleTransport) Attributes(start, end uint16) ([]remote.Attribute, error) {
	if t.profile == nil {
		return nil, fmt.Errorf("profile not discovered")
	}

	var attrs []remote.Attribute
	add := func(a remote.Attribute) {
		if a.Handle >= start && a.Handle <= end {
			attrs = append(attrs, a)
		}
	}

	for _, svc := range t.profile.Services {
		add(remote.Attribute{
			Handle:    svc.Handle,
			Kind:      remote.AttrService,
			UUID:      NormalizeUUID(svc.UUID.String()),
			EndHandle: svc.EndHandle,
		})
		for _, ch := range svc.Characteristics {
			add(remote.Attribute{
				Handle:      ch.Handle,
				Kind:        remote.AttrCharacteristic,
				UUID:        NormalizeUUID(ch.UUID.String()),
				Properties:  uint8(ch.Property),
				ValueHandle: ch.ValueHandle,
			})
			for _, d := range ch.Descriptors {
				add(remote.Attribute{
					Handle: d.Handle,
					Kind:   remote.AttrDescriptor,
					UUID:   NormalizeUUID(d.UUID.String()),
				})
			}
		}
	}

	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Handle < attrs[j].Handle })
	return attrs, nil
}

// WriteDescriptor writes value to the descriptor at the given handle. The
// descriptor object is looked up in the profile first so the library keeps
// any metadata it tracked; an unknown handle gets a synthetic descriptor,
// which is enough for an ATT write.
func (t *bleTransport) WriteDescriptor(handle uint16, value []byte) error {
	desc := t.findDescriptor(handle)
	if desc == nil {
		desc = &ble.Descriptor{Handle: handle}
	}
	if err := t.client.WriteDescriptor(desc, value); err != nil {
		return fmt.Errorf("descriptor write to handle %d failed: %w", handle, err)
	}
	return nil
}

// RegisterNotify subscribes to the characteristic whose value handle matches.
// Idempotent per connection: repeated enables reuse the first subscription.
func (t *bleTransport) RegisterNotify(inputHandle uint16) error {
	if t.subscribed[inputHandle] {
		return nil
	}

	char := t.findCharacteristicByValueHandle(inputHandle)
	if char == nil {
		return fmt.Errorf("no characteristic with value handle %d", inputHandle)
	}

	err := t.client.Subscribe(char, false, func(data []byte) {
		t.notify(inputHandle, data)
	})
	if err != nil {
		return fmt.Errorf("subscribe on handle %d failed: %w", inputHandle, err)
	}

	t.subscribed[inputHandle] = true
	return nil
}

func (t *bleTransport) findDescriptor(handle uint16) *ble.Descriptor {
	for _, svc := range t.profile.Services {
		for _, ch := range svc.Characteristics {
			for _, d := range ch.Descriptors {
				if d.Handle == handle {
					return d
				}
			}
		}
	}
	return nil
}

func (t *bleTransport) findCharacteristicByValueHandle(handle uint16) *ble.Characteristic {
	for _, svc := range t.profile.Services {
		for _, ch := range svc.Characteristics {
			if ch.ValueHandle == handle {
				return ch
			}
		}
	}
	return nil
}
