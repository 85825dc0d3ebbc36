package gatt

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/essence/internal/remote"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit short form", input: "1812", expected: "1812"},
		{name: "uppercase", input: "2A4D", expected: "2a4d"},
		{name: "SIG base with dashes", input: "00001812-0000-1000-8000-00805f9b34fb", expected: "1812"},
		{name: "SIG base without dashes", input: "0000181200001000800000805f9b34fb", expected: "1812"},
		{name: "custom 128-bit stays long", input: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func hidProfile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID:      ble.UUID16(0x1812),
				Handle:    40,
				EndHandle: 80,
				Characteristics: []*ble.Characteristic{
					{
						UUID:        ble.UUID16(0x2A4D),
						Property:    ble.CharRead | ble.CharNotify,
						Handle:      61,
						ValueHandle: 62,
						Descriptors: []*ble.Descriptor{
							{UUID: ble.UUID16(0x2902), Handle: 63},
						},
					},
				},
			},
		},
	}
}

func TestTransportAttributes(t *testing.T) {
	tr := newBLETransport(nil, hidProfile(), nil, nil)

	attrs, err := tr.Attributes(1, 0xFFFF)
	require.NoError(t, err)

	assert.Equal(t, []remote.Attribute{
		{Handle: 40, Kind: remote.AttrService, UUID: "1812", EndHandle: 80},
		{Handle: 61, Kind: remote.AttrCharacteristic, UUID: "2a4d",
			Properties: remote.PropRead | remote.PropNotify, ValueHandle: 62},
		{Handle: 63, Kind: remote.AttrDescriptor, UUID: "2902"},
	}, attrs)

	// The discovery engine consumes this table directly.
	found := remote.DiscoverPairs(attrs, nil)
	require.Len(t, found, 1)
	assert.Equal(t, remote.NotifyPair{Input: 62, CCC: 63}, found[0].Pair)
}

func TestTransportAttributesRangeFilter(t *testing.T) {
	tr := newBLETransport(nil, hidProfile(), nil, nil)

	attrs, err := tr.Attributes(61, 63)
	require.NoError(t, err)
	assert.Len(t, attrs, 2, "service declaration at 40 MUST be outside the range")
}

func TestTransportAttributesWithoutProfile(t *testing.T) {
	tr := newBLETransport(nil, nil, nil, nil)
	_, err := tr.Attributes(1, 0xFFFF)
	assert.Error(t, err)
}
