package remote_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/essence/internal/remote"
	"github.com/srg/essence/internal/testutils"
)

// hidTable builds the attribute table of a typical HID remote: one HID
// service with two report characteristics, each followed by its CCC.
func hidTable() []remote.Attribute {
	return []remote.Attribute{
		{Handle: 1, Kind: remote.AttrService, UUID: "1800", EndHandle: 9},
		{Handle: 40, Kind: remote.AttrService, UUID: "1812", EndHandle: 80},
		{Handle: 61, Kind: remote.AttrCharacteristic, UUID: "2a4d", Properties: remote.PropRead | remote.PropNotify, ValueHandle: 62},
		{Handle: 63, Kind: remote.AttrDescriptor, UUID: "2902"},
		{Handle: 64, Kind: remote.AttrDescriptor, UUID: "2908"},
		{Handle: 69, Kind: remote.AttrCharacteristic, UUID: "2a4d", Properties: remote.PropRead | remote.PropIndicate, ValueHandle: 70},
		{Handle: 71, Kind: remote.AttrDescriptor, UUID: "2902"},
	}
}

func TestDiscoverPairs(t *testing.T) {
	th := testutils.NewTestHelper(t)

	found := remote.DiscoverPairs(hidTable(), th.Logger)

	assert.Equal(t, []remote.DiscoveredPair{
		{Pair: remote.NotifyPair{Input: 62, CCC: 63}, Mode: remote.CCCValueNotify},
		{Pair: remote.NotifyPair{Input: 70, CCC: 71}, Mode: remote.CCCValueIndicate},
	}, found)
}

func TestDiscoverPairsNotifyTakesPriority(t *testing.T) {
	th := testutils.NewTestHelper(t)

	found := remote.DiscoverPairs([]remote.Attribute{
		{Handle: 61, Kind: remote.AttrCharacteristic, UUID: "2a4d",
			Properties: remote.PropNotify | remote.PropIndicate, ValueHandle: 62},
		{Handle: 63, Kind: remote.AttrDescriptor, UUID: "2902"},
	}, th.Logger)

	assert.Len(t, found, 1)
	assert.Equal(t, remote.CCCValueNotify, found[0].Mode, "notify MUST win when both bits are set")
}

func TestDiscoverPairsSkipsNonNotifiable(t *testing.T) {
	th := testutils.NewTestHelper(t)

	found := remote.DiscoverPairs([]remote.Attribute{
		// Output report: read/write only, no CCC pairing wanted.
		{Handle: 61, Kind: remote.AttrCharacteristic, UUID: "2a4d",
			Properties: remote.PropRead | remote.PropWrite, ValueHandle: 62},
		{Handle: 63, Kind: remote.AttrDescriptor, UUID: "2902"},
	}, th.Logger)

	assert.Empty(t, found)
}

func TestDiscoverPairsCursorResetByNewCharacteristic(t *testing.T) {
	th := testutils.NewTestHelper(t)

	// The battery-level characteristic sits between the report and the
	// report's would-be CCC, so the CCC belongs to the battery level and
	// must not be paired with the report.
	found := remote.DiscoverPairs([]remote.Attribute{
		{Handle: 61, Kind: remote.AttrCharacteristic, UUID: "2a4d",
			Properties: remote.PropNotify, ValueHandle: 62},
		{Handle: 65, Kind: remote.AttrCharacteristic, UUID: "2a19",
			Properties: remote.PropNotify, ValueHandle: 66},
		{Handle: 67, Kind: remote.AttrDescriptor, UUID: "2902"},
	}, th.Logger)

	assert.Empty(t, found, "CCC after an interleaving declaration MUST NOT close the earlier report")
}

func TestDiscoverPairsIgnoresOtherDescriptors(t *testing.T) {
	th := testutils.NewTestHelper(t)

	// A report-reference descriptor between the declaration and the CCC is
	// fine; only another characteristic declaration resets the cursor.
	found := remote.DiscoverPairs([]remote.Attribute{
		{Handle: 61, Kind: remote.AttrCharacteristic, UUID: "2a4d",
			Properties: remote.PropNotify, ValueHandle: 62},
		{Handle: 63, Kind: remote.AttrDescriptor, UUID: "2908"},
		{Handle: 64, Kind: remote.AttrDescriptor, UUID: "2902"},
	}, th.Logger)

	assert.Equal(t, []remote.DiscoveredPair{
		{Pair: remote.NotifyPair{Input: 62, CCC: 64}, Mode: remote.CCCValueNotify},
	}, found)
}

func TestDiscoverPairsHandlesUnsortedInput(t *testing.T) {
	th := testutils.NewTestHelper(t)

	table := hidTable()
	// reverse
	for i, j := 0, len(table)-1; i < j; i, j = i+1, j-1 {
		table[i], table[j] = table[j], table[i]
	}

	found := remote.DiscoverPairs(table, th.Logger)
	assert.Len(t, found, 2)
	assert.Equal(t, remote.NotifyPair{Input: 62, CCC: 63}, found[0].Pair)
}

func TestDiscoverPairsIdempotent(t *testing.T) {
	th := testutils.NewTestHelper(t)

	first := remote.DiscoverPairs(hidTable(), th.Logger)
	second := remote.DiscoverPairs(hidTable(), th.Logger)
	assert.Equal(t, first, second, "re-running over an unchanged table MUST yield the same set")
}

func TestHIDServiceRange(t *testing.T) {
	start, end, ok := remote.HIDServiceRange(hidTable())
	assert.True(t, ok)
	assert.Equal(t, uint16(40), start)
	assert.Equal(t, uint16(80), end)

	_, _, ok = remote.HIDServiceRange([]remote.Attribute{
		{Handle: 1, Kind: remote.AttrService, UUID: "1800", EndHandle: 9},
	})
	assert.False(t, ok)
}
