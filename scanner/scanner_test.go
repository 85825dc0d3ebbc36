package scanner

import (
	"testing"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"

	"github.com/srg/essence/internal/testutils"
)

// fakeAdv implements ble.Advertisement for filter tests.
type fakeAdv struct {
	addr        string
	name        string
	rssi        int
	connectable bool
	services    []ble.UUID
}

func (a *fakeAdv) LocalName() string              { return a.name }
func (a *fakeAdv) ManufacturerData() []byte       { return nil }
func (a *fakeAdv) ServiceData() []ble.ServiceData { return nil }
func (a *fakeAdv) Services() []ble.UUID           { return a.services }
func (a *fakeAdv) OverflowService() []ble.UUID    { return nil }
func (a *fakeAdv) TxPowerLevel() int              { return 0 }
func (a *fakeAdv) Connectable() bool              { return a.connectable }
func (a *fakeAdv) SolicitedService() []ble.UUID   { return nil }
func (a *fakeAdv) RSSI() int                      { return a.rssi }
func (a *fakeAdv) Addr() ble.Addr                 { return ble.NewAddr(a.addr) }

func hidAdv(addr, name string) *fakeAdv {
	return &fakeAdv{
		addr:        addr,
		name:        name,
		rssi:        -60,
		connectable: true,
		services:    []ble.UUID{ble.UUID16(0x1812)},
	}
}

func TestShouldIncludeDevice(t *testing.T) {
	th := testutils.NewTestHelper(t)
	s := NewScanner(th.Logger)

	remote := hidAdv("cc:7f:5b:12:34:56", "BeoSound Essence Remote")
	headset := &fakeAdv{addr: "11:22:33:44:55:66", services: []ble.UUID{ble.UUID16(0x110B)}}

	tests := []struct {
		name string
		adv  ble.Advertisement
		opts *ScanOptions
		want bool
	}{
		{name: "nil options include all", adv: headset, opts: nil, want: true},
		{name: "hid only keeps remote", adv: remote, opts: &ScanOptions{HIDOnly: true}, want: true},
		{name: "hid only drops headset", adv: headset, opts: &ScanOptions{HIDOnly: true}, want: false},
		{
			name: "block list wins",
			adv:  remote,
			opts: &ScanOptions{BlockList: []string{"CC:7F:5B:12:34:56"}},
			want: false,
		},
		{
			name: "allow list case-insensitive",
			adv:  remote,
			opts: &ScanOptions{AllowList: []string{"CC:7F:5B:12:34:56"}},
			want: true,
		},
		{
			name: "allow list excludes others",
			adv:  headset,
			opts: &ScanOptions{AllowList: []string{"cc:7f:5b:12:34:56"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.shouldIncludeDevice(tt.adv, tt.opts))
		})
	}
}

func TestHandleAdvertisementEvents(t *testing.T) {
	th := testutils.NewTestHelper(t)
	s := NewScanner(th.Logger)
	s.devices = hashmap.New[string, *DeviceInfo]()
	s.scanOptions = DefaultScanOptions()

	adv := hidAdv("cc:7f:5b:12:34:56", "BeoSound Essence Remote")
	s.handleAdvertisement(adv)

	ev := <-s.Events()
	assert.Equal(t, EventNew, ev.Type)
	assert.Equal(t, "BeoSound Essence Remote", ev.Info.Name)
	assert.Equal(t, []string{"1812"}, ev.Info.Services)

	// Same device again: an update, not a second discovery.
	adv.rssi = -55
	s.handleAdvertisement(adv)

	ev = <-s.Events()
	assert.Equal(t, EventUpdated, ev.Type)
	assert.Equal(t, -55, ev.Info.RSSI)
}

func TestServiceStringsNormalized(t *testing.T) {
	adv := &fakeAdv{services: []ble.UUID{ble.UUID16(0x1812), ble.UUID16(0x180F)}}
	assert.Equal(t, []string{"180f", "1812"}, serviceStrings(adv))
}
