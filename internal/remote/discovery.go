package remote

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// GATT type UUIDs the discovery engine cares about (normalized short form).
const (
	uuidHIDService    = "1812"
	uuidReportChar    = "2a4d"
	uuidCCCDescriptor = "2902"
)

// CCC values, written little-endian as a 2-byte descriptor payload.
const (
	CCCValueNotify   uint16 = 0x0001
	CCCValueIndicate uint16 = 0x0002
	CCCValueBoth     uint16 = 0x0003
)

// DiscoveredPair is a NotifyPair plus the notification mode the characteristic
// advertised. Notify takes priority when both capability bits are set.
type DiscoveredPair struct {
	Pair NotifyPair
	Mode uint16
}

// HIDServiceRange returns the handle bounds of the HID service declaration in
// attrs, if one is present.
func HIDServiceRange(attrs []Attribute) (start, end uint16, ok bool) {
	for _, a := range attrs {
		if a.Kind == AttrService && a.UUID == uuidHIDService {
			return a.Handle, a.EndHandle, true
		}
	}
	return 0, 0, false
}

// DiscoverPairs walks the attribute table in ascending handle order and pairs
// every notify/indicate-capable report characteristic with its CCC descriptor.
//
// A "current candidate" cursor tracks the most recent matching characteristic
// declaration; it resets whenever any new characteristic declaration is seen,
// and closes into a pair when a CCC descriptor follows it. One linear pass, no
// backtracking; duplicates are dropped first-seen-wins, so running it twice
// over an unchanged table yields the same set.
func DiscoverPairs(attrs []Attribute, logger *logrus.Logger) []DiscoveredPair {
	if logger == nil {
		logger = logrus.New()
	}

	sorted := append([]Attribute(nil), attrs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Handle < sorted[j].Handle })

	var (
		found   []DiscoveredPair
		seen    = newPairSet()
		pending *Attribute
	)

	for i := range sorted {
		a := &sorted[i]
		switch a.Kind {
		case AttrCharacteristic:
			// Any new declaration resets the cursor, matching or not.
			pending = nil
			if a.UUID != uuidReportChar {
				continue
			}
			if a.Properties&(PropNotify|PropIndicate) == 0 {
				logger.WithField("handle", a.Handle).Debug("Report characteristic without notify/indicate, skipping")
				continue
			}
			pending = a

		case AttrDescriptor:
			if pending == nil || a.UUID != uuidCCCDescriptor {
				continue
			}
			pair := NotifyPair{Input: pending.ValueHandle, CCC: a.Handle}
			mode := CCCValueIndicate
			if pending.Properties&PropNotify != 0 {
				mode = CCCValueNotify
			}
			pending = nil
			if !seen.Add(pair) {
				continue
			}
			logger.WithFields(logrus.Fields{
				"input": pair.Input,
				"ccc":   pair.CCC,
				"mode":  mode,
			}).Info("Discovered report notification pair")
			found = append(found, DiscoveredPair{Pair: pair, Mode: mode})
		}
	}

	return found
}
