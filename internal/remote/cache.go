package remote

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Handle cache record, fixed binary layout:
//
//	magic    4 bytes  "ESNC"
//	version  1 byte   0x01
//	count    1 byte
//	reserved 2 bytes
//	pairs    CacheCapacity x { input uint16 LE, ccc uint16 LE }
const (
	cacheVersion byte = 0x01

	// CacheCapacity is the maximum number of pairs a record can hold.
	CacheCapacity = 4

	cacheRecordSize = 4 + 1 + 1 + 2 + CacheCapacity*4
)

var cacheMagic = [4]byte{'E', 'S', 'N', 'C'}

// encodeCacheRecord serializes pairs (truncated to capacity) into the fixed
// record layout.
func encodeCacheRecord(pairs []NotifyPair) []byte {
	if len(pairs) > CacheCapacity {
		pairs = pairs[:CacheCapacity]
	}
	buf := make([]byte, cacheRecordSize)
	copy(buf[0:4], cacheMagic[:])
	buf[4] = cacheVersion
	buf[5] = byte(len(pairs))
	for i, p := range pairs {
		off := 8 + i*4
		binary.LittleEndian.PutUint16(buf[off:], p.Input)
		binary.LittleEndian.PutUint16(buf[off+2:], p.CCC)
	}
	return buf
}

// decodeCacheRecord validates and parses a record. Invalid pairs are skipped.
func decodeCacheRecord(data []byte) ([]NotifyPair, error) {
	if len(data) < cacheRecordSize {
		return nil, fmt.Errorf("record too short: %d bytes, want %d", len(data), cacheRecordSize)
	}
	if [4]byte(data[0:4]) != cacheMagic {
		return nil, fmt.Errorf("bad magic %x", data[0:4])
	}
	if data[4] != cacheVersion {
		return nil, fmt.Errorf("unsupported version %d", data[4])
	}
	count := int(data[5])
	if count > CacheCapacity {
		return nil, fmt.Errorf("pair count %d exceeds capacity %d", count, CacheCapacity)
	}
	pairs := make([]NotifyPair, 0, count)
	for i := 0; i < count; i++ {
		off := 8 + i*4
		p := NotifyPair{
			Input: binary.LittleEndian.Uint16(data[off:]),
			CCC:   binary.LittleEndian.Uint16(data[off+2:]),
		}
		if p.Valid() {
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

// HandleCache persists the NotifyPair sets previously confirmed to work, one
// record per device identity. The cache outlives connections: it is never
// cleared on disconnect, only overwritten by new discovery findings.
//
// Persistence is strictly best-effort. A corrupt or missing record fails open
// to an empty set, and a failed write only costs a rediscovery next session.
type HandleCache struct {
	store  Store
	logger *logrus.Logger

	// last persisted (or loaded) content per device, used to suppress
	// redundant writes on every discovery cycle
	last map[string][]NotifyPair
}

func NewHandleCache(store Store, logger *logrus.Logger) *HandleCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &HandleCache{
		store:  store,
		logger: logger,
		last:   make(map[string][]NotifyPair),
	}
}

// Load returns the previously saved, validated pair set for the device, or an
// empty set. Validation failure is logged, never propagated.
func (c *HandleCache) Load(deviceID string) []NotifyPair {
	data, err := c.store.Load(deviceID)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"device": deviceID,
			"error":  err,
		}).Warn("Failed to load handle cache, starting empty")
		return nil
	}
	if data == nil {
		return nil
	}
	pairs, err := decodeCacheRecord(data)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"device": deviceID,
			"error":  err,
		}).Warn("Discarding invalid handle cache record")
		return nil
	}
	c.last[deviceID] = pairs
	c.logger.WithFields(logrus.Fields{
		"device": deviceID,
		"pairs":  len(pairs),
	}).Debug("Loaded handle cache")
	return pairs
}

// Save persists the given set for the device if it differs from what was last
// persisted. Safe to call redundantly on every discovery cycle; write failure
// is logged and swallowed.
func (c *HandleCache) Save(deviceID string, pairs []NotifyPair) {
	if len(pairs) > CacheCapacity {
		c.logger.WithFields(logrus.Fields{
			"device":   deviceID,
			"pairs":    len(pairs),
			"capacity": CacheCapacity,
		}).Warn("Truncating handle cache to capacity")
		pairs = pairs[:CacheCapacity]
	}
	if pairsEqual(c.last[deviceID], pairs) {
		return
	}
	if err := c.store.Save(deviceID, encodeCacheRecord(pairs)); err != nil {
		c.logger.WithFields(logrus.Fields{
			"device": deviceID,
			"error":  err,
		}).Warn("Failed to persist handle cache")
		return
	}
	c.last[deviceID] = append([]NotifyPair(nil), pairs...)
	c.logger.WithFields(logrus.Fields{
		"device": deviceID,
		"pairs":  len(pairs),
	}).Info("Persisted handle cache")
}
