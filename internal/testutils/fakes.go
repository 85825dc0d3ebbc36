package testutils

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/srg/essence/internal/remote"
)

// ----------------------------
// FakeTransport
// ----------------------------

// DescriptorWrite records one WriteDescriptor call.
type DescriptorWrite struct {
	Handle uint16
	Value  []byte
}

// FakeTransport is an in-memory remote.Transport. Tests preload an attribute
// table and inspect the descriptor writes and notify registrations the code
// under test performed.
type FakeTransport struct {
	mu sync.Mutex

	Table []remote.Attribute

	// AttributesErr, WriteErr and NotifyErr, when set, fail the
	// corresponding call.
	AttributesErr error
	WriteErr      error
	NotifyErr     error

	// FailWriteHandles fails WriteDescriptor only for the listed handles.
	FailWriteHandles map[uint16]bool

	Writes          []DescriptorWrite
	NotifyRegs      []uint16
	AttributesCalls int
}

func NewFakeTransport(table ...remote.Attribute) *FakeTransport {
	return &FakeTransport{Table: table}
}

func (t *FakeTransport) Attributes(start, end uint16) ([]remote.Attribute, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AttributesCalls++
	if t.AttributesErr != nil {
		return nil, t.AttributesErr
	}
	var out []remote.Attribute
	for _, a := range t.Table {
		if a.Handle >= start && a.Handle <= end {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *FakeTransport) WriteDescriptor(handle uint16, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.WriteErr != nil {
		return t.WriteErr
	}
	if t.FailWriteHandles[handle] {
		return fmt.Errorf("write to handle 0x%04x refused", handle)
	}
	t.Writes = append(t.Writes, DescriptorWrite{Handle: handle, Value: append([]byte(nil), value...)})
	return nil
}

func (t *FakeTransport) RegisterNotify(inputHandle uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.NotifyErr != nil {
		return t.NotifyErr
	}
	t.NotifyRegs = append(t.NotifyRegs, inputHandle)
	return nil
}

// WrittenHandles returns the distinct descriptor handles written, sorted.
func (t *FakeTransport) WrittenHandles() []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[uint16]bool)
	var out []uint16
	for _, w := range t.Writes {
		if !seen[w.Handle] {
			seen[w.Handle] = true
			out = append(out, w.Handle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ----------------------------
// FakeTimers
// ----------------------------

type armedTimer struct {
	delay time.Duration
	fn    func()
}

// FakeTimers implements remote.TimerService without real time. Tests fire
// timers by name.
type FakeTimers struct {
	mu     sync.Mutex
	timers map[string]armedTimer

	// ArmCalls counts Arm invocations per name, re-arms included.
	ArmCalls map[string]int
}

func NewFakeTimers() *FakeTimers {
	return &FakeTimers{
		timers:   make(map[string]armedTimer),
		ArmCalls: make(map[string]int),
	}
}

func (f *FakeTimers) Arm(name string, delay time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers[name] = armedTimer{delay: delay, fn: fn}
	f.ArmCalls[name]++
}

func (f *FakeTimers) Cancel(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.timers, name)
}

func (f *FakeTimers) Armed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.timers[name]
	return ok
}

func (f *FakeTimers) Delay(name string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[name].delay
}

// Fire runs and disarms the named timer. Returns false if it was not armed.
func (f *FakeTimers) Fire(name string) bool {
	f.mu.Lock()
	t, ok := f.timers[name]
	if ok {
		delete(f.timers, name)
	}
	f.mu.Unlock()
	if !ok {
		return false
	}
	t.fn()
	return true
}

func (f *FakeTimers) ArmedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.timers))
	for name := range f.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ----------------------------
// FakeStore
// ----------------------------

// FakeStore is an in-memory remote.Store.
type FakeStore struct {
	mu   sync.Mutex
	data map[string][]byte

	LoadErr error
	SaveErr error

	SaveCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{data: make(map[string][]byte)}
}

func (s *FakeStore) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	d, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), d...), nil
}

func (s *FakeStore) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Put seeds a record without counting as a save.
func (s *FakeStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
}

func (s *FakeStore) Get(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data[key]...)
}

// ----------------------------
// RecordingSink
// ----------------------------

type LastActionRecord struct {
	DeviceID string
	Action   string
}

type LastValueRecord struct {
	DeviceID string
	Value    float64
}

// RecordingSink captures everything emitted through the remote.EventSink
// interface.
type RecordingSink struct {
	mu          sync.Mutex
	Events      []remote.Event
	LastActions []LastActionRecord
	LastValues  []LastValueRecord
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Emit(ev remote.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
}

func (s *RecordingSink) PublishLastAction(deviceID, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActions = append(s.LastActions, LastActionRecord{DeviceID: deviceID, Action: action})
}

func (s *RecordingSink) PublishLastValue(deviceID string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastValues = append(s.LastValues, LastValueRecord{DeviceID: deviceID, Value: value})
}

// Actions returns the emitted action strings in order.
func (s *RecordingSink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Events))
	for i, ev := range s.Events {
		out[i] = ev.Action
	}
	return out
}

func (s *RecordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = nil
	s.LastActions = nil
	s.LastValues = nil
}

// ----------------------------
// ManualClock
// ----------------------------

// ManualClock is a settable time source for rate-limit tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
