package sink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/essence/internal/remote"
	"github.com/srg/essence/internal/sink"
	"github.com/srg/essence/internal/testutils"
)

func TestDispatcherFansOut(t *testing.T) {
	th := testutils.NewTestHelper(t)
	a := testutils.NewRecordingSink()
	b := testutils.NewRecordingSink()

	d := sink.NewDispatcher(th.Logger, a, b)
	d.Start()

	d.Emit(remote.Event{Action: "up_single", Clicks: 1, DeviceID: "dev"})
	d.PublishLastAction("dev", "up_single")
	d.PublishLastValue("dev", 0.0)
	d.Stop()

	for _, s := range []*testutils.RecordingSink{a, b} {
		assert.Equal(t, []string{"up_single"}, s.Actions())
		assert.Equal(t, []testutils.LastActionRecord{{DeviceID: "dev", Action: "up_single"}}, s.LastActions)
		assert.Equal(t, []testutils.LastValueRecord{{DeviceID: "dev", Value: 0.0}}, s.LastValues)
	}
}

func TestDispatcherStopDrains(t *testing.T) {
	th := testutils.NewTestHelper(t)
	rec := testutils.NewRecordingSink()

	d := sink.NewDispatcher(th.Logger, rec)
	d.Start()

	for i := 0; i < 100; i++ {
		d.Emit(remote.Event{Action: "rotate_right", Clicks: -1, DeviceID: "dev"})
	}
	d.Stop()
	d.Stop() // idempotent

	assert.Len(t, rec.Actions(), 100, "Stop MUST wait for queued events to drain")
}

type panickySink struct{}

func (panickySink) Emit(remote.Event)                { panic("sink exploded") }
func (panickySink) PublishLastAction(string, string) {}
func (panickySink) PublishLastValue(string, float64) {}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	th := testutils.NewTestHelper(t)
	rec := testutils.NewRecordingSink()

	d := sink.NewDispatcher(th.Logger, rec, panickySink{})
	d.Start()

	d.Emit(remote.Event{Action: "up_single", DeviceID: "dev"})
	d.Emit(remote.Event{Action: "down_single", DeviceID: "dev"})
	d.Stop()

	// Each delivery round panicked after rec, yet the dispatcher kept
	// draining instead of dying on the first one.
	assert.Equal(t, []string{"up_single", "down_single"}, rec.Actions())
	assert.NotPanics(t, func() {
		d.PublishLastAction("dev", "noop") // dropped after Stop
	})
}
