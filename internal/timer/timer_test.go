package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArmFires(t *testing.T) {
	s := NewService(nil)
	defer s.CancelAll()

	var fired atomic.Int32
	s.Arm("t", 10*time.Millisecond, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestRearmReplaces(t *testing.T) {
	s := NewService(nil)
	defer s.CancelAll()

	var first, second atomic.Int32
	s.Arm("t", 10*time.Millisecond, func() { first.Add(1) })
	s.Arm("t", 20*time.Millisecond, func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, first.Load(), "replaced timer MUST NOT fire")
}

func TestCancel(t *testing.T) {
	s := NewService(nil)
	defer s.CancelAll()

	var fired atomic.Int32
	s.Arm("t", 20*time.Millisecond, func() { fired.Add(1) })
	s.Cancel("t")
	s.Cancel("never-armed") // no-op

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestIndependentNames(t *testing.T) {
	s := NewService(nil)
	defer s.CancelAll()

	var a, b atomic.Int32
	s.Arm("a", 10*time.Millisecond, func() { a.Add(1) })
	s.Arm("b", 10*time.Millisecond, func() { b.Add(1) })
	s.Cancel("a")

	assert.Eventually(t, func() bool { return b.Load() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, a.Load())
}

func TestCancelAll(t *testing.T) {
	s := NewService(nil)

	var fired atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		s.Arm(name, 20*time.Millisecond, func() { fired.Add(1) })
	}
	s.CancelAll()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestCallbacksRunOnExecutor(t *testing.T) {
	var mu sync.Mutex
	var order []string
	exec := func(fn func()) {
		mu.Lock()
		order = append(order, "exec")
		mu.Unlock()
		fn()
	}

	s := NewService(exec)
	defer s.CancelAll()

	done := make(chan struct{})
	s.Arm("t", 10*time.Millisecond, func() {
		mu.Lock()
		order = append(order, "fn")
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"exec", "fn"}, order)
}
