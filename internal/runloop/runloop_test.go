package runloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New("test", nil)
	l.Start()
	defer l.Stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			if len(got) == 10 {
				close(done)
			}
			mu.Unlock()
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	l := New("test", nil)
	l.Start()
	defer l.Stop()

	done := make(chan struct{})
	l.Post(func() { panic("task gone wrong") })
	l.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop died after a panicking task")
	}
}

func TestPostAfterStopDoesNotBlock(t *testing.T) {
	l := New("test", nil)
	l.Start()
	l.Stop()
	l.Stop() // idempotent

	done := make(chan struct{})
	go func() {
		// Flood past the channel capacity; all must be dropped.
		for i := 0; i < 1000; i++ {
			l.Post(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked after Stop")
	}
}
