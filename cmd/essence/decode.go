package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/essence/internal/remote"
	"github.com/srg/essence/internal/runloop"
	"github.com/srg/essence/internal/timer"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <payload>...",
	Short: "Replay raw notification payloads through the gesture decoder",
	Long: `Replay a sequence of hex notification payloads through the gesture
decoder and print the events it produces, without any BLE hardware.

Each argument is a hex-encoded payload as the remote would have sent it
(e.g. 0006 is the up button going down, 0000 is the release). An argument
of the form +<duration> inserts a pause, so multi-press and long-press
timing can be exercised:

  essence decode 0006 0000                  # single click
  essence decode 0006 0000 +100ms 0006 0000 # double click
  essence decode 0006 +2s 0000              # long press`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

var decodeGap time.Duration

func init() {
	decodeCmd.Flags().DurationVar(&decodeGap, "gap", 50*time.Millisecond, "Implicit pause between payloads")
}

// printSink writes decoded events to stdout as they happen.
type printSink struct {
	mu    sync.Mutex
	start time.Time
}

func (s *printSink) Emit(ev remote.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := time.Since(s.start).Truncate(time.Millisecond)
	if ev.Clicks > 0 {
		fmt.Printf("%8s  %s (clicks=%d)\n", elapsed, ev.Action, ev.Clicks)
		return
	}
	fmt.Printf("%8s  %s\n", elapsed, ev.Action)
}

func (s *printSink) PublishLastAction(string, string) {}

func (s *printSink) PublishLastValue(string, float64) {}

// decodeStep is one unit of the replay: either a payload or a pause.
type decodeStep struct {
	payload []byte
	pause   time.Duration
}

// parseSteps validates every argument before anything is played back.
func parseSteps(args []string) ([]decodeStep, error) {
	steps := make([]decodeStep, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, "+") {
			d, err := time.ParseDuration(arg[1:])
			if err != nil {
				return nil, fmt.Errorf("invalid pause %q: %w", arg, err)
			}
			steps = append(steps, decodeStep{pause: d})
			continue
		}
		payload, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid hex payload %q: %w", arg, err)
		}
		steps = append(steps, decodeStep{payload: payload})
	}
	return steps, nil
}

// playSteps delivers every payload on the event loop. The gesture engine
// expects all of its entry points on one goroutine, and its timers already
// fire through the loop, so payloads must go the same way.
func playSteps(loop *runloop.Loop, engine *remote.GestureEngine, steps []decodeStep, gap time.Duration) {
	for i, st := range steps {
		if st.payload == nil {
			time.Sleep(st.pause)
			continue
		}
		if i > 0 {
			time.Sleep(gap)
		}
		payload := st.payload
		loop.Post(func() { engine.HandlePayload(payload) })
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "error")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	steps, err := parseSteps(args)
	if err != nil {
		return err
	}

	sink := &printSink{start: time.Now()}
	loop := runloop.New("decode", logger)
	loop.Start()
	timers := timer.NewService(loop.Post)

	engine := remote.NewGestureEngine("decode", timers, sink, logger)

	playSteps(loop, engine, steps, decodeGap)

	// Give pending multi-press and long-press timers a chance to fire
	time.Sleep(remote.DefaultMultiPressGap + 100*time.Millisecond)

	timers.CancelAll()
	loop.Stop()

	_ = os.Stdout.Sync()
	return nil
}
