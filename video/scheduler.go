package video

import (
	"context"
	"errors"
	"sync"
	"time"

	"livelink/core"
	"livelink/events/live"
)

// FramesPerSecond is the capture cadence: one frame every two seconds.
const FramesPerSecond = 0.5

// Interval is the delay between captures derived from FramesPerSecond.
const Interval = time.Duration(float64(time.Second) / FramesPerSecond)

// Sender is the part of the session client the scheduler needs.
type Sender interface {
	SendRealtimeInput(chunks []core.Chunk) error
	IsOpen() bool
}

// Scheduler captures, encodes and sends one frame per Interval while the
// session is open and a source is attached. Each tick checks its
// cancellation token before capturing and again before rescheduling.
type Scheduler struct {
	sender   Sender
	encoder  *Encoder
	logger   *core.Logger
	interval time.Duration

	mu     sync.Mutex
	source FrameSource
	cancel context.CancelFunc
	done   chan struct{}
	subs   []core.Subscription
	bus    *core.EventBus
}

func NewScheduler(sender Sender, encoder *Encoder, logger *core.Logger) *Scheduler {
	if encoder == nil {
		encoder = NewEncoder()
	}
	if logger == nil {
		logger = core.GetLogger().With(map[string]interface{}{"component": "video"})
	}
	return &Scheduler{
		sender:   sender,
		encoder:  encoder,
		logger:   logger,
		interval: Interval,
	}
}

// Attach makes source the active stream, replacing any previous one, and
// starts capturing if the session is open.
func (s *Scheduler) Attach(source FrameSource) {
	s.mu.Lock()
	s.stopLocked()
	s.source = source
	s.mu.Unlock()

	s.Start()
}

// Detach removes the active source and cancels any pending capture.
func (s *Scheduler) Detach() {
	s.mu.Lock()
	s.stopLocked()
	s.source = nil
	s.mu.Unlock()
}

// Start begins capturing when a source is attached, the session is open and
// no capture loop is already running. The first frame is captured at once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil || !s.sender.IsOpen() || s.runningLocked() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.source, s.done)
}

// Stop cancels the capture loop and waits for it to exit. The source stays
// attached so a later Start resumes it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

// Running reports whether a capture loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// Bind starts the scheduler on open and stops it on close.
func (s *Scheduler) Bind(bus *core.EventBus) {
	s.Unbind()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus = bus
	s.subs = []core.Subscription{
		core.Subscribe(bus, func(*live.OpenEvent) { s.Start() }),
		core.Subscribe(bus, func(*live.CloseEvent) { s.Stop() }),
	}
}

func (s *Scheduler) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		s.bus.Off(sub)
	}
	s.subs = nil
	s.bus = nil
}

func (s *Scheduler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Scheduler) run(ctx context.Context, source FrameSource, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if ctx.Err() != nil || !s.sender.IsOpen() {
			return
		}
		s.tick(ctx, source)

		if ctx.Err() != nil || !s.sender.IsOpen() {
			return
		}
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) tick(ctx context.Context, source FrameSource) {
	img, err := source.Frame(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("frame capture failed", "error", err)
		}
		return
	}

	chunk, err := s.encoder.Encode(img)
	if errors.Is(err, ErrEmptyFrame) {
		s.logger.Debug("skipping empty frame")
		return
	}
	if err != nil {
		s.logger.Warn("frame encode failed", "error", err)
		return
	}

	if err := s.sender.SendRealtimeInput([]core.Chunk{chunk}); err != nil && !errors.Is(err, core.ErrNotConnected) {
		s.logger.Warn("frame send failed", "error", err)
	}
}
