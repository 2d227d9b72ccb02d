package playback

import (
	"context"
	"sync"
	"time"

	"livelink/audio"
	"livelink/core"
	"livelink/events/live"
)

const defaultQueueSize = 256

// Player writes model audio from the bus into a playback context. Audio
// queued but not yet written is dropped when the turn is interrupted.
type Player struct {
	bus    *core.EventBus
	opts   Options
	logger *core.Logger

	// Paced sleeps for each chunk's duration after writing it, like a
	// device that consumes audio in real time.
	Paced bool

	queue chan []byte
	mu    sync.Mutex
	subs  []core.Subscription
}

func NewPlayer(bus *core.EventBus, opts Options, logger *core.Logger) *Player {
	if logger == nil {
		logger = core.GetLogger().With(map[string]interface{}{"component": "playback"})
	}
	return &Player{
		bus:    bus,
		opts:   opts,
		logger: logger,
		queue:  make(chan []byte, defaultQueueSize),
	}
}

// Run acquires the context and plays until ctx is done. It blocks while
// acquisition waits for a user interaction.
func (p *Player) Run(ctx context.Context) error {
	out, err := Acquire(ctx, p.opts)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.subs = []core.Subscription{
		core.Subscribe(p.bus, p.enqueue),
		core.Subscribe(p.bus, func(*live.InterruptedEvent) { p.Flush() }),
	}
	p.mu.Unlock()
	defer p.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pcm := <-p.queue:
			if _, err := out.Write(pcm); err != nil {
				return err
			}
			if p.Paced {
				if !sleep(ctx, chunkDuration(pcm)) {
					return nil
				}
			}
		}
	}
}

// Flush drops every queued chunk.
func (p *Player) Flush() {
	dropped := 0
	for {
		select {
		case <-p.queue:
			dropped++
		default:
			if dropped > 0 {
				p.logger.Debug("dropped queued audio", "chunks", dropped)
			}
			return
		}
	}
}

func (p *Player) enqueue(ev *live.AudioEvent) {
	select {
	case p.queue <- ev.Data:
	default:
		p.logger.Warn("playback queue full, dropping audio", "bytes", len(ev.Data))
	}
}

func (p *Player) unsubscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subs {
		p.bus.Off(sub)
	}
	p.subs = nil
}

// chunkDuration is the play time of a chunk of model audio.
func chunkDuration(pcm []byte) time.Duration {
	return time.Duration(len(pcm)/2) * time.Second / audio.OutputSampleRate
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
