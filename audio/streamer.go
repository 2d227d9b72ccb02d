package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"livelink/core"
	"livelink/events/live"
)

// Source yields captured audio chunks. Read returns io.EOF when the capture
// has ended.
type Source interface {
	Read(ctx context.Context) (core.AudioChunk, error)
}

// Sender is the part of the session client the streamer needs.
type Sender interface {
	SendRealtimeInput(chunks []core.Chunk) error
	IsOpen() bool
}

// Streamer forwards microphone audio as audio/pcm;rate=16000 realtime input
// while the session is open and the microphone is not muted.
type Streamer struct {
	sender Sender
	bus    *core.EventBus
	logger *core.Logger
	muted  atomic.Bool
}

func NewStreamer(sender Sender, bus *core.EventBus, logger *core.Logger) *Streamer {
	if logger == nil {
		logger = core.GetLogger().With(map[string]interface{}{"component": "audio"})
	}
	return &Streamer{sender: sender, bus: bus, logger: logger}
}

func (s *Streamer) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *Streamer) Muted() bool {
	return s.muted.Load()
}

// Run pumps src until it is exhausted or ctx is done. Chunks read while the
// session is closed or muted are discarded.
func (s *Streamer) Run(ctx context.Context, src Source) error {
	for {
		chunk, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("audio: read source: %w", err)
		}

		if s.muted.Load() || !s.sender.IsOpen() {
			continue
		}
		if err := s.Push(chunk); err != nil {
			s.logger.Warn("dropping microphone chunk", "error", err)
		}
	}
}

// Push converts one chunk and sends it.
func (s *Streamer) Push(chunk core.AudioChunk) error {
	pcm, err := ConvertAudioChunk(chunk, core.PCM, 1, InputSampleRate)
	if err != nil {
		return err
	}
	if len(pcm.Data) == 0 {
		return nil
	}

	if s.bus != nil {
		s.bus.Emit(&live.InputVolumeEvent{Level: RMS(pcm.Data)})
	}

	err = s.sender.SendRealtimeInput([]core.Chunk{{MimeType: core.MimeTypePCM16k, Data: pcm.Data}})
	if errors.Is(err, core.ErrNotConnected) {
		return nil
	}
	return err
}

// ReaderSource cuts a raw audio stream into fixed-duration chunks.
type ReaderSource struct {
	r          io.Reader
	format     core.AudioEncodingFormat
	sampleRate int
	channels   int
	frameBytes int
	chunkBytes int
	chunkDur   time.Duration

	// Pace delivers chunks no faster than real time.
	Pace bool
	last time.Time
}

// NewReaderSource reads raw audio from r. Non-positive sampleRate, channels
// or chunkDur fall back to 16 kHz mono in 100 ms chunks.
func NewReaderSource(r io.Reader, format core.AudioEncodingFormat, sampleRate, channels int, chunkDur time.Duration) *ReaderSource {
	if sampleRate <= 0 {
		sampleRate = InputSampleRate
	}
	if channels < 1 {
		channels = 1
	}
	if chunkDur <= 0 {
		chunkDur = 100 * time.Millisecond
	}
	bytesPerSample := 2
	if format != core.PCM {
		bytesPerSample = 1
	}
	frames := int(time.Duration(sampleRate) * chunkDur / time.Second)
	if frames < 1 {
		frames = 1
	}
	return &ReaderSource{
		r:          r,
		format:     format,
		sampleRate: sampleRate,
		channels:   channels,
		frameBytes: bytesPerSample * channels,
		chunkBytes: frames * bytesPerSample * channels,
		chunkDur:   chunkDur,
	}
}

func (rs *ReaderSource) Read(ctx context.Context) (core.AudioChunk, error) {
	if err := rs.wait(ctx); err != nil {
		return core.AudioChunk{}, err
	}

	buf := make([]byte, rs.chunkBytes)
	n, err := io.ReadFull(rs.r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if n == 0 && err == nil {
		err = io.EOF
	}
	if err != nil {
		return core.AudioChunk{}, err
	}

	// keep whole frames only
	n -= n % rs.frameBytes
	if n == 0 {
		return core.AudioChunk{}, io.EOF
	}
	return core.AudioChunk{
		Data:       buf[:n],
		SampleRate: rs.sampleRate,
		Channels:   rs.channels,
		Format:     rs.format,
		Timestamp:  time.Now(),
	}, nil
}

func (rs *ReaderSource) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rs.Pace || rs.last.IsZero() {
		rs.last = time.Now()
		return nil
	}
	delay := time.Until(rs.last.Add(rs.chunkDur))
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	rs.last = time.Now()
	return nil
}
