package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"livelink/audio"
	"livelink/core"
)

var ErrClosed = errors.New("playback: context closed")

// Context is one audio output. It accepts model audio (24 kHz mono PCM16)
// and writes it in its own format, channel count and rate.
type Context struct {
	ID         string
	Format     core.AudioEncodingFormat
	SampleRate int
	Channels   int

	mu      sync.Mutex
	out     io.WriteCloser
	wav     bool
	written int
	closed  bool
}

func newContext(opts Options) (*Context, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.OutputSampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.WAV && opts.Format != core.PCM {
		return nil, errors.New("playback: wav output requires pcm")
	}

	var out io.WriteCloser = nopCloser{io.Discard}
	if opts.Open != nil {
		w, err := opts.Open()
		if err != nil {
			return nil, err
		}
		out = w
	}

	c := &Context{
		ID:         opts.ID,
		Format:     opts.Format,
		SampleRate: opts.SampleRate,
		Channels:   opts.Channels,
		out:        out,
		wav:        opts.WAV,
	}
	if c.wav {
		// size is patched on Close when the output can seek
		if _, err := out.Write(audio.WAVHeader(0, c.Channels, c.SampleRate)); err != nil {
			out.Close()
			return nil, fmt.Errorf("playback: write wav header: %w", err)
		}
	}
	return c, nil
}

// FileOpener creates (or truncates) path for each new context.
func FileOpener(path string) func() (io.WriteCloser, error) {
	return func() (io.WriteCloser, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("playback: create %q: %w", path, err)
		}
		return f, nil
	}
}

// Write converts model audio to the context's output and writes it. It
// reports len(pcm) on success regardless of the converted size.
func (c *Context) Write(pcm []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if len(pcm) == 0 {
		return 0, nil
	}

	data := pcm
	if c.Format != core.PCM || c.Channels != 1 || c.SampleRate != audio.OutputSampleRate {
		// a trailing half sample cannot be converted
		even := pcm[:len(pcm)&^1]
		if len(even) == 0 {
			return len(pcm), nil
		}
		chunk, err := audio.ConvertAudioChunk(core.AudioChunk{
			Data:       even,
			SampleRate: audio.OutputSampleRate,
			Channels:   1,
			Format:     core.PCM,
		}, c.Format, c.Channels, c.SampleRate)
		if err != nil {
			return 0, fmt.Errorf("playback: convert: %w", err)
		}
		data = chunk.Data
	}

	n, err := c.out.Write(data)
	c.written += n
	if err != nil {
		return 0, err
	}
	return len(pcm), nil
}

// Written returns the number of output bytes written so far.
func (c *Context) Written() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if ws, ok := c.out.(io.WriteSeeker); ok && c.wav {
		if _, err := ws.Seek(0, io.SeekStart); err == nil {
			ws.Write(audio.WAVHeader(c.written, c.Channels, c.SampleRate))
		}
	}
	return c.out.Close()
}
