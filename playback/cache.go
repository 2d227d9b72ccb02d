// Package playback owns the process-wide audio output contexts and plays
// model audio from a live session into them.
//
// Contexts are keyed by id. The first successful acquisition for an id is
// cached for the life of the process and returned to every later caller.
// Concurrent acquisitions of the same id share one attempt, so no id ever
// has two contexts. Some outputs may only start after the user has
// interacted with the application; their open function returns
// ErrGestureRequired, and acquisition then waits for NotifyInteraction and
// retries exactly once.
package playback

import (
	"context"
	"errors"
	"io"
	"sync"

	"livelink/core"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ErrGestureRequired is returned by an open function that cannot start
// output before a user interaction.
var ErrGestureRequired = errors.New("playback: user interaction required")

var (
	contexts = cache.New(cache.NoExpiration, 0)
	acquires singleflight.Group

	gestureMu   sync.Mutex
	gesture     = make(chan struct{})
	gestureSeen bool
)

// Options describe a context to acquire.
type Options struct {
	// ID keys the cache. An empty ID opens an uncached context.
	ID string
	// Format, SampleRate and Channels describe the output. Zero values mean
	// PCM16 mono at the model's 24 kHz, written unchanged.
	Format     core.AudioEncodingFormat
	SampleRate int
	Channels   int
	// WAV prefixes the output with a RIFF header.
	WAV bool
	// Open creates the output. Nil discards audio.
	Open func() (io.WriteCloser, error)
}

// NotifyInteraction records that the user interacted with the application
// and releases acquisitions waiting on it.
func NotifyInteraction() {
	gestureMu.Lock()
	defer gestureMu.Unlock()
	if !gestureSeen {
		gestureSeen = true
		close(gesture)
	}
}

// Interacted reports whether NotifyInteraction has been called.
func Interacted() bool {
	gestureMu.Lock()
	defer gestureMu.Unlock()
	return gestureSeen
}

func interaction() <-chan struct{} {
	gestureMu.Lock()
	defer gestureMu.Unlock()
	return gesture
}

// RequireInteraction wraps open so it fails with ErrGestureRequired until
// NotifyInteraction has been called.
func RequireInteraction(open func() (io.WriteCloser, error)) func() (io.WriteCloser, error) {
	return func() (io.WriteCloser, error) {
		if !Interacted() {
			return nil, ErrGestureRequired
		}
		if open == nil {
			return nopCloser{io.Discard}, nil
		}
		return open()
	}
}

// Acquire returns the cached context for opts.ID or opens a new one.
func Acquire(ctx context.Context, opts Options) (*Context, error) {
	if opts.ID == "" {
		return openWithGesture(ctx, opts)
	}
	if v, ok := contexts.Get(opts.ID); ok {
		return v.(*Context), nil
	}

	v, err, _ := acquires.Do(opts.ID, func() (interface{}, error) {
		if v, ok := contexts.Get(opts.ID); ok {
			return v, nil
		}
		c, err := openWithGesture(ctx, opts)
		if err != nil {
			return nil, err
		}
		contexts.Set(opts.ID, c, cache.NoExpiration)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

// Release closes and forgets the context cached under id.
func Release(id string) error {
	v, ok := contexts.Get(id)
	if !ok {
		return nil
	}
	contexts.Delete(id)
	return v.(*Context).Close()
}

func openWithGesture(ctx context.Context, opts Options) (*Context, error) {
	c, err := newContext(opts)
	if !errors.Is(err, ErrGestureRequired) {
		return c, err
	}

	select {
	case <-interaction():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return newContext(opts)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
