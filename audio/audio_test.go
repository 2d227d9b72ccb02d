package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"livelink/core"
	"livelink/events/live"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

type fakeSender struct {
	mu   sync.Mutex
	open bool
	sent []core.Chunk
}

func (f *fakeSender) SendRealtimeInput(chunks []core.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return core.ErrNotConnected
	}
	f.sent = append(f.sent, chunks...)
	return nil
}

func (f *fakeSender) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func TestWAVHeader(t *testing.T) {
	wav := WAVHeader(8, 1, OutputSampleRate)

	require.Len(t, wav, 44)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36+8), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(OutputSampleRate), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestValidatePCMData(t *testing.T) {
	assert.Error(t, ValidatePCMData(nil, 1))
	assert.Error(t, ValidatePCMData([]byte{1}, 1))
	assert.Error(t, ValidatePCMData(pcm16(1), 2))
	assert.NoError(t, ValidatePCMData(pcm16(1, 2), 2))
}

func TestResamplePCM(t *testing.T) {
	in := pcm16(0, 100, 200, 300)

	up, err := ResamplePCM(in, 1, 8000, 16000)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 50, 100, 150, 200, 250, 300, 300}, samples(up))

	down, err := ResamplePCM(in, 1, 16000, 8000)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 200}, samples(down))

	same, err := ResamplePCM(in, 1, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, in, same)
}

func TestConvertStereoULawTo16kMono(t *testing.T) {
	stereo := pcm16(1000, 3000, -2000, -4000)
	ulaw, err := PCMBytesToULaw(stereo)
	require.NoError(t, err)

	out, err := ConvertAudioChunk(core.AudioChunk{
		Data: ulaw, SampleRate: 8000, Channels: 2, Format: core.ULAW,
	}, core.PCM, 1, InputSampleRate)
	require.NoError(t, err)

	assert.Equal(t, core.PCM, out.Format)
	assert.Equal(t, 1, out.Channels)
	assert.Equal(t, InputSampleRate, out.SampleRate)
	assert.Len(t, out.Data, 4*2)
	got := samples(out.Data)
	assert.InDelta(t, 2000, got[0], 100)
	assert.InDelta(t, -3000, got[2], 150)
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS(pcm16(16384, -16384)), 1e-9)
}

func TestStreamerSendsWhileOpen(t *testing.T) {
	bus := core.NewEventBus()
	var levels []float64
	core.Subscribe(bus, func(ev *live.InputVolumeEvent) { levels = append(levels, ev.Level) })

	sender := &fakeSender{open: true}
	s := NewStreamer(sender, bus, nil)

	src := NewReaderSource(bytes.NewReader(pcm16(100, 200, 300, 400, 500)), core.PCM, InputSampleRate, 1,
		time.Duration(2*time.Second/InputSampleRate))
	require.NoError(t, s.Run(context.Background(), src))

	require.Len(t, sender.sent, 3)
	for _, c := range sender.sent {
		assert.Equal(t, core.MimeTypePCM16k, c.MimeType)
	}
	assert.Equal(t, pcm16(100, 200), sender.sent[0].Data)
	assert.Equal(t, pcm16(500), sender.sent[2].Data)
	assert.Len(t, levels, 3)
}

func TestStreamerMutedOrClosed(t *testing.T) {
	sender := &fakeSender{open: true}
	s := NewStreamer(sender, nil, nil)
	s.SetMuted(true)
	assert.True(t, s.Muted())

	src := NewReaderSource(bytes.NewReader(pcm16(1, 2, 3, 4)), core.PCM, InputSampleRate, 1, 10*time.Millisecond)
	require.NoError(t, s.Run(context.Background(), src))
	assert.Empty(t, sender.sent)

	s.SetMuted(false)
	sender.open = false
	src = NewReaderSource(bytes.NewReader(pcm16(1, 2, 3, 4)), core.PCM, InputSampleRate, 1, 10*time.Millisecond)
	require.NoError(t, s.Run(context.Background(), src))
	assert.Empty(t, sender.sent)
}

func TestReaderSourceZeroSettingsFallBack(t *testing.T) {
	src := NewReaderSource(bytes.NewReader(pcm16(1, 2, 3)), core.PCM, 0, 0, 0)

	var chunk core.AudioChunk
	require.NotPanics(t, func() {
		var err error
		chunk, err = src.Read(context.Background())
		require.NoError(t, err)
	})
	assert.Equal(t, pcm16(1, 2, 3), chunk.Data)
	assert.Equal(t, 1, chunk.Channels)
	assert.Equal(t, InputSampleRate, chunk.SampleRate)

	_, err := src.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStreamer(&fakeSender{open: true}, nil, nil)
	src := NewReaderSource(bytes.NewReader(pcm16(1, 2)), core.PCM, InputSampleRate, 1, 10*time.Millisecond)
	assert.ErrorIs(t, s.Run(ctx, src), context.Canceled)
}
