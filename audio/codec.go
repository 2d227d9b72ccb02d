// Package audio converts captured microphone audio into the 16 kHz mono
// PCM16 the live session expects, and streams it as realtime input.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"livelink/core"

	"github.com/zaf/g711"
)

// PCM constants
const (
	pcmMax = 32767  // Max 16-bit PCM value
	pcmMin = -32768 // Min 16-bit PCM value
)

// Rates used on the wire: microphone input and model output.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

var (
	// Pool for WAV header buffers (typically 44-46 bytes)
	wavHeaderPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 64))
		},
	}

	// Pool for temporary buffers used in channel conversion
	channelConvPool = sync.Pool{
		New: func() interface{} {
			return make([]byte, 0, 4096)
		},
	}
)

func getChannelConvBuffer(capacity int) []byte {
	buf := channelConvPool.Get().([]byte)
	if cap(buf) < capacity {
		return make([]byte, capacity)
	}
	return buf[:capacity]
}

func putChannelConvBuffer(buf []byte) {
	if cap(buf) <= 32768 { // Don't pool very large buffers
		channelConvPool.Put(buf[:0])
	}
}

// PCMBytesToULaw converts PCM bytes to µ-law
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULawBytesToPCM converts µ-law bytes to PCM bytes
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// PCMBytesToALaw converts PCM bytes to A-law
func PCMBytesToALaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeAlaw(pcm), nil
}

// ALawBytesToPCM converts A-law bytes to PCM bytes
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// WAVHeader returns a 44 byte RIFF header for dataSize bytes of 16-bit PCM.
func WAVHeader(dataSize, numChannels, sampleRate int) []byte {
	buf := wavHeaderPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		wavHeaderPool.Put(buf)
	}()

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
	)
	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// ValidatePCMData validates PCM byte array for basic integrity
func ValidatePCMData(pcm []byte, numChannels int) error {
	if len(pcm)%2 != 0 {
		return errors.New("PCM data must have even length (16-bit samples)")
	}
	if len(pcm) == 0 {
		return errors.New("PCM data is empty")
	}
	if numChannels <= 0 {
		return errors.New("invalid number of channels")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return errors.New("PCM data length doesn't match channel count")
	}
	return nil
}

// RMS returns the root mean square level of 16-bit PCM, normalised to 0..1.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// ResamplePCM converts interleaved 16-bit PCM between sample rates with
// linear interpolation.
func ResamplePCM(pcm []byte, channels, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if err := ValidatePCMData(pcm, channels); err != nil {
		return nil, err
	}
	if fromRate == toRate {
		return pcm, nil
	}

	frames := len(pcm) / (2 * channels)
	outFrames := int(int64(frames) * int64(toRate) / int64(fromRate))
	out := make([]byte, outFrames*2*channels)

	sample := func(frame, ch int) float64 {
		off := (frame*channels + ch) * 2
		return float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
	}

	step := float64(fromRate) / float64(toRate)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= frames {
			next = frames - 1
		}
		for ch := 0; ch < channels; ch++ {
			s0 := sample(idx, ch)
			v := s0 + (sample(next, ch)-s0)*frac
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(clamp(v)))
		}
	}
	return out, nil
}

func clamp(v float64) int16 {
	v = math.Round(v)
	if v > pcmMax {
		return pcmMax
	}
	if v < pcmMin {
		return pcmMin
	}
	return int16(v)
}

// ConvertAudioChunk converts audio data between formats, sample rates and
// channel counts.
func ConvertAudioChunk(
	input core.AudioChunk,
	targetFormat core.AudioEncodingFormat,
	targetChannels int,
	targetSampleRate int,
) (core.AudioChunk, error) {
	needToConvertFormat := input.Format != targetFormat
	needToConvertSampleRate := input.SampleRate != targetSampleRate
	needToConvertChannels := input.Channels != targetChannels

	if !needToConvertFormat && !needToConvertSampleRate && !needToConvertChannels {
		return input, nil
	}

	// PCM is the intermediate format
	if input.Format != core.PCM {
		pcmBytes, err := convertToPCM(input)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = pcmBytes
		input.Format = core.PCM
	}

	if needToConvertChannels {
		pcmBytes, err := convertChannels(input.Data, input.Channels, targetChannels)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = pcmBytes
		input.Channels = targetChannels
	}

	if needToConvertSampleRate {
		resampled, err := ResamplePCM(input.Data, input.Channels, input.SampleRate, targetSampleRate)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = resampled
		input.SampleRate = targetSampleRate
	}

	if needToConvertFormat && targetFormat != core.PCM {
		converted, err := convertFromPCM(input.Data, targetFormat)
		if err != nil {
			return core.AudioChunk{}, err
		}
		input.Data = converted
		input.Format = targetFormat
	}

	return input, nil
}

func convertToPCM(input core.AudioChunk) ([]byte, error) {
	switch input.Format {
	case core.ULAW:
		return ULawBytesToPCM(input.Data), nil
	case core.ALAW:
		return ALawBytesToPCM(input.Data), nil
	default:
		return nil, errors.New("unsupported format for PCM conversion")
	}
}

func convertFromPCM(pcm []byte, targetFormat core.AudioEncodingFormat) ([]byte, error) {
	switch targetFormat {
	case core.ULAW:
		return PCMBytesToULaw(pcm)
	case core.ALAW:
		return PCMBytesToALaw(pcm)
	default:
		return nil, errors.New("unsupported target format")
	}
}

func convertChannels(pcm []byte, fromChannels, toChannels int) ([]byte, error) {
	if fromChannels == toChannels {
		return pcm, nil
	}
	if fromChannels == 1 && toChannels == 2 {
		return monoToStereo(pcm), nil
	}
	if fromChannels == 2 && toChannels == 1 {
		return stereoToMono(pcm), nil
	}
	return nil, fmt.Errorf("unsupported channel conversion: %d to %d", fromChannels, toChannels)
}

func monoToStereo(monoPCM []byte) []byte {
	samples := len(monoPCM) / 2
	result := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		result[i*4] = monoPCM[i*2]
		result[i*4+1] = monoPCM[i*2+1]
		result[i*4+2] = monoPCM[i*2]
		result[i*4+3] = monoPCM[i*2+1]
	}
	return result
}

// stereoToMono averages the two channels.
func stereoToMono(stereoPCM []byte) []byte {
	samples := len(stereoPCM) / 4
	resultSize := samples * 2

	scratch := getChannelConvBuffer(resultSize)
	defer putChannelConvBuffer(scratch)

	for i := range samples {
		left := int16(binary.LittleEndian.Uint16(stereoPCM[i*4 : i*4+2]))
		right := int16(binary.LittleEndian.Uint16(stereoPCM[i*4+2 : i*4+4]))
		mono := (int(left) + int(right)) / 2
		binary.LittleEndian.PutUint16(scratch[i*2:], uint16(int16(mono)))
	}

	// pooled buffer must not escape
	out := make([]byte, resultSize)
	copy(out, scratch)
	return out
}
