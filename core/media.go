package core

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // 16-bit little-endian pulse-code modulation.
	ULAW                            // μ-law encoding format.
	ALAW                            // A-law encoding format.
)

type AudioChunk struct {
	Data       []byte              // Raw audio data.
	SampleRate int                 // Sample rate of the audio data.
	Channels   int                 // Number of audio channels.
	Format     AudioEncodingFormat // Encoding format of the audio data.
	Timestamp  time.Time           // Capture time of the chunk.
}

func (ac *AudioChunk) GetDurationInSeconds() float64 {
	if ac.SampleRate == 0 || ac.Channels == 0 {
		return 0.0
	}
	bytesPerSample := 2
	if ac.Format != PCM {
		bytesPerSample = 1 // G.711 is one byte per sample
	}
	totalSamples := len(ac.Data) / (bytesPerSample * ac.Channels)
	return float64(totalSamples) / float64(ac.SampleRate)
}

// Mime types used on the realtime input path.
const (
	MimeTypePCM16k = "audio/pcm;rate=16000"
	MimeTypeJPEG   = "image/jpeg"
)

type ChunkKind int

const (
	ChunkKindOther ChunkKind = iota
	ChunkKindAudio
	ChunkKindImage
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkKindAudio:
		return "audio"
	case ChunkKindImage:
		return "image"
	default:
		return "other"
	}
}

// Chunk is one unit of media sent in a realtime input batch. Data holds the
// raw bytes; the JSON encoding carries them as standard base64.
type Chunk struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Kind tags the chunk by its mime type prefix.
func (c Chunk) Kind() ChunkKind {
	switch {
	case strings.HasPrefix(c.MimeType, "audio/"):
		return ChunkKindAudio
	case strings.HasPrefix(c.MimeType, "image/"):
		return ChunkKindImage
	default:
		return ChunkKindOther
	}
}

var ErrInvalidDataURL = errors.New("invalid data url")

// ChunkFromDataURL strips the "data:<mime>;base64," framing produced by
// browser canvas and recorder APIs and decodes the payload.
func ChunkFromDataURL(dataURL string) (Chunk, error) {
	header, payload, found := strings.Cut(dataURL, ",")
	if !found || !strings.HasPrefix(header, "data:") {
		return Chunk{}, ErrInvalidDataURL
	}
	mimeType := strings.TrimPrefix(header, "data:")
	mimeType = strings.TrimSuffix(mimeType, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Chunk{}, fmt.Errorf("data url payload: %w", err)
	}
	return Chunk{MimeType: mimeType, Data: data}, nil
}
