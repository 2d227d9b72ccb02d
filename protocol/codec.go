package protocol

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

// wire is std-compatible so payloads round-trip exactly like encoding/json,
// including []byte as standard base64.
var wire = sonic.ConfigStd

// serverEnvelope mirrors the top-level keys the server may send. Pointer
// fields distinguish "absent or null" from "present".
type serverEnvelope struct {
	SetupComplete        *SetupComplete                        `json:"setupComplete,omitempty"`
	ToolCall             *genai.LiveServerToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *genai.LiveServerToolCallCancellation `json:"toolCallCancellation,omitempty"`
	ServerContent        *ServerContent                        `json:"serverContent,omitempty"`
}

// Marshal encodes a client message as a JSON text frame payload.
func Marshal(msg ClientMessage) ([]byte, error) {
	data, err := wire.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %q: %w", msg.Type(), err)
	}
	return data, nil
}

// ParseServerMessage decodes an inbound frame and classifies it. When several
// keys are present the first match in this order wins: toolCall,
// toolCallCancellation, setupComplete, serverContent.
//
// Only a frame that is not JSON at all is an error. Well-formed JSON that is
// not an object, or whose known keys carry an unexpected shape, is Unknown.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	if !wire.Valid(data) {
		return nil, fmt.Errorf("protocol: unmarshal server message: invalid json (%d bytes)", len(data))
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &Unknown{Raw: data}, nil
	}

	var env serverEnvelope
	if err := wire.Unmarshal(data, &env); err != nil {
		return &Unknown{Raw: data}, nil
	}

	switch {
	case env.ToolCall != nil:
		return &ToolCall{Payload: env.ToolCall}, nil
	case env.ToolCallCancellation != nil:
		return &ToolCallCancellation{Payload: env.ToolCallCancellation}, nil
	case env.SetupComplete != nil:
		return env.SetupComplete, nil
	case env.ServerContent != nil:
		return env.ServerContent, nil
	default:
		return &Unknown{Raw: data}, nil
	}
}

// IsAudioPart reports whether p carries inline PCM audio.
func IsAudioPart(p *genai.Part) bool {
	return p != nil && p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/pcm")
}

// SplitParts partitions parts into audio parts and everything else, keeping
// relative order inside each partition.
func SplitParts(parts []*genai.Part) (audio, other []*genai.Part) {
	for _, p := range parts {
		if IsAudioPart(p) {
			audio = append(audio, p)
		} else {
			other = append(other, p)
		}
	}
	return audio, other
}
