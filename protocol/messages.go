package protocol

import (
	"livelink/core"

	"google.golang.org/genai"
)

// MessageType tags each client message by its single top-level key.
type MessageType string

const (
	MsgSetup         MessageType = "setup"
	MsgRealtimeInput MessageType = "realtimeInput"
	MsgToolResponse  MessageType = "toolResponse"
	MsgClientContent MessageType = "clientContent"
)

// RoleUser is the role of every client-authored turn.
const RoleUser = "user"

// GenerationConfig holds the generation parameters sent in the handshake.
type GenerationConfig struct {
	ResponseModalities []genai.Modality   `json:"responseModalities,omitempty"`
	SpeechConfig       *genai.SpeechConfig `json:"speechConfig,omitempty"`
	Temperature        *float32            `json:"temperature,omitempty"`
	MaxOutputTokens    int32               `json:"maxOutputTokens,omitempty"`
}

// Config is the session configuration carried by the setup message.
type Config struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *genai.Content    `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool     `json:"tools,omitempty"`
}

// VoiceName returns the prebuilt voice selected by the config, if any.
func (c *Config) VoiceName() string {
	if c == nil || c.GenerationConfig == nil || c.GenerationConfig.SpeechConfig == nil {
		return ""
	}
	vc := c.GenerationConfig.SpeechConfig.VoiceConfig
	if vc == nil || vc.PrebuiltVoiceConfig == nil {
		return ""
	}
	return vc.PrebuiltVoiceConfig.VoiceName
}

// --- Client -> server ---

// ClientMessage is one of the four outgoing message shapes.
type ClientMessage interface {
	Type() MessageType
}

type SetupMessage struct {
	Setup *Config `json:"setup"`
}

func (m *SetupMessage) Type() MessageType { return MsgSetup }

type RealtimeInput struct {
	MediaChunks []core.Chunk `json:"mediaChunks"`
}

type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

func (m *RealtimeInputMessage) Type() MessageType { return MsgRealtimeInput }

type ToolResponseMessage struct {
	ToolResponse *genai.LiveClientToolResponse `json:"toolResponse"`
}

func (m *ToolResponseMessage) Type() MessageType { return MsgToolResponse }

type ClientContent struct {
	Turns        []*genai.Content `json:"turns"`
	TurnComplete bool             `json:"turnComplete"`
}

type ClientContentMessage struct {
	ClientContent ClientContent `json:"clientContent"`
}

func (m *ClientContentMessage) Type() MessageType { return MsgClientContent }

func NewSetup(cfg *Config) *SetupMessage {
	return &SetupMessage{Setup: cfg}
}

func NewRealtimeInput(chunks []core.Chunk) *RealtimeInputMessage {
	return &RealtimeInputMessage{RealtimeInput: RealtimeInput{MediaChunks: chunks}}
}

func NewToolResponse(resp *genai.LiveClientToolResponse) *ToolResponseMessage {
	return &ToolResponseMessage{ToolResponse: resp}
}

// NewClientContent wraps parts into a single user turn.
func NewClientContent(parts []*genai.Part, turnComplete bool) *ClientContentMessage {
	return &ClientContentMessage{
		ClientContent: ClientContent{
			Turns:        []*genai.Content{{Role: RoleUser, Parts: parts}},
			TurnComplete: turnComplete,
		},
	}
}

// --- Server -> client ---

// ServerMessage is the closed set of inbound messages. Exactly one of
// *SetupComplete, *ToolCall, *ToolCallCancellation, *ServerContent or
// *Unknown is returned by ParseServerMessage.
type ServerMessage interface {
	isServerMessage()
}

type SetupComplete struct {
	SessionID string `json:"sessionId,omitempty"`
}

type ToolCall struct {
	Payload *genai.LiveServerToolCall
}

type ToolCallCancellation struct {
	Payload *genai.LiveServerToolCallCancellation
}

// ServerContent is the body of a serverContent message.
type ServerContent struct {
	Interrupted  bool           `json:"interrupted,omitempty"`
	TurnComplete bool           `json:"turnComplete,omitempty"`
	ModelTurn    *genai.Content `json:"modelTurn,omitempty"`
}

// Unknown is any well-formed message outside the grammar.
type Unknown struct {
	Raw []byte
}

func (*SetupComplete) isServerMessage()        {}
func (*ToolCall) isServerMessage()             {}
func (*ToolCallCancellation) isServerMessage() {}
func (*ServerContent) isServerMessage()        {}
func (*Unknown) isServerMessage()              {}
