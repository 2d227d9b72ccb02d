// Package live defines the closed set of events published by a live session.
package live

import (
	"livelink/core"

	"google.golang.org/genai"
)

// Event ids. Every event published by the session client is one of these.
const (
	OpenEventID                 = "live.open"
	CloseEventID                = "live.close"
	LogEventID                  = "live.log"
	SetupCompleteEventID        = "live.setupcomplete"
	ToolCallEventID             = "live.toolcall"
	ToolCallCancellationEventID = "live.toolcallcancellation"
	InterruptedEventID          = "live.interrupted"
	TurnCompleteEventID         = "live.turncomplete"
	AudioEventID                = "live.audio"
	ContentEventID              = "live.content"
	InputVolumeEventID          = "live.input_volume"
)

// EventIDs lists the full taxonomy, in the order consumers usually care about.
var EventIDs = []string{
	OpenEventID,
	CloseEventID,
	LogEventID,
	SetupCompleteEventID,
	ToolCallEventID,
	ToolCallCancellationEventID,
	InterruptedEventID,
	TurnCompleteEventID,
	AudioEventID,
	ContentEventID,
	InputVolumeEventID,
}

type OpenEvent struct{}

func (e *OpenEvent) GetId() string {
	return OpenEventID
}

// CloseInfo describes a transport close. Reason is the human readable part
// extracted from RawReason.
type CloseInfo struct {
	Code      int    `json:"code"`
	Reason    string `json:"reason"`
	RawReason string `json:"rawReason"`
	// Initiator is "client" for Disconnect and "server" otherwise.
	Initiator string `json:"initiator"`
}

type CloseEvent struct {
	Info CloseInfo `json:"info"`
}

func (e *CloseEvent) GetId() string {
	return CloseEventID
}

type LogEvent struct {
	Entry core.LogEntry `json:"entry"`
}

func (e *LogEvent) GetId() string {
	return LogEventID
}

type SetupCompleteEvent struct{}

func (e *SetupCompleteEvent) GetId() string {
	return SetupCompleteEventID
}

type ToolCallEvent struct {
	ToolCall *genai.LiveServerToolCall `json:"toolCall"`
}

func (e *ToolCallEvent) GetId() string {
	return ToolCallEventID
}

type ToolCallCancellationEvent struct {
	Cancellation *genai.LiveServerToolCallCancellation `json:"toolCallCancellation"`
}

func (e *ToolCallCancellationEvent) GetId() string {
	return ToolCallCancellationEventID
}

type InterruptedEvent struct{}

func (e *InterruptedEvent) GetId() string {
	return InterruptedEventID
}

type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) GetId() string {
	return TurnCompleteEventID
}

// AudioEvent carries the decoded PCM bytes of exactly one audio part.
type AudioEvent struct {
	Data []byte `json:"data"`
}

func (e *AudioEvent) GetId() string {
	return AudioEventID
}

// ModelTurn bundles the non-audio parts of one server modelTurn.
type ModelTurn struct {
	Parts []*genai.Part `json:"parts"`
}

type ContentEvent struct {
	ModelTurn ModelTurn `json:"modelTurn"`
}

func (e *ContentEvent) GetId() string {
	return ContentEventID
}

// InputVolumeEvent reports the RMS level (0..1) of the last microphone chunk.
type InputVolumeEvent struct {
	Level float64 `json:"level"`
}

func (e *InputVolumeEvent) GetId() string {
	return InputVolumeEventID
}
