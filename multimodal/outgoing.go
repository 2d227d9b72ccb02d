package multimodal

import (
	"fmt"
	"strings"

	"livelink/core"
	"livelink/protocol"
	transport "livelink/transports/websocket"

	"google.golang.org/genai"
)

// Realtime input log labels.
const (
	LabelAudioVideo = "audio + video"
	LabelAudio      = "audio"
	LabelVideo      = "video"
	LabelUnknown    = "unknown"
)

// Send writes msg as a text frame and logs it under its tag. It returns
// core.ErrNotConnected, without logging or writing, when no handle is live.
func (c *Client) Send(msg protocol.ClientMessage) error {
	if err := c.write(msg); err != nil {
		return err
	}
	c.log("client.send", string(msg.Type()))
	return nil
}

// SendRealtimeInput sends chunks as one realtimeInput message. The batch is
// labeled for the log only.
func (c *Client) SendRealtimeInput(chunks []core.Chunk) error {
	if err := c.write(protocol.NewRealtimeInput(chunks)); err != nil {
		return err
	}
	c.log("client.realtimeInput", RealtimeInputLabel(chunks))
	return nil
}

func (c *Client) SendToolResponse(resp *genai.LiveClientToolResponse) error {
	if err := c.write(protocol.NewToolResponse(resp)); err != nil {
		return err
	}
	c.log("client.toolResponse", resp)
	return nil
}

// SendContent sends one user turn made of parts. A single part and a
// sequence are both accepted.
func (c *Client) SendContent(turnComplete bool, parts ...*genai.Part) error {
	msg := protocol.NewClientContent(parts, turnComplete)
	if err := c.write(msg); err != nil {
		return err
	}
	c.log("client.send", msg.ClientContent)
	return nil
}

// SendText sends text as a complete user turn.
func (c *Client) SendText(text string) error {
	return c.SendContent(true, genai.NewPartFromText(text))
}

func (c *Client) write(msg protocol.ClientMessage) error {
	s := c.current()
	if s == nil {
		return core.ErrNotConnected
	}

	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(transport.TextMessage, data); err != nil {
		return fmt.Errorf("multimodal: write %s: %w", msg.Type(), err)
	}
	return nil
}

// RealtimeInputLabel classifies a batch by the media it carries.
func RealtimeInputLabel(chunks []core.Chunk) string {
	var hasAudio, hasVideo bool
	for _, ch := range chunks {
		if strings.Contains(ch.MimeType, "audio") {
			hasAudio = true
		}
		if strings.Contains(ch.MimeType, "image") {
			hasVideo = true
		}
	}

	switch {
	case hasAudio && hasVideo:
		return LabelAudioVideo
	case hasAudio:
		return LabelAudio
	case hasVideo:
		return LabelVideo
	default:
		return LabelUnknown
	}
}
