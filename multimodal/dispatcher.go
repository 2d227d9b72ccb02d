package multimodal

import (
	"fmt"

	"livelink/core"
	"livelink/events/live"
	"livelink/protocol"
	transport "livelink/transports/websocket"
)

// Receive classifies one inbound frame and publishes the resulting events.
// Only binary frames carry protocol messages; text frames are ignored. A
// frame that does not decode returns *core.ParseError and publishes nothing.
//
// The read loop calls Receive for every frame, so events are published in
// arrival order. It is exported so recorded traffic can be replayed.
func (c *Client) Receive(messageType int, data []byte) error {
	if messageType != transport.BinaryMessage {
		return nil
	}

	msg, err := protocol.ParseServerMessage(data)
	if err != nil {
		return &core.ParseError{Err: err}
	}

	switch m := msg.(type) {
	case *protocol.ToolCall:
		c.log("server.toolCall", m.Payload)
		c.bus.Emit(&live.ToolCallEvent{ToolCall: m.Payload})
	case *protocol.ToolCallCancellation:
		c.log("server.toolCallCancellation", m.Payload)
		c.bus.Emit(&live.ToolCallCancellationEvent{Cancellation: m.Payload})
	case *protocol.SetupComplete:
		c.log("server.send", "setupComplete")
		c.bus.Emit(&live.SetupCompleteEvent{})
	case *protocol.ServerContent:
		c.dispatchServerContent(m)
	case *protocol.Unknown:
		c.logger.Debug("ignoring unrecognized server message", "bytes", len(m.Raw))
	}
	return nil
}

// dispatchServerContent applies the serverContent rules: interrupted wins
// outright, turnComplete does not end processing, then audio parts are
// published one event each before a single content event for the rest.
func (c *Client) dispatchServerContent(sc *protocol.ServerContent) {
	if sc.Interrupted {
		c.log("receive.serverContent", "interrupted")
		c.bus.Emit(&live.InterruptedEvent{})
		return
	}

	if sc.TurnComplete {
		c.log("server.send", "turnComplete")
		c.bus.Emit(&live.TurnCompleteEvent{})
	}

	if sc.ModelTurn == nil {
		return
	}

	audioParts, otherParts := protocol.SplitParts(sc.ModelTurn.Parts)
	for _, p := range audioParts {
		data := p.InlineData.Data
		if len(data) == 0 {
			continue
		}
		c.bus.Emit(&live.AudioEvent{Data: data})
		c.log("server.audio", fmt.Sprintf("Buffer (%d)", len(data)))
	}

	if len(otherParts) == 0 {
		return
	}
	turn := live.ModelTurn{Parts: otherParts}
	c.log("server.content", turn)
	c.bus.Emit(&live.ContentEvent{ModelTurn: turn})
}
