package multimodal

import (
	"testing"
	"time"

	"livelink/core"
	"livelink/events/live"
	transport "livelink/transports/websocket"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, client *Client, payload string) {
	t.Helper()
	require.NoError(t, client.Receive(transport.BinaryMessage, []byte(payload)))
}

func TestReceiveInterruptedShortCircuits(t *testing.T) {
	client, rec := newTestClient(t, nil)

	receive(t, client, `{"serverContent":{"interrupted":true,"turnComplete":true,"modelTurn":{"parts":[
		{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQID"}},
		{"text":"ignored"}]}}}`)

	if diff := cmp.Diff([]string{live.InterruptedEventID}, rec.ids()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReceiveTurnCompleteThenAudioThenContent(t *testing.T) {
	client, rec := newTestClient(t, nil)

	receive(t, client, `{"serverContent":{"turnComplete":true,"modelTurn":{"parts":[
		{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQID"}},
		{"text":"hello"}]}}}`)

	want := []string{live.TurnCompleteEventID, live.AudioEventID, live.ContentEventID}
	if diff := cmp.Diff(want, rec.ids()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	var audio *live.AudioEvent
	var content *live.ContentEvent
	for _, ev := range rec.events {
		switch e := ev.(type) {
		case *live.AudioEvent:
			audio = e
		case *live.ContentEvent:
			content = e
		}
	}
	assert.Equal(t, []byte{1, 2, 3}, audio.Data)
	require.Len(t, content.ModelTurn.Parts, 1)
	assert.Equal(t, "hello", content.ModelTurn.Parts[0].Text)
	assert.Nil(t, content.ModelTurn.Parts[0].InlineData)
	assert.Contains(t, rec.logTypes(), "server.audio")
}

func TestReceiveAudioOnlyTurn(t *testing.T) {
	client, rec := newTestClient(t, nil)

	receive(t, client, `{"serverContent":{"modelTurn":{"parts":[
		{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQID"}},
		{"inlineData":{"mimeType":"audio/pcm","data":"BAU="}}]}}}`)

	if diff := cmp.Diff([]string{live.AudioEventID, live.AudioEventID}, rec.ids()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []byte{1, 2, 3}, rec.events[0].(*live.AudioEvent).Data)

	var second *live.AudioEvent
	for _, ev := range rec.events[1:] {
		if a, ok := ev.(*live.AudioEvent); ok {
			second = a
		}
	}
	assert.Equal(t, []byte{4, 5}, second.Data)
}

func TestReceiveKeepsNonAudioInlineData(t *testing.T) {
	client, rec := newTestClient(t, nil)

	receive(t, client, `{"serverContent":{"modelTurn":{"parts":[
		{"text":"a"},
		{"inlineData":{"mimeType":"image/png","data":"AQ=="}},
		{"inlineData":{"mimeType":"audio/pcm","data":"AQ=="}},
		{"text":"b"}]}}}`)

	require.Equal(t, []string{live.AudioEventID, live.ContentEventID}, rec.ids())
	var content *live.ContentEvent
	for _, ev := range rec.events {
		if c, ok := ev.(*live.ContentEvent); ok {
			content = c
		}
	}
	require.Len(t, content.ModelTurn.Parts, 3)
	assert.Equal(t, "a", content.ModelTurn.Parts[0].Text)
	assert.Equal(t, "image/png", content.ModelTurn.Parts[1].InlineData.MIMEType)
	assert.Equal(t, "b", content.ModelTurn.Parts[2].Text)
}

func TestReceiveEmptyAudioPartEmitsNothing(t *testing.T) {
	client, rec := newTestClient(t, nil)

	receive(t, client, `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm"}}]}}}`)

	assert.Empty(t, rec.ids())
}

func TestReceivePriority(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{
			name:    "tool call wins over everything",
			payload: `{"setupComplete":{},"toolCall":{"functionCalls":[{"id":"1","name":"navigate"}]},"serverContent":{"turnComplete":true}}`,
			want:    []string{live.ToolCallEventID},
		},
		{
			name:    "cancellation wins over setup",
			payload: `{"setupComplete":{},"toolCallCancellation":{"ids":["1"]}}`,
			want:    []string{live.ToolCallCancellationEventID},
		},
		{
			name:    "setup wins over content",
			payload: `{"setupComplete":{},"serverContent":{"turnComplete":true}}`,
			want:    []string{live.SetupCompleteEventID},
		},
		{
			name:    "turn complete alone",
			payload: `{"serverContent":{"turnComplete":true}}`,
			want:    []string{live.TurnCompleteEventID},
		},
		{
			name:    "unknown shape is dropped",
			payload: `{"usageMetadata":{"totalTokenCount":12}}`,
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, rec := newTestClient(t, nil)
			receive(t, client, tt.payload)
			if diff := cmp.Diff(tt.want, rec.ids()); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReceiveToolCallPayload(t *testing.T) {
	client, rec := newTestClient(t, nil)

	receive(t, client, `{"toolCall":{"functionCalls":[{"id":"call-1","name":"navigate","args":{"page":"vitals"}}]}}`)

	require.Len(t, rec.ids(), 1)
	var call *live.ToolCallEvent
	for _, ev := range rec.events {
		if c, ok := ev.(*live.ToolCallEvent); ok {
			call = c
		}
	}
	require.NotNil(t, call)
	require.Len(t, call.ToolCall.FunctionCalls, 1)
	fc := call.ToolCall.FunctionCalls[0]
	assert.Equal(t, "call-1", fc.ID)
	assert.Equal(t, "navigate", fc.Name)
	assert.Equal(t, map[string]any{"page": "vitals"}, fc.Args)
}

func TestReceiveIgnoresTextFrames(t *testing.T) {
	client, rec := newTestClient(t, nil)

	err := client.Receive(transport.TextMessage, []byte(`{"setupComplete":{}}`))

	require.NoError(t, err)
	assert.Empty(t, rec.events)
}

func TestReceiveMalformedFrame(t *testing.T) {
	client, rec := newTestClient(t, nil)

	err := client.Receive(transport.BinaryMessage, []byte(`{"serverContent":`))

	var parseErr *core.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Empty(t, rec.events)
}

func TestReceiveForeignJSONIsIgnored(t *testing.T) {
	client, rec := newTestClient(t, nil)

	for _, in := range []string{`[1,2]`, `"x"`, `42`, `{"toolCall":"x"}`} {
		assert.NoError(t, client.Receive(transport.BinaryMessage, []byte(in)), in)
	}
	assert.Empty(t, rec.events)
}

func TestReadLoopSurvivesMalformedFrame(t *testing.T) {
	client, conn, rec := connected(t)
	rec.reset()

	conn.incoming <- frame{messageType: transport.BinaryMessage, data: []byte("not json")}
	conn.incoming <- frame{messageType: transport.BinaryMessage, data: []byte(`{"setupComplete":{}}`)}

	require.Eventually(t, func() bool {
		return len(rec.ids()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{live.SetupCompleteEventID}, rec.ids())
	assert.True(t, client.IsOpen())
}
