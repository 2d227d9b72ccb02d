package protocol

import (
	"testing"

	"livelink/core"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestMarshalClientMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
		want string
	}{
		{
			name: "setup",
			msg:  NewSetup(&Config{Model: "models/m"}),
			want: `{"setup":{"model":"models/m"}}`,
		},
		{
			name: "realtime input",
			msg: NewRealtimeInput([]core.Chunk{
				{MimeType: core.MimeTypePCM16k, Data: []byte{1, 2, 3}},
				{MimeType: core.MimeTypeJPEG, Data: []byte{0xff, 0xd8}},
			}),
			want: `{"realtimeInput":{"mediaChunks":[
				{"mimeType":"audio/pcm;rate=16000","data":"AQID"},
				{"mimeType":"image/jpeg","data":"/9g="}]}}`,
		},
		{
			name: "client content keeps turnComplete false",
			msg:  NewClientContent([]*genai.Part{{Text: "hello"}}, false),
			want: `{"clientContent":{"turns":[{"role":"user","parts":[{"text":"hello"}]}],"turnComplete":false}}`,
		},
		{
			name: "tool response",
			msg: NewToolResponse(&genai.LiveClientToolResponse{
				FunctionResponses: []*genai.FunctionResponse{{ID: "c1", Name: "navigate", Response: map[string]any{"ok": true}}},
			}),
			want: `{"toolResponse":{"functionResponses":[{"id":"c1","name":"navigate","response":{"ok":true}}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestParseServerMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ServerMessage
	}{
		{
			name: "setup complete",
			in:   `{"setupComplete":{}}`,
			want: &SetupComplete{},
		},
		{
			name: "tool call wins over everything",
			in:   `{"serverContent":{"turnComplete":true},"setupComplete":{},"toolCall":{"functionCalls":[{"id":"c1","name":"navigate"}]}}`,
			want: &ToolCall{Payload: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{{ID: "c1", Name: "navigate"}}}},
		},
		{
			name: "cancellation wins over setup complete",
			in:   `{"setupComplete":{},"toolCallCancellation":{"ids":["c1"]}}`,
			want: &ToolCallCancellation{Payload: &genai.LiveServerToolCallCancellation{IDs: []string{"c1"}}},
		},
		{
			name: "server content",
			in:   `{"serverContent":{"interrupted":true}}`,
			want: &ServerContent{Interrupted: true},
		},
		{
			name: "null key is absent",
			in:   `{"toolCall":null,"serverContent":{"turnComplete":true}}`,
			want: &ServerContent{TurnComplete: true},
		},
		{
			name: "unknown",
			in:   `{"goAway":{}}`,
			want: &Unknown{Raw: []byte(`{"goAway":{}}`)},
		},
		{
			name: "array",
			in:   `[1,2]`,
			want: &Unknown{Raw: []byte(`[1,2]`)},
		},
		{
			name: "string",
			in:   `"x"`,
			want: &Unknown{Raw: []byte(`"x"`)},
		},
		{
			name: "null",
			in:   `null`,
			want: &Unknown{Raw: []byte(`null`)},
		},
		{
			name: "known key with foreign shape",
			in:   `{"toolCall":"x"}`,
			want: &Unknown{Raw: []byte(`{"toolCall":"x"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServerMessage([]byte(tt.in))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseServerMessage() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseServerMessageMalformed(t *testing.T) {
	for _, in := range []string{`{"serverContent":`, `not json`, ``} {
		_, err := ParseServerMessage([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestSplitParts(t *testing.T) {
	audio1 := &genai.Part{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1}}}
	audio2 := &genai.Part{InlineData: &genai.Blob{MIMEType: "audio/pcm", Data: []byte{2}}}
	text := &genai.Part{Text: "hi"}
	image := &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png"}}

	audio, other := SplitParts([]*genai.Part{text, audio1, image, audio2, nil})

	assert.Equal(t, []*genai.Part{audio1, audio2}, audio)
	assert.Equal(t, []*genai.Part{text, image, nil}, other)
	assert.False(t, IsAudioPart(nil))
}

func TestVoiceName(t *testing.T) {
	var nilCfg *Config
	assert.Empty(t, nilCfg.VoiceName())
	assert.Empty(t, (&Config{GenerationConfig: &GenerationConfig{}}).VoiceName())
	assert.Equal(t, "Puck", (&Config{GenerationConfig: &GenerationConfig{
		SpeechConfig: &genai.SpeechConfig{VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: "Puck"},
		}},
	}}).VoiceName())
}
