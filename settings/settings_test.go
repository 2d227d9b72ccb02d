package settings

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"livelink/core"
	"livelink/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSessionConfigWire(t *testing.T) {
	data, err := protocol.Marshal(protocol.NewSetup(DefaultSessionConfig()))
	require.NoError(t, err)

	assert.JSONEq(t, `{"setup":{
		"model":"models/gemini-2.0-flash-exp",
		"generationConfig":{
			"responseModalities":["AUDIO"],
			"speechConfig":{"voiceConfig":{"prebuiltVoiceConfig":{"voiceName":"Aoede"}}}
		},
		"systemInstruction":{"parts":[{"text":"`+DefaultSystemInstruction+`"}]}
	}}`, string(data))
	assert.Equal(t, DefaultVoice, DefaultSessionConfig().VoiceName())
}

func TestSettingsConfigFromJSON(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{
		"endpoint": "ws://localhost:9000/live",
		"relay": {"enabled": true},
		"audio": {"input_path": "-", "input_format": "ulaw", "input_sample_rate": 8000}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:9000/live", cfg.Endpoint)
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, ":19304", cfg.Relay.Addr)
	assert.Equal(t, 8000, cfg.Audio.InputSampleRate)
	assert.Equal(t, 1, cfg.Audio.InputChannels)
	assert.Equal(t, DefaultModel, cfg.Session.Model)

	format, err := cfg.Audio.Format()
	require.NoError(t, err)
	assert.Equal(t, core.ULAW, format)
}

func TestSettingsConfigSessionReplacesDefault(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{"session_config":{"model":"models/other"}}`))
	require.NoError(t, err)

	assert.Equal(t, "models/other", cfg.Session.Model)
	assert.Nil(t, cfg.Session.GenerationConfig)
}

func TestSettingsConfigRejectsEmptyModel(t *testing.T) {
	_, err := SettingsConfigFromJSON([]byte(`{"session_config":{}}`))
	assert.Error(t, err)

	_, err = SettingsConfigFromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestSettingsConfigValidatesAudio(t *testing.T) {
	tests := []string{
		`{"audio":{"input_channels":0}}`,
		`{"audio":{"input_channels":3}}`,
		`{"audio":{"input_sample_rate":-1}}`,
		`{"audio":{"chunk_ms":-5}}`,
		`{"audio":{"input_format":"opus"}}`,
		`{"audio":{"output_format":"mp3"}}`,
		`{"audio":{"output_channels":6}}`,
		`{"audio":{"output_sample_rate":-8000}}`,
	}
	for _, in := range tests {
		_, err := SettingsConfigFromJSON([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestSettingsConfigOutputAudio(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{"audio":{"output_format":"alaw","output_sample_rate":8000}}`))
	require.NoError(t, err)

	format, err := cfg.Audio.PlaybackFormat()
	require.NoError(t, err)
	assert.Equal(t, core.ALAW, format)
	assert.Equal(t, 8000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, 1, cfg.Audio.OutputChannels)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(Env{SettingsPath: filepath.Join(dir, "missing.json")})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettingsConfig(), cfg)

	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_dir":"logs"}`), 0o644))
	cfg, err = Load(Env{SettingsPath: path})
	require.NoError(t, err)
	assert.Equal(t, "logs", cfg.LogDir)

	b64 := base64.StdEncoding.EncodeToString([]byte(`{"metrics":{"enabled":true}}`))
	cfg, err = Load(Env{SettingsPath: path, SettingsJSONB64: b64})
	require.NoError(t, err)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.LogDir)

	_, err = Load(Env{SettingsJSONB64: "%%%"})
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("LOG_LEVEL", "trace")

	env, err := LoadEnv(filepath.Join(t.TempDir(), ".env.local"))
	require.NoError(t, err)
	assert.Equal(t, "k", env.APIKey)
	assert.Equal(t, "trace", env.LogLevel)
	assert.Equal(t, "./settings.json", env.SettingsPath)
}

func TestLoadEnvRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("GEMINI_API_KEY")

	_, err := LoadEnv()
	assert.Error(t, err)
}
