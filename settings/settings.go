// Package settings loads the environment and the settings.json document that
// configure a live session and its collaborators.
package settings

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"livelink/core"
	"livelink/protocol"
	"livelink/video"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"google.golang.org/genai"
)

const (
	DefaultModel = "models/gemini-2.0-flash-exp"
	DefaultVoice = "Aoede"

	DefaultSystemInstruction = "You are a friendly personal health care companion. " +
		"Help the user by guiding them through navigation and answering their health queries in a supportive manner."

	// DefaultFirstMessagePrefix frames the first text the user types.
	DefaultFirstMessagePrefix = "Hey friend, I need some health advice: "
)

// Env is read from the process environment (and .env.local).
type Env struct {
	APIKey          string `envconfig:"GEMINI_API_KEY" required:"true"`
	SettingsPath    string `envconfig:"SETTINGS_PATH" default:"./settings.json"`
	SettingsJSONB64 string `envconfig:"SETTINGS_JSON_B64"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"LOG_FORMAT" default:"text"`
}

// LoadEnv loads the given dotenv files, when present, then processes the
// environment into Env.
func LoadEnv(files ...string) (Env, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			core.GetLogger().With(map[string]any{"error": err, "file": f}).Debug("dotenv file not loaded")
		}
	}

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, fmt.Errorf("settings: env: %w", err)
	}
	return env, nil
}

type VideoSettings struct {
	// SnapshotURL is the base URL of an HTTP snapshot camera.
	SnapshotURL string          `json:"snapshot_url,omitempty"`
	MaxFPS      float64         `json:"max_fps,omitempty"`
	Controls    []video.Control `json:"controls,omitempty"`
	// ImagePath streams a fixed image instead of a camera.
	ImagePath string `json:"image_path,omitempty"`
}

type AudioSettings struct {
	// InputPath is a raw audio stream used as the microphone; "-" is stdin.
	InputPath       string `json:"input_path,omitempty"`
	InputFormat     string `json:"input_format,omitempty"`
	InputSampleRate int    `json:"input_sample_rate,omitempty"`
	InputChannels   int    `json:"input_channels,omitempty"`
	ChunkMillis     int    `json:"chunk_ms,omitempty"`
	Muted           bool   `json:"muted,omitempty"`

	// OutputPath receives model audio. It is a WAV file when OutputFormat
	// is pcm, raw G.711 otherwise.
	OutputPath       string `json:"output_path,omitempty"`
	OutputFormat     string `json:"output_format,omitempty"`
	OutputSampleRate int    `json:"output_sample_rate,omitempty"`
	OutputChannels   int    `json:"output_channels,omitempty"`
	// WaitForInteraction holds playback until the user first interacts.
	WaitForInteraction bool `json:"wait_for_interaction,omitempty"`
}

// Format maps InputFormat to an encoding.
func (a AudioSettings) Format() (core.AudioEncodingFormat, error) {
	return parseFormat(a.InputFormat)
}

// PlaybackFormat maps OutputFormat to an encoding.
func (a AudioSettings) PlaybackFormat() (core.AudioEncodingFormat, error) {
	return parseFormat(a.OutputFormat)
}

func parseFormat(name string) (core.AudioEncodingFormat, error) {
	switch strings.ToLower(name) {
	case "", "pcm", "pcm16":
		return core.PCM, nil
	case "ulaw", "mulaw":
		return core.ULAW, nil
	case "alaw":
		return core.ALAW, nil
	default:
		return 0, fmt.Errorf("settings: unknown audio format %q", name)
	}
}

// Validate rejects audio settings the streamer or player cannot honour.
func (a AudioSettings) Validate() error {
	if _, err := a.Format(); err != nil {
		return err
	}
	if _, err := a.PlaybackFormat(); err != nil {
		return err
	}
	if a.InputChannels != 1 && a.InputChannels != 2 {
		return fmt.Errorf("settings: audio.input_channels must be 1 or 2, got %d", a.InputChannels)
	}
	if a.InputSampleRate <= 0 {
		return fmt.Errorf("settings: audio.input_sample_rate must be positive, got %d", a.InputSampleRate)
	}
	if a.ChunkMillis <= 0 {
		return fmt.Errorf("settings: audio.chunk_ms must be positive, got %d", a.ChunkMillis)
	}
	if a.OutputChannels != 1 && a.OutputChannels != 2 {
		return fmt.Errorf("settings: audio.output_channels must be 1 or 2, got %d", a.OutputChannels)
	}
	if a.OutputSampleRate <= 0 {
		return fmt.Errorf("settings: audio.output_sample_rate must be positive, got %d", a.OutputSampleRate)
	}
	return nil
}

type RelaySettings struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type MetricsSettings struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	// Endpoint overrides the service URL (without the access key).
	Endpoint string `json:"endpoint,omitempty"`
	// Session is sent as the setup message.
	Session            *protocol.Config `json:"session_config,omitempty"`
	FirstMessagePrefix string           `json:"first_message_prefix,omitempty"`
	InitialMessages    []string         `json:"initial_messages,omitempty"`

	Video   VideoSettings   `json:"video"`
	Audio   AudioSettings   `json:"audio"`
	Relay   RelaySettings   `json:"relay"`
	Metrics MetricsSettings `json:"metrics"`

	// LogDir, when set, receives one JSON lines file per session.
	LogDir string `json:"log_dir,omitempty"`
}

// DefaultSessionConfig is the health companion session.
func DefaultSessionConfig() *protocol.Config {
	return &protocol.Config{
		Model: DefaultModel,
		GenerationConfig: &protocol.GenerationConfig{
			ResponseModalities: []genai.Modality{genai.ModalityAudio},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: DefaultVoice},
				},
			},
		},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(DefaultSystemInstruction)},
		},
	}
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Session:            DefaultSessionConfig(),
		FirstMessagePrefix: DefaultFirstMessagePrefix,
		Video: VideoSettings{
			MaxFPS:   1,
			Controls: video.DefaultControls,
		},
		Audio: AudioSettings{
			InputFormat:     "pcm",
			InputSampleRate: 16000,
			InputChannels:   1,
			ChunkMillis:     100,

			OutputFormat:     "pcm",
			OutputSampleRate: 24000,
			OutputChannels:   1,
		},
		Relay:   RelaySettings{Addr: ":19304"},
		Metrics: MetricsSettings{Addr: ":9090"},
	}
}

// SettingsConfigFromJSON parses a JSON blob over the defaults. A
// session_config object replaces the default session as a whole.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	cfg.Session = nil
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	if cfg.Session == nil {
		cfg.Session = DefaultSessionConfig()
	}
	if cfg.Session.Model == "" {
		return SettingsConfig{}, errors.New("settings: session_config.model is required")
	}
	if err := cfg.Audio.Validate(); err != nil {
		return SettingsConfig{}, err
	}
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

// Load resolves settings from SETTINGS_JSON_B64, then the settings file. A
// missing file yields the defaults.
func Load(env Env) (SettingsConfig, error) {
	if env.SettingsJSONB64 != "" {
		data, err := base64.StdEncoding.DecodeString(env.SettingsJSONB64)
		if err != nil {
			return SettingsConfig{}, fmt.Errorf("settings: decode SETTINGS_JSON_B64: %w", err)
		}
		return SettingsConfigFromJSON(data)
	}

	if env.SettingsPath == "" {
		return DefaultSettingsConfig(), nil
	}
	cfg, err := SettingsConfigFromFile(env.SettingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSettingsConfig(), nil
	}
	return cfg, err
}
