package main

import (
	"bufio"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"livelink/audio"
	"livelink/core"
	"livelink/events/live"
	"livelink/multimodal"
	"livelink/playback"
	"livelink/relay"
	"livelink/settings"
	"livelink/telemetry"
	"livelink/video"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const outputContextID = "livelink.output"

func main() {
	env, err := settings.LoadEnv(".env.local")
	if err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Fatal("failed to load environment")
	}
	configureLogger(env)

	cfg, err := settings.Load(env)
	if err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("failed to load settings, using defaults")
		cfg = settings.DefaultSettingsConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, env, cfg); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Fatal("session failed")
	}
	core.GetLogger().Info("Shutting down...")
}

func configureLogger(env settings.Env) {
	if strings.EqualFold(env.LogFormat, "json") {
		core.SetLogger(*core.NewJSONLogger())
	}
	level, err := core.ParseLevel(env.LogLevel)
	if err != nil {
		core.GetLogger().With(map[string]any{"level": env.LogLevel}).Warn("unknown log level, keeping info")
		return
	}
	core.SetLevel(level)
}

// prompter prefixes the first text of the session and counts typed text as
// a user interaction.
type prompter struct {
	*multimodal.Client
	prefix string
	once   sync.Once
}

func (p *prompter) SendText(text string) error {
	playback.NotifyInteraction()
	p.once.Do(func() { text = p.prefix + text })
	return p.Client.SendText(text)
}

func run(ctx context.Context, env settings.Env, cfg settings.SettingsConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionID := uuid.NewString()
	logger := core.GetLogger().With(map[string]any{"session": sessionID})
	bus := core.NewEventBus()

	if cfg.LogDir != "" {
		writer, err := core.NewSessionLogWriter(cfg.LogDir, sessionID, cfg.Session.Model)
		if err != nil {
			return err
		}
		defer writer.Close()
		logger = core.NewSessionLogger(logger, writer)
		core.Subscribe(bus, func(ev *live.LogEvent) { writer.WriteEntry(ev.Entry) })
		logger.Infof("writing session log to %s", writer.Path())
	} else {
		core.Subscribe(bus, func(ev *live.LogEvent) {
			logger.Debug("live", "type", ev.Entry.Type, "message", ev.Entry.Message)
		})
	}

	endpoint, err := multimodal.Endpoint(cfg.Endpoint, env.APIKey)
	if err != nil {
		return err
	}
	client, err := multimodal.NewClient(multimodal.ClientConfig{
		URL:    endpoint,
		Bus:    bus,
		Logger: logger.With(map[string]any{"component": "multimodal"}),
	})
	if err != nil {
		return err
	}
	session := &prompter{Client: client, prefix: cfg.FirstMessagePrefix}

	core.Subscribe(bus, func(ev *live.CloseEvent) {
		logger.With(map[string]any{
			"code":      ev.Info.Code,
			"reason":    ev.Info.Reason,
			"initiator": ev.Info.Initiator,
		}).Info("session closed")
		cancel()
	})

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		collector := telemetry.NewCollector()
		collector.Bind(bus)
		defer collector.Unbind()
		g.Go(func() error { return serveMetrics(ctx, cfg.Metrics.Addr, collector, logger) })
	}

	if cfg.Relay.Enabled {
		srv := relay.NewServer(cfg.Relay.Addr, session, logger.With(map[string]any{"component": "relay"}))
		srv.RegisterInput(relay.InteractionInputID, func([]byte) error {
			playback.NotifyInteraction()
			return nil
		})
		srv.Bind(bus)
		defer srv.Unbind()
		g.Go(func() error { return srv.ListenAndServe(ctx) })
	}

	startPlayback(ctx, g, bus, cfg.Audio, logger)

	scheduler := video.NewScheduler(client, video.NewEncoder(), logger.With(map[string]any{"component": "video"}))
	scheduler.Bind(bus)
	defer scheduler.Stop()
	defer scheduler.Unbind()
	if source, err := frameSource(ctx, cfg.Video, logger); err != nil {
		logger.With(map[string]any{"error": err}).Warn("video disabled")
	} else if source != nil {
		scheduler.Attach(source)
	}

	if err := client.Connect(ctx, cfg.Session); err != nil {
		return err
	}
	logger.With(map[string]any{"model": cfg.Session.Model, "voice": cfg.Session.VoiceName()}).Info("session connected")

	if err := startMicrophone(ctx, g, client, bus, cfg.Audio, logger); err != nil {
		logger.With(map[string]any{"error": err}).Warn("microphone disabled")
	}

	for _, msg := range cfg.InitialMessages {
		if err := session.SendText(msg); err != nil {
			logger.With(map[string]any{"error": err}).Warn("initial message not sent")
		}
	}
	if cfg.Audio.InputPath != "-" {
		go readPrompts(ctx, os.Stdin, session, logger)
	}

	g.Go(func() error {
		<-ctx.Done()
		client.Disconnect()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readPrompts sends each non-empty line of r as a text turn.
func readPrompts(ctx context.Context, r io.Reader, session *prompter, logger *core.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			playback.NotifyInteraction()
			continue
		}
		if err := session.SendText(line); err != nil {
			logger.With(map[string]any{"error": err}).Warn("prompt not sent")
		}
	}
}

func startPlayback(ctx context.Context, g *errgroup.Group, bus *core.EventBus, cfg settings.AudioSettings, logger *core.Logger) {
	format, err := cfg.PlaybackFormat()
	if err != nil {
		logger.With(map[string]any{"error": err}).Warn("unknown output format, writing pcm")
		format = core.PCM
	}
	opts := playback.Options{
		ID:         outputContextID,
		Format:     format,
		SampleRate: cfg.OutputSampleRate,
		Channels:   cfg.OutputChannels,
	}
	if cfg.OutputPath != "" {
		opts.WAV = format == core.PCM
		opts.Open = playback.FileOpener(cfg.OutputPath)
	}
	if cfg.WaitForInteraction {
		opts.Open = playback.RequireInteraction(opts.Open)
	}

	player := playback.NewPlayer(bus, opts, logger.With(map[string]any{"component": "playback"}))
	g.Go(func() error {
		defer playback.Release(outputContextID)
		return player.Run(ctx)
	})
}

func frameSource(ctx context.Context, cfg settings.VideoSettings, logger *core.Logger) (video.FrameSource, error) {
	switch {
	case cfg.SnapshotURL != "":
		source := video.NewSnapshotSource(cfg.SnapshotURL, cfg.MaxFPS, nil)
		if err := source.ConfigureAll(ctx, cfg.Controls); err != nil {
			logger.With(map[string]any{"error": err}).Warn("camera controls not applied")
		}
		return source, nil
	case cfg.ImagePath != "":
		f, err := os.Open(cfg.ImagePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, err
		}
		return &video.StaticSource{Image: img}, nil
	default:
		return nil, nil
	}
}

func startMicrophone(ctx context.Context, g *errgroup.Group, client *multimodal.Client, bus *core.EventBus, cfg settings.AudioSettings, logger *core.Logger) error {
	if cfg.InputPath == "" {
		return nil
	}
	format, err := cfg.Format()
	if err != nil {
		return err
	}

	var r io.ReadCloser = os.Stdin
	if cfg.InputPath != "-" {
		if r, err = os.Open(cfg.InputPath); err != nil {
			return err
		}
	}

	source := audio.NewReaderSource(r, format, cfg.InputSampleRate, cfg.InputChannels, time.Duration(cfg.ChunkMillis)*time.Millisecond)
	source.Pace = cfg.InputPath != "-"

	streamer := audio.NewStreamer(client, bus, logger.With(map[string]any{"component": "audio"}))
	streamer.SetMuted(cfg.Muted)
	g.Go(func() error {
		defer r.Close()
		return streamer.Run(ctx, source)
	})
	return nil
}

func serveMetrics(ctx context.Context, addr string, collector *telemetry.Collector, logger *core.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Infof("metrics listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
