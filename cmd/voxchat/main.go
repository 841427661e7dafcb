package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxchat/internal/audio"
	"voxchat/internal/bus"
	"voxchat/internal/capture"
	"voxchat/internal/chat"
	"voxchat/internal/config"
	"voxchat/internal/console"
	"voxchat/internal/cost"
	"voxchat/internal/duck"
	"voxchat/internal/interrupt"
	"voxchat/internal/ipc"
	"voxchat/internal/metrics"
	"voxchat/internal/notify"
	"voxchat/internal/orchestrator"
	"voxchat/internal/proxy"
	"voxchat/internal/speech"
	"voxchat/internal/transcribe"
	"voxchat/internal/tts"
	"voxchat/pkg/stt"
)

const (
	exitOK     = 0
	exitFail   = 1
	exitConfig = 2
)

const busFlushTimeout = 2 * time.Second

type flags struct {
	config   *string
	env      *string
	logLevel *string
	chatbot  *string
	stt      *string
	tts      *string
	trigger  *string
	proxy    *string
	bus      *string
	metrics  *string
	device   *string
}

func main() {
	os.Exit(run())
}

func run() int {
	f := flags{
		config:   cli.StringP("config", "c", "", "YAML config file"),
		env:      cli.StringP("env", "e", ".env", "Env file path"),
		logLevel: cli.StringP("log", "l", "", "Log level (debug, info, warn, error)"),
		chatbot:  cli.String("chatbot", "", "Chat backend (chatgpt)"),
		stt:      cli.String("speech-to-text", "", "Speech-to-text backend (whisper, whispercpp)"),
		tts:      cli.String("text-to-speech", "", "Text-to-speech backend (espeak)"),
		trigger:  cli.StringP("trigger", "t", "", "Recording trigger (key, interrupt, socket)"),
		proxy:    cli.StringP("proxy", "p", "", "Socks proxy address for remote calls"),
		bus:      cli.String("bus", "", "Websocket url to publish conversation events to"),
		metrics:  cli.String("metrics", "", "Address to serve Prometheus metrics on"),
		device:   cli.StringP("device", "d", "", "Input device name or index"),
	}
	cli.Lookup("speech-to-text").NoOptDefVal = config.Whisper
	cli.Lookup("text-to-speech").NoOptDefVal = config.Espeak
	cli.Parse()

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voxchat:", err)
		cli.Usage()
		return exitConfig
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.Logging.SlogLevel(),
		TimeFormat: time.Kitchen,
	})))

	if err := godotenv.Load(*f.env); err != nil {
		log.Debug("No env file loaded", "path", *f.env, "err", err)
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Warn("OPENAI_API_KEY not set. You will be unable to interact with OpenAI's APIs.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := interrupt.NewRouter(cancel)
	router.Listen(ctx)

	app, err := build(ctx, cfg, apiKey, router)
	if err != nil {
		log.Error("Failed to start", "err", err)
		if isConfigError(err) {
			return exitConfig
		}
		return exitFail
	}
	defer app.close()

	log.Debug("Starting conversation", "session", app.orch.SessionID())

	runErr := app.orch.Run(ctx)
	app.flush()

	if runErr != nil {
		log.Error("Conversation failed", "err", runErr)
		return exitFail
	}
	return exitOK
}

func loadConfig(f flags) (*config.Config, error) {
	cfg := config.Default()
	if *f.config != "" {
		loaded, err := config.Load(*f.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if !cli.Lookup("chatbot").Changed {
		return nil, errors.New("--chatbot is required")
	}

	set := func(name string, dst *string, val *string) {
		if cli.Lookup(name).Changed {
			*dst = *val
		}
	}
	set("chatbot", &cfg.Chat.Backend, f.chatbot)
	set("speech-to-text", &cfg.Transcription.Backend, f.stt)
	set("text-to-speech", &cfg.Speech.Backend, f.tts)
	set("trigger", &cfg.Capture.Trigger, f.trigger)
	set("proxy", &cfg.Network.Proxy, f.proxy)
	set("bus", &cfg.Network.Bus, f.bus)
	set("metrics", &cfg.Network.Metrics, f.metrics)
	set("device", &cfg.Capture.Device, f.device)
	set("log", &cfg.Logging.Level, f.logLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isConfigError(err error) bool {
	return errors.Is(err, config.ErrUnknownBackend) ||
		errors.Is(err, speech.ErrInvalidRate) ||
		errors.Is(err, cost.ErrInvalidRate) ||
		errors.Is(err, capture.ErrInvalidConfig)
}

type app struct {
	orch    *orchestrator.Orchestrator
	pub     *bus.Publisher
	pubDone chan struct{}
	closers []func()
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) flush() {
	if a.pub == nil {
		return
	}
	a.pub.Close()
	select {
	case <-a.pubDone:
	case <-time.After(busFlushTimeout):
		log.Warn("Bus did not flush in time")
	}
}

func build(ctx context.Context, cfg *config.Config, apiKey string, router *interrupt.Router) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	httpClient, err := proxy.NewHTTPClient(cfg.Network.Proxy)
	if err != nil {
		return nil, fmt.Errorf("socks proxy %s: %w", cfg.Network.Proxy, err)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	)

	chatbot, err := chat.New(chat.NewOpenAI(client), chat.Config{
		Model:      cfg.Chat.Model,
		PricePer1K: cfg.Chat.PricePer1K,
	})
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithFormatter(console.Styles{}),
	}

	if cfg.Transcription.Backend != "" {
		tr, err := buildTranscriber(cfg, client, router, a)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithTranscriber(tr))
	} else {
		prompter := console.NewPrompter()
		a.onClose(func() { _ = prompter.Close() })
		opts = append(opts, orchestrator.WithPrompter(prompter))
	}

	if cfg.Speech.Backend != "" {
		sp, err := speech.New(&tts.Espeak{Voice: cfg.Speech.Voice}, cfg.Speech.Rate)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithSpeech(sp))
	}

	if cfg.Network.Bus != "" {
		pub, err := bus.NewPublisher(cfg.Network.Bus, "voxchat")
		if err != nil {
			return nil, fmt.Errorf("bus: %w", err)
		}
		a.pub = pub
		a.pubDone = make(chan struct{})

		busCtx, busCancel := context.WithCancel(context.Background())
		a.onClose(busCancel)
		go func() {
			defer close(a.pubDone)
			pub.Run(busCtx)
		}()
		opts = append(opts, orchestrator.WithObserver(pub))
	}

	if cfg.Network.Metrics != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Network.Metrics); err != nil {
				log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	orch, err := orchestrator.New(chatbot, opts...)
	if err != nil {
		return nil, err
	}
	a.orch = orch

	ok = true
	return a, nil
}

func buildTranscriber(cfg *config.Config, client openai.Client, router *interrupt.Router, a *app) (*transcribe.Component, error) {
	if err := audio.Init(); err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}
	a.onClose(audio.Terminate)

	dev, err := audio.NewPortAudio(cfg.Capture.Device)
	if err != nil {
		return nil, &capture.DeviceError{Op: "lookup", Err: err}
	}

	rate := cfg.Capture.SampleRate
	if rate == 0 {
		rate = dev.DefaultSampleRate()
	}
	log.Debug("Using input device", "device", dev.Name(), "rate", rate)

	var onStart func()
	if cfg.Capture.Cue != "" {
		cue, err := notify.NewCue(cfg.Capture.Cue)
		if err != nil {
			log.Warn("Recording cue disabled", "err", err)
		} else {
			onStart = cue.Play
		}
	}

	session, err := capture.NewSession(dev, capture.Config{
		SampleRate:  rate,
		Channels:    cfg.Capture.Channels,
		BlockFrames: cfg.Capture.BlockFrames,
		QueueDepth:  cfg.Capture.QueueDepth,
		OnStart:     onStart,
	})
	if err != nil {
		return nil, err
	}

	trig, err := buildTrigger(cfg.Capture, router, a)
	if err != nil {
		return nil, err
	}

	var (
		rec   transcribe.Recognizer
		name  string
		price = cfg.Transcription.PricePerMinute
	)
	switch cfg.Transcription.Backend {
	case config.Whisper:
		rec = transcribe.NewOpenAI(client, cfg.Transcription.Model)
		name = "Whisper"
	case config.WhisperCpp:
		local, err := stt.NewTranscriber(cfg.Transcription.ModelPath, stt.Options{
			Language: cfg.Transcription.Language,
		})
		if err != nil {
			return nil, fmt.Errorf("whisper.cpp: %w", err)
		}
		a.onClose(func() { _ = local.Close() })
		rec = local
		name = "whisper.cpp"
		price = 0
	default:
		return nil, fmt.Errorf("%w: speech-to-text %q", config.ErrUnknownBackend, cfg.Transcription.Backend)
	}

	var opts []transcribe.Option
	if cfg.Capture.Duck {
		opts = append(opts, transcribe.WithDucker(duck.New(duck.Pactl{}, duck.Config{
			Factor:    cfg.Capture.DuckFactor,
			Fade:      200 * time.Millisecond,
			SelfNames: []string{"voxchat", "espeak"},
		})))
	}

	return transcribe.New(session, trig, rec, transcribe.Config{
		Name:           name,
		PricePerMinute: price,
		TmpDir:         cfg.Transcription.TmpDir,
		KeepAudio:      cfg.Transcription.KeepAudio,
	}, opts...)
}

func buildTrigger(cfg config.CaptureConfig, router *interrupt.Router, a *app) (capture.Trigger, error) {
	var out io.Writer = os.Stdout

	switch cfg.Trigger {
	case config.TriggerKey:
		keys, err := capture.OpenTerminalKeys(os.Stdin, ' ')
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = keys.Close() })
		return capture.NewKeyHold(keys, capture.DefaultPollInterval, out), nil

	case config.TriggerInterrupt:
		return capture.NewInterrupt(router, "Ctrl+C", out), nil

	case config.TriggerSocket:
		srv, err := ipc.Listen(cfg.Socket)
		if err != nil {
			return nil, fmt.Errorf("control socket: %w", err)
		}
		a.onClose(func() { _ = srv.Close() })
		log.Info("Listening for toggles", "socket", srv.Addr())
		return capture.NewInterrupt(srv, "voxchat-ctl toggle", out), nil
	}

	return nil, fmt.Errorf("%w: trigger %q", config.ErrUnknownBackend, cfg.Trigger)
}
