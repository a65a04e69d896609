package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"moodmic/audio"
	"moodmic/beep"
	"moodmic/config"
	"moodmic/doctor"
	"moodmic/events"
	"moodmic/hotkey"
	"moodmic/log"
	"moodmic/metrics"
	"moodmic/observability"
	"moodmic/permission"
	"moodmic/presenter"
	"moodmic/sentiment"
	"moodmic/shutdown"
	"moodmic/speech"
	"moodmic/transcriber"

	"golang.org/x/term"
)

var version = "dev"

type options struct {
	configPath      string
	logPath         string
	lang            string
	provider        string
	sentimentURL    string
	device          string
	setup           bool
	metricsAddr     string
	hotkey          string
	longPress       time.Duration
	headless        bool
	wav             string
	allowMic        bool
	resetPermission bool
	version         bool
	gui             bool
	doctor          bool
	quiet           bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("moodmic", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "config file (default: <config dir>/moodmic/config.yaml)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.lang, "lang", "", "language code for recognition (e.g., en, es, fr)")
	fs.StringVar(&o.provider, "provider", "", "speech provider: deepgram, google, groq or fake")
	fs.StringVar(&o.sentimentURL, "sentiment-url", "", "sentiment service base URL")
	fs.StringVar(&o.device, "device", "", "use named microphone device")
	fs.BoolVar(&o.setup, "setup", false, "select microphone device interactively")
	fs.StringVar(&o.metricsAddr, "metrics", "", "serve /metrics, /healthz and /state on this address (e.g., :9464)")
	fs.StringVar(&o.hotkey, "hotkey", hotkey.DefaultCombo, "global push-to-talk chord, empty disables")
	fs.DurationVar(&o.longPress, "longpress", hotkey.DefaultLongPress, "hold longer than this for push-to-talk, shorter taps toggle")
	fs.BoolVar(&o.headless, "headless", false, "read commands from stdin instead of running the TUI")
	fs.StringVar(&o.wav, "wav", "", "replay this WAV file instead of using the microphone")
	fs.BoolVar(&o.allowMic, "allow-mic", false, "treat microphone permission as granted without asking")
	fs.BoolVar(&o.resetPermission, "reset-permission", false, "forget the stored microphone decision")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	fs.BoolVar(&o.gui, "gui", false, "open the desktop window (needs a build with -tags gui)")
	fs.BoolVar(&o.doctor, "doctor", false, "run system diagnostics and exit")
	fs.BoolVar(&o.quiet, "quiet", false, "no sound cues")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// applyFlags lets explicit flags win over the config file.
func applyFlags(cfg *config.Config, o options) {
	if o.lang != "" {
		cfg.Speech.Language = o.lang
	}
	if o.provider != "" {
		cfg.Speech.Provider = o.provider
	}
	if o.sentimentURL != "" {
		cfg.Sentiment.BaseURL = o.sentimentURL
	}
	if o.device != "" {
		cfg.Speech.Device = o.device
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	f, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

// app holds everything one run wires together.
type app struct {
	cfg       *config.Config
	opts      options
	audio     audio.Context
	rec       transcriber.Transcriber
	adapter   *speech.Adapter
	presenter *presenter.Presenter
	metrics   *metrics.Metrics
	obs       *observability.Server
	pub       *events.Publisher
	hybrid    *hotkey.Hybrid
	hk        hotkey.Hotkey
}

func run() int {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.version {
		fmt.Printf("moodmic %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if opts.doctor {
		return runDoctor(opts)
	}

	a, err := setup(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Errorf("startup failed: %v", err)
		log.Close()
		return 1
	}

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	switch {
	case opts.gui:
		return a.runGUI(ctx, cancel)
	case opts.headless || !term.IsTerminal(int(os.Stdout.Fd())):
		return a.runHeadless(ctx, cancel, os.Stdin, os.Stdout)
	default:
		return a.runTUI(ctx, cancel)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locating config: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, opts)
	return cfg, nil
}

func setup(opts options) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if err := log.Init(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	gate, err := newGate(opts)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, opts: opts}
	if opts.wav != "" {
		a.audio, err = audio.NewFakeContext(opts.wav, true)
		if err != nil {
			return nil, fmt.Errorf("loading WAV: %w", err)
		}
	} else {
		a.audio, err = audio.NewContext()
		if err != nil {
			// Typed text still works without a microphone.
			log.Warnf("audio unavailable: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: audio unavailable, listening disabled: %v\n", err)
			a.audio = audio.NewUnavailable(err)
		}
	}

	dev, err := pickDevice(a.audio, cfg.Speech.Device, opts.setup)
	if err != nil {
		log.Warnf("device selection failed, using default: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v (falling back to default device)\n", err)
	}
	if dev != nil {
		log.Info("recording_device: " + dev.Name)
		if audio.IsBluetooth(dev.Name) {
			log.Warn("bluetooth microphone selected, expect reduced quality")
		}
	}

	a.rec, err = newRecognizer(context.Background(), cfg)
	if err != nil {
		log.Warnf("speech recognizer unavailable: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: listening disabled: %v\n", err)
		u := transcriber.NewUnavailable(err)
		u.SetLanguage(cfg.Speech.Language)
		a.rec = u
	}

	a.metrics = metrics.New()
	a.pub = events.NewPublisher(events.Config{
		Enabled: cfg.Kafka.Enabled,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})

	client := newSentimentClient(cfg)

	a.adapter = speech.New(a.audio, a.rec, gate, speech.Options{
		Device:      dev,
		AutoStop:    *cfg.Speech.AutoStop,
		SilenceWarn: cfg.Speech.SilenceWarn,
		SilenceStop: cfg.Speech.SilenceStop,
	})
	a.presenter = presenter.New(a.adapter, client, gate,
		presenter.WithLanguage(cfg.Speech.Language),
		presenter.WithPublisher(a.pub),
		presenter.WithRecorder(a.metrics),
		presenter.WithProvider(a.rec.Name()),
	)
	if cfg.Metrics.Addr != "" {
		a.obs = observability.NewServer(cfg.Metrics.Addr, a.metrics.Registry, func() any {
			return a.presenter.Snapshot()
		})
	}
	log.Infof("sentiment endpoint %s, recognizer %s (%s)", client.BaseURL(), a.rec.Name(), a.rec.GetLanguage())
	return a, nil
}

func newSentimentClient(cfg *config.Config) *sentiment.Client {
	retry := sentiment.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Sentiment.MaxAttempts
	return sentiment.NewClient(cfg.Sentiment.BaseURL,
		sentiment.WithTimeout(cfg.Sentiment.Timeout),
		sentiment.WithRetry(retry),
	)
}

func runDoctor(opts options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	var ac audio.Context
	if opts.wav != "" {
		ac, err = audio.NewFakeContext(opts.wav, false)
	} else {
		ac, err = audio.NewContext()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer ac.Close()

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	dev, devErr := audio.FindDevice(ac, cfg.Speech.Device)
	rec, recErr := newRecognizer(ctx, cfg)
	client := newSentimentClient(cfg)

	checks := []doctor.Check{
		doctor.HotkeyCheck(),
		doctor.RecognizerCheck(rec, recErr),
		doctor.SentimentCheck(client.BaseURL(), doctor.AnalyzerFunc(func(ctx context.Context, text string) (string, float64, error) {
			res, err := client.Analyze(ctx, text)
			return res.Label, res.Score, err
		})),
		doctor.ClipboardCheck(),
	}
	if devErr != nil {
		checks = append(checks, doctor.Check{Name: "Microphone", Run: func(context.Context) (string, error) {
			return "", devErr
		}})
	} else {
		checks = append(checks, doctor.MicCheck(ac, dev, 2*time.Second))
	}
	fmt.Println("Speak for two seconds during the microphone check.")
	return doctor.Run(ctx, os.Stdout, checks)
}

func newGate(opts options) (permission.Gate, error) {
	if opts.allowMic {
		return permission.NewStatic(permission.Granted), nil
	}
	dir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("locating config dir: %w", err)
	}
	g, err := permission.NewFileGate(filepath.Join(dir, "permission.yaml"))
	if err != nil {
		return nil, err
	}
	if opts.resetPermission {
		if err := g.Reset(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func pickDevice(ac audio.Context, name string, interactive bool) (*audio.DeviceInfo, error) {
	if name != "" {
		return audio.FindDevice(ac, name)
	}
	if interactive {
		return audio.SelectDevice(ac)
	}
	return nil, nil
}

// newRecognizer adds the scripted provider to the ones transcriber.New
// knows about. MOODMIC_FAKE_TRANSCRIPT sets what it "hears".
func newRecognizer(ctx context.Context, cfg *config.Config) (transcriber.Transcriber, error) {
	if cfg.Speech.Provider == "fake" {
		text := os.Getenv("MOODMIC_FAKE_TRANSCRIPT")
		if text == "" {
			text = "I love this"
		}
		f := transcriber.NewFake(text, nil).WithPartials(partialsOf(text)...)
		f.SetLanguage(cfg.Speech.Language)
		return f, nil
	}
	return transcriber.New(ctx, cfg)
}

// start launches the session loop and the optional servers.
func (a *app) start(ctx context.Context, withHotkey bool) {
	go a.presenter.Run(ctx)
	if a.opts.quiet {
		beep.Disable()
	} else {
		go playCues(ctx, a.presenter)
	}

	if a.obs != nil {
		if err := a.obs.Start(); err != nil {
			log.Warnf("metrics server: %v", err)
			a.obs = nil
		}
	}
	if withHotkey && a.opts.hotkey != "" {
		a.startHotkey(ctx)
	}
}

func (a *app) startHotkey(ctx context.Context) {
	combo, err := hotkey.ParseCombo(a.opts.hotkey)
	if err != nil {
		log.Warnf("hotkey disabled: %v", err)
		return
	}
	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		msg, derr := hotkey.Diagnose()
		if derr != nil {
			msg = derr.Error()
		}
		log.Warnf("hotkey %s unavailable: %v (%s)", combo, err, msg)
		return
	}
	a.hk = hk
	a.hybrid = hotkey.NewHybrid(hk, a.opts.longPress)
	go driveHotkey(ctx, a.hybrid, a.presenter)
	log.Infof("hotkey %s registered", combo)
}

// stop tears the session down in dependency order.
func (a *app) stop(cancel context.CancelFunc) {
	cancel()
	<-a.presenter.Done()
	if a.hybrid != nil {
		a.hybrid.Close()
		a.hk.Unregister()
	}
	a.adapter.Close()
	if err := a.pub.Close(); err != nil {
		log.Warnf("closing publisher: %v", err)
	}
	if a.obs != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.obs.Shutdown(sctx)
		scancel()
	}
	a.audio.Close()
	log.Close()
}

// partialsOf returns the growing word prefixes of text, the way a streaming
// recognizer reports interim results.
func partialsOf(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for i := range words {
		out = append(out, strings.Join(words[:i+1], " "))
	}
	return out
}

func wantsGUI(args []string) bool {
	for _, arg := range args {
		if arg == "-gui" || arg == "--gui" || arg == "-gui=true" {
			return true
		}
	}
	return false
}
