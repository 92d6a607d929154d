package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uset82/v0-banana-piano-app/internal/audio"
	"github.com/uset82/v0-banana-piano-app/internal/audio/otoout"
	"github.com/uset82/v0-banana-piano-app/internal/config"
	"github.com/uset82/v0-banana-piano-app/internal/frame"
	"github.com/uset82/v0-banana-piano-app/internal/input"
	"github.com/uset82/v0-banana-piano-app/internal/keyboard"
	"github.com/uset82/v0-banana-piano-app/internal/keys"
	"github.com/uset82/v0-banana-piano-app/internal/midiin"
	"github.com/uset82/v0-banana-piano-app/internal/serialport"
	"github.com/uset82/v0-banana-piano-app/internal/transport"
	"github.com/uset82/v0-banana-piano-app/internal/voice"
)

// -------------------- Logger --------------------

// logger is the process-wide structured logger. Safe to use before
// initLogger is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool, w io.Writer) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Flags --------------------

type options struct {
	debug      bool
	connect    bool
	noMIDI     bool
	noKeyboard bool
}

func main() {
	configPath := flag.String("config", "", "YAML config file (default $"+config.EnvPath+")")
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	serialDev := flag.String("serial", "", "serial device (default: auto-detect)")
	instrument := flag.String("instrument", "", "piano or guitar (overrides config)")
	noMIDI := flag.Bool("no-midi", false, "do not watch for MIDI keyboards")
	noKeyboard := flag.Bool("no-keyboard", false, "do not read the terminal")
	noConnect := flag.Bool("no-connect", false, "do not connect to the board at startup")
	list := flag.Bool("list", false, "list serial ports and exit")
	flag.Parse()

	initLogger(*debug, os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config: load failed", "err", err)
		os.Exit(1)
	}
	if *serialDev != "" {
		cfg.Serial.Device = *serialDev
	}
	if *instrument != "" {
		cfg.Instrument = *instrument
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config: invalid", "err", err)
		os.Exit(2)
	}

	if *list {
		if err := listPorts(os.Stdout, serialport.NewHost(cfg.Serial, logger)); err != nil {
			logger.Error("serial: list failed", "err", err)
			os.Exit(1)
		}
		return
	}

	opts := options{
		debug:      *debug,
		connect:    !*noConnect,
		noMIDI:     *noMIDI || !cfg.MIDI.Enabled,
		noKeyboard: *noKeyboard || !cfg.Keyboard.Enabled,
	}
	if err := run(cfg, opts); err != nil {
		logger.Error("exit", "err", err)
		os.Exit(1)
	}
}

// -------------------- Run --------------------

func run(cfg *config.Config, opts options) error {
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, quit := context.WithCancel(sigCtx)
	defer quit()

	// Raw mode first so every component logs through the CRLF writer.
	restoreTerm := func() {}
	if !opts.noKeyboard {
		restore, err := keyboard.MakeRaw(os.Stdin)
		if err != nil {
			logger.Warn("keyboard: terminal input unavailable", "err", err)
			opts.noKeyboard = true
		} else {
			restoreTerm = restore
			initLogger(opts.debug, keyboard.CRLFWriter{W: os.Stderr})
		}
	}
	defer restoreTerm()

	logger.Info("banana piano starting",
		"instrument", cfg.Instrument,
		"volume_pct", cfg.Effects.VolumePct,
		"delay", cfg.Effects.DelayEnabled,
		"sample_rate", cfg.Audio.SampleRate,
		"baud", transport.Baud,
	)

	actx := audio.NewContext(cfg.Audio.SampleRate)
	out, err := otoout.Open(actx, cfg.Audio.Buffer, logger)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer out.Close()

	engine := voice.New(actx,
		voice.WithLogger(logger),
		voice.WithInstrument(cfg.InstrumentValue()),
		voice.WithEffects(cfg.Effects),
	)
	defer engine.Shutdown()

	agg := input.New(engine, logger)

	session := transport.NewSession(serialport.NewHost(cfg.Serial, logger), logger)
	session.Subscribe(agg.Source(input.Serial))
	session.SetDisconnectHandler(func(error) { agg.ReleaseAll(input.Serial) })
	defer session.Disconnect()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-out.Ready():
			if err := actx.Resume(); err != nil {
				logger.Debug("audio: resume", "err", err)
			}
		case <-gctx.Done():
		}
		return nil
	})

	if opts.connect {
		g.Go(func() error {
			connect(gctx, session)
			return nil
		})
	} else if err := session.Availability(); err != nil {
		logger.Warn("serial: unavailable", "err", err)
	}

	if !opts.noMIDI {
		watcher, err := midiin.New(cfg.MIDI, agg.Source(input.MIDI), func() {
			logger.Warn("midi: disconnect - panic-releasing held keys")
			agg.ReleaseAll(input.MIDI)
		}, logger)
		if err != nil {
			logger.Warn("midi: unavailable", "err", err)
		} else {
			defer watcher.Close()
			g.Go(func() error {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				watcher.Tick()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-ticker.C:
						watcher.Tick()
					}
				}
			})
		}
	}

	if !opts.noKeyboard {
		c := &controls{ctx: gctx, engine: engine, session: session, quit: quit}
		src := keyboard.New(os.Stdin, cfg.Keyboard.Hold, agg.Source(input.Keyboard), c.apply, logger)
		defer src.ReleaseAll()
		fmt.Fprint(os.Stderr, keyboard.Help+"\r\n")
		g.Go(func() error {
			if err := src.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("keyboard: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logger.Info("running")
	err = g.Wait()
	logger.Info("shutting down", "active_keys", len(agg.Active()), "frames", session.Stats().Decoded)
	return err
}

func connect(ctx context.Context, s *transport.Session) {
	err := s.Connect(ctx)
	if err == nil {
		return
	}
	var te *transport.Error
	if errors.As(err, &te) {
		logger.Warn("serial: not connected",
			"kind", te.Kind.String(),
			"reason", te.Reason,
			"retryable", te.Retryable(),
		)
		return
	}
	logger.Warn("serial: not connected", "err", err)
}

// -------------------- Controls --------------------

type controls struct {
	ctx     context.Context
	engine  *voice.Engine
	session *transport.Session
	quit    context.CancelFunc
}

func (c *controls) apply(a keyboard.Action) {
	if i, ok := keyboard.Instrument(a); ok {
		c.engine.SetInstrument(i)
		logger.Info("instrument", "instrument", string(i))
		return
	}
	if fx, ok := keyboard.AdjustEffects(c.engine.Effects(), a); ok {
		c.engine.SetEffects(fx)
		logger.Info("effects",
			"delay", fx.DelayEnabled,
			"delay_ms", fx.DelayTimeMs,
			"feedback_pct", fx.DelayFeedbackPct,
			"volume_pct", fx.VolumePct,
		)
		return
	}
	switch a {
	case keyboard.ActionConnect:
		go connect(c.ctx, c.session)
	case keyboard.ActionDisconnect:
		c.session.Disconnect()
	case keyboard.ActionQuit:
		c.quit()
	}
}

// -------------------- List --------------------

func listPorts(w io.Writer, host *serialport.Host) error {
	ports, err := host.List()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
	}
	for _, p := range ports {
		fmt.Fprintln(w, p.String())
	}
	if p, err := host.RequestPort(context.Background()); err == nil {
		fmt.Fprintf(w, "auto-selected: %s\n", p)
	} else {
		fmt.Fprintf(w, "auto-selected: none (%v)\n", err)
	}
	fmt.Fprintf(w, "expects %d baud, one frame per line, e.g. %s",
		transport.Baud, frame.Encode(keys.KeyEvent{Electrode: 0, Pressed: true}))
	return nil
}
