package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/blinkt"
	"github.com/coreman2200/blinkt/internal/config"
	"github.com/coreman2200/blinkt/internal/runner"
	"github.com/coreman2200/blinkt/internal/server"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code once the strip is released.
func run() int {
	// ---- Flags (override config.yaml when set) ----
	var (
		configPath = flag.String("config", "blinkt.yaml", "path to blinkt.yaml")
		transport  = flag.String("transport", config.TransportGPIO, "transport: gpio | spi")
		pixels     = flag.Int("pixels", 8, "number of pixels on the strip")
		data       = flag.String("data", blinkt.DAT, "data pin (gpio transport)")
		clock      = flag.String("clock", blinkt.CLK, "clock pin (gpio transport)")
		spiPort    = flag.String("spi-port", "", "SPI port name, empty for the first one")
		spiHz      = flag.Int64("spi-hz", 4000000, "SPI clock in Hz")
		latch      = flag.Bool("sk9822-latch", false, "send 32 extra zero clocks after each SPI frame (bit-bang always does)")
		keep       = flag.Bool("keep", false, "leave the pixels lit on exit")
		listen     = flag.String("listen", "", "control server address, e.g. :8080")
		refreshHz  = flag.Float64("refresh-hz", 0, "re-send the buffer this often, 0 disables")
		color      = flag.String("color", "", "fill the strip on start, RRGGBB or r,g,b")
		brightness = flag.Float64("brightness", 7.0/31.0, "start brightness 0..1")
		logLevel   = flag.String("log-level", "info", "debug | info | warn | error")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || flag.CommandLine.Changed("config") {
			log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
		}
		cfg = config.Default()
	}
	set := func(name string, apply func()) {
		if flag.CommandLine.Changed(name) {
			apply()
		}
	}
	set("transport", func() { cfg.Transport = *transport })
	set("pixels", func() { cfg.Pixels = *pixels })
	set("data", func() { cfg.GPIO.Data = *data })
	set("clock", func() { cfg.GPIO.Clock = *clock })
	set("spi-port", func() { cfg.SPI.Port = *spiPort })
	set("spi-hz", func() { cfg.SPI.SpeedHz = *spiHz })
	set("sk9822-latch", func() { cfg.SK9822Latch = *latch })
	set("keep", func() { cfg.ClearOnRelease = !*keep })
	set("listen", func() { cfg.Listen = *listen })
	set("refresh-hz", func() { cfg.RefreshHz = *refreshHz })
	set("brightness", func() { cfg.Brightness = *brightness })
	set("log-level", func() { cfg.LogLevel = *logLevel })
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	// ---- Strip ----
	strip, err := open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport).Msg("open strip")
	}
	log.Info().Str("strip", strip.String()).Bool("clear_on_release", strip.ClearOnRelease()).Msg("strip open")

	srv := server.New(strip)
	defer srv.Close()
	if *color != "" {
		if err := fillColor(srv, *color); err != nil {
			log.Error().Err(err).Msg("initial fill")
			return 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Control server ----
	var hs *http.Server
	if cfg.Listen != "" {
		hs = &http.Server{
			Addr:         cfg.Listen,
			Handler:      srv.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Listen).Msg("HTTP server starting")
			if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server crashed")
				cancel()
			}
		}()
	}

	// ---- Run until signal ----
	l := runner.Looper{Interval: runner.Every(cfg.RefreshHz), Step: srv.Refresh}
	code := 0
	if err := l.Run(ctx); err != nil {
		log.Error().Err(err).Msg("refresh failed")
		code = 1
	}
	if hs != nil {
		_ = hs.Close()
	}
	return code
}

func open(cfg *config.Config) (*blinkt.Strip, error) {
	o := blinkt.Opts{
		NumPixels:      cfg.Pixels,
		ClearOnRelease: cfg.ClearOnRelease,
		Brightness:     cfg.Brightness,
		SK9822Latch:    cfg.SK9822Latch,
	}
	if cfg.Transport == config.TransportSPI {
		return blinkt.OpenSPI(cfg.SPI.Port, physic.Frequency(cfg.SPI.SpeedHz)*physic.Hertz, &o)
	}
	return blinkt.OpenGPIO(blinkt.PinConfig{Data: cfg.GPIO.Data, Clock: cfg.GPIO.Clock}, &o)
}

// fillColor sets every pixel to the colour in s and shows it.
func fillColor(srv *server.Server, s string) error {
	r, g, b, err := parseColor(s)
	if err != nil {
		return err
	}
	if resp := srv.Apply(server.Request{Op: server.OpSetAll, R: r, G: g, B: b, Show: true}); !resp.OK {
		return errors.New(resp.Error)
	}
	return nil
}

// parseColor accepts "ff8000", "#ff8000" or "255,128,0".
func parseColor(s string) (r, g, b uint8, err error) {
	if parts := strings.Split(s, ","); len(parts) == 3 {
		var v [3]uint8
		for i, p := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("color %q: %w", s, err)
			}
			v[i] = uint8(n)
		}
		return v[0], v[1], v[2], nil
	}
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return 0, 0, 0, fmt.Errorf("color %q: want RRGGBB or r,g,b", s)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("color %q: %w", s, err)
	}
	return uint8(n >> 16), uint8(n >> 8), uint8(n), nil
}
