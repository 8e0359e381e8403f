package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Looper calls Step every Interval until its context ends or the process
// gets SIGINT/SIGTERM. A zero Interval never ticks; Run then only waits.
type Looper struct {
	Interval time.Duration
	Step     func(ctx context.Context) error
}

// Run blocks until shutdown and returns the first Step error, if any.
// Cancellation and signals are a clean exit.
func (l *Looper) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(c)
		cancel()
	}()

	var tick <-chan time.Time
	if l.Interval > 0 && l.Step != nil {
		ticker := time.NewTicker(l.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if err := l.Step(ctx); err != nil {
				return err
			}

		case sig := <-c:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// Every converts a rate in Hz to a tick interval; 0 or less means never.
func Every(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}
