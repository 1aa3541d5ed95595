// Package ds1302term sets the clock of an Arduino running the DS1302 RTC
// terminal example sketch. It watches the prompts the sketch prints on the
// serial port and answers them with the host's date and time.
package ds1302term

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
	"libdb.so/ds1302term/internal/tick"
	"libdb.so/ds1302term/termproto"
)

// Port is the part of a serial port that the bridge uses.
// serial.Port implements it.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout sets the timeout of a single Read. A Read that times
	// out returns 0 bytes and no error.
	SetReadTimeout(t time.Duration) error
}

var _ Port = serial.Port(nil)

// OpenFunc opens the serial port described by the configuration.
type OpenFunc func(cfg *Config) (Port, error)

// OpenSerial opens the configured serial device.
func OpenSerial(cfg *Config) (Port, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, err
	}

	return port, nil
}

// PortUnavailableError is returned when the serial device cannot be opened.
type PortUnavailableError struct {
	Device string
	Err    error
}

func (e *PortUnavailableError) Error() string {
	return fmt.Sprintf("cannot open serial port %s: %v", e.Device, e.Err)
}

func (e *PortUnavailableError) Unwrap() error {
	return e.Err
}

// Bridge is the terminal bridge between the host clock and the device.
type Bridge struct {
	// Open opens the serial port. It defaults to OpenSerial.
	Open OpenFunc
	// Clock is the clock whose date and time are sent to the device. It
	// defaults to tick.System.
	Clock tick.Clock
	// Echo receives every non-empty line read from the device. It defaults
	// to io.Discard.
	Echo io.Writer

	cfg    *Config
	logger *slog.Logger
}

// NewBridge creates a new terminal bridge.
func NewBridge(cfg *Config, logger *slog.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Bridge{
		Open:   OpenSerial,
		Clock:  tick.System,
		Echo:   io.Discard,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run opens the serial port and answers the device's prompts. It blocks until
// the given context is canceled or the port fails. If the port cannot be
// opened, a *PortUnavailableError is returned and nothing is read.
func (b *Bridge) Run(ctx context.Context) error {
	return (&internalBridge{Bridge: b}).Run(ctx)
}

type internalBridge struct {
	*Bridge
	port    Port
	lines   *termproto.LineReader
	session Session
}

func (b *internalBridge) Run(ctx context.Context) error {
	session, err := NewSession(b.cfg, b.Clock, b.logger)
	if err != nil {
		return err
	}
	b.session = session

	port, err := b.Open(b.cfg)
	if err != nil {
		return &PortUnavailableError{Device: b.cfg.Device, Err: err}
	}
	defer port.Close()

	if err := port.SetReadTimeout(time.Duration(b.cfg.ReadTimeout)); err != nil {
		return errors.Wrap(err, "failed to set read timeout")
	}

	b.port = port
	b.lines = termproto.NewLineReader(port)

	b.logger.Debug(
		"opened serial port",
		"device", b.cfg.Device,
		"baud", b.cfg.Baud,
		"variant", b.cfg.Variant)

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		b.logger.Debug("closing serial port")
		if err := port.Close(); err != nil {
			return errors.Wrap(err, "failed to close serial port")
		}
		return ctx.Err()
	})
	errg.Go(func() error {
		return b.mainLoop(ctx)
	})

	return errg.Wait()
}

func (b *internalBridge) mainLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		line, err := b.lines.ReadLine()
		if err != nil {
			// Closing the port on cancellation fails the pending read.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "failed to read from serial port")
		}

		if line == "" {
			continue
		}

		fmt.Fprintln(b.Echo, line)

		if err := b.dispatch(ctx, line); err != nil {
			// A write racing the close on cancellation is not a failure.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}

	return ctx.Err()
}

func (b *internalBridge) dispatch(ctx context.Context, line string) error {
	matched, err := b.session.Dispatch(ctx, b.port, line)
	if !matched {
		return nil
	}

	if err != nil {
		if errors.Is(err, termproto.ErrYearOutOfRange) || errors.Is(err, tick.ErrNoTick) {
			b.logger.Warn(
				"cannot answer prompt",
				"line", line,
				"state", b.session.State(),
				"error", err)
			return nil
		}
		return errors.Wrapf(err, "failed to answer %q", line)
	}

	b.logger.Debug(
		"answered prompt",
		"line", line,
		"state", b.session.State())

	return nil
}
