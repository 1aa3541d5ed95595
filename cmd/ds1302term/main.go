package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.bug.st/serial"
	"libdb.so/ds1302term"
)

var (
	config  = ""
	device  = ds1302term.DefaultDeviceName()
	baud    = ds1302term.DefaultBaud
	variant = string(ds1302term.CommandVariant)
	list    = false
	verbose = false
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file (optional)")
	pflag.StringVarP(&device, "device", "d", device, "serial device of the Arduino, also $"+ds1302term.DeviceEnv)
	pflag.IntVarP(&baud, "baud", "b", baud, "baud rate")
	pflag.StringVar(&variant, "variant", variant, "firmware variant: command or wizard")
	pflag.BoolVarP(&list, "list", "l", list, "list serial ports and exit")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		var portErr *ds1302term.PortUnavailableError
		if errors.As(err, &portErr) {
			fmt.Fprintf(os.Stderr, "Error: Cannot open serial port %s\n", portErr.Device)
			slog.Debug("open failed", "error", portErr.Err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run() error {
	if list {
		return listPorts(os.Stdout)
	}

	cfg, err := readConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	b, err := ds1302term.NewBridge(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	b.Echo = os.Stdout

	fmt.Printf("Setting DS1302 RTC date and time on %s (%s)\n", cfg.Device, cfg.Variant)

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// readConfig reads the configuration file, if any, and applies the flags that
// were set explicitly on top of it.
func readConfig() (*ds1302term.Config, error) {
	cfg := ds1302term.DefaultConfig()

	if config != "" {
		f, err := os.Open(config)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		cfg, err = ds1302term.ParseConfig(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if config == "" || pflag.CommandLine.Changed("device") {
		cfg.Device = device
	}
	if config == "" || pflag.CommandLine.Changed("baud") {
		cfg.Baud = baud
	}
	if config == "" || pflag.CommandLine.Changed("variant") {
		cfg.Variant = ds1302term.Variant(variant)
	}

	return cfg, nil
}

func listPorts(w io.Writer) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return nil
	}

	for _, port := range ports {
		fmt.Fprintln(w, port)
	}
	return nil
}
