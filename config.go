package ds1302term

import (
	"encoding"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"libdb.so/ds1302term/internal/tick"
)

// Config is the configuration for the terminal bridge.
type Config struct {
	// Device is the path to the serial device of the Arduino.
	// This is usually /dev/ttyACM0 or /dev/ttyUSB0, or COMx on Windows.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
	// DataBits is the number of data bits per character.
	DataBits int `toml:"data_bits"`
	// StopBits is the number of stop bits, either 1 or 2.
	StopBits int `toml:"stop_bits"`
	// Parity is the parity mode.
	Parity Parity `toml:"parity"`
	// ReadTimeout bounds a single read from the device.
	ReadTimeout TOMLDuration `toml:"read_timeout"`

	// Variant selects the firmware protocol to speak.
	Variant Variant `toml:"variant"`
	// Offset is added to the aligned timestamp to cover transmission and
	// processing delay. If zero, the variant's default is used.
	Offset TOMLDuration `toml:"offset"`
	// TickLimit bounds the wait for the host clock to tick.
	TickLimit TOMLDuration `toml:"tick_limit"`
}

// Default values for the serial connection.
const (
	DefaultDevice      = "/dev/ttyACM0"
	DefaultBaud        = 115200
	DefaultDataBits    = 8
	DefaultStopBits    = 1
	DefaultReadTimeout = 10 * time.Millisecond
)

// DeviceEnv is the environment variable that names the serial device when
// neither a flag nor the configuration file does.
const DeviceEnv = "DS1302_PORT"

// DefaultDeviceName returns $DS1302_PORT, or DefaultDevice if it is unset.
func DefaultDeviceName() string {
	if device := os.Getenv(DeviceEnv); device != "" {
		return device
	}
	return DefaultDevice
}

// DefaultConfig returns the configuration of the terminal example sketches.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in every unset field with its default value.
func (c *Config) SetDefaults() {
	if c.Device == "" {
		c.Device = DefaultDeviceName()
	}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	if c.Parity == "" {
		c.Parity = NoParity
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = TOMLDuration(DefaultReadTimeout)
	}
	if c.Variant == "" {
		c.Variant = CommandVariant
	}
	if c.TickLimit == 0 {
		c.TickLimit = TOMLDuration(tick.DefaultLimit)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("no serial device configured")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("invalid number of data bits %d", c.DataBits)
	}
	if _, err := c.stopBits(); err != nil {
		return err
	}
	if _, err := c.Parity.serialParity(); err != nil {
		return err
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", time.Duration(c.ReadTimeout))
	}
	if c.Offset < 0 {
		return fmt.Errorf("offset must not be negative, got %v", time.Duration(c.Offset))
	}
	if c.TickLimit <= 0 {
		return fmt.Errorf("tick limit must be positive, got %v", time.Duration(c.TickLimit))
	}

	switch c.Variant {
	case CommandVariant, WizardVariant:
	default:
		return fmt.Errorf("unknown variant %q", c.Variant)
	}

	return nil
}

// Mode returns the serial port mode described by the configuration.
func (c *Config) Mode() (*serial.Mode, error) {
	stopBits, err := c.stopBits()
	if err != nil {
		return nil, err
	}

	parity, err := c.Parity.serialParity()
	if err != nil {
		return nil, err
	}

	return &serial.Mode{
		BaudRate: c.Baud,
		DataBits: c.DataBits,
		StopBits: stopBits,
		Parity:   parity,
	}, nil
}

// AlignOffset returns the configured offset, or the variant's default if none
// is configured.
func (c *Config) AlignOffset() time.Duration {
	if c.Offset > 0 {
		return time.Duration(c.Offset)
	}
	return c.Variant.DefaultOffset()
}

func (c *Config) stopBits() (serial.StopBits, error) {
	switch c.StopBits {
	case 1:
		return serial.OneStopBit, nil
	case 2:
		return serial.TwoStopBits, nil
	default:
		return 0, fmt.Errorf("invalid number of stop bits %d", c.StopBits)
	}
}

// Variant is the firmware protocol variant.
type Variant string

const (
	// CommandVariant answers the startup banner with single-shot set date and
	// set time commands, then enables continuous printing.
	CommandVariant Variant = "command"
	// WizardVariant answers the firmware's field-by-field prompts.
	WizardVariant Variant = "wizard"
)

// DefaultOffset returns the offset added to the aligned timestamp when none
// is configured.
func (v Variant) DefaultOffset() time.Duration {
	switch v {
	case WizardVariant:
		// Seven prompts are answered after the timestamp is captured.
		return 2 * time.Second
	default:
		return time.Second
	}
}

// Parity is the parity mode of the serial connection.
type Parity string

const (
	NoParity    Parity = "none"
	OddParity   Parity = "odd"
	EvenParity  Parity = "even"
	MarkParity  Parity = "mark"
	SpaceParity Parity = "space"
)

func (p Parity) serialParity() (serial.Parity, error) {
	switch p {
	case NoParity:
		return serial.NoParity, nil
	case OddParity:
		return serial.OddParity, nil
	case EvenParity:
		return serial.EvenParity, nil
	case MarkParity:
		return serial.MarkParity, nil
	case SpaceParity:
		return serial.SpaceParity, nil
	default:
		return 0, fmt.Errorf("unknown parity %q", p)
	}
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

// UnmarshalText parses a duration string such as "10ms" or "1.5s".
func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	*d = TOMLDuration(duration)
	return nil
}

// MarshalText formats the duration the way time.Duration prints it.
func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. Keys missing from the
// document are set to their defaults, so a file without a device falls back
// to $DS1302_PORT before DefaultDevice.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	config.SetDefaults()
	return &config, nil
}
