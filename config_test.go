package ds1302term

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}, mode)

	assert.Equal(t, 10*time.Millisecond, time.Duration(cfg.ReadTimeout))
	assert.Equal(t, CommandVariant, cfg.Variant)
	assert.Equal(t, time.Second, cfg.AlignOffset())
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`
device = "/dev/ttyUSB1"
variant = "wizard"
parity = "even"
stop_bits = 2
read_timeout = "50ms"
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/dev/ttyUSB1", cfg.Device)
	assert.Equal(t, WizardVariant, cfg.Variant)
	assert.Equal(t, 50*time.Millisecond, time.Duration(cfg.ReadTimeout))
	assert.Equal(t, DefaultBaud, cfg.Baud)
	assert.Equal(t, 2*time.Second, cfg.AlignOffset())

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
}

func TestParseConfigOffset(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`offset = "1500ms"`))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.AlignOffset())
}

func TestParseConfigInvalidDuration(t *testing.T) {
	_, err := ParseConfig(strings.NewReader(`read_timeout = "soon"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config")
	assert.Contains(t, err.Error(), `invalid duration "soon"`)
}

func TestTOMLDurationMarshalText(t *testing.T) {
	text, err := TOMLDuration(1500 * time.Millisecond).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", string(text))

	var d TOMLDuration
	require.NoError(t, d.UnmarshalText(text))
	assert.Equal(t, 1500*time.Millisecond, time.Duration(d))
}

func TestParseConfigDeviceFromEnv(t *testing.T) {
	t.Setenv(DeviceEnv, "/dev/ttyUSB7")

	cfg, err := ParseConfig(strings.NewReader(`baud = 9600`))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB7", cfg.Device)
	assert.Equal(t, 9600, cfg.Baud)

	cfg, err = ParseConfig(strings.NewReader(`device = "/dev/ttyUSB1"`))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Device)
}

func TestDefaultDeviceName(t *testing.T) {
	t.Setenv(DeviceEnv, "")
	assert.Equal(t, DefaultDevice, DefaultDeviceName())
	assert.Equal(t, DefaultDevice, DefaultConfig().Device)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"device", func(c *Config) { c.Device = "" }, "no serial device"},
		{"baud", func(c *Config) { c.Baud = -1 }, "baud"},
		{"data bits", func(c *Config) { c.DataBits = 9 }, "data bits"},
		{"stop bits", func(c *Config) { c.StopBits = 3 }, "stop bits"},
		{"zero stop bits", func(c *Config) { c.StopBits = 0 }, "stop bits"},
		{"parity", func(c *Config) { c.Parity = "sometimes" }, "parity"},
		{"read timeout", func(c *Config) { c.ReadTimeout = -1 }, "read timeout"},
		{"offset", func(c *Config) { c.Offset = TOMLDuration(-time.Second) }, "offset"},
		{"tick limit", func(c *Config) { c.TickLimit = -1 }, "tick limit"},
		{"variant", func(c *Config) { c.Variant = "binary" }, "variant"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.want)
		})
	}
}
