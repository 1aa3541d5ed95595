package main

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/ds1302term"
)

// mainArgsEnv makes the test binary run main with the given arguments instead
// of the tests.
const mainArgsEnv = "DS1302TERM_MAIN_ARGS"

func TestMain(m *testing.M) {
	if args, ok := os.LookupEnv(mainArgsEnv); ok {
		os.Args = append(os.Args[:1], strings.Fields(args)...)
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// mainCommand returns a command that runs main in a child process.
func mainCommand(args ...string) *exec.Cmd {
	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), mainArgsEnv+"="+strings.Join(args, " "))
	return cmd
}

func TestReadConfigFlagsOnly(t *testing.T) {
	origDevice, origVariant := device, variant
	t.Cleanup(func() { device, variant = origDevice, origVariant })

	device = "COM9"
	variant = "wizard"

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, "COM9", cfg.Device)
	assert.Equal(t, ds1302term.WizardVariant, cfg.Variant)
	assert.Equal(t, ds1302term.DefaultBaud, cfg.Baud)
	require.NoError(t, cfg.Validate())
}

func TestReadConfigFile(t *testing.T) {
	t.Cleanup(func() { config = "" })

	path := filepath.Join(t.TempDir(), "ds1302term.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
device = "/dev/ttyUSB3"
variant = "wizard"
baud = 57600
`), 0o644))

	config = path

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Device)
	assert.Equal(t, ds1302term.WizardVariant, cfg.Variant)
	assert.Equal(t, 57600, cfg.Baud)
}

func TestReadConfigMissingFile(t *testing.T) {
	t.Cleanup(func() { config = "" })

	config = filepath.Join(t.TempDir(), "missing.toml")

	_, err := readConfig()
	assert.ErrorContains(t, err, "failed to open config file")
}

func TestReadConfigFileDeviceFromEnv(t *testing.T) {
	t.Cleanup(func() { config = "" })
	t.Setenv(ds1302term.DeviceEnv, "/dev/ttyUSB7")

	path := filepath.Join(t.TempDir(), "ds1302term.toml")
	require.NoError(t, os.WriteFile(path, []byte("baud = 9600\n"), 0o644))
	config = path

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB7", cfg.Device)
	assert.Equal(t, 9600, cfg.Baud)
}

func TestMainPortUnavailable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := mainCommand("--device", "/nonexistent/ttyDS1302")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "stderr: %s", stderr.String())
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, stderr.String(), "Error: Cannot open serial port /nonexistent/ttyDS1302\n")
}

func TestMainInterrupt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("interrupts cannot be sent to processes on Windows")
	}

	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("cannot open pty: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	var stderr bytes.Buffer
	cmd := mainCommand("--device", tty.Name())
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { cmd.Process.Kill() })

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	waitLine := func(prefix string) bool {
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return false
				}
				if strings.HasPrefix(line, prefix) {
					return true
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	if !waitLine("Setting DS1302 RTC date and time on " + tty.Name()) {
		t.Fatal("exited before printing the greeting")
	}

	_, err = ptmx.Write([]byte("Temperature: 21.5 *C\r\n"))
	require.NoError(t, err)

	if !waitLine("Temperature: 21.5 *C") {
		assert.Error(t, cmd.Wait())
		if strings.Contains(stderr.String(), "Cannot open serial port") {
			t.Skipf("serial driver rejects the pty: %s", stderr.String())
		}
		t.Fatalf("exited before echoing device output: %s", stderr.String())
	}

	require.NoError(t, cmd.Process.Signal(os.Interrupt))
	for range lines {
	}

	require.NoError(t, cmd.Wait(), "stderr: %s", stderr.String())
	assert.Equal(t, 0, cmd.ProcessState.ExitCode())
}
