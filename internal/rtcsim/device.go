// Package rtcsim simulates the DS1302 RTC terminal example firmware behind an
// in-memory serial port.
package rtcsim

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"libdb.so/ds1302term/termproto"
)

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("rtcsim: port closed")

// Firmware is the firmware variant the device runs.
type Firmware uint8

const (
	// CommandFirmware takes single-shot set date and set time commands.
	CommandFirmware Firmware = iota
	// WizardFirmware asks for every field separately.
	WizardFirmware
)

func (f Firmware) String() string {
	switch f {
	case CommandFirmware:
		return "command"
	case WizardFirmware:
		return "wizard"
	default:
		return fmt.Sprintf("Firmware(%d)", f)
	}
}

// Date is the date part of the RTC, including the separately stored day of
// the week.
type Date struct {
	Weekday int
	Day     int
	Month   int
	Year    int
}

// Device stores the current state of the simulated device. It implements the
// port interface of the bridge and is safe for concurrent use.
type Device struct {
	firmware Firmware

	mu      sync.Mutex
	out     bytes.Buffer
	in      []byte
	writes  []string
	lines   []string
	errs    []error
	timeout time.Duration
	closed  bool

	date     Date
	clock    [3]int // hour, minute, second
	set      bool
	printing bool

	field  int // index into termproto.Fields while the wizard runs, else -1
	values [7]int
}

// NewDevice creates a device that has just booted the given firmware.
func NewDevice(firmware Firmware) *Device {
	d := &Device{firmware: firmware, field: -1}
	d.boot()
	return d
}

// Reset reboots the firmware. The RTC keeps its date and time.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.in = nil
	d.printing = false
	d.field = -1
	d.boot()
}

// Print makes the firmware print an arbitrary line, as if it logged
// something the host does not know about.
func (d *Device) Print(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.println(line)
}

// Read returns output printed by the firmware. With nothing to return it
// waits for the read timeout and returns 0 bytes, like a real port.
func (d *Device) Read(b []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	if d.out.Len() > 0 {
		n, _ := d.out.Read(b)
		d.mu.Unlock()
		return n, nil
	}
	timeout := d.timeout
	d.mu.Unlock()

	if timeout <= 0 || timeout > 10*time.Millisecond {
		timeout = time.Millisecond
	}
	time.Sleep(timeout)
	return 0, nil
}

// Write feeds bytes to the firmware. Every complete line is handled as soon
// as its terminator arrives.
func (d *Device) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}

	d.writes = append(d.writes, string(b))
	d.in = append(d.in, b...)

	for {
		i := bytes.IndexByte(d.in, '\n')
		if i == -1 {
			break
		}
		line := strings.TrimSpace(string(d.in[:i]))
		d.in = d.in[i+1:]

		d.lines = append(d.lines, line)
		if err := d.handleLine(line); err != nil {
			d.errs = append(d.errs, err)
			d.println("Error: " + err.Error())
		}
	}

	return len(b), nil
}

// SetReadTimeout records the read timeout.
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timeout = t
	return nil
}

// Close closes the port. Closing twice is not an error.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

// Closed reports whether the port was closed.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}

// Writes returns every write the host issued, as issued.
func (d *Device) Writes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.writes...)
}

// Lines returns every complete line the firmware received.
func (d *Device) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.lines...)
}

// Errors returns the errors the firmware reported for rejected input.
func (d *Device) Errors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]error(nil), d.errs...)
}

// RTC returns the date and time the RTC was set to, if it was set.
func (d *Device) RTC() (time.Time, Date, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.set {
		return time.Time{}, Date{}, false
	}

	t := time.Date(
		d.date.Year, time.Month(d.date.Month), d.date.Day,
		d.clock[0], d.clock[1], d.clock[2], 0, time.Local)
	return t, d.date, true
}

// Printing reports whether continuous printing was enabled.
func (d *Device) Printing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.printing
}

func (d *Device) boot() {
	switch d.firmware {
	case CommandFirmware:
		d.println(termproto.BannerPrompt)
		d.println("Type 'help' for commands")
	case WizardFirmware:
		d.println("Erriez DS1302 RTC set date/time example")
		d.println(termproto.StartPrompt)
	}
}

func (d *Device) println(line string) {
	d.out.WriteString(line)
	d.out.WriteString("\r\n")
}

// prompt asks for a field and leaves the cursor on the same line.
func (d *Device) prompt(f termproto.Field) {
	d.out.WriteString(f.Prompt())
	d.out.WriteString(" ")
}

func (d *Device) handleLine(line string) error {
	switch d.firmware {
	case CommandFirmware:
		return d.handleCommand(line)
	case WizardFirmware:
		return d.handleWizard(line)
	default:
		return fmt.Errorf("unknown firmware: %s", d.firmware)
	}
}

func (d *Device) handleCommand(line string) error {
	cmd, err := termproto.ParseCommand(line)
	if err != nil {
		return err
	}

	switch cmd := cmd.(type) {
	case termproto.SetDateCommand:
		date := Date(cmd)
		if err := checkDate(date); err != nil {
			return err
		}
		d.date = date
		d.println("Date set")

	case termproto.SetTimeCommand:
		if err := checkRange("hour", cmd.Hour, 0, 23); err != nil {
			return err
		}
		if err := checkRange("minute", cmd.Minute, 0, 59); err != nil {
			return err
		}
		if err := checkRange("second", cmd.Second, 0, 59); err != nil {
			return err
		}
		d.clock = [3]int{cmd.Hour, cmd.Minute, cmd.Second}
		d.set = d.date.Year != 0
		d.println("Time set")

	case termproto.PrintCommand:
		d.printing = true
		d.println(fmt.Sprintf("%d-%d-%d %d:%02d:%02d",
			d.date.Day, d.date.Month, d.date.Year,
			d.clock[0], d.clock[1], d.clock[2]))

	default:
		return fmt.Errorf("unsupported command: %s", cmd.Type())
	}

	return nil
}

func (d *Device) handleWizard(line string) error {
	if d.field == -1 {
		if cmd, err := termproto.ParseCommand(line); err == nil && cmd.Type() == termproto.TypeStartCommand {
			d.field = 0
			d.prompt(termproto.Fields[0])
			return nil
		}
		return fmt.Errorf("unexpected input %q", line)
	}

	f := termproto.Fields[d.field]
	v, err := strconv.Atoi(line)
	if err == nil {
		err = checkField(f, v)
	}
	if err != nil {
		// The firmware complains and asks again.
		d.errs = append(d.errs, err)
		d.println("Error: " + err.Error())
		d.prompt(f)
		return nil
	}

	d.values[d.field] = v
	d.field++

	if d.field < len(termproto.Fields) {
		d.prompt(termproto.Fields[d.field])
		return nil
	}

	d.field = -1
	d.date = Date{
		Year:    2000 + d.values[termproto.FieldYear],
		Month:   d.values[termproto.FieldMonth],
		Day:     d.values[termproto.FieldDay],
		Weekday: d.values[termproto.FieldWeekday],
	}
	d.clock = [3]int{
		d.values[termproto.FieldHour],
		d.values[termproto.FieldMinute],
		d.values[termproto.FieldSecond],
	}
	d.set = true
	d.println("Date and time set")
	return nil
}

func checkField(f termproto.Field, v int) error {
	switch f {
	case termproto.FieldYear:
		return checkRange("year", v, 0, 99)
	case termproto.FieldMonth:
		return checkRange("month", v, 1, 12)
	case termproto.FieldDay:
		return checkRange("day", v, 1, 31)
	case termproto.FieldWeekday:
		return checkRange("weekday", v, 1, 7)
	case termproto.FieldHour:
		return checkRange("hour", v, 0, 23)
	default:
		return checkRange(f.String(), v, 0, 59)
	}
}

func checkDate(date Date) error {
	if err := checkRange("weekday", date.Weekday, 1, 7); err != nil {
		return err
	}
	if err := checkRange("day", date.Day, 1, 31); err != nil {
		return err
	}
	if err := checkRange("month", date.Month, 1, 12); err != nil {
		return err
	}
	return checkRange("year", date.Year, 2000, 2099)
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("invalid %s: %d", name, v)
	}
	return nil
}
