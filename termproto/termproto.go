// Package termproto implements the line protocol spoken by the DS1302 RTC
// terminal example sketches.
package termproto

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Terminator ends every line sent to the device.
const Terminator = "\n"

// Prompts printed by the single-shot command firmware.
const (
	// BannerPrompt is printed once the firmware has started.
	BannerPrompt = "Erriez DS1302 RTC terminal example"
)

// Prompts printed by the field-by-field wizard firmware.
const (
	StartPrompt   = "Press S to set date and time"
	YearPrompt    = "Year [00-99]:"
	MonthPrompt   = "Month [1-12]:"
	DayPrompt     = "Day month [1-31]:"
	WeekdayPrompt = "Day of the week [1=Mon-7=Sun]:"
	HourPrompt    = "Hour [0-23]:"
	MinutePrompt  = "Minute [0-59]:"
	SecondPrompt  = "Second [0-59]:"
)

// ErrYearOutOfRange is returned when a year cannot be expressed as the
// two-digit offset from 2000 that the wizard firmware expects.
var ErrYearOutOfRange = errors.New("year out of range 2000-2099")

// Field is a date/time field that the wizard firmware asks for.
type Field uint8

const (
	FieldYear Field = iota
	FieldMonth
	FieldDay
	FieldWeekday
	FieldHour
	FieldMinute
	FieldSecond
)

// Fields lists every field in the order the wizard asks for them.
var Fields = []Field{
	FieldYear,
	FieldMonth,
	FieldDay,
	FieldWeekday,
	FieldHour,
	FieldMinute,
	FieldSecond,
}

// String returns a string representation of the field.
func (f Field) String() string {
	switch f {
	case FieldYear:
		return "year"
	case FieldMonth:
		return "month"
	case FieldDay:
		return "day"
	case FieldWeekday:
		return "weekday"
	case FieldHour:
		return "hour"
	case FieldMinute:
		return "minute"
	case FieldSecond:
		return "second"
	default:
		return fmt.Sprintf("Field(%d)", f)
	}
}

// Prompt returns the prompt the wizard firmware prints before reading f.
func (f Field) Prompt() string {
	switch f {
	case FieldYear:
		return YearPrompt
	case FieldMonth:
		return MonthPrompt
	case FieldDay:
		return DayPrompt
	case FieldWeekday:
		return WeekdayPrompt
	case FieldHour:
		return HourPrompt
	case FieldMinute:
		return MinutePrompt
	case FieldSecond:
		return SecondPrompt
	default:
		panic("invalid field")
	}
}

// Value returns the value of f in t as the firmware expects it. The year is
// returned as an offset from 2000.
func (f Field) Value(t time.Time) (int, error) {
	switch f {
	case FieldYear:
		y := t.Year() - 2000
		if y < 0 || y > 99 {
			return 0, fmt.Errorf("%w: %d", ErrYearOutOfRange, t.Year())
		}
		return y, nil
	case FieldMonth:
		return int(t.Month()), nil
	case FieldDay:
		return t.Day(), nil
	case FieldWeekday:
		return Weekday(t), nil
	case FieldHour:
		return t.Hour(), nil
	case FieldMinute:
		return t.Minute(), nil
	case FieldSecond:
		return t.Second(), nil
	default:
		return 0, fmt.Errorf("unknown field: %s", f)
	}
}

// Weekday returns the day of the week of t, numbered 1 for Monday through 7
// for Sunday.
func Weekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// CommandType is a type of command.
type CommandType uint8

const (
	TypeStartCommand CommandType = iota
	TypeSetDateCommand
	TypeSetTimeCommand
	TypePrintCommand
	TypeFieldCommand
)

// String returns a string representation of the command type.
func (t CommandType) String() string {
	switch t {
	case TypeStartCommand:
		return "start"
	case TypeSetDateCommand:
		return "set-date"
	case TypeSetTimeCommand:
		return "set-time"
	case TypePrintCommand:
		return "print"
	case TypeFieldCommand:
		return "field"
	default:
		return fmt.Sprintf("CommandType(%d)", t)
	}
}

// Command is a command line sent to the device.
type Command interface {
	// Type returns the type of command.
	Type() CommandType
}

// StartCommand is the keystroke that starts the wizard.
type StartCommand struct{}

// SetDateCommand sets the date of the RTC.
type SetDateCommand struct {
	Weekday int
	Day     int
	Month   int
	Year    int
}

// SetTimeCommand sets the time of the RTC.
type SetTimeCommand struct {
	Hour   int
	Minute int
	Second int
}

// PrintCommand enables continuous date/time output on the device.
type PrintCommand struct{}

// FieldCommand answers a single wizard prompt.
type FieldCommand struct {
	Field Field
	Value int
}

func (c StartCommand) Type() CommandType   { return TypeStartCommand }
func (c SetDateCommand) Type() CommandType { return TypeSetDateCommand }
func (c SetTimeCommand) Type() CommandType { return TypeSetTimeCommand }
func (c PrintCommand) Type() CommandType   { return TypePrintCommand }
func (c FieldCommand) Type() CommandType   { return TypeFieldCommand }

// NewSetDateCommand creates a SetDateCommand from the date of t.
func NewSetDateCommand(t time.Time) SetDateCommand {
	return SetDateCommand{
		Weekday: Weekday(t),
		Day:     t.Day(),
		Month:   int(t.Month()),
		Year:    t.Year(),
	}
}

// NewSetTimeCommand creates a SetTimeCommand from the time of day of t.
func NewSetTimeCommand(t time.Time) SetTimeCommand {
	return SetTimeCommand{
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// NewFieldCommand creates a FieldCommand answering f with its value in t.
func NewFieldCommand(f Field, t time.Time) (FieldCommand, error) {
	v, err := f.Value(t)
	if err != nil {
		return FieldCommand{}, err
	}
	return FieldCommand{Field: f, Value: v}, nil
}

// FormatCommand returns the command line without its terminator.
func FormatCommand(c Command) (string, error) {
	switch c := c.(type) {
	case StartCommand:
		return "s", nil
	case SetDateCommand:
		return fmt.Sprintf("set date %d %d-%d-%d", c.Weekday, c.Day, c.Month, c.Year), nil
	case SetTimeCommand:
		return fmt.Sprintf("set time %d:%d:%d", c.Hour, c.Minute, c.Second), nil
	case PrintCommand:
		return "print", nil
	case FieldCommand:
		return strconv.Itoa(c.Value), nil
	default:
		return "", fmt.Errorf("unknown command type: %T", c)
	}
}

// WriteCommand writes the command line and its terminator in a single write.
func WriteCommand(w io.Writer, c Command) error {
	line, err := FormatCommand(c)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, line+Terminator); err != nil {
		return fmt.Errorf("failed to write %s command: %w", c.Type(), err)
	}
	return nil
}

// WriteCommandBody writes the command line without its terminator. The caller
// is expected to follow up with WriteTerminator.
func WriteCommandBody(w io.Writer, c Command) error {
	line, err := FormatCommand(c)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, line); err != nil {
		return fmt.Errorf("failed to write %s command: %w", c.Type(), err)
	}
	return nil
}

// WriteTerminator writes a lone line terminator.
func WriteTerminator(w io.Writer) error {
	if _, err := io.WriteString(w, Terminator); err != nil {
		return fmt.Errorf("failed to write terminator: %w", err)
	}
	return nil
}

// ParseCommand parses a command line received by the device. Bare numbers
// are not accepted since their meaning depends on the prompt being answered.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)

	switch {
	case line == "s" || line == "S":
		return StartCommand{}, nil

	case line == "print":
		return PrintCommand{}, nil

	case strings.HasPrefix(line, "set date "):
		var c SetDateCommand
		rest := strings.TrimPrefix(line, "set date ")
		if _, err := fmt.Sscanf(rest, "%d %d-%d-%d", &c.Weekday, &c.Day, &c.Month, &c.Year); err != nil {
			return nil, fmt.Errorf("failed to parse set date %q: %w", rest, err)
		}
		return c, nil

	case strings.HasPrefix(line, "set time "):
		var c SetTimeCommand
		rest := strings.TrimPrefix(line, "set time ")
		if _, err := fmt.Sscanf(rest, "%d:%d:%d", &c.Hour, &c.Minute, &c.Second); err != nil {
			return nil, fmt.Errorf("failed to parse set time %q: %w", rest, err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown command: %q", line)
	}
}
