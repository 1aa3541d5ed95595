package ds1302term

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"libdb.so/ds1302term/internal/prompt"
	"libdb.so/ds1302term/termproto"
)

// WizardState is the state of a WizardSession.
type WizardState uint8

const (
	Idle WizardState = iota
	AwaitYear
	AwaitMonth
	AwaitDay
	AwaitWeekday
	AwaitHour
	AwaitMinute
	AwaitSecond
	Done
)

func (s WizardState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitYear:
		return "await-year"
	case AwaitMonth:
		return "await-month"
	case AwaitDay:
		return "await-day"
	case AwaitWeekday:
		return "await-weekday"
	case AwaitHour:
		return "await-hour"
	case AwaitMinute:
		return "await-minute"
	case AwaitSecond:
		return "await-second"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("WizardState(%d)", s)
	}
}

// awaitState returns the state in which the wizard waits for f.
func awaitState(f termproto.Field) WizardState {
	return AwaitYear + WizardState(f)
}

// WizardSession speaks to the firmware that asks for each date and time
// field separately. The timestamp is captured once, on the year prompt, and
// every later field is answered from it.
type WizardSession struct {
	aligner
	logger   *slog.Logger
	state    WizardState
	captured time.Time
}

var _ Session = (*WizardSession)(nil)

var wizardPrompts = prompt.Table[*WizardSession]{
	{Prefix: termproto.StartPrompt, Handle: startWizard},
	{Prefix: termproto.YearPrompt, Handle: answerYear},
	{Prefix: termproto.MonthPrompt, Handle: answerField(termproto.FieldMonth)},
	{Prefix: termproto.DayPrompt, Handle: answerField(termproto.FieldDay)},
	{Prefix: termproto.WeekdayPrompt, Handle: answerField(termproto.FieldWeekday)},
	{Prefix: termproto.HourPrompt, Handle: answerField(termproto.FieldHour)},
	{Prefix: termproto.MinutePrompt, Handle: answerField(termproto.FieldMinute)},
	{Prefix: termproto.SecondPrompt, Handle: answerField(termproto.FieldSecond)},
}

// Dispatch implements Session.
func (s *WizardSession) Dispatch(ctx context.Context, w io.Writer, line string) (bool, error) {
	return wizardPrompts.Dispatch(ctx, s, w, line)
}

// State implements Session.
func (s *WizardSession) State() string {
	return s.state.String()
}

// Captured returns the timestamp being sent, if the year prompt has been
// answered.
func (s *WizardSession) Captured() (time.Time, bool) {
	return s.captured, !s.captured.IsZero()
}

func startWizard(ctx context.Context, s *WizardSession, w io.Writer) error {
	if err := termproto.WriteCommand(w, termproto.StartCommand{}); err != nil {
		return err
	}
	s.state = AwaitYear
	s.captured = time.Time{}
	return nil
}

func answerYear(ctx context.Context, s *WizardSession, w io.Writer) error {
	now, err := s.align(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to align timestamp")
	}

	cmd, err := termproto.NewFieldCommand(termproto.FieldYear, now)
	if err != nil {
		return err
	}

	if err := termproto.WriteCommand(w, cmd); err != nil {
		return err
	}

	s.captured = now
	s.state = awaitState(termproto.FieldYear) + 1
	return nil
}

func answerField(f termproto.Field) prompt.Handler[*WizardSession] {
	return func(ctx context.Context, s *WizardSession, w io.Writer) error {
		if s.captured.IsZero() {
			s.logger.Warn(
				"ignoring prompt that came before the year prompt",
				"field", f)
			return nil
		}

		cmd, err := termproto.NewFieldCommand(f, s.captured)
		if err != nil {
			return err
		}

		if err := termproto.WriteCommand(w, cmd); err != nil {
			return err
		}

		s.logger.Debug("answered field", "field", f, "value", cmd.Value)
		s.state = awaitState(f) + 1
		return nil
	}
}
