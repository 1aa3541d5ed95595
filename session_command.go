package ds1302term

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"libdb.so/ds1302term/internal/prompt"
	"libdb.so/ds1302term/termproto"
)

// CommandState is the state of a CommandSession.
type CommandState uint8

const (
	// AwaitBanner means the firmware has not announced itself yet.
	AwaitBanner CommandState = iota
	// Streaming means the date and time were set and the firmware prints
	// them continuously.
	Streaming
)

func (s CommandState) String() string {
	switch s {
	case AwaitBanner:
		return "await-banner"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("CommandState(%d)", s)
	}
}

// CommandSession speaks to the firmware that takes single-shot set date and
// set time commands.
type CommandSession struct {
	aligner
	logger *slog.Logger
	state  CommandState
}

var _ Session = (*CommandSession)(nil)

var commandPrompts = prompt.Table[*CommandSession]{
	{Prefix: termproto.BannerPrompt, Handle: sendDateTime},
}

// Dispatch implements Session.
func (s *CommandSession) Dispatch(ctx context.Context, w io.Writer, line string) (bool, error) {
	return commandPrompts.Dispatch(ctx, s, w, line)
}

// State implements Session.
func (s *CommandSession) State() string {
	return s.state.String()
}

// sendDateTime sets the date, then the time aligned to a tick, then turns on
// continuous printing. It runs again whenever the banner shows up, which is
// what a device reset looks like.
func sendDateTime(ctx context.Context, s *CommandSession, w io.Writer) error {
	date := termproto.NewSetDateCommand(s.clock.Now())
	if err := termproto.WriteCommand(w, date); err != nil {
		return err
	}
	s.logger.Debug("sent date", "command", date)

	now, err := s.align(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to align time")
	}

	setTime := termproto.NewSetTimeCommand(now)
	if err := termproto.WriteCommandBody(w, setTime); err != nil {
		return err
	}

	// The firmware applies the time when the line ends, so end it on the
	// next tick as well. The line is ended even if the tick never comes.
	tickErr := s.boundary(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := termproto.WriteTerminator(w); err != nil {
		return err
	}
	if tickErr != nil {
		return errors.Wrap(tickErr, "failed to align time terminator")
	}
	s.logger.Debug("sent time", "command", setTime)

	if err := termproto.WriteCommand(w, termproto.PrintCommand{}); err != nil {
		return err
	}

	s.state = Streaming
	return nil
}
