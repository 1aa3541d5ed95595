package ds1302term

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"libdb.so/ds1302term/internal/tick"
)

// Session is the protocol state of one firmware variant. A session is owned
// by the loop that reads from the device and is not safe for concurrent use.
type Session interface {
	// Dispatch answers line on w if it starts with a prompt the session
	// knows. It reports whether a prompt matched. Unmatched lines never
	// change the session or cause a write.
	Dispatch(ctx context.Context, w io.Writer, line string) (bool, error)
	// State returns the name of the current state.
	State() string
}

// NewSession creates the session for the variant configured in cfg.
func NewSession(cfg *Config, clock tick.Clock, logger *slog.Logger) (Session, error) {
	align := aligner{
		clock:  clock,
		offset: cfg.AlignOffset(),
		limit:  time.Duration(cfg.TickLimit),
	}

	switch cfg.Variant {
	case CommandVariant:
		return &CommandSession{aligner: align, logger: logger}, nil
	case WizardVariant:
		return &WizardSession{aligner: align, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown variant %q", cfg.Variant)
	}
}

// aligner produces timestamps aligned with the host clock's tick boundary.
type aligner struct {
	clock  tick.Clock
	offset time.Duration
	limit  time.Duration
}

// align waits for the next tick and returns it advanced by the offset.
func (a aligner) align(ctx context.Context) (time.Time, error) {
	return tick.Align(ctx, a.clock, a.offset, a.limit)
}

// boundary waits for the next tick without applying the offset.
func (a aligner) boundary(ctx context.Context) error {
	_, err := tick.Boundary(ctx, a.clock, a.limit)
	return err
}
