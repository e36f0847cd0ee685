package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger. Useful for
// development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given
// slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}
	if event.Entity != "" {
		attrs = append(attrs, slog.String("entity", event.Entity))
	}

	// Add type-specific attributes
	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Uint64("tag", uint64(event.Frame.Tag)),
			slog.Int("frame_size", event.Frame.Size),
		)
	case event.Message != nil:
		attrs = append(attrs,
			slog.Uint64("seq", event.Message.Seq),
			slog.Uint64("tid", event.Message.Tid),
			slog.Uint64("msg_type", uint64(event.Message.Type)),
		)
		if event.Message.DataLen > 0 {
			attrs = append(attrs, slog.Uint64("data_len", uint64(event.Message.DataLen)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs,
			slog.Uint64("tag", uint64(event.ControlMsg.Tag)),
			slog.Uint64("value", event.ControlMsg.Value),
		)
	case event.Handshake != nil:
		attrs = append(attrs,
			slog.Uint64("tag", uint64(event.Handshake.Tag)),
			slog.Uint64("global_seq", uint64(event.Handshake.GlobalSeq)),
			slog.Uint64("connect_seq", uint64(event.Handshake.ConnectSeq)),
		)
		if event.Handshake.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", event.Handshake.Attempt))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
