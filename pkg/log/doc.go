// Package log provides structured protocol logging for the messenger.
//
// This package defines the Logger interface and Event types for
// capturing protocol-level events at multiple layers (transport, wire,
// connection). It is separate from operational logging (slog):
// protocol capture provides a complete machine-readable event trace
// for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("/var/log/msgr/store.mlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame traffic (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Connection: handshake progress (HandshakeEvent), state changes
//     (StateChangeEvent), keepalive and ack control traffic
//     (ControlMsgEvent), faults (ErrorEventData)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events. Reader replays them
// with optional filtering.
package log
