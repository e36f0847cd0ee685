package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates which side of the handshake we are.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Entity is the authenticated peer entity name, once known.
	Entity string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection state
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"` // Ack/keepalive/close
	Handshake   *HandshakeEvent   `cbor:"14,keyasint,omitempty"` // Connect negotiation
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming frame or message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing frame or message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the byte-stream layer (raw frames).
	LayerTransport Layer = 0
	// LayerWire is the framing codec layer (decoded frames).
	LayerWire Layer = 1
	// LayerConnection is the connection engine layer.
	LayerConnection Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a payload message.
	CategoryMessage Category = 0
	// CategoryControl indicates a control frame (ack/keepalive/close).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryHandshake indicates connect negotiation traffic.
	CategoryHandshake Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryHandshake:
		return "HANDSHAKE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side of the handshake the local endpoint took.
type Role uint8

const (
	// RoleClient indicates the connecting side.
	RoleClient Role = 0
	// RoleServer indicates the accepting side.
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame traffic at the transport layer.
type FrameEvent struct {
	// Tag is the frame tag byte.
	Tag uint8 `cbor:"1,keyasint"`

	// Size is the frame size in bytes (including the tag).
	Size int `cbor:"2,keyasint"`
}

// MessageEvent captures a decoded payload message at the wire layer.
type MessageEvent struct {
	// Seq is the session-scoped message sequence number.
	Seq uint64 `cbor:"1,keyasint"`

	// Tid is the sender-assigned transaction identifier.
	Tid uint64 `cbor:"2,keyasint"`

	// Type is the application message type.
	Type uint16 `cbor:"3,keyasint"`

	// Priority is the message priority.
	Priority uint16 `cbor:"4,keyasint,omitempty"`

	// FrontLen, MiddleLen and DataLen are the segment sizes.
	FrontLen  uint32 `cbor:"5,keyasint,omitempty"`
	MiddleLen uint32 `cbor:"6,keyasint,omitempty"`
	DataLen   uint32 `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle transitions.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlMsgEvent captures ack, keepalive and close traffic.
type ControlMsgEvent struct {
	// Tag is the control frame tag byte.
	Tag uint8 `cbor:"1,keyasint"`

	// Value carries the frame's payload: the acked sequence for acks,
	// the timestamp for keepalives. Zero for close.
	Value uint64 `cbor:"2,keyasint,omitempty"`
}

// HandshakeEvent captures connect negotiation progress.
type HandshakeEvent struct {
	// Tag is the connect or reply tag byte.
	Tag uint8 `cbor:"1,keyasint"`

	// GlobalSeq and ConnectSeq as carried by the frame.
	GlobalSeq  uint32 `cbor:"2,keyasint,omitempty"`
	ConnectSeq uint32 `cbor:"3,keyasint,omitempty"`

	// Attempt counts handshake attempts on this connection, starting
	// at 1.
	Attempt int `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
