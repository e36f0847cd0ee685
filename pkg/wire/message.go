package wire

// Message priorities. Carried in the header; scheduling on priority is
// the consumer's concern.
const (
	PriorityLow     uint16 = 64
	PriorityDefault uint16 = 127
	PriorityHigh    uint16 = 196
	PriorityHighest uint16 = 255
)

// Footer flags.
const (
	// FooterComplete marks a message whose data segment was fully
	// written. A message aborted mid-write never sets it.
	FooterComplete uint8 = 1 << 0

	// FooterSigned marks a footer carrying a session-security signature.
	FooterSigned uint8 = 1 << 1
)

// HeaderSize is the encoded size of a message header in bytes.
const HeaderSize = 8 + 8 + 2 + 2 + 2 + 4 + 4 + 4 + 4

// FooterSize is the encoded size of a message footer in bytes.
const FooterSize = 4 + 4 + 4 + 8 + 1

// Header is the fixed-layout message header.
type Header struct {
	// Seq is the per-session message sequence number, assigned by the
	// sender's queue tracker. Strictly increasing per session.
	Seq uint64

	// Tid is an opaque transaction id for the consumer's use.
	Tid uint64

	// Type discriminates message payloads. Opaque to this layer.
	Type uint16

	// Priority of the message; higher is more important.
	Priority uint16

	// Version of the payload encoding. Opaque to this layer.
	Version uint16

	// FrontLen, MiddleLen and DataLen are the lengths of the three
	// payload segments.
	FrontLen  uint32
	MiddleLen uint32
	DataLen   uint32

	// Crc protects the header fields above.
	Crc uint32
}

// Footer trails the payload segments of every message.
type Footer struct {
	// FrontCrc, MiddleCrc and DataCrc protect the payload segments.
	FrontCrc  uint32
	MiddleCrc uint32
	DataCrc   uint32

	// Sig is the session-security signature over header and segments.
	// Zero unless Flags has FooterSigned set.
	Sig uint64

	// Flags carries FooterComplete and FooterSigned.
	Flags uint8
}

// Message is one protocol message: a header, three independently sized
// payload segments, and a footer. The segments are opaque to this
// layer; front conventionally carries control metadata, middle is
// optional, and data carries the bulk payload.
type Message struct {
	Header Header
	Front  []byte
	Middle []byte
	Data   []byte
}

// NewMessage builds a message with the given type and segments. The
// sequence number is assigned by the connection at send time.
func NewMessage(msgType uint16, front, middle, data []byte) *Message {
	return &Message{
		Header: Header{
			Type:      msgType,
			Priority:  PriorityDefault,
			FrontLen:  uint32(len(front)),
			MiddleLen: uint32(len(middle)),
			DataLen:   uint32(len(data)),
		},
		Front:  front,
		Middle: middle,
		Data:   data,
	}
}

// PayloadBytes returns the total payload size across all segments.
func (m *Message) PayloadBytes() int {
	return len(m.Front) + len(m.Middle) + len(m.Data)
}
