package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Codec errors. All of them are protocol violations: the current
// transport cannot be trusted after any of these.
var (
	// ErrProtocol is the base class for malformed frames. Every decode
	// error from this package wraps it.
	ErrProtocol = errors.New("protocol violation")

	// ErrBadBanner indicates the peer sent an unrecognized banner.
	ErrBadBanner = fmt.Errorf("%w: bad banner", ErrProtocol)

	// ErrBadTag indicates an unknown or unexpected frame tag.
	ErrBadTag = fmt.Errorf("%w: bad tag", ErrProtocol)

	// ErrSegmentTooLarge indicates a declared segment length exceeds
	// the configured maximum.
	ErrSegmentTooLarge = fmt.Errorf("%w: segment too large", ErrProtocol)

	// ErrCrcMismatch indicates a checksum failure on a header or
	// payload segment.
	ErrCrcMismatch = fmt.Errorf("%w: crc mismatch", ErrProtocol)

	// ErrIncomplete indicates a message footer without FooterComplete;
	// the sender aborted the message mid-write.
	ErrIncomplete = fmt.Errorf("%w: message incomplete", ErrProtocol)

	// ErrBadSignature indicates a footer signature failure.
	ErrBadSignature = fmt.Errorf("%w: bad signature", ErrProtocol)
)

// crcTable is the Castagnoli table used for all header and segment
// checksums.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Signer provides the session-security signature over message frames.
// Implemented by pkg/auth; nil disables signing.
type Signer interface {
	// Sign returns the 64-bit signature over data.
	Sign(data []byte) (uint64, error)

	// Verify checks sig against data.
	Verify(data []byte, sig uint64) error
}

// Limits bounds the declared lengths a decoder will accept. Anything
// above a limit fails with ErrSegmentTooLarge before the bytes are
// read.
type Limits struct {
	MaxFrontLen  uint32 `yaml:"max_front_len"`
	MaxMiddleLen uint32 `yaml:"max_middle_len"`
	MaxDataLen   uint32 `yaml:"max_data_len"`
	MaxAuthLen   uint32 `yaml:"max_auth_len"`
	MaxAddrLen   uint32 `yaml:"max_addr_len"`
}

// DefaultLimits returns the default decode limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFrontLen:  1 << 20,  // 1 MB
		MaxMiddleLen: 1 << 20,  // 1 MB
		MaxDataLen:   64 << 20, // 64 MB
		MaxAuthLen:   4096,
		MaxAddrLen:   256,
	}
}

// Codec encodes and decodes msgr frames over a byte stream. Decoding
// never blocks beyond waiting for the requested byte count from the
// transport. A Codec is stateless and safe to share.
type Codec struct {
	limits Limits
}

// NewCodec creates a codec with the given decode limits.
func NewCodec(limits Limits) *Codec {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Codec{limits: limits}
}

// WriteBanner writes the protocol banner.
func (c *Codec) WriteBanner(w io.Writer) error {
	_, err := w.Write([]byte(Banner))
	return err
}

// ReadBanner reads and validates the peer's banner.
func (c *Codec) ReadBanner(r io.Reader) error {
	buf := make([]byte, BannerLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if string(buf) != Banner {
		return fmt.Errorf("%w: got %q", ErrBadBanner, buf)
	}
	return nil
}

// ReadTag reads the next frame tag from the stream.
func (c *Codec) ReadTag(r io.Reader) (Tag, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return Tag(b[0]), nil
}

// WriteConnectRequest writes a CONNECT frame (tag and body).
func (c *Codec) WriteConnectRequest(w io.Writer, req *ConnectRequest) error {
	buf := make([]byte, 0, 64+len(req.SrcAddr)+len(req.DstAddr)+len(req.Authorizer))
	buf = append(buf, byte(TagConnect))
	buf = appendString(buf, req.SrcAddr)
	buf = appendString(buf, req.DstAddr)
	buf = binary.BigEndian.AppendUint64(buf, uint64(req.Features))
	buf = binary.BigEndian.AppendUint32(buf, uint32(req.HostType))
	buf = binary.BigEndian.AppendUint32(buf, req.GlobalSeq)
	buf = binary.BigEndian.AppendUint32(buf, req.ConnectSeq)
	buf = binary.BigEndian.AppendUint32(buf, req.ProtocolVersion)
	buf = binary.BigEndian.AppendUint32(buf, req.AuthProto)
	buf = append(buf, req.Flags)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(req.Authorizer)))
	buf = append(buf, req.Authorizer...)
	_, err := w.Write(buf)
	return err
}

// ReadConnectRequest reads a CONNECT frame body. The caller has already
// consumed the TagConnect byte.
func (c *Codec) ReadConnectRequest(r io.Reader) (*ConnectRequest, error) {
	var req ConnectRequest
	var err error
	if req.SrcAddr, err = c.readString(r); err != nil {
		return nil, err
	}
	if req.DstAddr, err = c.readString(r); err != nil {
		return nil, err
	}

	fixed := make([]byte, 8+4+4+4+4+4+1+4)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, err
	}
	req.Features = Features(binary.BigEndian.Uint64(fixed[0:8]))
	req.HostType = PeerType(binary.BigEndian.Uint32(fixed[8:12]))
	req.GlobalSeq = binary.BigEndian.Uint32(fixed[12:16])
	req.ConnectSeq = binary.BigEndian.Uint32(fixed[16:20])
	req.ProtocolVersion = binary.BigEndian.Uint32(fixed[20:24])
	req.AuthProto = binary.BigEndian.Uint32(fixed[24:28])
	req.Flags = fixed[28]

	authLen := binary.BigEndian.Uint32(fixed[29:33])
	if authLen > c.limits.MaxAuthLen {
		return nil, fmt.Errorf("%w: authorizer %d > %d", ErrSegmentTooLarge, authLen, c.limits.MaxAuthLen)
	}
	if authLen > 0 {
		req.Authorizer = make([]byte, authLen)
		if _, err := io.ReadFull(r, req.Authorizer); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

// WriteConnectReply writes a connect reply frame. The reply's Tag field
// selects the wire tag; all reply tags share one body layout.
func (c *Codec) WriteConnectReply(w io.Writer, reply *ConnectReply) error {
	if !reply.Tag.IsConnectReply() {
		return fmt.Errorf("%w: %s is not a connect reply", ErrBadTag, reply.Tag)
	}
	buf := make([]byte, 0, 32+len(reply.AuthorizerReply))
	buf = append(buf, byte(reply.Tag))
	buf = binary.BigEndian.AppendUint64(buf, uint64(reply.Features))
	buf = binary.BigEndian.AppendUint32(buf, reply.GlobalSeq)
	buf = binary.BigEndian.AppendUint32(buf, reply.ConnectSeq)
	buf = binary.BigEndian.AppendUint32(buf, reply.ProtocolVersion)
	buf = append(buf, reply.Flags)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(reply.AuthorizerReply)))
	buf = append(buf, reply.AuthorizerReply...)
	_, err := w.Write(buf)
	return err
}

// ReadConnectReply reads a connect reply body for the given tag.
func (c *Codec) ReadConnectReply(r io.Reader, tag Tag) (*ConnectReply, error) {
	if !tag.IsConnectReply() {
		return nil, fmt.Errorf("%w: %s is not a connect reply", ErrBadTag, tag)
	}
	fixed := make([]byte, 8+4+4+4+1+4)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, err
	}
	reply := &ConnectReply{
		Tag:             tag,
		Features:        Features(binary.BigEndian.Uint64(fixed[0:8])),
		GlobalSeq:       binary.BigEndian.Uint32(fixed[8:12]),
		ConnectSeq:      binary.BigEndian.Uint32(fixed[12:16]),
		ProtocolVersion: binary.BigEndian.Uint32(fixed[16:20]),
		Flags:           fixed[20],
	}
	authLen := binary.BigEndian.Uint32(fixed[21:25])
	if authLen > c.limits.MaxAuthLen {
		return nil, fmt.Errorf("%w: authorizer reply %d > %d", ErrSegmentTooLarge, authLen, c.limits.MaxAuthLen)
	}
	if authLen > 0 {
		reply.AuthorizerReply = make([]byte, authLen)
		if _, err := io.ReadFull(r, reply.AuthorizerReply); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

// WriteAck writes an ACK frame carrying the cumulative receive
// sequence.
func (c *Codec) WriteAck(w io.Writer, seq uint64) error {
	return c.writeTagged64(w, TagAck, seq)
}

// ReadAck reads an ACK body.
func (c *Codec) ReadAck(r io.Reader) (uint64, error) {
	return c.read64(r)
}

// WriteSeq writes a SEQ frame carrying the last received message
// sequence.
func (c *Codec) WriteSeq(w io.Writer, seq uint64) error {
	return c.writeTagged64(w, TagSeq, seq)
}

// ReadSeq reads a SEQ body.
func (c *Codec) ReadSeq(r io.Reader) (uint64, error) {
	return c.read64(r)
}

// WriteKeepalive writes a KEEPALIVE2 or KEEPALIVE2_ACK frame. The
// stamp is the sender's clock in Unix nanoseconds.
func (c *Codec) WriteKeepalive(w io.Writer, tag Tag, stamp uint64) error {
	if tag != TagKeepalive2 && tag != TagKeepalive2Ack {
		return fmt.Errorf("%w: %s is not a keepalive", ErrBadTag, tag)
	}
	return c.writeTagged64(w, tag, stamp)
}

// ReadKeepalive reads a keepalive body.
func (c *Codec) ReadKeepalive(r io.Reader) (uint64, error) {
	return c.read64(r)
}

// WriteClose writes a CLOSE frame.
func (c *Codec) WriteClose(w io.Writer) error {
	_, err := w.Write([]byte{byte(TagClose)})
	return err
}

// ReadHeader reads and validates a message header. The caller has
// already consumed the TagMsg byte.
func (c *Codec) ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	h := Header{
		Seq:       binary.BigEndian.Uint64(buf[0:8]),
		Tid:       binary.BigEndian.Uint64(buf[8:16]),
		Type:      binary.BigEndian.Uint16(buf[16:18]),
		Priority:  binary.BigEndian.Uint16(buf[18:20]),
		Version:   binary.BigEndian.Uint16(buf[20:22]),
		FrontLen:  binary.BigEndian.Uint32(buf[22:26]),
		MiddleLen: binary.BigEndian.Uint32(buf[26:30]),
		DataLen:   binary.BigEndian.Uint32(buf[30:34]),
		Crc:       binary.BigEndian.Uint32(buf[34:38]),
	}
	if crc := crc32.Checksum(buf[:HeaderSize-4], crcTable); crc != h.Crc {
		return Header{}, fmt.Errorf("%w: header crc %08x != %08x", ErrCrcMismatch, crc, h.Crc)
	}
	if h.FrontLen > c.limits.MaxFrontLen {
		return Header{}, fmt.Errorf("%w: front %d > %d", ErrSegmentTooLarge, h.FrontLen, c.limits.MaxFrontLen)
	}
	if h.MiddleLen > c.limits.MaxMiddleLen {
		return Header{}, fmt.Errorf("%w: middle %d > %d", ErrSegmentTooLarge, h.MiddleLen, c.limits.MaxMiddleLen)
	}
	if h.DataLen > c.limits.MaxDataLen {
		return Header{}, fmt.Errorf("%w: data %d > %d", ErrSegmentTooLarge, h.DataLen, c.limits.MaxDataLen)
	}
	return h, nil
}

// ReadSegment reads one payload segment of the given length.
func (c *Codec) ReadSegment(r io.Reader, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFooter reads a message footer.
func (c *Codec) ReadFooter(r io.Reader) (Footer, error) {
	buf := make([]byte, FooterSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Footer{}, err
	}
	return Footer{
		FrontCrc:  binary.BigEndian.Uint32(buf[0:4]),
		MiddleCrc: binary.BigEndian.Uint32(buf[4:8]),
		DataCrc:   binary.BigEndian.Uint32(buf[8:12]),
		Sig:       binary.BigEndian.Uint64(buf[12:20]),
		Flags:     buf[20],
	}, nil
}

// VerifyMessage checks the footer against the assembled message:
// completeness, segment checksums, and the signature when signer is
// non-nil.
func (c *Codec) VerifyMessage(m *Message, footer Footer, signer Signer) error {
	if footer.Flags&FooterComplete == 0 {
		return ErrIncomplete
	}
	if crc := crc32.Checksum(m.Front, crcTable); crc != footer.FrontCrc {
		return fmt.Errorf("%w: front crc %08x != %08x", ErrCrcMismatch, crc, footer.FrontCrc)
	}
	if crc := crc32.Checksum(m.Middle, crcTable); crc != footer.MiddleCrc {
		return fmt.Errorf("%w: middle crc %08x != %08x", ErrCrcMismatch, crc, footer.MiddleCrc)
	}
	if crc := crc32.Checksum(m.Data, crcTable); crc != footer.DataCrc {
		return fmt.Errorf("%w: data crc %08x != %08x", ErrCrcMismatch, crc, footer.DataCrc)
	}
	if signer != nil {
		if footer.Flags&FooterSigned == 0 {
			return fmt.Errorf("%w: unsigned message on secured session", ErrBadSignature)
		}
		if err := signer.Verify(signableRegion(m), footer.Sig); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
	}
	return nil
}

// EncodeMessage encodes a full MSG frame: tag, header, segments and
// footer. The header's segment lengths and Crc are filled in; the
// footer is signed when signer is non-nil.
func (c *Codec) EncodeMessage(m *Message, signer Signer) ([]byte, error) {
	m.Header.FrontLen = uint32(len(m.Front))
	m.Header.MiddleLen = uint32(len(m.Middle))
	m.Header.DataLen = uint32(len(m.Data))

	buf := make([]byte, 0, 1+HeaderSize+m.PayloadBytes()+FooterSize)
	buf = append(buf, byte(TagMsg))

	// Header
	buf = binary.BigEndian.AppendUint64(buf, m.Header.Seq)
	buf = binary.BigEndian.AppendUint64(buf, m.Header.Tid)
	buf = binary.BigEndian.AppendUint16(buf, m.Header.Type)
	buf = binary.BigEndian.AppendUint16(buf, m.Header.Priority)
	buf = binary.BigEndian.AppendUint16(buf, m.Header.Version)
	buf = binary.BigEndian.AppendUint32(buf, m.Header.FrontLen)
	buf = binary.BigEndian.AppendUint32(buf, m.Header.MiddleLen)
	buf = binary.BigEndian.AppendUint32(buf, m.Header.DataLen)
	m.Header.Crc = crc32.Checksum(buf[1:], crcTable)
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Crc)

	// Segments
	buf = append(buf, m.Front...)
	buf = append(buf, m.Middle...)
	buf = append(buf, m.Data...)

	// Footer
	footer := Footer{
		FrontCrc:  crc32.Checksum(m.Front, crcTable),
		MiddleCrc: crc32.Checksum(m.Middle, crcTable),
		DataCrc:   crc32.Checksum(m.Data, crcTable),
		Flags:     FooterComplete,
	}
	if signer != nil {
		sig, err := signer.Sign(signableRegion(m))
		if err != nil {
			return nil, fmt.Errorf("failed to sign message: %w", err)
		}
		footer.Sig = sig
		footer.Flags |= FooterSigned
	}
	buf = binary.BigEndian.AppendUint32(buf, footer.FrontCrc)
	buf = binary.BigEndian.AppendUint32(buf, footer.MiddleCrc)
	buf = binary.BigEndian.AppendUint32(buf, footer.DataCrc)
	buf = binary.BigEndian.AppendUint64(buf, footer.Sig)
	buf = append(buf, footer.Flags)

	return buf, nil
}

// signableRegion concatenates the signed portion of a message: the
// header fields that name the payload, then the segments themselves.
func signableRegion(m *Message) []byte {
	buf := make([]byte, 0, 8+2+m.PayloadBytes())
	buf = binary.BigEndian.AppendUint64(buf, m.Header.Seq)
	buf = binary.BigEndian.AppendUint16(buf, m.Header.Type)
	buf = append(buf, m.Front...)
	buf = append(buf, m.Middle...)
	buf = append(buf, m.Data...)
	return buf
}

func (c *Codec) writeTagged64(w io.Writer, tag Tag, v uint64) error {
	var buf [9]byte
	buf[0] = byte(tag)
	binary.BigEndian.PutUint64(buf[1:], v)
	_, err := w.Write(buf[:])
	return err
}

func (c *Codec) read64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (c *Codec) readString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := uint32(binary.BigEndian.Uint16(lenBuf[:]))
	if n > c.limits.MaxAddrLen {
		return "", fmt.Errorf("%w: address %d > %d", ErrSegmentTooLarge, n, c.limits.MaxAddrLen)
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}
