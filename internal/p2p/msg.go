// Package p2p implements the framed TCP gossip protocol: wire codec,
// handshake, per-peer connections, message dispatch, peer and ban stores,
// and chain synchronization.
package p2p

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MsgType identifies a wire message.
type MsgType uint8

const (
	MsgError MsgType = iota
	MsgHand
	MsgShake
	MsgPing
	MsgPong
	MsgGetPeerAddrs
	MsgPeerAddrs
	MsgGetHeaders
	MsgHeader
	MsgHeaders
	MsgGetBlock
	MsgBlock
	MsgGetCompactBlock
	MsgCompactBlock
	MsgStemTransaction
	MsgTransaction
	MsgTxHashSetRequest
	MsgTxHashSetArchive
	MsgBanReason
	MsgKernelDataRequest
	MsgKernelDataResponse

	msgTypeCount
)

// Frame header layout: 2 magic bytes, 1 type byte, 8 length bytes (big
// endian).
const frameHeaderSize = 11

// MaxPayloadSize bounds a single frame's payload. Large enough for a full
// block plus slack, small enough to bound a hostile peer's allocation.
const MaxPayloadSize = 8 << 20

// Wire errors.
var (
	ErrBadMagic       = errors.New("bad wire magic")
	ErrUnknownMsgType = errors.New("unknown message type")
	ErrPayloadTooBig  = errors.New("payload exceeds maximum size")
)

// String returns the message type name.
func (t MsgType) String() string {
	names := [...]string{
		"Error", "Hand", "Shake", "Ping", "Pong", "GetPeerAddrs",
		"PeerAddrs", "GetHeaders", "Header", "Headers", "GetBlock",
		"Block", "GetCompactBlock", "CompactBlock", "StemTransaction",
		"Transaction", "TxHashSetRequest", "TxHashSetArchive", "BanReason",
		"KernelDataRequest", "KernelDataResponse",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "Invalid"
}

// Message is a typed wire message that knows how to serialize its payload
// at a negotiated protocol version.
type Message interface {
	Type() MsgType
	WritePayload(w io.Writer, version uint32) error
}

// RawMessage is a framed message as read off the wire, before payload
// decoding.
type RawMessage struct {
	MsgType MsgType
	Payload []byte
}

// WriteMessage frames and writes a message: header then payload. The
// frame is serialized up front so the length prefix is exact and the write
// is a single syscall.
func WriteMessage(w io.Writer, magic [2]byte, msg Message, version uint32) error {
	frame, err := encodeFrame(magic, msg, version)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return errors.Wrapf(err, "write %s frame", msg.Type())
	}
	return nil
}

// ReadMessage reads one framed message. The caller sets any read deadline
// on the underlying connection.
func ReadMessage(r io.Reader, magic [2]byte) (*RawMessage, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if header[0] != magic[0] || header[1] != magic[1] {
		return nil, errors.Wrapf(ErrBadMagic, "got %x%x", header[0], header[1])
	}
	if header[2] >= uint8(msgTypeCount) {
		return nil, errors.Wrapf(ErrUnknownMsgType, "type %d", header[2])
	}
	length := binary.BigEndian.Uint64(header[3:])
	if length > MaxPayloadSize {
		return nil, errors.Wrapf(ErrPayloadTooBig, "declared %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrapf(err, "read %s payload", MsgType(header[2]))
	}
	return &RawMessage{MsgType: MsgType(header[2]), Payload: payload}, nil
}

// encodeFrame serializes a full frame (header plus payload) into memory.
func encodeFrame(magic [2]byte, msg Message, version uint32) ([]byte, error) {
	payload, err := encodePayload(msg, version)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", msg.Type())
	}
	if len(payload) > MaxPayloadSize {
		return nil, errors.Wrapf(ErrPayloadTooBig, "%s payload is %d bytes", msg.Type(), len(payload))
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	frame[0] = magic[0]
	frame[1] = magic[1]
	frame[2] = uint8(msg.Type())
	binary.BigEndian.PutUint64(frame[3:frameHeaderSize], uint64(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}
