package p2p

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Capabilities is a bitfield of services a peer advertises.
type Capabilities uint32

const (
	CapFullNode Capabilities = 1 << iota
	CapTxHashSetHistory
	CapPeerList
	CapTorAddress
)

// CapDefault is what this node advertises.
const CapDefault = CapFullNode | CapTxHashSetHistory | CapPeerList

// maxWireElements bounds decoded list lengths in wire messages.
const maxWireElements = 4096

// PeerAddr is an ip:port peer address on the wire.
type PeerAddr struct {
	IP   net.IP `json:"ip"`
	Port uint16 `json:"port"`
}

// String formats the address as host:port.
func (a PeerAddr) String() string {
	return net.JoinHostPort(a.IP.String(), itoa(a.Port))
}

func itoa(p uint16) string {
	var buf [5]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
		if p == 0 {
			break
		}
	}
	return string(buf[i:])
}

// parsePeerAddr parses a stored "host:port" string back into a PeerAddr.
func parsePeerAddr(s string) (PeerAddr, bool) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return PeerAddr{}, false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return PeerAddr{}, false
	}
	var port uint32
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return PeerAddr{}, false
		}
		port = port*10 + uint32(c-'0')
		if port > 65535 {
			return PeerAddr{}, false
		}
	}
	return PeerAddr{IP: ip, Port: uint16(port)}, true
}

func writePeerAddr(w io.Writer, a PeerAddr) error {
	ip := a.IP.To4()
	if ip == nil {
		ip = a.IP.To16()
	}
	if err := writeUint8(w, uint8(len(ip))); err != nil {
		return err
	}
	if _, err := w.Write(ip); err != nil {
		return err
	}
	return writeUint16(w, a.Port)
}

func readPeerAddr(r io.Reader) (PeerAddr, error) {
	var a PeerAddr
	ipLen, err := readUint8(r)
	if err != nil {
		return a, err
	}
	if ipLen != net.IPv4len && ipLen != net.IPv6len {
		return a, errors.Errorf("invalid ip length %d", ipLen)
	}
	ip := make(net.IP, ipLen)
	if _, err := io.ReadFull(r, ip); err != nil {
		return a, err
	}
	a.IP = ip
	a.Port, err = readUint16(r)
	return a, err
}

// Hand opens a handshake: the dialer introduces itself.
type Hand struct {
	Version         uint32
	Capabilities    Capabilities
	Nonce           uint64
	TotalDifficulty uint64
	SenderAddr      PeerAddr
	ReceiverAddr    PeerAddr
	UserAgent       string
	Genesis         types.Hash
}

// Type implements Message.
func (m *Hand) Type() MsgType { return MsgHand }

// WritePayload implements Message.
func (m *Hand) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint32(w, m.Version); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(m.Capabilities)); err != nil {
		return err
	}
	if err := writeUint64(w, m.Nonce); err != nil {
		return err
	}
	if err := writeUint64(w, m.TotalDifficulty); err != nil {
		return err
	}
	if err := writePeerAddr(w, m.SenderAddr); err != nil {
		return err
	}
	if err := writePeerAddr(w, m.ReceiverAddr); err != nil {
		return err
	}
	if err := writeString(w, m.UserAgent); err != nil {
		return err
	}
	_, err := w.Write(m.Genesis[:])
	return err
}

func decodeHand(r io.Reader) (*Hand, error) {
	var m Hand
	var err error
	if m.Version, err = readUint32(r); err != nil {
		return nil, err
	}
	caps, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	m.Capabilities = Capabilities(caps)
	if m.Nonce, err = readUint64(r); err != nil {
		return nil, err
	}
	if m.TotalDifficulty, err = readUint64(r); err != nil {
		return nil, err
	}
	if m.SenderAddr, err = readPeerAddr(r); err != nil {
		return nil, err
	}
	if m.ReceiverAddr, err = readPeerAddr(r); err != nil {
		return nil, err
	}
	if m.UserAgent, err = readString(r); err != nil {
		return nil, err
	}
	if _, err = io.ReadFull(r, m.Genesis[:]); err != nil {
		return nil, err
	}
	return &m, nil
}

// Shake answers a Hand: the listener accepts the connection.
type Shake struct {
	Version         uint32
	Capabilities    Capabilities
	TotalDifficulty uint64
	UserAgent       string
	Genesis         types.Hash
}

// Type implements Message.
func (m *Shake) Type() MsgType { return MsgShake }

// WritePayload implements Message.
func (m *Shake) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint32(w, m.Version); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(m.Capabilities)); err != nil {
		return err
	}
	if err := writeUint64(w, m.TotalDifficulty); err != nil {
		return err
	}
	if err := writeString(w, m.UserAgent); err != nil {
		return err
	}
	_, err := w.Write(m.Genesis[:])
	return err
}

func decodeShake(r io.Reader) (*Shake, error) {
	var m Shake
	var err error
	if m.Version, err = readUint32(r); err != nil {
		return nil, err
	}
	caps, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	m.Capabilities = Capabilities(caps)
	if m.TotalDifficulty, err = readUint64(r); err != nil {
		return nil, err
	}
	if m.UserAgent, err = readString(r); err != nil {
		return nil, err
	}
	if _, err = io.ReadFull(r, m.Genesis[:]); err != nil {
		return nil, err
	}
	return &m, nil
}

// Ping announces our chain totals and keeps the connection alive.
type Ping struct {
	TotalDifficulty uint64
	Height          uint64
}

// Type implements Message.
func (m *Ping) Type() MsgType { return MsgPing }

// WritePayload implements Message.
func (m *Ping) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint64(w, m.TotalDifficulty); err != nil {
		return err
	}
	return writeUint64(w, m.Height)
}

// Pong answers a Ping with our chain totals.
type Pong struct {
	TotalDifficulty uint64
	Height          uint64
}

// Type implements Message.
func (m *Pong) Type() MsgType { return MsgPong }

// WritePayload implements Message.
func (m *Pong) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint64(w, m.TotalDifficulty); err != nil {
		return err
	}
	return writeUint64(w, m.Height)
}

func decodePing(r io.Reader) (*Ping, error) {
	var m Ping
	var err error
	if m.TotalDifficulty, err = readUint64(r); err != nil {
		return nil, err
	}
	if m.Height, err = readUint64(r); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodePong(r io.Reader) (*Pong, error) {
	p, err := decodePing(r)
	if err != nil {
		return nil, err
	}
	return &Pong{TotalDifficulty: p.TotalDifficulty, Height: p.Height}, nil
}

// GetPeerAddrs asks for known peers with the given capabilities.
type GetPeerAddrs struct {
	Capabilities Capabilities
}

// Type implements Message.
func (m *GetPeerAddrs) Type() MsgType { return MsgGetPeerAddrs }

// WritePayload implements Message.
func (m *GetPeerAddrs) WritePayload(w io.Writer, _ uint32) error {
	return writeUint32(w, uint32(m.Capabilities))
}

func decodeGetPeerAddrs(r io.Reader) (*GetPeerAddrs, error) {
	caps, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &GetPeerAddrs{Capabilities: Capabilities(caps)}, nil
}

// PeerAddrs shares known peer addresses.
type PeerAddrs struct {
	Peers []PeerAddr
}

// Type implements Message.
func (m *PeerAddrs) Type() MsgType { return MsgPeerAddrs }

// WritePayload implements Message.
func (m *PeerAddrs) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint32(w, uint32(len(m.Peers))); err != nil {
		return err
	}
	for _, p := range m.Peers {
		if err := writePeerAddr(w, p); err != nil {
			return err
		}
	}
	return nil
}

func decodePeerAddrs(r io.Reader) (*PeerAddrs, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if count > maxWireElements {
		return nil, errors.Errorf("peer list of %d entries too long", count)
	}
	m := &PeerAddrs{Peers: make([]PeerAddr, 0, count)}
	for i := uint32(0); i < count; i++ {
		p, err := readPeerAddr(r)
		if err != nil {
			return nil, err
		}
		m.Peers = append(m.Peers, p)
	}
	return m, nil
}

// GetHeaders requests headers following the most recent locator hash the
// receiver recognizes.
type GetHeaders struct {
	Locator []types.Hash
}

// Type implements Message.
func (m *GetHeaders) Type() MsgType { return MsgGetHeaders }

// WritePayload implements Message.
func (m *GetHeaders) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint8(w, uint8(len(m.Locator))); err != nil {
		return err
	}
	for _, h := range m.Locator {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}
	return nil
}

func decodeGetHeaders(r io.Reader) (*GetHeaders, error) {
	count, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	m := &GetHeaders{Locator: make([]types.Hash, 0, count)}
	for i := uint8(0); i < count; i++ {
		var h types.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, err
		}
		m.Locator = append(m.Locator, h)
	}
	return m, nil
}

// Headers carries a batch of consecutive headers.
type Headers struct {
	Headers []core.Header
}

// Type implements Message.
func (m *Headers) Type() MsgType { return MsgHeaders }

// WritePayload implements Message.
func (m *Headers) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint16(w, uint16(len(m.Headers))); err != nil {
		return err
	}
	for i := range m.Headers {
		if err := m.Headers[i].Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func decodeHeaders(r io.Reader) (*Headers, error) {
	count, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if count > maxWireElements {
		return nil, errors.Errorf("header batch of %d too long", count)
	}
	m := &Headers{Headers: make([]core.Header, 0, count)}
	for i := uint16(0); i < count; i++ {
		h, err := core.DeserializeHeader(r)
		if err != nil {
			return nil, err
		}
		m.Headers = append(m.Headers, h)
	}
	return m, nil
}

// HeaderMessage announces a single new header.
type HeaderMessage struct {
	Header core.Header
}

// Type implements Message.
func (m *HeaderMessage) Type() MsgType { return MsgHeader }

// WritePayload implements Message.
func (m *HeaderMessage) WritePayload(w io.Writer, _ uint32) error {
	return m.Header.Serialize(w)
}

func decodeHeader(r io.Reader) (*HeaderMessage, error) {
	h, err := core.DeserializeHeader(r)
	if err != nil {
		return nil, err
	}
	return &HeaderMessage{Header: h}, nil
}

// GetBlock requests a full block by hash.
type GetBlock struct {
	Hash types.Hash
}

// Type implements Message.
func (m *GetBlock) Type() MsgType { return MsgGetBlock }

// WritePayload implements Message.
func (m *GetBlock) WritePayload(w io.Writer, _ uint32) error {
	_, err := w.Write(m.Hash[:])
	return err
}

func decodeGetBlock(r io.Reader) (*GetBlock, error) {
	var m GetBlock
	if _, err := io.ReadFull(r, m.Hash[:]); err != nil {
		return nil, err
	}
	return &m, nil
}

// BlockMessage carries a full block.
type BlockMessage struct {
	Block core.Block
}

// Type implements Message.
func (m *BlockMessage) Type() MsgType { return MsgBlock }

// WritePayload implements Message.
func (m *BlockMessage) WritePayload(w io.Writer, version uint32) error {
	return m.Block.Serialize(w, version)
}

func decodeBlock(r io.Reader, version uint32) (*BlockMessage, error) {
	b, err := core.DeserializeBlock(r, version)
	if err != nil {
		return nil, err
	}
	return &BlockMessage{Block: b}, nil
}

// GetCompactBlock requests a compact block by hash.
type GetCompactBlock struct {
	Hash types.Hash
}

// Type implements Message.
func (m *GetCompactBlock) Type() MsgType { return MsgGetCompactBlock }

// WritePayload implements Message.
func (m *GetCompactBlock) WritePayload(w io.Writer, _ uint32) error {
	_, err := w.Write(m.Hash[:])
	return err
}

func decodeGetCompactBlock(r io.Reader) (*GetCompactBlock, error) {
	var m GetCompactBlock
	if _, err := io.ReadFull(r, m.Hash[:]); err != nil {
		return nil, err
	}
	return &m, nil
}

// CompactBlockMessage announces a block as its header plus kernel leaf
// hashes; receivers reconstruct from their pool or fall back to GetBlock.
type CompactBlockMessage struct {
	Header    core.Header
	KernelIDs []types.Hash
}

// Type implements Message.
func (m *CompactBlockMessage) Type() MsgType { return MsgCompactBlock }

// WritePayload implements Message.
func (m *CompactBlockMessage) WritePayload(w io.Writer, _ uint32) error {
	if err := m.Header.Serialize(w); err != nil {
		return err
	}
	if err := writeUint16(w, uint16(len(m.KernelIDs))); err != nil {
		return err
	}
	for _, id := range m.KernelIDs {
		if _, err := w.Write(id[:]); err != nil {
			return err
		}
	}
	return nil
}

func decodeCompactBlock(r io.Reader) (*CompactBlockMessage, error) {
	var m CompactBlockMessage
	var err error
	if m.Header, err = core.DeserializeHeader(r); err != nil {
		return nil, err
	}
	count, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if count > maxWireElements {
		return nil, errors.Errorf("kernel id list of %d too long", count)
	}
	m.KernelIDs = make([]types.Hash, count)
	for i := range m.KernelIDs {
		if _, err := io.ReadFull(r, m.KernelIDs[i][:]); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// TransactionMessage relays a transaction: the kernel offset plus body.
type TransactionMessage struct {
	Offset [32]byte
	Body   core.TransactionBody
}

// Type implements Message.
func (m *TransactionMessage) Type() MsgType { return MsgTransaction }

// WritePayload implements Message.
func (m *TransactionMessage) WritePayload(w io.Writer, version uint32) error {
	if _, err := w.Write(m.Offset[:]); err != nil {
		return err
	}
	return m.Body.Serialize(w, version)
}

func decodeTransaction(r io.Reader, version uint32) (*TransactionMessage, error) {
	var m TransactionMessage
	if _, err := io.ReadFull(r, m.Offset[:]); err != nil {
		return nil, err
	}
	body, err := core.DeserializeBody(r, version)
	if err != nil {
		return nil, err
	}
	m.Body = body
	return &m, nil
}

// StemTransactionMessage relays a transaction along the stem phase of
// Dandelion-style propagation.
type StemTransactionMessage struct {
	Offset [32]byte
	Body   core.TransactionBody
}

// Type implements Message.
func (m *StemTransactionMessage) Type() MsgType { return MsgStemTransaction }

// WritePayload implements Message.
func (m *StemTransactionMessage) WritePayload(w io.Writer, version uint32) error {
	if _, err := w.Write(m.Offset[:]); err != nil {
		return err
	}
	return m.Body.Serialize(w, version)
}

func decodeStemTransaction(r io.Reader, version uint32) (*StemTransactionMessage, error) {
	t, err := decodeTransaction(r, version)
	if err != nil {
		return nil, err
	}
	return &StemTransactionMessage{Offset: t.Offset, Body: t.Body}, nil
}

// TxHashSetRequest asks for a txhashset snapshot at a given header.
type TxHashSetRequest struct {
	Hash   types.Hash
	Height uint64
}

// Type implements Message.
func (m *TxHashSetRequest) Type() MsgType { return MsgTxHashSetRequest }

// WritePayload implements Message.
func (m *TxHashSetRequest) WritePayload(w io.Writer, _ uint32) error {
	if _, err := w.Write(m.Hash[:]); err != nil {
		return err
	}
	return writeUint64(w, m.Height)
}

func decodeTxHashSetRequest(r io.Reader) (*TxHashSetRequest, error) {
	var m TxHashSetRequest
	if _, err := io.ReadFull(r, m.Hash[:]); err != nil {
		return nil, err
	}
	var err error
	if m.Height, err = readUint64(r); err != nil {
		return nil, err
	}
	return &m, nil
}

// TxHashSetArchive delivers a serialized txhashset snapshot.
type TxHashSetArchive struct {
	Hash   types.Hash
	Height uint64
	Bytes  []byte
}

// Type implements Message.
func (m *TxHashSetArchive) Type() MsgType { return MsgTxHashSetArchive }

// WritePayload implements Message.
func (m *TxHashSetArchive) WritePayload(w io.Writer, _ uint32) error {
	if _, err := w.Write(m.Hash[:]); err != nil {
		return err
	}
	if err := writeUint64(w, m.Height); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(len(m.Bytes))); err != nil {
		return err
	}
	_, err := w.Write(m.Bytes)
	return err
}

func decodeTxHashSetArchive(r io.Reader) (*TxHashSetArchive, error) {
	var m TxHashSetArchive
	if _, err := io.ReadFull(r, m.Hash[:]); err != nil {
		return nil, err
	}
	var err error
	if m.Height, err = readUint64(r); err != nil {
		return nil, err
	}
	size, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if size > MaxPayloadSize {
		return nil, errors.Wrapf(ErrPayloadTooBig, "archive of %d bytes", size)
	}
	m.Bytes = make([]byte, size)
	if _, err := io.ReadFull(r, m.Bytes); err != nil {
		return nil, err
	}
	return &m, nil
}

// BanReasonMessage tells the peer why we are disconnecting it.
type BanReasonMessage struct {
	Reason BanReason
}

// Type implements Message.
func (m *BanReasonMessage) Type() MsgType { return MsgBanReason }

// WritePayload implements Message.
func (m *BanReasonMessage) WritePayload(w io.Writer, _ uint32) error {
	return writeUint32(w, uint32(m.Reason))
}

func decodeBanReason(r io.Reader) (*BanReasonMessage, error) {
	reason, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &BanReasonMessage{Reason: BanReason(reason)}, nil
}

// KernelDataRequest asks for the full kernel leaf history.
type KernelDataRequest struct{}

// Type implements Message.
func (m *KernelDataRequest) Type() MsgType { return MsgKernelDataRequest }

// WritePayload implements Message.
func (m *KernelDataRequest) WritePayload(io.Writer, uint32) error { return nil }

// KernelDataResponse returns kernel leaf hashes, oldest first.
type KernelDataResponse struct {
	Kernels []types.Hash
}

// Type implements Message.
func (m *KernelDataResponse) Type() MsgType { return MsgKernelDataResponse }

// WritePayload implements Message.
func (m *KernelDataResponse) WritePayload(w io.Writer, _ uint32) error {
	if err := writeUint32(w, uint32(len(m.Kernels))); err != nil {
		return err
	}
	for _, k := range m.Kernels {
		if _, err := w.Write(k[:]); err != nil {
			return err
		}
	}
	return nil
}

func decodeKernelDataResponse(r io.Reader) (*KernelDataResponse, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if count > maxWireElements {
		return nil, errors.Errorf("kernel data list of %d too long", count)
	}
	m := &KernelDataResponse{Kernels: make([]types.Hash, count)}
	for i := range m.Kernels {
		if _, err := io.ReadFull(r, m.Kernels[i][:]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// encodePayload serializes a message payload into memory.
func encodePayload(msg Message, version uint32) ([]byte, error) {
	var buf bytes.Buffer
	if err := msg.WritePayload(&buf, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage decodes a raw frame's payload into a typed message.
func DecodeMessage(raw *RawMessage, version uint32) (Message, error) {
	r := bytes.NewReader(raw.Payload)
	var msg Message
	var err error
	switch raw.MsgType {
	case MsgHand:
		msg, err = decodeHand(r)
	case MsgShake:
		msg, err = decodeShake(r)
	case MsgPing:
		msg, err = decodePing(r)
	case MsgPong:
		msg, err = decodePong(r)
	case MsgGetPeerAddrs:
		msg, err = decodeGetPeerAddrs(r)
	case MsgPeerAddrs:
		msg, err = decodePeerAddrs(r)
	case MsgGetHeaders:
		msg, err = decodeGetHeaders(r)
	case MsgHeader:
		msg, err = decodeHeader(r)
	case MsgHeaders:
		msg, err = decodeHeaders(r)
	case MsgGetBlock:
		msg, err = decodeGetBlock(r)
	case MsgBlock:
		msg, err = decodeBlock(r, version)
	case MsgGetCompactBlock:
		msg, err = decodeGetCompactBlock(r)
	case MsgCompactBlock:
		msg, err = decodeCompactBlock(r)
	case MsgTransaction:
		msg, err = decodeTransaction(r, version)
	case MsgStemTransaction:
		msg, err = decodeStemTransaction(r, version)
	case MsgTxHashSetRequest:
		msg, err = decodeTxHashSetRequest(r)
	case MsgTxHashSetArchive:
		msg, err = decodeTxHashSetArchive(r)
	case MsgBanReason:
		msg, err = decodeBanReason(r)
	case MsgKernelDataRequest:
		msg = &KernelDataRequest{}
	case MsgKernelDataResponse:
		msg, err = decodeKernelDataResponse(r)
	default:
		return nil, errors.Wrapf(ErrUnknownMsgType, "type %d", raw.MsgType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", raw.MsgType)
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("%s payload has %d trailing bytes", raw.MsgType, r.Len())
	}
	return msg, nil
}

// Local wire primitive helpers (big endian, matching pkg/core).

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// writeString writes a u8-length-prefixed string (user agents are short).
func writeString(w io.Writer, s string) error {
	if len(s) > 255 {
		s = s[:255]
	}
	if err := writeUint8(w, uint8(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint8(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
