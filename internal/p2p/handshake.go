package p2p

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shroudnet/shroud-node/config"
	klog "github.com/shroudnet/shroud-node/internal/log"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// handshakeTimeout is the max time for a complete Hand/Shake exchange.
const handshakeTimeout = 10 * time.Second

// Handshake errors. All of them close the connection without a ban record:
// an incompatible peer is not a hostile one.
var (
	ErrHandshake        = errors.New("handshake failed")
	ErrGenesisMismatch  = errors.Wrap(ErrHandshake, "genesis hash mismatch")
	ErrSelfConnection   = errors.Wrap(ErrHandshake, "connected to self")
	ErrBadProtoVersion  = errors.Wrap(ErrHandshake, "unusable protocol version")
	ErrUnexpectedFrame  = errors.Wrap(ErrHandshake, "unexpected message during handshake")
)

// ChainInfo provides the chain totals advertised during handshakes and
// pings.
type ChainInfo interface {
	TotalDifficulty() uint64
	Height() uint64
}

// Direction records who opened the TCP connection.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// ConnectedPeer is the result of a successful handshake.
type ConnectedPeer struct {
	Addr            string // ip:port of the remote
	Direction       Direction
	Version         uint32 // negotiated: min of both sides
	Capabilities    Capabilities
	UserAgent       string
	TotalDifficulty uint64
	Height          uint64
}

// Handshake performs the Hand/Shake exchange on fresh sockets. One
// instance serves all connections; it remembers the nonces it sent so a
// dial that loops back to this node is recognized and refused.
type Handshake struct {
	magic      [2]byte
	genesis    types.Hash
	userAgent  string
	listenPort uint16
	chain      ChainInfo

	mu     sync.Mutex
	nonces []uint64 // ring of recently sent nonces
}

// NewHandshake creates a handshake performer.
func NewHandshake(network config.NetworkType, genesis types.Hash, userAgent string, listenPort uint16, chain ChainInfo) *Handshake {
	return &Handshake{
		magic:      config.Magic(network),
		genesis:    genesis,
		userAgent:  userAgent,
		listenPort: listenPort,
		chain:      chain,
	}
}

// Initiate runs the dialer side: send Hand, expect Shake.
func (h *Handshake) Initiate(conn net.Conn) (*ConnectedPeer, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set handshake deadline")
	}
	defer conn.SetDeadline(time.Time{})

	nonce := h.newNonce()
	hand := &Hand{
		Version:         config.ProtocolVersion,
		Capabilities:    CapDefault,
		Nonce:           nonce,
		TotalDifficulty: h.chain.TotalDifficulty(),
		SenderAddr:      localAddr(conn, h.listenPort),
		ReceiverAddr:    remoteAddr(conn),
		UserAgent:       h.userAgent,
		Genesis:         h.genesis,
	}
	if err := WriteMessage(conn, h.magic, hand, config.ProtocolVersion); err != nil {
		return nil, errors.Wrap(err, "send hand")
	}

	raw, err := ReadMessage(conn, h.magic)
	if err != nil {
		return nil, errors.Wrap(err, "read shake")
	}
	if raw.MsgType != MsgShake {
		return nil, errors.Wrapf(ErrUnexpectedFrame, "got %s, want Shake", raw.MsgType)
	}
	msg, err := DecodeMessage(raw, config.ProtocolVersion)
	if err != nil {
		return nil, errors.Wrap(ErrHandshake, err.Error())
	}
	shake := msg.(*Shake)

	if shake.Genesis != h.genesis {
		return nil, errors.Wrapf(ErrGenesisMismatch, "peer %s local %s", shake.Genesis.Short(), h.genesis.Short())
	}
	version, err := negotiateVersion(shake.Version)
	if err != nil {
		return nil, err
	}

	peer := &ConnectedPeer{
		Addr:            conn.RemoteAddr().String(),
		Direction:       Outbound,
		Version:         version,
		Capabilities:    shake.Capabilities,
		UserAgent:       shake.UserAgent,
		TotalDifficulty: shake.TotalDifficulty,
	}
	klog.P2P.Debug().
		Str("peer", peer.Addr).
		Uint32("version", version).
		Str("agent", shake.UserAgent).
		Msg("Handshake complete (outbound)")
	return peer, nil
}

// Respond runs the listener side: expect Hand, validate, send Shake.
func (h *Handshake) Respond(conn net.Conn) (*ConnectedPeer, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set handshake deadline")
	}
	defer conn.SetDeadline(time.Time{})

	raw, err := ReadMessage(conn, h.magic)
	if err != nil {
		return nil, errors.Wrap(err, "read hand")
	}
	if raw.MsgType != MsgHand {
		return nil, errors.Wrapf(ErrUnexpectedFrame, "got %s, want Hand", raw.MsgType)
	}
	msg, err := DecodeMessage(raw, config.ProtocolVersion)
	if err != nil {
		return nil, errors.Wrap(ErrHandshake, err.Error())
	}
	hand := msg.(*Hand)

	if hand.Genesis != h.genesis {
		return nil, errors.Wrapf(ErrGenesisMismatch, "peer %s local %s", hand.Genesis.Short(), h.genesis.Short())
	}
	if h.sentNonce(hand.Nonce) {
		return nil, ErrSelfConnection
	}
	version, err := negotiateVersion(hand.Version)
	if err != nil {
		return nil, err
	}

	shake := &Shake{
		Version:         config.ProtocolVersion,
		Capabilities:    CapDefault,
		TotalDifficulty: h.chain.TotalDifficulty(),
		UserAgent:       h.userAgent,
		Genesis:         h.genesis,
	}
	if err := WriteMessage(conn, h.magic, shake, config.ProtocolVersion); err != nil {
		return nil, errors.Wrap(err, "send shake")
	}

	peer := &ConnectedPeer{
		Addr:            conn.RemoteAddr().String(),
		Direction:       Inbound,
		Version:         version,
		Capabilities:    hand.Capabilities,
		UserAgent:       hand.UserAgent,
		TotalDifficulty: hand.TotalDifficulty,
	}
	klog.P2P.Debug().
		Str("peer", peer.Addr).
		Uint32("version", version).
		Str("agent", hand.UserAgent).
		Msg("Handshake complete (inbound)")
	return peer, nil
}

// negotiateVersion narrows to the minimum of both sides.
func negotiateVersion(theirs uint32) (uint32, error) {
	if theirs == 0 {
		return 0, errors.Wrap(ErrBadProtoVersion, "peer version 0")
	}
	if theirs < config.ProtocolVersion {
		return theirs, nil
	}
	return config.ProtocolVersion, nil
}

// newNonce generates a handshake nonce and remembers it for self-connect
// detection.
func (h *Handshake) newNonce() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	nonce := binary.BigEndian.Uint64(buf[:])

	h.mu.Lock()
	h.nonces = append(h.nonces, nonce)
	if len(h.nonces) > 32 {
		h.nonces = h.nonces[1:]
	}
	h.mu.Unlock()
	return nonce
}

// sentNonce reports whether we recently sent this nonce ourselves.
func (h *Handshake) sentNonce(nonce uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range h.nonces {
		if n == nonce {
			return true
		}
	}
	return false
}

// localAddr builds our advertised address from the socket's local IP and
// the configured listen port.
func localAddr(conn net.Conn, listenPort uint16) PeerAddr {
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return PeerAddr{IP: net.IPv4zero, Port: listenPort}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	return PeerAddr{IP: ip, Port: listenPort}
}

// remoteAddr extracts the peer's address from the socket.
func remoteAddr(conn net.Conn) PeerAddr {
	host, port, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return PeerAddr{IP: net.IPv4zero}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	var p uint16
	for _, c := range port {
		if c < '0' || c > '9' {
			break
		}
		p = p*10 + uint16(c-'0')
	}
	return PeerAddr{IP: ip, Port: p}
}
