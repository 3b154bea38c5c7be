package p2p

import (
	"bytes"
	"encoding/binary"
	"net"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

var testMagic = config.Magic(config.Testnet)

// roundTrip encodes a message into a frame and decodes it back.
func roundTrip(t *testing.T, msg Message, version uint32) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteMessage(&buf, testMagic, msg, version); err != nil {
		t.Fatalf("write %s: %v", msg.Type(), err)
	}
	raw, err := ReadMessage(&buf, testMagic)
	if err != nil {
		t.Fatalf("read %s: %v", msg.Type(), err)
	}
	if raw.MsgType != msg.Type() {
		t.Fatalf("type changed: sent %s, read %s", msg.Type(), raw.MsgType)
	}
	decoded, err := DecodeMessage(raw, version)
	if err != nil {
		t.Fatalf("decode %s: %v", msg.Type(), err)
	}
	return decoded
}

func TestRoundTrip_Hand(t *testing.T) {
	msg := &Hand{
		Version:         2,
		Capabilities:    CapDefault,
		Nonce:           12345,
		TotalDifficulty: 999,
		SenderAddr:      PeerAddr{IP: net.ParseIP("10.0.0.1").To4(), Port: 13414},
		ReceiverAddr:    PeerAddr{IP: net.ParseIP("192.168.1.2").To4(), Port: 23414},
		UserAgent:       "shroud-node/test",
		Genesis:         crypto.Blake2b([]byte("genesis")),
	}
	got := roundTrip(t, msg, config.ProtocolV2)
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("hand did not round trip:\n got %+v\nwant %+v", got, msg)
	}
}

func TestRoundTrip_Shake(t *testing.T) {
	msg := &Shake{
		Version:         1,
		Capabilities:    CapFullNode,
		TotalDifficulty: 42,
		UserAgent:       "other-node",
		Genesis:         crypto.Blake2b([]byte("genesis")),
	}
	got := roundTrip(t, msg, config.ProtocolV1)
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("shake did not round trip")
	}
}

func TestRoundTrip_PingPong(t *testing.T) {
	ping := &Ping{TotalDifficulty: 7, Height: 11}
	if got := roundTrip(t, ping, config.ProtocolV2); !reflect.DeepEqual(got, ping) {
		t.Errorf("ping did not round trip")
	}
	pong := &Pong{TotalDifficulty: 8, Height: 12}
	if got := roundTrip(t, pong, config.ProtocolV2); !reflect.DeepEqual(got, pong) {
		t.Errorf("pong did not round trip")
	}
}

func TestRoundTrip_PeerAddrs(t *testing.T) {
	msg := &PeerAddrs{Peers: []PeerAddr{
		{IP: net.ParseIP("10.1.2.3").To4(), Port: 13414},
		{IP: net.ParseIP("2001:db8::1").To16(), Port: 999},
	}}
	got := roundTrip(t, msg, config.ProtocolV2).(*PeerAddrs)
	if len(got.Peers) != 2 {
		t.Fatalf("want 2 peers, got %d", len(got.Peers))
	}
	if got.Peers[0].String() != "10.1.2.3:13414" {
		t.Errorf("ipv4 peer mangled: %s", got.Peers[0])
	}
	if got.Peers[1].String() != "[2001:db8::1]:999" {
		t.Errorf("ipv6 peer mangled: %s", got.Peers[1])
	}
}

func TestRoundTrip_GetHeaders(t *testing.T) {
	msg := &GetHeaders{Locator: []types.Hash{
		crypto.Blake2b([]byte("tip")),
		crypto.Blake2b([]byte("older")),
	}}
	got := roundTrip(t, msg, config.ProtocolV2)
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("get headers did not round trip")
	}
}

func TestRoundTrip_Headers(t *testing.T) {
	msg := &Headers{Headers: []core.Header{
		{Version: 1, Height: 5, Previous: crypto.Blake2b([]byte("p")), Timestamp: 1000, TotalDifficulty: 50},
		{Version: 1, Height: 6, Timestamp: 1060, TotalDifficulty: 51},
	}}
	got := roundTrip(t, msg, config.ProtocolV2)
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("headers did not round trip")
	}
}

func TestRoundTrip_Block(t *testing.T) {
	seed := crypto.Blake2b([]byte("wire-block"))
	sk, err := crypto.SecretKeyFromBytes(seed[:])
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	commit, err := crypto.Commit(60, sk.Blinding())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	proof := make([]byte, config.RangeProofSize)
	copy(proof, seed[:])

	msg := &BlockMessage{Block: core.Block{
		Header: core.Header{Version: 1, Height: 9, Timestamp: 12345},
		Body: core.TransactionBody{
			Outputs: []core.Output{{Features: core.OutputCoinbase, Commitment: commit, RangeProof: proof}},
			Kernels: []core.Kernel{{Features: core.KernelCoinbase, Excess: sk.PublicPoint()}},
		},
	}}

	for _, version := range []uint32{config.ProtocolV1, config.ProtocolV2} {
		got := roundTrip(t, msg, version).(*BlockMessage)
		if got.Block.Hash() != msg.Block.Hash() {
			t.Errorf("v%d block hash changed over the wire", version)
		}
		if !bytes.Equal(got.Block.Body.Outputs[0].RangeProof, proof) {
			t.Errorf("v%d range proof mangled", version)
		}
	}
}

func TestRoundTrip_BanReason(t *testing.T) {
	msg := &BanReasonMessage{Reason: BanFraudHeight}
	got := roundTrip(t, msg, config.ProtocolV2)
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("ban reason did not round trip")
	}
}

func TestRoundTrip_TxHashSetArchive(t *testing.T) {
	msg := &TxHashSetArchive{
		Hash:   crypto.Blake2b([]byte("archive")),
		Height: 77,
		Bytes:  []byte{1, 2, 3, 4, 5},
	}
	got := roundTrip(t, msg, config.ProtocolV2)
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("archive did not round trip")
	}
}

func TestReadMessage_BadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, [2]byte{0xde, 0xad}, &Ping{}, config.ProtocolV2); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := ReadMessage(&buf, testMagic)
	if !errors.Is(err, ErrBadMagic) {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
}

func TestReadMessage_UnknownType(t *testing.T) {
	frame := make([]byte, frameHeaderSize)
	frame[0], frame[1] = testMagic[0], testMagic[1]
	frame[2] = 200
	_, err := ReadMessage(bytes.NewReader(frame), testMagic)
	if !errors.Is(err, ErrUnknownMsgType) {
		t.Errorf("expected ErrUnknownMsgType, got %v", err)
	}
}

func TestReadMessage_OversizedPayload(t *testing.T) {
	frame := make([]byte, frameHeaderSize)
	frame[0], frame[1] = testMagic[0], testMagic[1]
	frame[2] = uint8(MsgPing)
	binary.BigEndian.PutUint64(frame[3:], MaxPayloadSize+1)
	_, err := ReadMessage(bytes.NewReader(frame), testMagic)
	if !errors.Is(err, ErrPayloadTooBig) {
		t.Errorf("expected ErrPayloadTooBig, got %v", err)
	}
}

func TestDecodeMessage_TrailingBytes(t *testing.T) {
	payload, err := encodePayload(&Ping{TotalDifficulty: 1, Height: 2}, config.ProtocolV2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := &RawMessage{MsgType: MsgPing, Payload: append(payload, 0xff)}
	if _, err := DecodeMessage(raw, config.ProtocolV2); err == nil {
		t.Error("trailing bytes must be rejected")
	}
}
