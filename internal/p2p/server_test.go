package p2p

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/chain"
	"github.com/shroudnet/shroud-node/internal/storage"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// newTestServer spins up a full P2P server over a fresh in-memory chain.
func newTestServer(t *testing.T, seeds []string) (*Server, *chain.Chain) {
	t.Helper()
	ch, err := chain.New(storage.NewMemory(), config.Testnet)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	genesis, err := chain.GenesisHash(config.Testnet)
	if err != nil {
		t.Fatalf("genesis hash: %v", err)
	}

	db := storage.NewMemory()
	peers := NewPeerStore(db)
	banMgr := NewBanManager(NewBanStore(db))
	processor := NewMessageProcessor(ch, peers, ch.View())

	cfg := config.P2PConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1",
		Port:       0,
		MaxPeers:   8,
		UserAgent:  "shroud-node/test",
		Seeds:      seeds,
	}
	s := NewServer(cfg, config.Testnet, genesis, ch, processor, peers, banMgr)
	if err := s.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServer_TwoNodesConnect(t *testing.T) {
	a, _ := newTestServer(t, nil)
	b, _ := newTestServer(t, []string{a.listener.Addr().String()})

	waitFor(t, "b to dial a", func() bool { return b.ConnectionCount() == 1 })
	waitFor(t, "a to accept b", func() bool { return a.ConnectionCount() == 1 })

	// The dialer recorded the peer.
	conns := b.Connections()
	if len(conns) != 1 {
		t.Fatalf("want 1 connection, got %d", len(conns))
	}
	if conns[0].Peer().Direction != Outbound {
		t.Error("seed connection should be outbound on the dialer")
	}
	if conns[0].Peer().UserAgent != "shroud-node/test" {
		t.Errorf("user agent %q", conns[0].Peer().UserAgent)
	}
}

func TestServer_BannedPeerRefused(t *testing.T) {
	a, _ := newTestServer(t, nil)
	addr := a.listener.Addr().String()

	// Ban every loopback host the dial may arrive from.
	a.banMgr.Ban("127.0.0.1", BanManual)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The server closes without a handshake.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("banned peer should be closed, not greeted")
	}
	if a.ConnectionCount() != 0 {
		t.Error("banned peer must not be registered")
	}
}

func TestServer_DeregistersOnDisconnect(t *testing.T) {
	a, _ := newTestServer(t, nil)
	b, _ := newTestServer(t, []string{a.listener.Addr().String()})

	waitFor(t, "connection", func() bool {
		return a.ConnectionCount() == 1 && b.ConnectionCount() == 1
	})

	for _, c := range b.Connections() {
		c.Disconnect(true)
	}
	waitFor(t, "b to deregister", func() bool { return b.ConnectionCount() == 0 })
	waitFor(t, "a to notice the close", func() bool { return a.ConnectionCount() == 0 })
}

func TestServer_GenesisMismatchNoPeerRecord(t *testing.T) {
	a, _ := newTestServer(t, nil)

	// A dialer on a different network: same wire magic, different genesis.
	wrongGenesis := types.Hash{0xde, 0xad}
	hs := NewHandshake(config.Testnet, wrongGenesis, "imposter", 0, stubChainInfo{})

	conn, err := net.Dial("tcp", a.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := hs.Initiate(conn); err == nil {
		t.Fatal("handshake across different genesis hashes must fail")
	}

	waitFor(t, "no registration", func() bool { return a.ConnectionCount() == 0 })
	if count, _ := a.peers.Count(); count != 0 {
		t.Error("no peer record may be created on a failed handshake")
	}
	if len(a.banMgr.BanList()) != 0 {
		t.Error("a genesis mismatch is not a bannable offense")
	}
}

func TestServer_StopIsIdempotent(t *testing.T) {
	a, _ := newTestServer(t, nil)
	a.Stop()
	a.Stop()
}

func TestServer_AddrFormat(t *testing.T) {
	a, _ := newTestServer(t, nil)
	if _, _, err := net.SplitHostPort(a.listener.Addr().String()); err != nil {
		t.Errorf("listener address should be host:port: %v", err)
	}
	_ = fmt.Sprintf("%v", a.listener.Addr())
}
