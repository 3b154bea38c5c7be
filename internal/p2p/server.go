package p2p

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	klog "github.com/shroudnet/shroud-node/internal/log"
	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/pkg/types"
)

const (
	dialTimeout  = 10 * time.Second
	dialInterval = 20 * time.Second
)

// Server owns the P2P side of the node: the listener, the dialer, the
// connection table, and the shared handshake, processor, and ban state.
// Connections hold only their own id; the back edge is an id lookup here.
type Server struct {
	cfg     config.P2PConfig
	network config.NetworkType
	magic   [2]byte

	chain     Chain
	handshake *Handshake
	processor *MessageProcessor
	peers     *PeerStore
	banMgr    *BanManager

	listener net.Listener
	stopped  atomic.Bool
	quit     chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	conns  map[uint64]*Conn
	nextID uint64
}

// NewServer wires up the P2P server. genesis pins the network identity
// checked during handshakes.
func NewServer(cfg config.P2PConfig, network config.NetworkType, genesis types.Hash,
	ch Chain, processor *MessageProcessor, peers *PeerStore, banMgr *BanManager) *Server {

	s := &Server{
		cfg:       cfg,
		network:   network,
		magic:     config.Magic(network),
		chain:     ch,
		processor: processor,
		peers:     peers,
		banMgr:    banMgr,
		quit:      make(chan struct{}),
		conns:     make(map[uint64]*Conn),
	}
	s.handshake = NewHandshake(network, genesis, cfg.UserAgent, uint16(cfg.Port), ch)
	return s
}

// Start binds the listener and launches the accept, dial, sync, and ban
// maintenance loops.
func (s *Server) Start() error {
	s.banMgr.LoadBans()
	if s.cfg.ClearBans {
		s.banMgr.ClearAll()
		klog.P2P.Info().Msg("Cleared all peer bans")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.ListenAddr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("p2p listen on %s: %w", addr, err)
	}
	s.listener = ln
	klog.P2P.Info().Str("addr", ln.Addr().String()).Msg("P2P server listening")

	s.wg.Add(4)
	go s.acceptLoop()
	go s.dialLoop()
	go s.syncLoop()
	go func() {
		defer s.wg.Done()
		s.banMgr.RunPruneLoop(s.quit)
	}()
	return nil
}

// Stop closes the listener, disconnects every peer, and waits for all
// loops to exit.
func (s *Server) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Disconnect(true)
	}

	s.wg.Wait()
	klog.P2P.Info().Msg("P2P server stopped")
}

// acceptLoop accepts inbound sockets and hands them to the handshake.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopped.Load() {
				return
			}
			klog.P2P.Debug().Err(err).Msg("Accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleInbound(conn)
		}()
	}
}

// handleInbound vets, handshakes, and registers an accepted socket.
func (s *Server) handleInbound(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	if s.banMgr.IsBanned(hostOf(remote)) {
		klog.P2P.Debug().Str("peer", remote).Msg("Rejecting banned peer")
		conn.Close()
		return
	}
	if s.ConnectionCount() >= s.cfg.MaxPeers {
		klog.P2P.Debug().Str("peer", remote).Msg("At max peers, rejecting")
		conn.Close()
		return
	}

	peer, err := s.handshake.Respond(conn)
	if err != nil {
		klog.P2P.Debug().Err(err).Str("peer", remote).Msg("Inbound handshake failed")
		conn.Close()
		return
	}
	s.register(conn, peer, "accept")
}

// dialLoop keeps the peer count topped up from seeds and the peer store.
func (s *Server) dialLoop() {
	defer s.wg.Done()

	// First pass immediately, then on the interval.
	s.dialCandidates()
	ticker := time.NewTicker(dialInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.dialCandidates()
		}
	}
}

func (s *Server) dialCandidates() {
	if s.ConnectionCount() >= s.cfg.MaxPeers {
		return
	}

	for _, addr := range s.candidateAddrs() {
		if s.ConnectionCount() >= s.cfg.MaxPeers {
			return
		}
		s.dial(addr)
	}
}

// candidateAddrs merges configured seeds with stored peers, skipping
// banned and already-connected addresses.
func (s *Server) candidateAddrs() []string {
	connected := make(map[string]bool)
	s.mu.Lock()
	for _, c := range s.conns {
		connected[hostOf(c.Addr())] = true
	}
	s.mu.Unlock()

	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		if seen[addr] || connected[hostOf(addr)] || s.banMgr.IsBanned(hostOf(addr)) {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for _, seed := range s.cfg.Seeds {
		add(seed)
	}
	if records, err := s.peers.LoadAll(); err == nil {
		for _, rec := range records {
			add(rec.Addr)
		}
	}
	return out
}

// dial opens, handshakes, and registers one outbound connection.
func (s *Server) dial(addr string) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		klog.P2P.Debug().Err(err).Str("peer", addr).Msg("Dial failed")
		return
	}
	peer, err := s.handshake.Initiate(conn)
	if err != nil {
		klog.P2P.Debug().Err(err).Str("peer", addr).Msg("Outbound handshake failed")
		conn.Close()
		return
	}
	c := s.register(conn, peer, "dial")
	if c == nil {
		return
	}

	// Seed discovery and sync run over the fresh connection.
	c.AddToSendQueue(&GetPeerAddrs{Capabilities: CapFullNode})
	c.AddToSendQueue(&GetHeaders{Locator: s.chain.Locator()})
}

// register inserts a handshaken connection into the table and starts its
// loop. The connection deregisters itself by id on loop exit.
func (s *Server) register(conn net.Conn, peer *ConnectedPeer, source string) *Conn {
	if s.stopped.Load() {
		conn.Close()
		return nil
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	c := NewConn(id, conn, peer, s.magic, s.cfg.MaxMsgBytesPerSec,
		s.chain, s.processorRef(), s.banMgr, s.deregister)
	s.conns[id] = c
	total := len(s.conns)
	s.mu.Unlock()

	s.peers.Save(PeerRecord{
		Addr:         peer.Addr,
		Capabilities: peer.Capabilities,
		UserAgent:    peer.UserAgent,
		LastSeen:     time.Now().Unix(),
		Source:       source,
	})

	klog.P2P.Info().
		Uint64("conn", id).
		Str("peer", peer.Addr).
		Str("agent", peer.UserAgent).
		Int("peers", total).
		Msg("Peer connected")
	c.Start()
	return c
}

// deregister drops a connection from the table; called from the
// connection's own loop on exit.
func (s *Server) deregister(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	total := len(s.conns)
	s.mu.Unlock()
	klog.P2P.Info().
		Uint64("conn", c.ID()).
		Str("peer", c.Addr()).
		Int("peers", total).
		Msg("Peer disconnected")
}

// processorRef hands connections a liveness-checked handle: once the
// server stops, dispatch sees nil and connections wind down.
func (s *Server) processorRef() ProcessorRef {
	return func() Processor {
		if s.stopped.Load() {
			return nil
		}
		return s.processor
	}
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Connection looks a connection up by id.
func (s *Server) Connection(id uint64) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[id]
}

// Connections returns a snapshot of all live connections.
func (s *Server) Connections() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast enqueues a message on every connection except the one it came
// from (0 to send to all).
func (s *Server) Broadcast(msg Message, exceptID uint64) {
	for _, c := range s.Connections() {
		if c.ID() == exceptID {
			continue
		}
		c.AddToSendQueue(msg)
	}
}

// BanManager exposes the ban manager for REST and manual bans.
func (s *Server) BanManager() *BanManager {
	return s.banMgr
}

// PeerStore exposes the persistent peer store.
func (s *Server) PeerStore() *PeerStore {
	return s.peers
}
