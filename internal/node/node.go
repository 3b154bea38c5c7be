// Package node wires the subsystems into a running full node.
package node

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/chain"
	"github.com/shroudnet/shroud-node/internal/log"
	"github.com/shroudnet/shroud-node/internal/p2p"
	"github.com/shroudnet/shroud-node/internal/rpc"
	"github.com/shroudnet/shroud-node/internal/storage"
	"github.com/shroudnet/shroud-node/internal/tor"
)

// torRetryBase is the initial backoff for hidden-service publication.
const torRetryBase = 10 * time.Second

// torHeartbeatInterval is how often the Tor control channel is probed.
const torHeartbeatInterval = 5 * time.Minute

// Node owns every subsystem: storage, chain, P2P, REST, and the optional
// Tor hidden service.
type Node struct {
	cfg *config.Config

	chainDB storage.DB
	peerDB  storage.DB

	chain      *chain.Chain
	p2pServer  *p2p.Server
	restServer *rpc.Server

	torCtl  *tor.Control
	onionID string

	quit chan struct{}
}

// New builds a node from configuration: open databases, load or bootstrap
// the chain, and wire the P2P and REST servers. Nothing is listening yet;
// call Start.
func New(cfg *config.Config) (*Node, error) {
	if err := os.MkdirAll(cfg.ChainDataDir(), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	chainDB, err := storage.NewBadger(cfg.ChainDBDir())
	if err != nil {
		return nil, err
	}
	peerDB, err := storage.NewBadger(cfg.PeerDBDir())
	if err != nil {
		chainDB.Close()
		return nil, err
	}

	ch, err := chain.New(chainDB, cfg.Network)
	if err != nil {
		chainDB.Close()
		peerDB.Close()
		return nil, fmt.Errorf("open chain: %w", err)
	}

	genesisHash, err := chain.GenesisHash(cfg.Network)
	if err != nil {
		chainDB.Close()
		peerDB.Close()
		return nil, err
	}

	peers := p2p.NewPeerStore(peerDB)
	banMgr := p2p.NewBanManager(p2p.NewBanStore(peerDB))
	processor := p2p.NewMessageProcessor(ch, peers, ch.View())
	p2pServer := p2p.NewServer(cfg.P2P, cfg.Network, genesisHash, ch, processor, peers, banMgr)

	n := &Node{
		cfg:       cfg,
		chainDB:   chainDB,
		peerDB:    peerDB,
		chain:     ch,
		p2pServer: p2pServer,
		quit:      make(chan struct{}),
	}
	if cfg.REST.Enabled {
		n.restServer = rpc.New(cfg.REST, ch, p2pServer)
	}
	return n, nil
}

// Chain exposes the block pipeline.
func (n *Node) Chain() *chain.Chain {
	return n.chain
}

// Start brings the node's listeners up.
func (n *Node) Start() error {
	if n.cfg.P2P.Enabled {
		if err := n.p2pServer.Start(); err != nil {
			return err
		}
	}
	if n.restServer != nil {
		if err := n.restServer.Start(); err != nil {
			return err
		}
	}
	if n.cfg.Tor.Enabled {
		go n.runTor()
	}

	log.Info().
		Str("network", string(n.cfg.Network)).
		Uint64("height", n.chain.Height()).
		Msg("Node started")
	return nil
}

// Stop shuts everything down in reverse order of Start.
func (n *Node) Stop() {
	close(n.quit)

	if n.torCtl != nil {
		n.torCtl.Close()
	}
	if n.restServer != nil {
		n.restServer.Stop()
	}
	if n.cfg.P2P.Enabled {
		n.p2pServer.Stop()
	}
	n.peerDB.Close()
	n.chainDB.Close()
	log.Info().Msg("Node stopped")
}

// runTor publishes the P2P listener as a hidden service, retrying with
// backoff on control-channel failures, then keeps the channel alive with
// periodic heartbeats.
func (n *Node) runTor() {
	backoff := torRetryBase
	for {
		select {
		case <-n.quit:
			return
		default:
		}

		if err := n.publishOnion(); err == nil {
			break
		} else {
			log.Tor.Warn().Err(err).Dur("retry_in", backoff).Msg("Hidden service publication failed")
		}

		select {
		case <-n.quit:
			return
		case <-time.After(backoff):
		}
		if backoff < 10*time.Minute {
			backoff *= 2
		}
	}

	ticker := time.NewTicker(torHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			if n.torCtl != nil && !n.torCtl.CheckHeartbeat() {
				log.Tor.Warn().Msg("Tor control heartbeat failed")
			}
		}
	}
}

// publishOnion connects to the control port and registers the service.
func (n *Node) publishOnion() error {
	seed, err := n.onionSeed()
	if err != nil {
		return err
	}

	ctl, err := tor.Connect(n.cfg.Tor.ControlAddr, n.cfg.Tor.Password)
	if err != nil {
		return err
	}

	port := uint16(n.cfg.P2P.Port)
	serviceID, err := ctl.AddOnion(seed, port, port)
	if err != nil {
		ctl.Close()
		return err
	}

	n.torCtl = ctl
	n.onionID = serviceID
	log.Tor.Info().Str("address", serviceID+".onion").Msg("Hidden service published")
	return nil
}

// onionSeed loads the node's onion key seed, creating it on first use.
func (n *Node) onionSeed() ([]byte, error) {
	path := n.cfg.Tor.KeyFile
	if path == "" {
		path = n.cfg.ChainDataDir() + "/onion.key"
	}

	if seed, err := os.ReadFile(path); err == nil {
		if len(seed) != 32 {
			return nil, fmt.Errorf("onion key %s is %d bytes, want 32", path, len(seed))
		}
		return seed, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, seed, 0600); err != nil {
		return nil, fmt.Errorf("persist onion key: %w", err)
	}
	log.Tor.Info().Str("path", path).Msg("Generated new onion service key")
	return seed, nil
}
