package p2p

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shroudnet/shroud-node/internal/chain"
	klog "github.com/shroudnet/shroud-node/internal/log"
	"github.com/shroudnet/shroud-node/internal/txhashset"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Status is the outcome of dispatching one inbound message.
type Status int

const (
	StatusSuccess Status = iota
	StatusSocketFailure
	StatusUnknownError
	StatusResourceNotFound
	StatusUnknownMessage
	StatusSyncing
	StatusDisconnect
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSocketFailure:
		return "socket_failure"
	case StatusUnknownError:
		return "unknown_error"
	case StatusResourceNotFound:
		return "resource_not_found"
	case StatusUnknownMessage:
		return "unknown_message"
	case StatusSyncing:
		return "syncing"
	case StatusDisconnect:
		return "disconnect"
	default:
		return "invalid"
	}
}

// Chain is the slice of the block pipeline the processor drives.
type Chain interface {
	TotalDifficulty() uint64
	Height() uint64
	Locator() []types.Hash
	HeadersByLocator(locator []types.Hash, max int) []core.Header
	ProcessHeaders(headers []core.Header) ([]types.Hash, error)
	ProcessBlock(b *core.Block) error
	Block(hash types.Hash) (*core.Block, error)
}

// maxPeerAddrsReply caps how many addresses one GetPeerAddrs reply carries.
const maxPeerAddrsReply = 32

// MessageProcessor translates decoded wire messages into chain operations
// and enqueues responses on the originating connection. It is stateless
// across calls and safe for concurrent use from many connection loops.
type MessageProcessor struct {
	chain Chain
	peers *PeerStore
	view  *txhashset.TxHashSet
}

// NewMessageProcessor creates the processor shared by all connections.
func NewMessageProcessor(ch Chain, peers *PeerStore, view *txhashset.TxHashSet) *MessageProcessor {
	return &MessageProcessor{chain: ch, peers: peers, view: view}
}

// ProcessMessage dispatches one raw frame from a connection.
func (p *MessageProcessor) ProcessMessage(c *Conn, raw *RawMessage) Status {
	if c.ExceedsRateLimit() {
		klog.P2P.Warn().
			Str("peer", c.Addr()).
			Msg("Peer exceeds rate limit, dropping")
		return StatusDisconnect
	}

	msg, err := DecodeMessage(raw, c.Version())
	if err != nil {
		if errors.Is(err, ErrUnknownMsgType) {
			klog.P2P.Debug().Str("peer", c.Addr()).Err(err).Msg("Unknown message type")
			return StatusUnknownMessage
		}
		klog.P2P.Debug().Str("peer", c.Addr()).Err(err).Msg("Malformed message payload")
		return StatusDisconnect
	}

	switch m := msg.(type) {
	case *Ping:
		c.UpdateTotals(m.TotalDifficulty, m.Height)
		c.AddToSendQueue(&Pong{
			TotalDifficulty: p.chain.TotalDifficulty(),
			Height:          p.chain.Height(),
		})
		return StatusSuccess

	case *Pong:
		c.UpdateTotals(m.TotalDifficulty, m.Height)
		return StatusSuccess

	case *GetPeerAddrs:
		c.AddToSendQueue(&PeerAddrs{Peers: p.knownPeers(m.Capabilities)})
		return StatusSuccess

	case *PeerAddrs:
		now := time.Now().Unix()
		for _, addr := range m.Peers {
			p.peers.Save(PeerRecord{
				Addr:     addr.String(),
				LastSeen: now,
				Source:   "gossip",
			})
		}
		return StatusSuccess

	case *GetHeaders:
		headers := p.chain.HeadersByLocator(m.Locator, 0)
		c.AddToSendQueue(&Headers{Headers: headers})
		return StatusSuccess

	case *Headers:
		return p.handleHeaders(c, m.Headers)

	case *HeaderMessage:
		// A new-block announcement: fetch the block if the peer claims
		// more work than we have.
		if m.Header.TotalDifficulty > p.chain.TotalDifficulty() {
			c.AddToSendQueue(&GetBlock{Hash: m.Header.Hash()})
		}
		return StatusSuccess

	case *GetBlock:
		b, err := p.chain.Block(m.Hash)
		if err != nil {
			return StatusResourceNotFound
		}
		c.AddToSendQueue(&BlockMessage{Block: *b})
		return StatusSuccess

	case *BlockMessage:
		return p.handleBlock(c, &m.Block)

	case *GetCompactBlock:
		b, err := p.chain.Block(m.Hash)
		if err != nil {
			return StatusResourceNotFound
		}
		ids := make([]types.Hash, len(b.Body.Kernels))
		for i := range b.Body.Kernels {
			ids[i] = txhashset.KernelLeaf(&b.Body.Kernels[i])
		}
		c.AddToSendQueue(&CompactBlockMessage{Header: b.Header, KernelIDs: ids})
		return StatusSuccess

	case *CompactBlockMessage:
		// Without a transaction pool we cannot reconstruct; fall back to
		// the full block.
		c.AddToSendQueue(&GetBlock{Hash: m.Header.Hash()})
		return StatusSuccess

	case *TransactionMessage, *StemTransactionMessage:
		// Transaction relay lands in the pool, which lives outside this
		// node's scope.
		klog.P2P.Debug().Str("peer", c.Addr()).Msg("Ignoring transaction relay")
		return StatusSuccess

	case *TxHashSetRequest:
		archive := p.buildArchive()
		c.AddToSendQueue(&TxHashSetArchive{Hash: m.Hash, Height: m.Height, Bytes: archive})
		return StatusSuccess

	case *TxHashSetArchive:
		klog.P2P.Debug().
			Str("peer", c.Addr()).
			Int("bytes", len(m.Bytes)).
			Msg("Ignoring unsolicited txhashset archive")
		return StatusSuccess

	case *BanReasonMessage:
		klog.P2P.Warn().
			Str("peer", c.Addr()).
			Str("reason", m.Reason.String()).
			Msg("Peer banned us")
		return StatusDisconnect

	case *KernelDataRequest:
		c.AddToSendQueue(&KernelDataResponse{Kernels: p.view.LastKernels(maxWireElements)})
		return StatusSuccess

	case *KernelDataResponse:
		return StatusSuccess

	case *Hand, *Shake:
		klog.P2P.Debug().Str("peer", c.Addr()).Msg("Handshake message on established connection")
		return StatusDisconnect

	default:
		return StatusUnknownMessage
	}
}

// handleHeaders feeds a header batch into the pipeline and requests the
// blocks it does not have yet.
func (p *MessageProcessor) handleHeaders(c *Conn, headers []core.Header) Status {
	wanted, err := p.chain.ProcessHeaders(headers)
	if err != nil {
		if errors.Is(err, chain.ErrBadData) {
			c.BanPeer(BanBadBlockHeader)
			return StatusDisconnect
		}
		klog.Sync.Debug().Err(err).Str("peer", c.Addr()).Msg("Header batch rejected")
		return StatusUnknownError
	}
	for _, hash := range wanted {
		c.AddToSendQueue(&GetBlock{Hash: hash})
	}
	if len(wanted) > 0 {
		return StatusSyncing
	}
	return StatusSuccess
}

// handleBlock hands a block to the pipeline. Consensus violations ban the
// peer; a missing parent kicks off header sync instead.
func (p *MessageProcessor) handleBlock(c *Conn, b *core.Block) Status {
	err := p.chain.ProcessBlock(b)
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, chain.ErrBadData):
		klog.P2P.Warn().
			Str("peer", c.Addr()).
			Str("block", b.Hash().Short()).
			Err(err).
			Msg("Peer sent invalid block")
		c.BanPeer(BanBadBlock)
		return StatusDisconnect
	case errors.Is(err, chain.ErrChainMissingData):
		c.AddToSendQueue(&GetHeaders{Locator: p.chain.Locator()})
		return StatusSyncing
	default:
		klog.Chain.Error().Err(err).Str("block", b.Hash().Short()).Msg("Block processing failed")
		return StatusUnknownError
	}
}

// knownPeers returns stored peer addresses matching the requested
// capabilities.
func (p *MessageProcessor) knownPeers(caps Capabilities) []PeerAddr {
	records, err := p.peers.LoadAll()
	if err != nil {
		return nil
	}
	var out []PeerAddr
	for _, rec := range records {
		// Records learned via gossip have unknown capabilities; let them
		// through rather than starving the reply.
		if caps != 0 && rec.Capabilities != 0 && rec.Capabilities&caps == 0 {
			continue
		}
		addr, ok := parsePeerAddr(rec.Addr)
		if !ok {
			continue
		}
		out = append(out, addr)
		if len(out) >= maxPeerAddrsReply {
			break
		}
	}
	return out
}

// buildArchive serializes a minimal txhashset snapshot: the three roots
// followed by the most recent kernel leaves.
func (p *MessageProcessor) buildArchive() []byte {
	roots := p.view.Roots()
	kernels := p.view.LastKernels(maxWireElements)

	out := make([]byte, 0, 3*types.HashSize+len(kernels)*types.HashSize)
	out = append(out, roots.Output[:]...)
	out = append(out, roots.RangeProof[:]...)
	out = append(out, roots.Kernel[:]...)
	for _, k := range kernels {
		out = append(out, k[:]...)
	}
	return out
}
