package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/log"
	"github.com/shroudnet/shroud-node/internal/storage"
	"github.com/shroudnet/shroud-node/internal/txhashset"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// maxLocatorHeaders caps how many headers one GetHeaders request returns.
const maxLocatorHeaders = 512

// Chain is the block pipeline: it owns the chain store and txhashset and is
// the only component that mutates them. Blocks extend the tip strictly in
// order; an unknown parent surfaces as ErrChainMissingData for the sync
// layer to resolve.
type Chain struct {
	mu        sync.Mutex
	store     *Store
	view      *txhashset.TxHashSet
	validator *Validator
	network   config.NetworkType
	logger    zerolog.Logger

	tip *core.Header
}

// New opens (or bootstraps) a chain over the given database. A fresh
// database is seeded with the network's genesis block.
func New(db storage.DB, network config.NetworkType) (*Chain, error) {
	c := &Chain{
		store:   NewStore(db),
		view:    txhashset.New(),
		network: network,
		logger:  log.Chain,
	}
	c.validator = NewValidator(c.store, c.view)

	tipHash, err := c.store.Tip()
	if errors.Is(err, storage.ErrNotFound) {
		if err := c.bootstrap(); err != nil {
			return nil, fmt.Errorf("bootstrap genesis: %w", err)
		}
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	if err := c.rebuild(tipHash); err != nil {
		return nil, fmt.Errorf("rebuild chain state: %w", err)
	}
	return c, nil
}

// bootstrap seeds a fresh database with the genesis block.
func (c *Chain) bootstrap() error {
	genesis, err := GenesisBlock(c.network)
	if err != nil {
		return err
	}
	sums, err := GenesisSums(c.network)
	if err != nil {
		return err
	}

	firstIdx := c.view.ApplyBlock(genesis)
	if err := c.persist(genesis, sums, firstIdx); err != nil {
		return err
	}
	c.tip = &genesis.Header
	c.logger.Info().
		Str("hash", genesis.Hash().String()).
		Msg("Chain bootstrapped from genesis")
	return nil
}

// rebuild replays all stored blocks into the in-memory txhashset on
// startup.
func (c *Chain) rebuild(tipHash types.Hash) error {
	tip, err := c.store.Header(tipHash)
	if err != nil {
		return err
	}
	for height := uint64(0); height <= tip.Height; height++ {
		b, err := c.blockByHeight(height)
		if err != nil {
			return fmt.Errorf("replay height %d: %w", height, err)
		}
		c.view.ApplyBlock(b)
	}
	c.tip = tip
	c.logger.Info().
		Uint64("height", tip.Height).
		Str("hash", tipHash.Short()).
		Msg("Chain state rebuilt")
	return nil
}

// Tip returns the current tip header.
func (c *Chain) Tip() *core.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip
}

// TotalDifficulty returns the tip's cumulative difficulty.
func (c *Chain) TotalDifficulty() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tip == nil {
		return 0
	}
	return c.tip.TotalDifficulty
}

// Height returns the tip height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tip == nil {
		return 0
	}
	return c.tip.Height
}

// Store exposes the read side of the chain store.
func (c *Chain) Store() *Store {
	return c.store
}

// View exposes the txhashset view for REST queries.
func (c *Chain) View() *txhashset.TxHashSet {
	return c.view
}

// ProcessBlock validates a block against the tip and commits it. The body
// is applied to the txhashset first (the validator only checks roots) and
// rewound again if validation fails.
func (c *Chain) ProcessBlock(b *core.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := b.Hash()
	if have, err := c.store.HasBlock(hash); err != nil {
		return err
	} else if have {
		return nil
	}

	if b.Header.Previous != c.tip.Hash() {
		if b.Height() <= c.tip.Height {
			return fmt.Errorf("%w: block %s at height %d does not extend tip", ErrBadData, hash.Short(), b.Height())
		}
		return fmt.Errorf("%w: parent %s of block %s unknown", ErrChainMissingData, b.Header.Previous.Short(), hash.Short())
	}
	if b.Height() != c.tip.Height+1 {
		return fmt.Errorf("%w: block %s height %d does not follow tip height %d",
			ErrBadData, hash.Short(), b.Height(), c.tip.Height)
	}

	outputMark, rangeProofMark, kernelMark := c.view.Marks()
	firstIdx := c.view.ApplyBlock(b)

	sums, err := c.validator.ValidateBlock(b)
	if err != nil {
		c.view.Rewind(outputMark, rangeProofMark, kernelMark)
		return err
	}

	if err := c.persist(b, sums, firstIdx); err != nil {
		c.view.Rewind(outputMark, rangeProofMark, kernelMark)
		return err
	}
	c.tip = &b.Header

	c.logger.Info().
		Uint64("height", b.Height()).
		Str("hash", hash.Short()).
		Int("kernels", len(b.Body.Kernels)).
		Msg("Block accepted")
	return nil
}

// persist writes a validated block, its sums, output positions, and the new
// tip to the store.
func (c *Chain) persist(b *core.Block, sums core.BlockSums, firstOutputIdx uint64) error {
	if err := c.store.PutHeader(&b.Header); err != nil {
		return err
	}
	if err := c.store.PutBlock(b); err != nil {
		return err
	}
	hash := b.Hash()
	if err := c.store.PutBlockSums(hash, sums); err != nil {
		return err
	}
	for i := range b.Body.Outputs {
		loc := OutputLocation{BlockHeight: b.Height(), MMRIndex: firstOutputIdx + uint64(i)}
		if err := c.store.PutOutputPosition(b.Body.Outputs[i].Commitment, loc); err != nil {
			return err
		}
	}
	return c.store.SetTip(hash)
}

// ProcessHeaders sanity-checks a batch of headers received during sync and
// records which block hashes are worth requesting. Headers are not yet
// committed; blocks carry the authoritative state.
func (c *Chain) ProcessHeaders(headers []core.Header) ([]types.Hash, error) {
	c.mu.Lock()
	tipHeight := c.tip.Height
	c.mu.Unlock()

	var wanted []types.Hash
	for i := range headers {
		h := &headers[i]
		if h.Height <= tipHeight {
			continue
		}
		if i > 0 && h.Previous != headers[i-1].Hash() {
			return nil, fmt.Errorf("%w: header %s does not chain", ErrBadData, h.Hash().Short())
		}
		wanted = append(wanted, h.Hash())
	}
	return wanted, nil
}

// Locator returns block hashes identifying our chain position: the last ten
// heights densely, then exponentially sparser back to genesis.
func (c *Chain) Locator() []types.Hash {
	c.mu.Lock()
	height := c.tip.Height
	c.mu.Unlock()

	var locator []types.Hash
	step := uint64(1)
	h := height
	for {
		hash, err := c.store.HashByHeight(h)
		if err == nil {
			locator = append(locator, hash)
		}
		if h == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if h < step {
			h = 0
		} else {
			h -= step
		}
	}
	return locator
}

// HeadersByLocator serves a GetHeaders request: find the most recent
// locator hash on our chain and return the headers that follow it.
func (c *Chain) HeadersByLocator(locator []types.Hash, max int) []core.Header {
	if max <= 0 || max > maxLocatorHeaders {
		max = maxLocatorHeaders
	}

	start := uint64(0)
	for _, hash := range locator {
		h, err := c.store.Header(hash)
		if err != nil {
			continue
		}
		onChain, err := c.store.HashByHeight(h.Height)
		if err != nil || onChain != hash {
			continue
		}
		start = h.Height
		break
	}

	tipHeight := c.Height()
	var headers []core.Header
	for height := start + 1; height <= tipHeight && len(headers) < max; height++ {
		h, err := c.store.HeaderByHeight(height)
		if err != nil {
			break
		}
		headers = append(headers, *h)
	}
	return headers
}

// blockByHeight loads the active-chain block at a height.
func (c *Chain) blockByHeight(height uint64) (*core.Block, error) {
	hash, err := c.store.HashByHeight(height)
	if err != nil {
		return nil, err
	}
	return c.store.Block(hash)
}

// BlockByHeight loads the active-chain block at a height.
func (c *Chain) BlockByHeight(height uint64) (*core.Block, error) {
	return c.blockByHeight(height)
}

// Block loads a block by hash.
func (c *Chain) Block(hash types.Hash) (*core.Block, error) {
	return c.store.Block(hash)
}
