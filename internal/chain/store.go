package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/storage"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Key prefixes and state keys for the chain store.
var (
	prefixHeader = []byte("h/") // h/<hash(32)> -> header bytes
	prefixHeight = []byte("g/") // g/<height(8)> -> hash(32)
	prefixBlock  = []byte("b/") // b/<hash(32)> -> block bytes (protocol v2)
	prefixSums   = []byte("s/") // s/<hash(32)> -> block sums bytes
	prefixOutPos = []byte("o/") // o/<commit(33)> -> height(8) + mmr index(8)
	keyTipHash   = []byte("t/tip")
)

// OutputLocation records where a commitment first entered the output MMR.
type OutputLocation struct {
	BlockHeight uint64 `json:"height"`
	MMRIndex    uint64 `json:"mmr_index"`
}

// Store persists chain state to a storage.DB. The validator only reads;
// all writes belong to the block pipeline.
type Store struct {
	db storage.DB
}

// NewStore creates a chain store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// PutHeader stores a header by hash and indexes its height.
func (s *Store) PutHeader(h *core.Header) error {
	var buf bytes.Buffer
	if err := h.Serialize(&buf); err != nil {
		return fmt.Errorf("header marshal: %w", err)
	}
	hash := h.Hash()
	if err := s.db.Put(headerKey(hash), buf.Bytes()); err != nil {
		return fmt.Errorf("header put: %w", err)
	}
	if err := s.db.Put(heightKey(h.Height), hash[:]); err != nil {
		return fmt.Errorf("height index put: %w", err)
	}
	return nil
}

// Header retrieves a header by hash. Returns storage.ErrNotFound when absent.
func (s *Store) Header(hash types.Hash) (*core.Header, error) {
	data, err := s.db.Get(headerKey(hash))
	if err != nil {
		return nil, err
	}
	h, err := core.DeserializeHeader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("header unmarshal: %w", err)
	}
	return &h, nil
}

// HeaderByHeight retrieves the header on the active chain at a height.
func (s *Store) HeaderByHeight(height uint64) (*core.Header, error) {
	hashBytes, err := s.db.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	if len(hashBytes) != types.HashSize {
		return nil, fmt.Errorf("corrupt height index: got %d bytes", len(hashBytes))
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return s.Header(hash)
}

// HashByHeight retrieves the block hash on the active chain at a height.
func (s *Store) HashByHeight(height uint64) (types.Hash, error) {
	hashBytes, err := s.db.Get(heightKey(height))
	if err != nil {
		return types.Hash{}, err
	}
	if len(hashBytes) != types.HashSize {
		return types.Hash{}, fmt.Errorf("corrupt height index: got %d bytes", len(hashBytes))
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return hash, nil
}

// PutBlock stores a full block by hash.
func (s *Store) PutBlock(b *core.Block) error {
	var buf bytes.Buffer
	if err := b.Serialize(&buf, config.ProtocolV2); err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	hash := b.Hash()
	if err := s.db.Put(blockKey(hash), buf.Bytes()); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	return nil
}

// Block retrieves a full block by hash.
func (s *Store) Block(hash types.Hash) (*core.Block, error) {
	data, err := s.db.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	b, err := core.DeserializeBlock(bytes.NewReader(data), config.ProtocolV2)
	if err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &b, nil
}

// HasBlock checks if a full block exists by hash.
func (s *Store) HasBlock(hash types.Hash) (bool, error) {
	return s.db.Has(blockKey(hash))
}

// PutBlockSums stores the cumulative sums for a block.
func (s *Store) PutBlockSums(hash types.Hash, sums core.BlockSums) error {
	var buf bytes.Buffer
	if err := sums.Serialize(&buf); err != nil {
		return fmt.Errorf("sums marshal: %w", err)
	}
	if err := s.db.Put(sumsKey(hash), buf.Bytes()); err != nil {
		return fmt.Errorf("sums put: %w", err)
	}
	return nil
}

// BlockSums retrieves the cumulative sums for a block. Returns
// storage.ErrNotFound when absent.
func (s *Store) BlockSums(hash types.Hash) (core.BlockSums, error) {
	data, err := s.db.Get(sumsKey(hash))
	if err != nil {
		return core.BlockSums{}, err
	}
	sums, err := core.DeserializeBlockSums(bytes.NewReader(data))
	if err != nil {
		return core.BlockSums{}, fmt.Errorf("sums unmarshal: %w", err)
	}
	return sums, nil
}

// PutOutputPosition records where a commitment entered the output MMR.
func (s *Store) PutOutputPosition(commit crypto.Commitment, loc OutputLocation) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], loc.BlockHeight)
	binary.BigEndian.PutUint64(buf[8:], loc.MMRIndex)
	if err := s.db.Put(outPosKey(commit), buf[:]); err != nil {
		return fmt.Errorf("output position put: %w", err)
	}
	return nil
}

// OutputPosition retrieves the MMR location of a commitment. Returns
// storage.ErrNotFound when the commitment is unknown.
func (s *Store) OutputPosition(commit crypto.Commitment) (OutputLocation, error) {
	data, err := s.db.Get(outPosKey(commit))
	if err != nil {
		return OutputLocation{}, err
	}
	if len(data) != 16 {
		return OutputLocation{}, fmt.Errorf("corrupt output position: got %d bytes", len(data))
	}
	return OutputLocation{
		BlockHeight: binary.BigEndian.Uint64(data[:8]),
		MMRIndex:    binary.BigEndian.Uint64(data[8:]),
	}, nil
}

// SetTip stores the active chain tip hash.
func (s *Store) SetTip(hash types.Hash) error {
	if err := s.db.Put(keyTipHash, hash[:]); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	return nil
}

// Tip returns the active chain tip hash. Returns storage.ErrNotFound on a
// fresh database.
func (s *Store) Tip() (types.Hash, error) {
	hashBytes, err := s.db.Get(keyTipHash)
	if err != nil {
		return types.Hash{}, err
	}
	if len(hashBytes) != types.HashSize {
		return types.Hash{}, fmt.Errorf("corrupt tip hash: got %d bytes", len(hashBytes))
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return hash, nil
}

func headerKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixHeader)+types.HashSize)
	copy(key, prefixHeader)
	copy(key[len(prefixHeader):], hash[:])
	return key
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], height)
	return key
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}

func sumsKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixSums)+types.HashSize)
	copy(key, prefixSums)
	copy(key[len(prefixSums):], hash[:])
	return key
}

func outPosKey(commit crypto.Commitment) []byte {
	key := make([]byte, len(prefixOutPos)+crypto.CommitmentSize)
	copy(key, prefixOutPos)
	copy(key[len(prefixOutPos):], commit[:])
	return key
}
