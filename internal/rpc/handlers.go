package rpc

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shroudnet/shroud-node/internal/p2p"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// lastLeafLimit caps the "last N" txhashset queries.
const lastLeafLimit = 10

// statusResponse is the /v1/status payload.
type statusResponse struct {
	ProtocolVersion uint32 `json:"protocol_version"`
	Height          uint64 `json:"height"`
	TotalDifficulty uint64 `json:"total_difficulty"`
	TipHash         string `json:"tip_hash"`
	PeerCount       int    `json:"peer_count"`
}

// chainResponse is the /v1/chain payload.
type chainResponse struct {
	Height          uint64 `json:"height"`
	TipHash         string `json:"tip_hash"`
	PreviousHash    string `json:"previous_hash"`
	TotalDifficulty uint64 `json:"total_difficulty"`
}

// peerResponse describes one peer.
type peerResponse struct {
	Addr            string `json:"addr"`
	UserAgent       string `json:"user_agent"`
	Capabilities    uint32 `json:"capabilities"`
	Version         uint32 `json:"version,omitempty"`
	TotalDifficulty uint64 `json:"total_difficulty,omitempty"`
	Height          uint64 `json:"height,omitempty"`
	LastSeen        int64  `json:"last_seen,omitempty"`
	Direction       string `json:"direction,omitempty"`
	Banned          bool   `json:"banned"`
	BanReason       string `json:"ban_reason,omitempty"`
}

// outputResponse describes one output with its location.
type outputResponse struct {
	Commit   string `json:"commit"`
	Features string `json:"features"`
	Height   uint64 `json:"height"`
	MMRIndex uint64 `json:"mmr_index"`
}

// blockInfoResponse is the explorer payload: header plus body tallies.
type blockInfoResponse struct {
	Header     core.Header `json:"header"`
	Hash       string      `json:"hash"`
	NumInputs  int         `json:"num_inputs"`
	NumOutputs int         `json:"num_outputs"`
	NumKernels int         `json:"num_kernels"`
	TotalFees  uint64      `json:"total_fees"`
	Weight     uint64      `json:"weight"`
	Age        string      `json:"age"`
}

func (s *Server) handleStatus(_ map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	tip := s.chain.Tip()
	resp := statusResponse{
		ProtocolVersion: 2,
		Height:          tip.Height,
		TotalDifficulty: tip.TotalDifficulty,
		TipHash:         tip.Hash().String(),
	}
	if s.p2pServer != nil {
		resp.PeerCount = s.p2pServer.ConnectionCount()
	}
	return resp, nil
}

func (s *Server) handleChain(_ map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	tip := s.chain.Tip()
	return chainResponse{
		Height:          tip.Height,
		TipHash:         tip.Hash().String(),
		PreviousHash:    tip.Previous.String(),
		TotalDifficulty: tip.TotalDifficulty,
	}, nil
}

// resolveHeader resolves a {hash|height|commit} path segment to a header.
func (s *Server) resolveHeader(id string) (*core.Header, *handlerError) {
	// 64 hex chars: block hash.
	if len(id) == 2*types.HashSize {
		hash, err := types.HexToHash(id)
		if err != nil {
			return nil, badRequest("invalid hash %q", id)
		}
		h, err := s.chain.Store().Header(hash)
		if err != nil {
			return nil, asHandlerError(err)
		}
		return h, nil
	}

	// 66 hex chars: output commitment; resolve via its position.
	if len(id) == 2*crypto.CommitmentSize {
		commit, hErr := parseCommit(id)
		if hErr != nil {
			return nil, hErr
		}
		loc, err := s.chain.Store().OutputPosition(commit)
		if err != nil {
			return nil, asHandlerError(err)
		}
		h, err := s.chain.Store().HeaderByHeight(loc.BlockHeight)
		if err != nil {
			return nil, asHandlerError(err)
		}
		return h, nil
	}

	// Otherwise: a decimal height.
	height, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, badRequest("%q is not a hash, commitment, or height", id)
	}
	h, err := s.chain.Store().HeaderByHeight(height)
	if err != nil {
		return nil, asHandlerError(err)
	}
	return h, nil
}

func (s *Server) handleHeader(routeParams map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	return s.resolveHeader(routeParams["id"])
}

func (s *Server) handleBlock(routeParams map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	h, hErr := s.resolveHeader(routeParams["id"])
	if hErr != nil {
		return nil, hErr
	}
	b, err := s.chain.Store().Block(h.Hash())
	if err != nil {
		return nil, asHandlerError(err)
	}
	return b, nil
}

func (s *Server) handleBlockInfo(routeParams map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	h, hErr := s.resolveHeader(routeParams["id"])
	if hErr != nil {
		return nil, hErr
	}
	b, err := s.chain.Store().Block(h.Hash())
	if err != nil {
		return nil, asHandlerError(err)
	}
	fees, err := core.SumFees(b.Body.Kernels)
	if err != nil {
		return nil, internalErr(err)
	}
	return blockInfoResponse{
		Header:     b.Header,
		Hash:       b.Hash().String(),
		NumInputs:  len(b.Body.Inputs),
		NumOutputs: len(b.Body.Outputs),
		NumKernels: len(b.Body.Kernels),
		TotalFees:  fees,
		Weight:     b.Body.Weight(),
		Age:        time.Since(time.Unix(b.Header.Timestamp, 0)).Truncate(time.Second).String(),
	}, nil
}

func (s *Server) handleOutputsByIDs(_ map[string]string, query map[string][]string) (interface{}, *handlerError) {
	var ids []string
	for _, raw := range query["id"] {
		for _, part := range strings.Split(raw, ",") {
			if part != "" {
				ids = append(ids, part)
			}
		}
	}
	if len(ids) == 0 {
		return nil, badRequest("no output ids given")
	}

	var outputs []outputResponse
	for _, id := range ids {
		commit, hErr := parseCommit(id)
		if hErr != nil {
			return nil, hErr
		}
		loc, err := s.chain.Store().OutputPosition(commit)
		if err != nil {
			continue // Unknown outputs are omitted, not an error.
		}
		outputs = append(outputs, outputResponse{
			Commit:   commit.String(),
			Height:   loc.BlockHeight,
			MMRIndex: loc.MMRIndex,
		})
	}
	return outputs, nil
}

func (s *Server) handleOutputsByHeight(_ map[string]string, query map[string][]string) (interface{}, *handlerError) {
	start, hErr := queryUint(query, "start_height", 0)
	if hErr != nil {
		return nil, hErr
	}
	end, hErr := queryUint(query, "end_height", s.chain.Height())
	if hErr != nil {
		return nil, hErr
	}
	if end < start {
		return nil, badRequest("end_height %d before start_height %d", end, start)
	}
	if end-start >= 100 {
		end = start + 99
	}

	var outputs []outputResponse
	for height := start; height <= end; height++ {
		b, err := s.chain.BlockByHeight(height)
		if err != nil {
			break
		}
		for i := range b.Body.Outputs {
			out := &b.Body.Outputs[i]
			loc, err := s.chain.Store().OutputPosition(out.Commitment)
			if err != nil {
				continue
			}
			features := "plain"
			if out.IsCoinbase() {
				features = "coinbase"
			}
			outputs = append(outputs, outputResponse{
				Commit:   out.Commitment.String(),
				Features: features,
				Height:   loc.BlockHeight,
				MMRIndex: loc.MMRIndex,
			})
		}
	}
	return outputs, nil
}

func (s *Server) handleAllPeers(_ map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	if s.p2pServer == nil {
		return []peerResponse{}, nil
	}
	records, err := s.p2pServer.PeerStore().LoadAll()
	if err != nil {
		return nil, internalErr(err)
	}
	out := make([]peerResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, peerResponse{
			Addr:         rec.Addr,
			UserAgent:    rec.UserAgent,
			Capabilities: uint32(rec.Capabilities),
			LastSeen:     rec.LastSeen,
		})
	}
	return out, nil
}

func (s *Server) handleConnectedPeers(_ map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	if s.p2pServer == nil {
		return []peerResponse{}, nil
	}
	conns := s.p2pServer.Connections()
	out := make([]peerResponse, 0, len(conns))
	for _, c := range conns {
		direction := "outbound"
		if c.Peer().Direction == p2p.Inbound {
			direction = "inbound"
		}
		out = append(out, peerResponse{
			Addr:            c.Addr(),
			UserAgent:       c.Peer().UserAgent,
			Capabilities:    uint32(c.Peer().Capabilities),
			Version:         c.Version(),
			TotalDifficulty: c.TotalDifficulty(),
			Height:          c.Height(),
			LastSeen:        c.LastActivity().Unix(),
			Direction:       direction,
		})
	}
	return out, nil
}

func (s *Server) handlePeer(routeParams map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	addr := routeParams["addr"]
	if s.p2pServer == nil {
		return nil, notFound("peer %q not known", addr)
	}

	resp := peerResponse{Addr: addr}
	rec, err := s.p2pServer.PeerStore().Load(addr)
	if err == nil {
		resp.UserAgent = rec.UserAgent
		resp.Capabilities = uint32(rec.Capabilities)
		resp.LastSeen = rec.LastSeen
	}

	banned := false
	for _, ban := range s.p2pServer.BanManager().BanList() {
		if ban.Addr == addr || strings.HasPrefix(addr, ban.Addr+":") {
			banned = true
			resp.BanReason = ban.Reason.String()
			break
		}
	}
	resp.Banned = banned

	if err != nil && !banned {
		return nil, notFound("peer %q not known", addr)
	}
	return resp, nil
}

func (s *Server) handleRoots(_ map[string]string, _ map[string][]string) (interface{}, *handlerError) {
	return s.chain.View().Roots(), nil
}

func (s *Server) handleLastOutputs(_ map[string]string, query map[string][]string) (interface{}, *handlerError) {
	n, hErr := queryUint(query, "n", lastLeafLimit)
	if hErr != nil {
		return nil, hErr
	}
	return s.chain.View().LastOutputs(n), nil
}

func (s *Server) handleLastKernels(_ map[string]string, query map[string][]string) (interface{}, *handlerError) {
	n, hErr := queryUint(query, "n", lastLeafLimit)
	if hErr != nil {
		return nil, hErr
	}
	return s.chain.View().LastKernels(n), nil
}

func (s *Server) handleLastRangeProofs(_ map[string]string, query map[string][]string) (interface{}, *handlerError) {
	n, hErr := queryUint(query, "n", lastLeafLimit)
	if hErr != nil {
		return nil, hErr
	}
	return s.chain.View().LastRangeProofs(n), nil
}

func (s *Server) handleTxHashSetOutputs(_ map[string]string, query map[string][]string) (interface{}, *handlerError) {
	outputSize, kernelSize := s.chain.View().Sizes()
	return map[string]uint64{
		"output_mmr_size": outputSize,
		"kernel_mmr_size": kernelSize,
	}, nil
}

// parseCommit parses a 33-byte hex commitment.
func parseCommit(s string) (crypto.Commitment, *handlerError) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != crypto.CommitmentSize {
		return crypto.Commitment{}, badRequest("invalid commitment %q", s)
	}
	var c crypto.Commitment
	copy(c[:], raw)
	return c, nil
}

// queryUint reads a single unsigned query parameter with a default.
func queryUint(query map[string][]string, key string, def uint64) (uint64, *handlerError) {
	vals := query[key]
	if len(vals) == 0 {
		return def, nil
	}
	n, err := strconv.ParseUint(vals[0], 10, 64)
	if err != nil {
		return 0, badRequest("invalid %q parameter: %v", key, err)
	}
	return n, nil
}
