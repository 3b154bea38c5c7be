package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/chain"
	"github.com/shroudnet/shroud-node/internal/storage"
)

// newTestServer runs a REST server over a fresh in-memory chain.
func newTestServer(t *testing.T) (*Server, *chain.Chain) {
	t.Helper()
	ch, err := chain.New(storage.NewMemory(), config.Testnet)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}

	s := New(config.RESTConfig{Addr: "127.0.0.1", Port: 0}, ch, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start rest server: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s, ch
}

func get(t *testing.T, s *Server, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", s.Addr(), path))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestREST_Status(t *testing.T) {
	s, ch := newTestServer(t)

	var status statusResponse
	if code := get(t, s, "/v1/status", &status); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if status.Height != 0 {
		t.Errorf("fresh chain height should be 0, got %d", status.Height)
	}
	if status.TipHash != ch.Tip().Hash().String() {
		t.Error("status tip should match the chain tip")
	}
}

func TestREST_HeaderByHeight(t *testing.T) {
	s, ch := newTestServer(t)

	var header struct {
		Height uint64 `json:"height"`
	}
	if code := get(t, s, "/v1/headers/0", &header); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if header.Height != 0 {
		t.Errorf("want genesis header, got height %d", header.Height)
	}

	// The same header resolves by hash.
	path := "/v1/headers/" + ch.Tip().Hash().String()
	if code := get(t, s, path, &header); code != http.StatusOK {
		t.Fatalf("by hash: status code %d", code)
	}
}

func TestREST_UnknownHeaderIs404(t *testing.T) {
	s, _ := newTestServer(t)

	code := get(t, s, "/v1/headers/99", nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown height should 404, got %d", code)
	}

	code = get(t, s, "/v1/headers/"+
		"00000000000000000000000000000000000000000000000000000000000000ff", nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown hash should 404, got %d", code)
	}
}

func TestREST_BadHeaderIDIs400(t *testing.T) {
	s, _ := newTestServer(t)
	if code := get(t, s, "/v1/headers/not-a-thing", nil); code != http.StatusBadRequest {
		t.Errorf("junk id should 400, got %d", code)
	}
}

func TestREST_BlockByHeight(t *testing.T) {
	s, _ := newTestServer(t)

	var block struct {
		Header struct {
			Height uint64 `json:"height"`
		} `json:"header"`
	}
	if code := get(t, s, "/v1/blocks/0", &block); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if block.Header.Height != 0 {
		t.Errorf("want the genesis block, got height %d", block.Header.Height)
	}
}

func TestREST_Roots(t *testing.T) {
	s, ch := newTestServer(t)

	var roots struct {
		Output string `json:"output_root"`
		Kernel string `json:"kernel_root"`
	}
	if code := get(t, s, "/v1/txhashset/roots", &roots); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if roots.Output != ch.Tip().OutputRoot.String() {
		t.Error("served output root should match the tip header")
	}
	if roots.Kernel != ch.Tip().KernelRoot.String() {
		t.Error("served kernel root should match the tip header")
	}
}

func TestREST_LastKernels(t *testing.T) {
	s, _ := newTestServer(t)

	var kernels []string
	if code := get(t, s, "/v1/txhashset/lastkernels?n=5", &kernels); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if len(kernels) != 1 {
		t.Errorf("genesis chain has 1 kernel leaf, got %d", len(kernels))
	}
}

func TestREST_ExplorerBlockInfo(t *testing.T) {
	s, _ := newTestServer(t)

	var info blockInfoResponse
	if code := get(t, s, "/v1/explorer/blockinfo/0", &info); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if info.NumOutputs != 1 || info.NumKernels != 1 {
		t.Errorf("genesis has 1 output and 1 kernel, got %d/%d", info.NumOutputs, info.NumKernels)
	}
}

func TestREST_PeersEmptyWithoutP2P(t *testing.T) {
	s, _ := newTestServer(t)

	var peers []peerResponse
	if code := get(t, s, "/v1/peers/connected", &peers); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if len(peers) != 0 {
		t.Errorf("want no peers, got %d", len(peers))
	}
}
