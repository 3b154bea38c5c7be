package p2p

import (
	"time"

	klog "github.com/shroudnet/shroud-node/internal/log"
)

// syncInterval is how often the sync loop re-evaluates whether a peer has
// more work than we do.
const syncInterval = 30 * time.Second

// syncLoop drives header-first synchronization: whenever some peer
// advertises more cumulative work than our tip, ask the best such peer for
// the headers that follow our locator. Block requests follow from the
// processor as header batches arrive.
func (s *Server) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.requestHeadersIfBehind()
		}
	}
}

// requestHeadersIfBehind picks the most-work peer ahead of us and asks it
// for headers.
func (s *Server) requestHeadersIfBehind() {
	ours := s.chain.TotalDifficulty()

	var best *Conn
	var bestDiff uint64
	for _, c := range s.Connections() {
		if diff := c.TotalDifficulty(); diff > ours && diff > bestDiff {
			best, bestDiff = c, diff
		}
	}
	if best == nil {
		return
	}

	klog.Sync.Debug().
		Str("peer", best.Addr()).
		Uint64("their_diff", bestDiff).
		Uint64("our_diff", ours).
		Msg("Requesting headers from most-work peer")
	best.AddToSendQueue(&GetHeaders{Locator: s.chain.Locator()})
}
