// Package chain implements the block validator and the persistent chain
// store: headers, full blocks, cumulative block sums, and output positions.
package chain

import "errors"

// Error kinds surfaced by the validator and store. The distinction matters
// to callers: BadData condemns the artifact (and the peer it came from),
// ChainMissingData is transient during sync and only asks for orchestration.
var (
	// ErrBadData marks a block or body that violates a consensus rule.
	ErrBadData = errors.New("consensus rule violated")

	// ErrChainMissingData marks a referenced ancestor or its sums as not
	// yet present.
	ErrChainMissingData = errors.New("chain data missing")
)
