package reorg

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// FinalityViolationError means a reorg crossed into a finalized block: the
// chain's hash for a block number disagrees with a stored row that a milestone
// already covers. The stored data can no longer be trusted, so this error is
// fatal and the process exits for operator intervention.
type FinalityViolationError struct {
	BlockNumber uint64
	StoredHash  common.Hash
	ChainHash   common.Hash
}

func (e *FinalityViolationError) Error() string {
	return fmt.Sprintf(
		"reorg crossed finalized block %d: stored hash %s, chain hash %s",
		e.BlockNumber, e.StoredHash.Hex(), e.ChainHash.Hex(),
	)
}

// IsFinalityViolation reports whether err is a FinalityViolationError.
func IsFinalityViolation(err error) bool {
	var fv *FinalityViolationError
	return errors.As(err, &fv)
}
