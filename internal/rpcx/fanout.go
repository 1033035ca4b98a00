package rpcx

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// reliableBackoff is the pause between reliable fan-out rounds.
const reliableBackoff = 500 * time.Millisecond

// BlocksByNumbers fetches many blocks concurrently, assigning request i to
// endpoint (start+i) mod E with independent retry state per request. Blocks
// that could not be fetched are absent from the result; an ExhaustedError is
// returned only when every single request failed.
func (c *Client) BlocksByNumbers(ctx context.Context, blockNums []uint64, withTxs bool) (map[uint64]*Block, error) {
	if len(blockNums) == 0 {
		return map[uint64]*Block{}, nil
	}

	var (
		mu      sync.Mutex
		results = make(map[uint64]*Block, len(blockNums))
		lastErr error
	)

	start := c.rotate()
	var g errgroup.Group

	for i, blockNum := range blockNums {
		epIndex := (start + i) % len(c.endpoints)
		g.Go(func() error {
			var block *Block
			err := c.callFrom(ctx, epIndex, &block, "eth_getBlockByNumber", toBlockNumArg(blockNum), withTxs)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || block == nil {
				lastErr = err
				return nil //nolint:nilerr // per-request failures are tolerated
			}
			results[blockNum] = block
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExhaustedError{Method: "eth_getBlockByNumber", Rounds: c.maxRetries + 1, LastErr: lastErr}
	}

	return results, nil
}

// ReceiptsByBlocks fetches receipts for many blocks concurrently with the same
// partial-result semantics as BlocksByNumbers.
func (c *Client) ReceiptsByBlocks(ctx context.Context, blockNums []uint64) (map[uint64][]Receipt, error) {
	if len(blockNums) == 0 {
		return map[uint64][]Receipt{}, nil
	}

	var (
		mu      sync.Mutex
		results = make(map[uint64][]Receipt, len(blockNums))
		lastErr error
	)

	start := c.rotate()
	var g errgroup.Group

	for i, blockNum := range blockNums {
		epIndex := (start + i) % len(c.endpoints)
		g.Go(func() error {
			var receipts []Receipt
			err := c.callFrom(ctx, epIndex, &receipts, "eth_getBlockReceipts", toBlockNumArg(blockNum))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil //nolint:nilerr // per-request failures are tolerated
			}
			results[blockNum] = receipts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExhaustedError{Method: "eth_getBlockReceipts", Rounds: c.maxRetries + 1, LastErr: lastErr}
	}

	return results, nil
}

// ReceiptsByBlocksReliably keeps fanning out for the still-missing blocks until
// every requested block has receipts or the context fires. Each round starts
// from a fresh rotation index so a chronically slow endpoint is not pinned to
// the same block numbers. Used by live ingestion, where partial receipt data
// is unacceptable.
func (c *Client) ReceiptsByBlocksReliably(ctx context.Context, blockNums []uint64) (map[uint64][]Receipt, error) {
	results := make(map[uint64][]Receipt, len(blockNums))

	for round := 0; ; round++ {
		missing := make([]uint64, 0, len(blockNums))
		for _, n := range blockNums {
			if _, ok := results[n]; !ok {
				missing = append(missing, n)
			}
		}
		if len(missing) == 0 {
			return results, nil
		}

		if round > 0 {
			reliableRoundsInc()
			c.log.Debugf("reliable receipt fetch retrying: round=%d missing=%d", round, len(missing))
			select {
			case <-time.After(reliableBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		fetched, err := c.ReceiptsByBlocks(ctx, missing)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// the pool was exhausted for this round; loop and retry
			continue
		}

		for n, receipts := range fetched {
			// Callers only request tx-bearing blocks, so a null or empty
			// result is a lagging endpoint, not an answer. Keep the block
			// in the missing set and retry it next round.
			if len(receipts) == 0 {
				continue
			}
			results[n] = receipts
		}
	}
}
