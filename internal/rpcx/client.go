package rpcx

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
)

// Client is a fault-tolerant execution-layer JSON-RPC client over an ordered
// pool of endpoints. Every call walks the pool once per round, starting from a
// rotating index, and sleeps a fixed delay between rounds. Endpoints are
// treated as uniformly lossy; there is no exponential backoff here.
type Client struct {
	endpoints  []*endpoint
	maxRetries int
	retryDelay time.Duration
	reqTimeout time.Duration
	next       atomic.Uint64
	log        *logger.Logger
}

type endpoint struct {
	url string
	rpc *rpc.Client
}

// Dial connects to every configured endpoint. Dialing over HTTP is lazy in
// go-ethereum, so unreachable endpoints surface on first use, not here.
func Dial(ctx context.Context, cfg config.RPCConfig, log *logger.Logger) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("rpc client requires at least one endpoint")
	}

	endpoints := make([]*endpoint, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			for _, ep := range endpoints {
				ep.rpc.Close()
			}
			return nil, fmt.Errorf("failed to dial %s: %w", url, err)
		}
		endpoints = append(endpoints, &endpoint{url: url, rpc: rpcClient})
	}

	c := &Client{
		endpoints:  endpoints,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay.Duration,
		reqTimeout: cfg.RequestTimeout.Duration,
		log:        log,
	}

	c.log.Infof("rpc client initialized: endpoints=%d max_retries=%d retry_delay=%s",
		len(endpoints), cfg.MaxRetries, cfg.RetryDelay.Duration)

	return c, nil
}

// Close closes all endpoint connections.
func (c *Client) Close() {
	for _, ep := range c.endpoints {
		ep.rpc.Close()
	}
}

// EndpointCount returns the size of the endpoint pool. Batch sizes scale with
// it to keep per-endpoint load uniform.
func (c *Client) EndpointCount() int {
	return len(c.endpoints)
}

// rotate returns the next starting index for a round-robin walk of the pool.
func (c *Client) rotate() int {
	return int(c.next.Add(1)-1) % len(c.endpoints)
}

// call performs a single logical RPC call with endpoint rotation and bounded,
// fixed-cadence retry. Cancellation aborts immediately with the context error.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return c.callFrom(ctx, c.rotate(), result, method, args...)
}

// callFrom is call with an explicit starting endpoint index, used by the
// fan-out paths to spread concurrent requests across the pool.
func (c *Client) callFrom(ctx context.Context, start int, result any, method string, args ...any) error {
	rounds := c.maxRetries + 1
	var lastErr error

	for round := 0; round < rounds; round++ {
		for k := range c.endpoints {
			if err := ctx.Err(); err != nil {
				return err
			}

			ep := c.endpoints[(start+k)%len(c.endpoints)]

			attemptCtx, cancel := context.WithTimeout(ctx, c.reqTimeout)
			err := ep.rpc.CallContext(attemptCtx, result, method, args...)
			cancel()

			if err == nil {
				requestsInc(method, "success")
				return nil
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			lastErr = fmt.Errorf("%s: %w", ep.url, err)
			requestsInc(method, "error")
			rotationsInc(method)
			c.log.Debugf("rpc call failed, rotating: method=%s endpoint=%s err=%v", method, ep.url, err)
		}

		if round < rounds-1 {
			retriesInc(method)
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	exhaustedInc(method)
	return &ExhaustedError{Method: method, Rounds: rounds, LastErr: lastErr}
}

// LatestBlockNumber returns the current chain tip number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// BlockByNumber fetches a single block, optionally with full transactions.
func (c *Client) BlockByNumber(ctx context.Context, blockNum uint64, withTxs bool) (*Block, error) {
	var result *Block
	if err := c.call(ctx, &result, "eth_getBlockByNumber", toBlockNumArg(blockNum), withTxs); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("block %d not found", blockNum)
	}
	return result, nil
}

// ReceiptsByBlock fetches all receipts of a block in one call.
func (c *Client) ReceiptsByBlock(ctx context.Context, blockNum uint64) ([]Receipt, error) {
	var result []Receipt
	if err := c.call(ctx, &result, "eth_getBlockReceipts", toBlockNumArg(blockNum)); err != nil {
		return nil, err
	}
	return result, nil
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return hexutil.EncodeUint64(blockNum)
}
