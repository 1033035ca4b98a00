package rpcx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	internalcommon "github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode is a minimal JSON-RPC endpoint whose behavior per method is
// programmable.
type fakeNode struct {
	mu      sync.Mutex
	calls   map[string]int
	handler func(method string, params []json.RawMessage, call int) (any, error)
	server  *httptest.Server
}

func newFakeNode(handler func(method string, params []json.RawMessage, call int) (any, error)) *fakeNode {
	n := &fakeNode{calls: make(map[string]int), handler: handler}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	return n
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	call := n.calls[req.Method]
	n.mu.Unlock()

	result, err := n.handler(req.Method, req.Params, call)

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if err != nil {
		resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) close() {
	n.server.Close()
}

func blockJSON(num uint64, parentHash string) map[string]any {
	return map[string]any{
		"number":        hexutil.EncodeUint64(num),
		"hash":          fmt.Sprintf("0x%064x", num),
		"parentHash":    parentHash,
		"timestamp":     hexutil.EncodeUint64(1000 + num*2),
		"gasUsed":       "0x5208",
		"gasLimit":      "0x1c9c380",
		"baseFeePerGas": "0x6fc23ac00",
		"transactions":  []any{},
	}
}

func testClientConfig(urls []string) config.RPCConfig {
	cfg := config.RPCConfig{
		URLs:           urls,
		MaxRetries:     1,
		RetryDelay:     internalcommon.NewDuration(10 * time.Millisecond),
		RequestTimeout: internalcommon.NewDuration(2 * time.Second),
	}
	return cfg
}

func TestClient_RotatesToHealthyEndpoint(t *testing.T) {
	dead := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		return nil, fmt.Errorf("node down")
	})
	defer dead.close()

	alive := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		return hexutil.EncodeUint64(1234), nil
	})
	defer alive.close()

	client, err := Dial(context.Background(), testClientConfig([]string{dead.server.URL, alive.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	tip, err := client.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1234), tip)
}

func TestClient_ExhaustsAfterAllRounds(t *testing.T) {
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		return nil, fmt.Errorf("persistent failure")
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.LatestBlockNumber(context.Background())
	require.Error(t, err)
	require.True(t, IsExhausted(err))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "eth_blockNumber", exhausted.Method)
	require.Equal(t, 2, exhausted.Rounds) // maxRetries 1 means 2 rounds

	// one endpoint walked once per round
	require.Equal(t, 2, node.callCount("eth_blockNumber"))
}

func TestClient_CancelledContextShortCircuits(t *testing.T) {
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		return nil, fmt.Errorf("failure")
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.LatestBlockNumber(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, node.callCount("eth_blockNumber"))
}

func TestClient_BlockByNumberNotFound(t *testing.T) {
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		return nil, nil // null result, block unknown
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.BlockByNumber(context.Background(), 42, false)
	require.ErrorContains(t, err, "block 42 not found")
}

func TestClient_BlocksByNumbersPartialResults(t *testing.T) {
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		var numArg string
		require.NoError(t, json.Unmarshal(params[0], &numArg))
		num, err := hexutil.DecodeUint64(numArg)
		if err != nil {
			return nil, err
		}
		if num == 11 {
			return nil, fmt.Errorf("pruned")
		}
		return blockJSON(num, fmt.Sprintf("0x%064x", num-1)), nil
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	blocks, err := client.BlocksByNumbers(context.Background(), []uint64{10, 11, 12}, false)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Contains(t, blocks, uint64(10))
	require.Contains(t, blocks, uint64(12))
	require.NotContains(t, blocks, uint64(11))
	require.Equal(t, uint64(10), uint64(blocks[10].Number))
}

func TestClient_BlocksByNumbersAllFailed(t *testing.T) {
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		return nil, fmt.Errorf("down")
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.BlocksByNumbers(context.Background(), []uint64{1, 2}, false)
	require.True(t, IsExhausted(err))
}

func TestClient_ReceiptsByBlocksReliablyCompletes(t *testing.T) {
	// receipts for block 7 fail on the first attempt and succeed afterwards
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		var numArg string
		require.NoError(t, json.Unmarshal(params[0], &numArg))
		num, _ := hexutil.DecodeUint64(numArg)

		if num == 7 && call <= 2 { // 2 attempts in round one (maxRetries 1)
			return nil, fmt.Errorf("flaky")
		}
		return []map[string]any{
			{
				"transactionHash":   fmt.Sprintf("0x%064x", num),
				"gasUsed":           "0x5208",
				"effectiveGasPrice": "0x826299e00",
			},
		}, nil
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	receipts, err := client.ReceiptsByBlocksReliably(context.Background(), []uint64{6, 7})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	require.Len(t, receipts[7], 1)
	require.Equal(t, uint64(21000), uint64(receipts[7][0].GasUsed))
}

func TestClient_ReceiptsByBlocksReliablyRetriesEmptyResults(t *testing.T) {
	// a lagging endpoint answers with a null receipt list before it has the
	// block; only a non-empty answer may satisfy the reliable fetch
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		if call <= 2 {
			return nil, nil // null result, endpoint lagging
		}
		return []map[string]any{
			{
				"transactionHash":   fmt.Sprintf("0x%064x", 5),
				"gasUsed":           "0x5208",
				"effectiveGasPrice": "0x826299e00",
			},
		}, nil
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	receipts, err := client.ReceiptsByBlocksReliably(context.Background(), []uint64{5})
	require.NoError(t, err)
	require.NotEmpty(t, receipts[5])
	require.Equal(t, uint64(21000), uint64(receipts[5][0].GasUsed))
	require.GreaterOrEqual(t, node.callCount("eth_getBlockReceipts"), 3)
}

func TestClient_ReceiptsByBlocksReliablyHonorsCancel(t *testing.T) {
	node := newFakeNode(func(method string, params []json.RawMessage, call int) (any, error) {
		return nil, fmt.Errorf("always down")
	})
	defer node.close()

	client, err := Dial(context.Background(), testClientConfig([]string{node.server.URL}), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err = client.ReceiptsByBlocksReliably(ctx, []uint64{1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial_RequiresEndpoints(t *testing.T) {
	_, err := Dial(context.Background(), config.RPCConfig{}, logger.NewNopLogger())
	require.Error(t, err)
}
