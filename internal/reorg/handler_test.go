package reorg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	internalcommon "github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/db"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/migrations"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func hashOf(tag string) common.Hash {
	return common.BytesToHash([]byte(tag))
}

// fakeChain serves eth_getBlockByNumber from a fixed number-to-hash map.
type fakeChain struct {
	hashes map[uint64]common.Hash
}

func (f *fakeChain) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var numArg string
	json.Unmarshal(req.Params[0], &numArg) //nolint:errcheck
	num, _ := hexutil.DecodeUint64(numArg)

	result := map[string]any{
		"number":       hexutil.EncodeUint64(num),
		"hash":         f.hashes[num].Hex(),
		"parentHash":   f.hashes[num-1].Hex(),
		"timestamp":    hexutil.EncodeUint64(1000 + num),
		"gasUsed":      "0x0",
		"gasLimit":     "0x1c9c380",
		"transactions": []any{},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}) //nolint:errcheck
}

type handlerFixture struct {
	handler *Handler
	blocks  *store.BlockStore
	reorgs  *store.ReorgStore
	cursors *store.CursorStore
	stats   *store.StatsStore
	db      *sql.DB
}

func setupHandler(t *testing.T, chain *fakeChain) *handlerFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, migrations.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	server := httptest.NewServer(http.HandlerFunc(chain.handler))
	t.Cleanup(server.Close)

	rpcClient, err := rpcx.Dial(context.Background(), config.RPCConfig{
		URLs:           []string{server.URL},
		MaxRetries:     1,
		RetryDelay:     internalcommon.NewDuration(time.Millisecond),
		RequestTimeout: internalcommon.NewDuration(2 * time.Second),
	}, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(rpcClient.Close)

	log := logger.NewNopLogger()
	f := &handlerFixture{
		blocks:  store.NewBlockStore(database, log),
		reorgs:  store.NewReorgStore(database, log),
		cursors: store.NewCursorStore(database, log),
		stats:   store.NewStatsStore(database, log),
		db:      database,
	}
	f.handler = NewHandler(f.blocks, f.reorgs, f.cursors, f.stats, rpcClient, log)

	return f
}

func storedBlock(num uint64, hash, parent common.Hash) *store.BlockRow {
	return &store.BlockRow{
		BlockNumber: num,
		Timestamp:   1000 + num,
		BlockHash:   hash,
		ParentHash:  parent,
		GasLimit:    30_000_000,
	}
}

func TestHandler_DepthOneReorg(t *testing.T) {
	chain := &fakeChain{hashes: map[uint64]common.Hash{
		100: hashOf("a100"),
		101: hashOf("a101"),
		102: hashOf("b102"), // chain replaced our 102
	}}
	f := setupHandler(t, chain)

	_, err := f.blocks.InsertBlocks([]*store.BlockRow{
		storedBlock(100, hashOf("a100"), hashOf("a99")),
		storedBlock(101, hashOf("a101"), hashOf("a100")),
		storedBlock(102, hashOf("a102"), hashOf("a101")),
	})
	require.NoError(t, err)
	require.NoError(t, f.stats.Bump(store.TableBlocks, 100, 102, 3))

	ancestor, ancestorHash, err := f.handler.Handle(context.Background(), 102)
	require.NoError(t, err)
	require.Equal(t, uint64(101), ancestor)
	require.Equal(t, hashOf("a101"), ancestorHash)

	// the replaced row is gone from blocks and preserved in the archive
	gone, err := f.blocks.GetBlock(102)
	require.NoError(t, err)
	require.Nil(t, gone)

	archived, err := f.reorgs.ByBlockNumber(102)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, hashOf("a102"), archived[0].BlockHash)
	require.Equal(t, hashOf("b102"), archived[0].ReplacedByHash)

	// the cursor rewound to the ancestor
	cursor, err := f.cursors.Get(store.ServiceBlockIndexer)
	require.NoError(t, err)
	require.Equal(t, uint64(101), cursor.LastPosition)
	require.NotNil(t, cursor.LastHash)
	require.Equal(t, hashOf("a101"), *cursor.LastHash)

	// and the row count reflects the archived block
	stats, err := f.stats.Get(store.TableBlocks)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.TotalCount)
}

func TestHandler_DeepReorg(t *testing.T) {
	chain := &fakeChain{hashes: map[uint64]common.Hash{
		99:  hashOf("a99"),
		100: hashOf("a100"),
		101: hashOf("b101"),
		102: hashOf("b102"),
		103: hashOf("b103"),
	}}
	f := setupHandler(t, chain)

	_, err := f.blocks.InsertBlocks([]*store.BlockRow{
		storedBlock(100, hashOf("a100"), hashOf("a99")),
		storedBlock(101, hashOf("a101"), hashOf("a100")),
		storedBlock(102, hashOf("a102"), hashOf("a101")),
		storedBlock(103, hashOf("a103"), hashOf("a102")),
	})
	require.NoError(t, err)

	ancestor, _, err := f.handler.Handle(context.Background(), 103)
	require.NoError(t, err)
	require.Equal(t, uint64(100), ancestor)

	for _, num := range []uint64{101, 102, 103} {
		gone, err := f.blocks.GetBlock(num)
		require.NoError(t, err)
		require.Nil(t, gone)

		archived, err := f.reorgs.ByBlockNumber(num)
		require.NoError(t, err)
		require.Len(t, archived, 1)
	}

	// the per-block interim rewinds were superseded by the final cursor
	cursor, err := f.cursors.Get(store.ServiceBlockIndexer)
	require.NoError(t, err)
	require.Equal(t, uint64(100), cursor.LastPosition)
	require.NotNil(t, cursor.LastHash)
	require.Equal(t, hashOf("a100"), *cursor.LastHash)
}

func TestHandler_FinalityViolationIsFatal(t *testing.T) {
	chain := &fakeChain{hashes: map[uint64]common.Hash{
		101: hashOf("a101"),
		102: hashOf("b102"),
	}}
	f := setupHandler(t, chain)

	finalized := storedBlock(102, hashOf("a102"), hashOf("a101"))
	finalized.Finalized = true

	_, err := f.blocks.InsertBlocks([]*store.BlockRow{
		storedBlock(101, hashOf("a101"), hashOf("a100")),
		finalized,
	})
	require.NoError(t, err)

	_, _, err = f.handler.Handle(context.Background(), 102)
	require.Error(t, err)
	require.True(t, IsFinalityViolation(err))

	var violation *FinalityViolationError
	require.ErrorAs(t, err, &violation)
	require.Equal(t, uint64(102), violation.BlockNumber)
	require.Equal(t, hashOf("a102"), violation.StoredHash)
	require.Equal(t, hashOf("b102"), violation.ChainHash)

	// the finalized row stays untouched
	got, err := f.blocks.GetBlock(102)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, hashOf("a102"), got.BlockHash)
}

func TestHandler_NoStoredRowFallsThrough(t *testing.T) {
	chain := &fakeChain{hashes: map[uint64]common.Hash{
		50: hashOf("a50"),
	}}
	f := setupHandler(t, chain)

	ancestor, ancestorHash, err := f.handler.Handle(context.Background(), 50)
	require.NoError(t, err)
	require.Equal(t, uint64(50), ancestor)
	require.Equal(t, hashOf("a50"), ancestorHash)
}

func TestFinalityViolationError_Message(t *testing.T) {
	err := &FinalityViolationError{BlockNumber: 7, StoredHash: hashOf("x"), ChainHash: hashOf("y")}
	require.Contains(t, err.Error(), "finalized block 7")
	require.Contains(t, fmt.Sprintf("%v", err), hashOf("x").Hex())
}
