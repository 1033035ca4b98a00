package enricher

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/stretchr/testify/require"
)

func gwei(n int64) *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000)))
}

func target(num uint64, txCount int, baseFeeGwei int64) Target {
	block := &rpcx.Block{
		Number:        hexutil.Uint64(num),
		BaseFeePerGas: gwei(baseFeeGwei),
	}
	for i := 0; i < txCount; i++ {
		block.Transactions = append(block.Transactions, rpcx.Transaction{
			Hash: common.BigToHash(big.NewInt(int64(num)*100 + int64(i))),
		})
	}
	return Target{Block: block, Row: &store.BlockRow{BlockNumber: num, TxCount: txCount}}
}

func TestApply_OverlaysReceiptMetrics(t *testing.T) {
	e := New(nil, logger.NewNopLogger())

	targets := []Target{target(10, 1, 30)}
	receipts := map[uint64][]rpcx.Receipt{
		10: {{GasUsed: 21000, EffectiveGasPrice: gwei(35)}},
	}

	updated := e.Apply(targets, receipts)
	require.Equal(t, 1, updated)

	row := targets[0].Row
	require.Equal(t, 5.0, *row.MinPriorityFeeGwei)
	require.Equal(t, 5.0, *row.MaxPriorityFeeGwei)
	require.Equal(t, 5.0, *row.MedianPriorityFeeGwei)
	require.NotNil(t, row.AvgPriorityFeeGwei)
	require.Equal(t, 5.0, *row.AvgPriorityFeeGwei)
	require.NotNil(t, row.TotalPriorityFeeGwei)
	require.Equal(t, 105000.0, *row.TotalPriorityFeeGwei)
}

func TestApply_ReplacesTransactionDerivedMetrics(t *testing.T) {
	e := New(nil, logger.NewNopLogger())

	tgt := target(11, 1, 30)
	stale := 99.0
	tgt.Row.MinPriorityFeeGwei = &stale
	tgt.Row.MaxPriorityFeeGwei = &stale

	receipts := map[uint64][]rpcx.Receipt{
		11: {{GasUsed: 21000, EffectiveGasPrice: gwei(32)}},
	}

	updated := e.Apply([]Target{tgt}, receipts)
	require.Equal(t, 1, updated)
	require.Equal(t, 2.0, *tgt.Row.MinPriorityFeeGwei)
	require.Equal(t, 2.0, *tgt.Row.MaxPriorityFeeGwei)
}

func TestApply_SkipsRowsWithoutReceipts(t *testing.T) {
	e := New(nil, logger.NewNopLogger())

	withReceipts := target(20, 1, 30)
	without := target(21, 1, 30)

	receipts := map[uint64][]rpcx.Receipt{
		20: {{GasUsed: 21000, EffectiveGasPrice: gwei(31)}},
	}

	updated := e.Apply([]Target{withReceipts, without}, receipts)
	require.Equal(t, 1, updated)

	require.NotNil(t, withReceipts.Row.AvgPriorityFeeGwei)
	require.Nil(t, without.Row.AvgPriorityFeeGwei)
	require.Nil(t, without.Row.TotalPriorityFeeGwei)
}

func TestApply_EmptyReceiptListIsNoop(t *testing.T) {
	e := New(nil, logger.NewNopLogger())

	tgt := target(30, 1, 30)
	updated := e.Apply([]Target{tgt}, map[uint64][]rpcx.Receipt{30: {}})
	require.Equal(t, 0, updated)
	require.Nil(t, tgt.Row.MinPriorityFeeGwei)
}

func TestEnrichReliably_NoTxBearingTargets(t *testing.T) {
	e := New(nil, logger.NewNopLogger())

	// empty blocks never touch the RPC pool
	err := e.EnrichReliably(context.Background(), []Target{target(40, 0, 30)})
	require.NoError(t, err)
}
