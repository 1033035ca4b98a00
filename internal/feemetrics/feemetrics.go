// Package feemetrics computes per-block gas and priority-fee metrics.
// Everything here is pure: no RPC, no store, no clocks. Intermediate sums use
// big.Int because priorityFeePerGas * gasUsed can exceed 64 bits; conversion
// to fractional gwei happens only at the boundary.
package feemetrics

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
)

// Summary holds priority-fee-per-gas statistics over a block's transactions,
// in gwei. AvgGwei and TotalGwei are weighted by receipt gasUsed and are nil
// unless gas-used data was available for every transaction.
type Summary struct {
	MinGwei    float64
	MaxGwei    float64
	MedianGwei float64
	AvgGwei    *float64
	TotalGwei  *float64
}

// BlockMetrics is the full set of computed per-block metrics.
type BlockMetrics struct {
	BaseFeeGwei  float64
	Priority     *Summary
	BlockTimeSec *float64
	MgasPerSec   *float64
	TPS          *float64
}

// ComputeBlock derives metrics for a block. gasUsedByTx maps transaction hash
// to receipt gasUsed; the weighted average and total are set only when every
// transaction has an entry. Using the gas limit instead of gas used here would
// silently overstate fees, so there is deliberately no fallback.
// prevTimestamp of 0 means the previous block's timestamp is unknown.
func ComputeBlock(b *rpcx.Block, gasUsedByTx map[common.Hash]uint64, prevTimestamp uint64) BlockMetrics {
	baseFee := baseFeeOf(b)

	metrics := BlockMetrics{
		BaseFeeGwei: internalcommon.WeiToGwei(baseFee),
	}

	if len(b.Transactions) > 0 {
		fees := make([]*big.Int, len(b.Transactions))
		gasUsed := make([]uint64, len(b.Transactions))
		complete := gasUsedByTx != nil

		for i, tx := range b.Transactions {
			fees[i] = priorityFeeWei(&tx, baseFee)
			if used, ok := gasUsedByTx[tx.Hash]; ok {
				gasUsed[i] = used
			} else {
				complete = false
			}
		}

		if !complete {
			gasUsed = nil
		}
		metrics.Priority = summarize(fees, gasUsed)
	}

	if prevTimestamp > 0 && uint64(b.Timestamp) > prevTimestamp {
		blockTime := float64(uint64(b.Timestamp) - prevTimestamp)
		mgas := float64(uint64(b.GasUsed)) / blockTime / 1e6
		tps := float64(len(b.Transactions)) / blockTime

		metrics.BlockTimeSec = &blockTime
		metrics.MgasPerSec = &mgas
		metrics.TPS = &tps
	}

	return metrics
}

// ComputeReceipts derives priority-fee metrics from receipts alone:
// priorityFeePerGas = max(0, effectiveGasPrice - baseFee). Receipts always
// carry gasUsed, so the weighted average and total are always set when any
// receipts are present.
func ComputeReceipts(receipts []rpcx.Receipt, baseFee *big.Int) *Summary {
	if len(receipts) == 0 {
		return nil
	}

	fees := make([]*big.Int, len(receipts))
	gasUsed := make([]uint64, len(receipts))

	for i, r := range receipts {
		fee := new(big.Int)
		if r.EffectiveGasPrice != nil {
			fee.Set(r.EffectiveGasPrice.ToInt())
			if baseFee != nil {
				fee.Sub(fee, baseFee)
			}
			if fee.Sign() < 0 {
				fee.SetUint64(0)
			}
		}
		fees[i] = fee
		gasUsed[i] = uint64(r.GasUsed)
	}

	return summarize(fees, gasUsed)
}

// summarize computes min/max/median over the fee values and, when gasUsed is
// non-nil, the gas-weighted total and average.
func summarize(fees []*big.Int, gasUsed []uint64) *Summary {
	if len(fees) == 0 {
		return nil
	}

	sorted := make([]*big.Int, len(fees))
	copy(sorted, fees)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})

	s := &Summary{
		MinGwei:    internalcommon.WeiToGwei(sorted[0]),
		MaxGwei:    internalcommon.WeiToGwei(sorted[len(sorted)-1]),
		MedianGwei: medianGwei(sorted),
	}

	if gasUsed != nil {
		totalWei := new(big.Int)
		var sumGas uint64
		for i, fee := range fees {
			weighted := new(big.Int).Mul(fee, new(big.Int).SetUint64(gasUsed[i]))
			totalWei.Add(totalWei, weighted)
			sumGas += gasUsed[i]
		}

		totalGwei := internalcommon.WeiToGwei(totalWei)
		s.TotalGwei = &totalGwei

		avgGwei := 0.0
		if sumGas > 0 {
			avgGwei = totalGwei / float64(sumGas)
		}
		s.AvgGwei = &avgGwei
	}

	return s
}

// medianGwei returns the median of the ascending fee values; for even counts
// it is the arithmetic mean of the two middles.
func medianGwei(sorted []*big.Int) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return internalcommon.WeiToGwei(sorted[mid])
	}
	low := internalcommon.WeiToGwei(sorted[mid-1])
	high := internalcommon.WeiToGwei(sorted[mid])
	return (low + high) / 2
}

// priorityFeeWei derives a transaction's priority fee per gas. Dynamic-fee
// transactions declare it; legacy transactions pay gasPrice, of which only the
// part above base fee is priority. When the base fee is zero (pre-EIP-1559
// regime) the full gas price counts as priority.
func priorityFeeWei(tx *rpcx.Transaction, baseFee *big.Int) *big.Int {
	if tx.MaxPriorityFeePerGas != nil {
		return new(big.Int).Set(tx.MaxPriorityFeePerGas.ToInt())
	}

	if tx.GasPrice != nil {
		gasPrice := tx.GasPrice.ToInt()
		if baseFee == nil || baseFee.Sign() == 0 {
			return new(big.Int).Set(gasPrice)
		}
		fee := new(big.Int).Sub(gasPrice, baseFee)
		if fee.Sign() < 0 {
			fee.SetUint64(0)
		}
		return fee
	}

	return new(big.Int)
}

func baseFeeOf(b *rpcx.Block) *big.Int {
	if b.BaseFeePerGas == nil {
		return nil
	}
	return b.BaseFeePerGas.ToInt()
}
