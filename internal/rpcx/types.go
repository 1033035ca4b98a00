package rpcx

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is the wire shape of eth_getBlockByNumber, reduced to the fields the
// ingestion engine consumes.
type Block struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          common.Hash    `json:"hash"`
	ParentHash    common.Hash    `json:"parentHash"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	GasUsed       hexutil.Uint64 `json:"gasUsed"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
	Transactions  []Transaction  `json:"-"`
}

// blockAlias mirrors Block with raw transactions, so UnmarshalJSON can accept
// both tx objects (withTxs=true) and bare tx hashes (withTxs=false).
type blockAlias struct {
	Number        hexutil.Uint64    `json:"number"`
	Hash          common.Hash       `json:"hash"`
	ParentHash    common.Hash       `json:"parentHash"`
	Timestamp     hexutil.Uint64    `json:"timestamp"`
	GasUsed       hexutil.Uint64    `json:"gasUsed"`
	GasLimit      hexutil.Uint64    `json:"gasLimit"`
	BaseFeePerGas *hexutil.Big      `json:"baseFeePerGas"`
	Transactions  []json.RawMessage `json:"transactions"`
}

// UnmarshalJSON decodes a block whose transactions field holds either full
// transaction objects or plain hashes. Hash entries are counted but not
// materialized.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw blockAlias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Number = raw.Number
	b.Hash = raw.Hash
	b.ParentHash = raw.ParentHash
	b.Timestamp = raw.Timestamp
	b.GasUsed = raw.GasUsed
	b.GasLimit = raw.GasLimit
	b.BaseFeePerGas = raw.BaseFeePerGas
	b.Transactions = make([]Transaction, 0, len(raw.Transactions))

	for _, entry := range raw.Transactions {
		if len(entry) == 0 || entry[0] != '{' {
			// tx hash only; record the count via a placeholder-free skip
			var hash common.Hash
			if err := json.Unmarshal(entry, &hash); err != nil {
				return err
			}
			b.Transactions = append(b.Transactions, Transaction{Hash: hash})
			continue
		}

		var tx Transaction
		if err := json.Unmarshal(entry, &tx); err != nil {
			return err
		}
		b.Transactions = append(b.Transactions, tx)
	}

	return nil
}

// TxCount returns the number of transactions in the block.
func (b *Block) TxCount() int {
	return len(b.Transactions)
}

// Transaction is the wire shape of a transaction inside a block. Legacy
// transactions carry gasPrice; dynamic-fee transactions carry
// maxPriorityFeePerGas.
type Transaction struct {
	Hash                 common.Hash    `json:"hash"`
	Gas                  hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big   `json:"gasPrice"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
}

// Receipt is the wire shape of an entry in eth_getBlockReceipts. It is the
// source of truth for gasUsed and effectiveGasPrice.
type Receipt struct {
	TransactionHash   common.Hash    `json:"transactionHash"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
}
