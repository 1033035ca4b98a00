package common

import (
	"math/big"
	"strconv"
	"strings"
)

// WeiPerGwei is the number of wei in one gwei.
var WeiPerGwei = big.NewInt(1_000_000_000)

// WeiToGwei converts a wei amount to a fractional gwei value. Conversion to
// floating point happens only here, at the storage boundary; all intermediate
// arithmetic stays in big.Int.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(WeiPerGwei),
	).Float64()
	return gwei
}

// GweiToWei converts a fractional gwei value back to wei, rounding to the
// nearest integer. Used when recomputing fees from stored rows, which keep
// only the gwei rendition.
func GweiToWei(gwei float64) *big.Int {
	wei, _ := new(big.Float).Mul(
		big.NewFloat(gwei),
		new(big.Float).SetInt(WeiPerGwei),
	).Int(nil)
	return wei
}

// ParseUint64orHex converts the given uint64 string into a number.
// It can parse strings with a 0x prefix as well.
func ParseUint64orHex(val *string) (uint64, error) {
	if val == nil {
		return 0, nil
	}

	str := *val
	base := 10

	if strings.HasPrefix(str, "0x") {
		str = str[2:]
		base = 16
	}

	return strconv.ParseUint(str, base, 64)
}

// BlockRange returns the ascending run of block numbers in [from, to].
// An inverted range yields an empty slice.
func BlockRange(from, to uint64) []uint64 {
	if to < from {
		return nil
	}
	nums := make([]uint64, 0, to-from+1)
	for n := from; n <= to; n++ {
		nums = append(nums, n)
	}
	return nums
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
