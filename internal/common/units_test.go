package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeiToGwei(t *testing.T) {
	require.Equal(t, 0.0, WeiToGwei(nil))
	require.Equal(t, 0.0, WeiToGwei(big.NewInt(0)))
	require.Equal(t, 1.0, WeiToGwei(big.NewInt(1_000_000_000)))
	require.Equal(t, 1.5, WeiToGwei(big.NewInt(1_500_000_000)))
	require.Equal(t, 0.000000001, WeiToGwei(big.NewInt(1)))

	// values beyond 64 bits survive the conversion
	big36 := new(big.Int).Mul(big.NewInt(1_000_000_000), big.NewInt(1_000_000_000))
	big36.Mul(big36, big.NewInt(1_000_000_000))
	require.Equal(t, 1e18, WeiToGwei(big36))
}

func TestGweiToWei(t *testing.T) {
	require.Equal(t, int64(0), GweiToWei(0).Int64())
	require.Equal(t, int64(1_000_000_000), GweiToWei(1).Int64())
	require.Equal(t, int64(2_500_000_000), GweiToWei(2.5).Int64())
}

func TestGweiToWei_RoundTrip(t *testing.T) {
	for _, wei := range []int64{0, 1_000_000_000, 30_000_000_000, 1_500_000_000} {
		gwei := WeiToGwei(big.NewInt(wei))
		require.Equal(t, wei, GweiToWei(gwei).Int64())
	}
}

func TestParseUint64orHex(t *testing.T) {
	decimal := "123"
	v, err := ParseUint64orHex(&decimal)
	require.NoError(t, err)
	require.Equal(t, uint64(123), v)

	hex := "0x7b"
	v, err = ParseUint64orHex(&hex)
	require.NoError(t, err)
	require.Equal(t, uint64(123), v)

	v, err = ParseUint64orHex(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)

	bad := "not-a-number"
	_, err = ParseUint64orHex(&bad)
	require.Error(t, err)
}

func TestBlockRange(t *testing.T) {
	require.Equal(t, []uint64{5, 6, 7}, BlockRange(5, 7))
	require.Equal(t, []uint64{9}, BlockRange(9, 9))
	require.Empty(t, BlockRange(10, 9))
}
