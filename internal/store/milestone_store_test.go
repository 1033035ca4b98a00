package store

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/stretchr/testify/require"
)

func testMilestoneRow(seq uint64) *MilestoneRow {
	return &MilestoneRow{
		SequenceID:  seq,
		MilestoneID: seq * 100,
		StartBlock:  seq * 10,
		EndBlock:    seq*10 + 9,
		Hash:        common.BigToHash(common.Big1),
		Timestamp:   1700000000 + seq,
	}
}

func TestMilestoneStore_InsertIsIdempotent(t *testing.T) {
	store := NewMilestoneStore(setupTestDB(t), logger.NewNopLogger())

	inserted, err := store.Insert(testMilestoneRow(1))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.Insert(testMilestoneRow(1))
	require.NoError(t, err)
	require.False(t, inserted)

	got, err := store.Get(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, uint64(100), got.MilestoneID)
	require.Nil(t, got.Proposer)
}

func TestMilestoneStore_ExistsAndBounds(t *testing.T) {
	store := NewMilestoneStore(setupTestDB(t), logger.NewNopLogger())

	exists, err := store.Exists(3)
	require.NoError(t, err)
	require.False(t, exists)

	for _, seq := range []uint64{3, 5, 4} {
		_, err := store.Insert(testMilestoneRow(seq))
		require.NoError(t, err)
	}

	exists, err = store.Exists(3)
	require.NoError(t, err)
	require.True(t, exists)

	highest, err := store.GetHighest()
	require.NoError(t, err)
	require.Equal(t, uint64(5), highest.SequenceID)

	lowest, err := store.GetLowest()
	require.NoError(t, err)
	require.Equal(t, uint64(3), lowest.SequenceID)
}

func TestMilestoneStore_ProposerRoundTrip(t *testing.T) {
	store := NewMilestoneStore(setupTestDB(t), logger.NewNopLogger())

	proposer := "0xproposer"
	row := testMilestoneRow(9)
	row.Proposer = &proposer

	_, err := store.Insert(row)
	require.NoError(t, err)

	got, err := store.Get(9)
	require.NoError(t, err)
	require.NotNil(t, got.Proposer)
	require.Equal(t, proposer, *got.Proposer)
}
