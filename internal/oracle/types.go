package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/MilestoneIndexor/internal/common"
)

// Milestone is a finality attestation covering the contiguous block range
// [StartBlock, EndBlock], ordered by SequenceID.
type Milestone struct {
	SequenceID  uint64
	MilestoneID uint64
	StartBlock  uint64
	EndBlock    uint64
	Hash        common.Hash
	Proposer    *string
	Timestamp   uint64
}

// wire shapes: the oracle encodes numbers as decimal strings.
type milestoneEnvelope struct {
	Milestone milestoneWire `json:"milestone"`
}

type milestoneWire struct {
	MilestoneID *string `json:"milestone_id"`
	StartBlock  string  `json:"start_block"`
	EndBlock    string  `json:"end_block"`
	Hash        string  `json:"hash"`
	Proposer    string  `json:"proposer"`
	Timestamp   string  `json:"timestamp"`
	// bor_chain_id is present on the wire but ignored
}

type countEnvelope struct {
	Count string `json:"count"`
}

func decodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode oracle response: %w", err)
	}
	return nil
}

// decodeMilestone parses a milestone response body into a Milestone with the
// given sequence id. An empty proposer string is treated as null.
func decodeMilestone(seqID uint64, body []byte) (*Milestone, error) {
	var envelope milestoneEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode milestone %d: %w", seqID, err)
	}

	w := envelope.Milestone

	startBlock, err := internalcommon.ParseUint64orHex(&w.StartBlock)
	if err != nil {
		return nil, fmt.Errorf("milestone %d: invalid start_block %q: %w", seqID, w.StartBlock, err)
	}
	endBlock, err := internalcommon.ParseUint64orHex(&w.EndBlock)
	if err != nil {
		return nil, fmt.Errorf("milestone %d: invalid end_block %q: %w", seqID, w.EndBlock, err)
	}
	timestamp, err := internalcommon.ParseUint64orHex(&w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("milestone %d: invalid timestamp %q: %w", seqID, w.Timestamp, err)
	}

	// milestone_id defaults to end_block; it identifies the range
	milestoneID := endBlock
	if w.MilestoneID != nil {
		milestoneID, err = internalcommon.ParseUint64orHex(w.MilestoneID)
		if err != nil {
			return nil, fmt.Errorf("milestone %d: invalid milestone_id %q: %w", seqID, *w.MilestoneID, err)
		}
	}

	m := &Milestone{
		SequenceID:  seqID,
		MilestoneID: milestoneID,
		StartBlock:  startBlock,
		EndBlock:    endBlock,
		Hash:        common.HexToHash(w.Hash),
		Timestamp:   timestamp,
	}
	if w.Proposer != "" {
		proposer := w.Proposer
		m.Proposer = &proposer
	}

	return m, nil
}
