package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/russross/meddler"
)

// CursorStore persists per-service resume positions in indexer_state.
type CursorStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewCursorStore creates a CursorStore.
func NewCursorStore(db *sql.DB, log *logger.Logger) *CursorStore {
	return &CursorStore{db: db, log: log}
}

// Get returns the cursor for a service, or nil if none has been saved yet.
func (s *CursorStore) Get(serviceName string) (*CursorRow, error) {
	var row CursorRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM indexer_state WHERE service_name = ?`, serviceName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cursor for %s: %w", serviceName, err)
	}
	return &row, nil
}

// Save upserts the cursor for a service.
func (s *CursorStore) Save(serviceName string, position uint64, hash *common.Hash) error {
	var hashHex *string
	if hash != nil {
		h := hash.Hex()
		hashHex = &h
	}

	_, err := s.db.Exec(`
		INSERT INTO indexer_state (service_name, last_position, last_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (service_name) DO UPDATE SET
			last_position = excluded.last_position,
			last_hash = excluded.last_hash,
			updated_at = excluded.updated_at
	`, serviceName, position, hashHex, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save cursor for %s: %w", serviceName, err)
	}

	s.log.Debugf("saved cursor: service=%s position=%d", serviceName, position)

	return nil
}

// SaveTx is Save inside an open transaction, used when a cursor rewind must
// commit atomically with the rows that justify it.
func (s *CursorStore) SaveTx(tx *sql.Tx, serviceName string, position uint64, hash *common.Hash) error {
	var hashHex *string
	if hash != nil {
		h := hash.Hex()
		hashHex = &h
	}

	_, err := tx.Exec(`
		INSERT INTO indexer_state (service_name, last_position, last_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (service_name) DO UPDATE SET
			last_position = excluded.last_position,
			last_hash = excluded.last_hash,
			updated_at = excluded.updated_at
	`, serviceName, position, hashHex, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save cursor for %s: %w", serviceName, err)
	}

	return nil
}
