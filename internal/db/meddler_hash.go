package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("hash", hashMeddler{})
}

// hashMeddler maps common.Hash columns to their hex string form. Nullable
// columns use *common.Hash and round-trip SQL NULL as nil.
type hashMeddler struct{}

func (hashMeddler) PreRead(fieldAddr any) (any, error) {
	return new(sql.NullString), nil
}

func (hashMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("hash column scanned into %T, want *sql.NullString", scanTarget)
	}

	switch dst := fieldAddr.(type) {
	case *common.Hash:
		if !ns.Valid {
			*dst = common.Hash{}
			return nil
		}
		*dst = common.HexToHash(ns.String)
	case **common.Hash:
		if !ns.Valid {
			*dst = nil
			return nil
		}
		h := common.HexToHash(ns.String)
		*dst = &h
	default:
		return fmt.Errorf("hash column on unsupported field type %T", fieldAddr)
	}

	return nil
}

func (hashMeddler) PreWrite(field any) (any, error) {
	switch src := field.(type) {
	case common.Hash:
		return src.Hex(), nil
	case *common.Hash:
		if src == nil {
			return nil, nil
		}
		return src.Hex(), nil
	default:
		return nil, fmt.Errorf("hash column on unsupported field type %T", field)
	}
}
