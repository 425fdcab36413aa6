package storage

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/ClipFinance/fusion-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

var (
	ErrDatabaseConnect = errors.New("failed to connect to database")
	ErrCorruptedRecord = errors.New("corrupted store record")
)

// Postgres implements the protocol stores over a Postgres database. Hashes
// and identities are stored as text, amounts as decimal strings.
//
// Expected schema:
//
//	CREATE TABLE bit_invalidator (
//	    maker TEXT NOT NULL,
//	    slot  BIGINT NOT NULL,
//	    PRIMARY KEY (maker, slot)
//	);
//	CREATE TABLE remaining_invalidator (
//	    maker      TEXT NOT NULL,
//	    order_hash TEXT NOT NULL,
//	    remaining  TEXT NOT NULL,
//	    PRIMARY KEY (maker, order_hash)
//	);
//	CREATE TABLE merkle_validation (
//	    validation_key TEXT PRIMARY KEY,
//	    leaf           TEXT NOT NULL,
//	    leaf_index     BIGINT NOT NULL
//	);
type Postgres struct {
	dbConnStr string
}

// NewPostgres creates a new Postgres store set with the provided connection
// string.
//
// Parameters:
// - connStr: the database connection string.
//
// Returns:
// - *Postgres: a pointer to the newly created Postgres instance.
// - error: an error if the creation of the Postgres instance fails.
func NewPostgres(connStr string) (*Postgres, error) {
	return &Postgres{
		dbConnStr: connStr,
	}, nil
}

// BitInvalidator loads the maker's invalidated slots. A maker with no rows
// returns nil, meaning no slot was ever invalidated.
func (p *Postgres) BitInvalidator(ctx context.Context, maker types.Identity) (*types.BitInvalidatorData, error) {
	db, err := sql.Open("postgres", p.dbConnStr)
	if err != nil {
		return nil, ErrDatabaseConnect
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
        SELECT slot
        FROM bit_invalidator
        WHERE maker = $1
    `, string(maker))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bit invalidator slots")
	}
	defer rows.Close()

	var data *types.BitInvalidatorData
	for rows.Next() {
		var slot uint64
		if err := rows.Scan(&slot); err != nil {
			return nil, errors.Wrap(err, "failed to scan bit invalidator slot")
		}
		if data == nil {
			data = types.NewBitInvalidatorData()
		}
		data.Slots[slot] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate bit invalidator slots")
	}

	return data, nil
}

// PutBitInvalidator stores the maker's invalidated slots. Slots are only
// ever added, so already-present rows are left untouched.
func (p *Postgres) PutBitInvalidator(ctx context.Context, maker types.Identity, data *types.BitInvalidatorData) error {
	db, err := sql.Open("postgres", p.dbConnStr)
	if err != nil {
		return ErrDatabaseConnect
	}
	defer db.Close()

	for slot := range data.Slots {
		_, err = db.ExecContext(ctx, `
            INSERT INTO bit_invalidator (maker, slot)
            VALUES ($1, $2)
            ON CONFLICT (maker, slot) DO NOTHING
        `, string(maker), slot)
		if err != nil {
			return errors.Wrap(err, "failed to insert bit invalidator slot")
		}
	}

	return nil
}

// Remaining loads the order's remaining invalidator. An order with no row
// returns nil, meaning the order is untouched and fully open.
func (p *Postgres) Remaining(ctx context.Context, maker types.Identity, orderHash common.Hash) (*types.RemainingInvalidator, error) {
	db, err := sql.Open("postgres", p.dbConnStr)
	if err != nil {
		return nil, ErrDatabaseConnect
	}
	defer db.Close()

	var remaining string
	err = db.QueryRowContext(ctx, `
        SELECT remaining
        FROM remaining_invalidator
        WHERE maker = $1 AND order_hash = $2
    `, string(maker), orderHash.Hex()).Scan(&remaining)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query remaining invalidator")
	}

	value, ok := new(big.Int).SetString(remaining, 10)
	if !ok {
		return nil, errors.Wrapf(ErrCorruptedRecord, "remaining amount %q", remaining)
	}

	return types.NewRemainingInvalidator(value), nil
}

// PutRemaining stores the order's remaining invalidator.
func (p *Postgres) PutRemaining(ctx context.Context, maker types.Identity, orderHash common.Hash, inv *types.RemainingInvalidator) error {
	db, err := sql.Open("postgres", p.dbConnStr)
	if err != nil {
		return ErrDatabaseConnect
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
        INSERT INTO remaining_invalidator (maker, order_hash, remaining)
        VALUES ($1, $2, $3)
        ON CONFLICT (maker, order_hash)
        DO UPDATE SET remaining = EXCLUDED.remaining
    `, string(maker), orderHash.Hex(), inv.Remaining().String())
	if err != nil {
		return errors.Wrap(err, "failed to upsert remaining invalidator")
	}

	return nil
}

// Validation loads the stored merkle validation data for the key, or nil if
// no taker interaction recorded one yet.
func (p *Postgres) Validation(ctx context.Context, key common.Hash) (*types.ValidationData, error) {
	db, err := sql.Open("postgres", p.dbConnStr)
	if err != nil {
		return nil, ErrDatabaseConnect
	}
	defer db.Close()

	var (
		leaf  string
		index uint64
	)
	err = db.QueryRowContext(ctx, `
        SELECT leaf, leaf_index
        FROM merkle_validation
        WHERE validation_key = $1
    `, key.Hex()).Scan(&leaf, &index)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query merkle validation")
	}

	return &types.ValidationData{
		Leaf:  common.HexToHash(leaf),
		Index: index,
	}, nil
}

// PutValidation stores merkle validation data for the key, replacing any
// earlier taker interaction for the same order and root.
func (p *Postgres) PutValidation(ctx context.Context, key common.Hash, data *types.ValidationData) error {
	db, err := sql.Open("postgres", p.dbConnStr)
	if err != nil {
		return ErrDatabaseConnect
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
        INSERT INTO merkle_validation (validation_key, leaf, leaf_index)
        VALUES ($1, $2, $3)
        ON CONFLICT (validation_key)
        DO UPDATE SET leaf = EXCLUDED.leaf, leaf_index = EXCLUDED.leaf_index
    `, key.Hex(), data.Leaf.Hex(), data.Index)
	if err != nil {
		return errors.Wrap(err, "failed to upsert merkle validation")
	}

	return nil
}
