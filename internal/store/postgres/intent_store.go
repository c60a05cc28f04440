package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/basedguardians/marketd/internal/domain"
)

// IntentStore implements domain.IntentStore using PostgreSQL. Wei amounts are
// stored as NUMERIC(78,0) and moved across the wire as decimal strings so a
// full uint256 survives the round trip.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates an IntentStore backed by the given connection pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

// Create inserts a new intent record.
func (s *IntentStore) Create(ctx context.Context, rec domain.IntentRecord) error {
	const query = `
		INSERT INTO intents (
			id, action, token_id, price_wei, amount_wei, expiration_days,
			offerer, approved, description, phase, tx_hash, error,
			probe_inconclusive, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Action), int64(rec.TokenID),
		weiText(rec.Price), weiText(rec.Amount), int64(rec.ExpirationDays),
		offererText(rec.Offerer), rec.Approved, rec.Description,
		string(rec.Phase), rec.TxHash, rec.Error,
		rec.ProbeInconclusive, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create intent %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateOutcome records a phase transition. Empty txHash and errMsg leave the
// stored values untouched so a revert does not blank out the hash.
func (s *IntentStore) UpdateOutcome(ctx context.Context, id string, phase domain.Phase, txHash, errMsg string) error {
	const query = `
		UPDATE intents SET
			phase = $2,
			tx_hash = CASE WHEN $3 = '' THEN tx_hash ELSE $3 END,
			error = CASE WHEN $4 = '' THEN error ELSE $4 END,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(phase), txHash, errMsg)
	if err != nil {
		return fmt.Errorf("postgres: update intent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update intent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetProbeInconclusive marks the record's duplicate-probe result.
func (s *IntentStore) SetProbeInconclusive(ctx context.Context, id string) error {
	const query = `UPDATE intents SET probe_inconclusive = TRUE, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: mark intent %s probe inconclusive: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark intent %s probe inconclusive: %w", id, domain.ErrNotFound)
	}
	return nil
}

const selectColumns = `
	id, action, token_id, price_wei::text, amount_wei::text, expiration_days,
	offerer, approved, description, phase, tx_hash, error,
	probe_inconclusive, created_at, updated_at`

// Get returns the record for id, or domain.ErrNotFound.
func (s *IntentStore) Get(ctx context.Context, id string) (domain.IntentRecord, error) {
	query := `SELECT` + selectColumns + ` FROM intents WHERE id = $1`
	rec, err := scanIntent(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IntentRecord{}, fmt.Errorf("postgres: intent %s: %w", id, domain.ErrNotFound)
		}
		return domain.IntentRecord{}, fmt.Errorf("postgres: get intent %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the most recently updated records, newest first.
func (s *IntentStore) ListRecent(ctx context.Context, limit int) ([]domain.IntentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT` + selectColumns + ` FROM intents ORDER BY updated_at DESC LIMIT $1`
	return s.list(ctx, query, limit)
}

// ListTerminalBefore returns success/error records last updated strictly
// before the cutoff, oldest first, for archival.
func (s *IntentStore) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]domain.IntentRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT` + selectColumns + `
		FROM intents
		WHERE phase IN ('success', 'error') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`
	return s.list(ctx, query, before, limit)
}

func (s *IntentStore) list(ctx context.Context, query string, args ...any) ([]domain.IntentRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intents: %w", err)
	}
	defer rows.Close()

	var records []domain.IntentRecord
	for rows.Next() {
		rec, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan intent: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list intents rows: %w", err)
	}
	return records, nil
}

func scanIntent(row pgx.Row) (domain.IntentRecord, error) {
	var (
		rec           domain.IntentRecord
		action, phase string
		tokenID, days int64
		price, amount *string
		offerer       string
	)
	err := row.Scan(
		&rec.ID, &action, &tokenID, &price, &amount, &days,
		&offerer, &rec.Approved, &rec.Description, &phase, &rec.TxHash,
		&rec.Error, &rec.ProbeInconclusive, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.IntentRecord{}, err
	}

	rec.Action = domain.Action(action)
	rec.Phase = domain.Phase(phase)
	rec.TokenID = uint64(tokenID)
	rec.ExpirationDays = uint64(days)
	if offerer != "" {
		rec.Offerer = common.HexToAddress(offerer)
	}
	if rec.Price, err = weiValue(price); err != nil {
		return domain.IntentRecord{}, err
	}
	if rec.Amount, err = weiValue(amount); err != nil {
		return domain.IntentRecord{}, err
	}
	return rec, nil
}

// weiText renders a wei amount for a NUMERIC column; nil stays NULL.
func weiText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func weiValue(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt wei value %q", *s)
	}
	return v, nil
}

// offererText renders the offerer address, keeping the zero address as empty.
func offererText(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

// Compile-time interface check.
var _ domain.IntentStore = (*IntentStore)(nil)
