package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"milestonetrust/escrow"
)

// PG is a PostgreSQL escrow.Store. Each contract persists as one jsonb
// record; updates run under a row lock so the mutation closure commits
// all-or-nothing.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG wires a pgxpool-backed store.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (s *PG) Create(ctx context.Context, rec escrow.EscrowContract) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal contract: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO escrow_contracts (id, record)
		VALUES ($1, $2::jsonb)
	`, rec.ID, raw)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return escrow.ErrExists
		}
		return fmt.Errorf("store: insert contract: %w", err)
	}
	return nil
}

func (s *PG) Get(ctx context.Context, id string) (escrow.EscrowContract, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM escrow_contracts WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return escrow.EscrowContract{}, escrow.ErrNotFound
		}
		return escrow.EscrowContract{}, fmt.Errorf("store: query contract: %w", err)
	}
	var rec escrow.EscrowContract
	if err := json.Unmarshal(raw, &rec); err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: decode contract: %w", err)
	}
	return rec, nil
}

func (s *PG) Update(ctx context.Context, id string, fn func(*escrow.EscrowContract) error) (escrow.EscrowContract, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT record FROM escrow_contracts WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return escrow.EscrowContract{}, escrow.ErrNotFound
		}
		return escrow.EscrowContract{}, fmt.Errorf("store: lock contract: %w", err)
	}

	var rec escrow.EscrowContract
	if err := json.Unmarshal(raw, &rec); err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: decode contract: %w", err)
	}

	if err := fn(&rec); err != nil {
		return escrow.EscrowContract{}, err
	}

	updated, err := json.Marshal(rec)
	if err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: marshal contract: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE escrow_contracts
		SET record = $1::jsonb, updated_at = now()
		WHERE id = $2
	`, updated, id); err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: update contract: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: commit update: %w", err)
	}
	return rec, nil
}

func (s *PG) Link(ctx context.Context, account, contractID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_contracts (account_id, contract_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, account, contractID)
	if err != nil {
		return fmt.Errorf("store: link account: %w", err)
	}
	return nil
}

func (s *PG) ListByAccount(ctx context.Context, account string) ([]escrow.EscrowContract, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.record
		FROM escrow_contracts c
		JOIN account_contracts ac ON ac.contract_id = c.id
		WHERE ac.account_id = $1
		ORDER BY c.created_at ASC
	`, account)
	if err != nil {
		return nil, fmt.Errorf("store: list by account: %w", err)
	}
	defer rows.Close()

	out := make([]escrow.EscrowContract, 0, 8)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		var rec escrow.EscrowContract
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("store: decode record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate records: %w", err)
	}
	return out, nil
}
