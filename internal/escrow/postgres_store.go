package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists contracts as JSONB documents keyed by address.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createContractsTableSQL = `
CREATE TABLE IF NOT EXISTS escrow_contracts (
    address TEXT PRIMARY KEY,
    chain_id TEXT NOT NULL,
    status TEXT NOT NULL,
    document JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createContractsTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Insert(ctx context.Context, c Contract) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
INSERT INTO escrow_contracts (address, chain_id, status, document, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (address) DO NOTHING
`, c.Address, c.ChainID, string(c.Status), doc, c.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContractExists
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, address string) (Contract, error) {
	row := p.pool.QueryRow(ctx, `SELECT document FROM escrow_contracts WHERE address = $1`, address)
	return scanContract(row)
}

func (p *PostgresStore) List(ctx context.Context) ([]Contract, error) {
	rows, err := p.pool.Query(ctx, `SELECT document FROM escrow_contracts ORDER BY created_at, address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, address string, fn func(*Contract) error) (Contract, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Contract{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT document FROM escrow_contracts WHERE address = $1 FOR UPDATE`, address)
	c, err := scanContract(row)
	if err != nil {
		return Contract{}, err
	}
	if err := fn(&c); err != nil {
		return Contract{}, err
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return Contract{}, fmt.Errorf("encode contract: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE escrow_contracts SET status = $2, document = $3 WHERE address = $1
`, address, string(c.Status), doc); err != nil {
		return Contract{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Contract{}, err
	}
	return c, nil
}

func scanContract(row pgx.Row) (Contract, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrContractNotFound
		}
		return Contract{}, err
	}
	var c Contract
	if err := json.Unmarshal(doc, &c); err != nil {
		return Contract{}, fmt.Errorf("decode contract: %w", err)
	}
	return c, nil
}
