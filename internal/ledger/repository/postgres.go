package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// batchCounter is the ledger_counters row that allocates batch ids.
// A counter row, unlike a sequence, is rolled back with the transaction,
// so ids stay gapless.
const batchCounter = "batch_id"

// PostgresStore persists batches, provenance and incentive balances to
// PostgreSQL. Schema lives in migrations/001_ledger.up.sql.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create allocates the next batch id and inserts b in one transaction.
func (r *PostgresStore) Create(ctx context.Context, b *model.Batch) (uint64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id int64
	if err := tx.QueryRow(ctx,
		`UPDATE ledger_counters SET value = value + 1 WHERE name = $1 RETURNING value`,
		batchCounter,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate batch id: %w", err)
	}

	query := `
		INSERT INTO batches (
			id, farmer, metadata_cid, quality_score, data_verified,
			price_wei, buyer, escrow_amount_wei, state, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7, $8::numeric, $9, $10
		)`
	if _, err := tx.Exec(ctx, query,
		id, b.Farmer.String(), b.MetadataCID, int16(b.QualityScore), b.DataVerified,
		b.PriceWei.String(), buyerColumn(b.Buyer), b.EscrowAmountWei.String(), string(b.State), b.CreatedAt,
	); err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	b.ID = uint64(id)
	return b.ID, nil
}

// Get loads a batch and its provenance.
func (r *PostgresStore) Get(ctx context.Context, id uint64) (*model.Batch, error) {
	if id > math.MaxInt64 {
		return nil, model.ErrNotFound
	}
	row := r.db.QueryRow(ctx, `
		SELECT id, farmer, metadata_cid, quality_score, data_verified,
		       price_wei::text, buyer, escrow_amount_wei::text, state, created_at
		FROM batches WHERE id = $1`, int64(id))

	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT cid, author, added_at FROM batch_provenance
		WHERE batch_id = $1 ORDER BY idx ASC`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	b.Provenance = []model.ProvenanceEntry{}
	for rows.Next() {
		var (
			e      model.ProvenanceEntry
			author string
		)
		if err := rows.Scan(&e.CID, &author, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		if e.Author, err = model.ParsePrincipal(author); err != nil {
			return nil, fmt.Errorf("provenance author: %w", err)
		}
		b.Provenance = append(b.Provenance, e)
	}
	return b, rows.Err()
}

// Update rewrites every mutable column of the batch row.
func (r *PostgresStore) Update(ctx context.Context, b *model.Batch) error {
	return updateBatch(ctx, r.db, b)
}

// UpdateWithIncentive rewrites the batch row and adds delta to p's balance
// in one transaction. The balance column's CHECK rejects a negative result.
func (r *PostgresStore) UpdateWithIncentive(ctx context.Context, b *model.Batch, p model.Principal, delta int64) (uint64, error) {
	var balance int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := updateBatch(ctx, tx, b); err != nil {
			return err
		}
		if delta == 0 {
			err := tx.QueryRow(ctx,
				`SELECT points FROM incentive_balances WHERE principal = $1`, p.String(),
			).Scan(&balance)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO incentive_balances (principal, points, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (principal) DO UPDATE
			SET points = incentive_balances.points + EXCLUDED.points,
			    updated_at = EXCLUDED.updated_at
			RETURNING points`,
			p.String(), delta, time.Now().UTC(),
		).Scan(&balance)
	})
	if err != nil {
		return 0, fmt.Errorf("update batch %d with incentive: %w", b.ID, err)
	}
	return uint64(balance), nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateBatch(ctx context.Context, db execer, b *model.Batch) error {
	query := `
		UPDATE batches SET
			metadata_cid      = $2,
			quality_score     = $3,
			data_verified     = $4,
			price_wei         = $5::numeric,
			buyer             = $6,
			escrow_amount_wei = $7::numeric,
			state             = $8
		WHERE id = $1`
	tag, err := db.Exec(ctx, query,
		int64(b.ID), b.MetadataCID, int16(b.QualityScore), b.DataVerified,
		b.PriceWei.String(), buyerColumn(b.Buyer), b.EscrowAmountWei.String(), string(b.State),
	)
	if err != nil {
		return fmt.Errorf("update batch %d: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// AppendProvenance inserts the next provenance row under a row lock on the
// parent batch so concurrent appends get distinct indexes.
func (r *PostgresStore) AppendProvenance(ctx context.Context, id uint64, e model.ProvenanceEntry) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var one int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM batches WHERE id = $1 FOR UPDATE`, int64(id)).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrNotFound
		}
		return 0, fmt.Errorf("lock batch %d: %w", id, err)
	}

	var idx int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM batch_provenance WHERE batch_id = $1`, int64(id),
	).Scan(&idx); err != nil {
		return 0, fmt.Errorf("count provenance: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO batch_provenance (batch_id, idx, cid, author, added_at)
		VALUES ($1, $2, $3, $4, $5)`,
		int64(id), idx, e.CID, e.Author.String(), e.AddedAt,
	); err != nil {
		return 0, fmt.Errorf("insert provenance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit provenance: %w", err)
	}
	return idx, nil
}

// IncentiveBalance returns p's points, or 0 when p has never been credited.
func (r *PostgresStore) IncentiveBalance(ctx context.Context, p model.Principal) (uint64, error) {
	var points int64
	err := r.db.QueryRow(ctx,
		`SELECT points FROM incentive_balances WHERE principal = $1`, p.String(),
	).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get incentive balance: %w", err)
	}
	return uint64(points), nil
}

// scanBatch reads the batch columns selected by Get.
func scanBatch(row pgx.Row) (*model.Batch, error) {
	var (
		b             model.Batch
		id            int64
		farmer, state string
		quality       int16
		price, escrow string
		buyer         *string
	)
	if err := row.Scan(
		&id, &farmer, &b.MetadataCID, &quality, &b.DataVerified,
		&price, &buyer, &escrow, &state, &b.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	b.ID = uint64(id)
	b.QualityScore = uint8(quality)
	b.State = model.State(state)
	if b.Farmer, err = model.ParsePrincipal(farmer); err != nil {
		return nil, fmt.Errorf("batch %d farmer: %w", id, err)
	}
	if buyer != nil {
		p, err := model.ParsePrincipal(*buyer)
		if err != nil {
			return nil, fmt.Errorf("batch %d buyer: %w", id, err)
		}
		b.Buyer = &p
	}
	if b.PriceWei, err = model.ParseAmount(price); err != nil {
		return nil, fmt.Errorf("batch %d price: %w", id, err)
	}
	if b.EscrowAmountWei, err = model.ParseAmount(escrow); err != nil {
		return nil, fmt.Errorf("batch %d escrow: %w", id, err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func buyerColumn(p *model.Principal) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}
