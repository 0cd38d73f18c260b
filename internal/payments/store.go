package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"achgateway/internal/common/database"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const paymentColumns = `
	id, vendor_name, vendor_transaction_id, idempotency_key, order_number,
	account_name, routing_number_masked, account_number_masked, account_type,
	amount, effective_date, description, status, vendor_response,
	created_at, updated_at, voided_at`

// Create inserts a payment record.
func (s *PostgresStore) Create(ctx context.Context, rec *PaymentRecord) error {
	query := `
		INSERT INTO ach_payments (
			id, vendor_name, vendor_transaction_id, idempotency_key, order_number,
			account_name, routing_number_masked, account_number_masked, account_type,
			amount, effective_date, description, status, vendor_response,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	response, err := json.Marshal(rec.VendorResponse)
	if err != nil {
		return fmt.Errorf("marshal vendor response: %w", err)
	}

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.VendorName, nullStr(rec.VendorTransactionID), rec.IdempotencyKey, rec.OrderNumber,
		rec.AccountName, rec.RoutingNumberMasked, rec.AccountNumberMasked, rec.AccountType,
		rec.Amount, rec.EffectiveDate, nullStr(rec.Description), rec.Status, response,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return database.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetByID retrieves a payment record by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM ach_payments WHERE id = $1`
	return s.scanPayment(s.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey retrieves a payment record by its idempotency key.
func (s *PostgresStore) GetByIdempotencyKey(ctx context.Context, key string) (*PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM ach_payments WHERE idempotency_key = $1`
	return s.scanPayment(s.pool.QueryRow(ctx, query, key))
}

// List returns payment records, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + `
		FROM ach_payments
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PaymentRecord
	for rows.Next() {
		rec, err := s.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkVoided records the void on a payment.
func (s *PostgresStore) MarkVoided(ctx context.Context, id string, voidedAt time.Time) error {
	query := `
		UPDATE ach_payments
		SET status = $2, voided_at = $3, updated_at = $3
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, id, StatusVoided, voidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanPayment(row pgx.Row) (*PaymentRecord, error) {
	var rec PaymentRecord
	var vendorTxnID, description *string
	var effectiveDate time.Time
	var response []byte

	err := row.Scan(
		&rec.ID, &rec.VendorName, &vendorTxnID, &rec.IdempotencyKey, &rec.OrderNumber,
		&rec.AccountName, &rec.RoutingNumberMasked, &rec.AccountNumberMasked, &rec.AccountType,
		&rec.Amount, &effectiveDate, &description, &rec.Status, &response,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.VoidedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	rec.EffectiveDate = effectiveDate.Format("2006-01-02")
	if vendorTxnID != nil {
		rec.VendorTransactionID = *vendorTxnID
	}
	if description != nil {
		rec.Description = *description
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &rec.VendorResponse); err != nil {
			return nil, fmt.Errorf("unmarshal vendor response: %w", err)
		}
	}
	return &rec, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
