package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"verigate/internal/ledger/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
	"verigate/pkg/platform/tx"
)

// PostgresStore persists users, refund markers, and verification records.
// Every balance change is a single conditional statement so concurrent
// attempts for one user serialize on the row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conn returns the transaction carried by ctx, or the pool.
func (s *PostgresStore) conn(ctx context.Context) execer {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user models.User) error {
	query := `
		INSERT INTO users (id, username, full_name, balance, blocked)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			full_name = EXCLUDED.full_name
	`
	_, err := s.conn(ctx).ExecContext(ctx, query, int64(user.ID), user.Username, user.FullName, user.Balance, user.Blocked)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UserExists(ctx context.Context, userID id.UserID) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, int64(userID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `
		SELECT id, username, full_name, balance, blocked, created_at
		FROM users
		WHERE id = $1
	`
	var (
		user models.User
		raw  int64
	)
	err := s.conn(ctx).QueryRowContext(ctx, query, int64(userID)).
		Scan(&raw, &user.Username, &user.FullName, &user.Balance, &user.Blocked, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.ID = id.UserID(raw)
	return &user, nil
}

// CheckIn credits reward once per calendar day. It reports false when the
// user is unknown, blocked, or already checked in on day.
func (s *PostgresStore) CheckIn(ctx context.Context, userID id.UserID, day time.Time, reward int) (int, bool, error) {
	query := `
		UPDATE users SET balance = balance + $2, last_checkin = $3
		WHERE id = $1
			AND NOT blocked
			AND (last_checkin IS NULL OR last_checkin < $3)
		RETURNING balance
	`
	var balance int
	err := s.conn(ctx).QueryRowContext(ctx, query, int64(userID), reward, day.Format(time.DateOnly)).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("check in: %w", err)
	}
	return balance, true, nil
}

// ListBlocked returns every blocked user ordered by id.
func (s *PostgresStore) ListBlocked(ctx context.Context) ([]models.User, error) {
	query := `
		SELECT id, username, full_name, balance, blocked, created_at
		FROM users
		WHERE blocked
		ORDER BY id
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var (
			user models.User
			raw  int64
		)
		if err := rows.Scan(&raw, &user.Username, &user.FullName, &user.Balance, &user.Blocked, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blocked user: %w", err)
		}
		user.ID = id.UserID(raw)
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocked users: %w", err)
	}
	return out, nil
}

// ReserveBalance decrements the balance only if it covers amount and the user
// is not blocked. It reports false when no row qualified.
func (s *PostgresStore) ReserveBalance(ctx context.Context, userID id.UserID, amount int) (bool, error) {
	query := `
		UPDATE users SET balance = balance - $2
		WHERE id = $1 AND balance >= $2 AND NOT blocked
	`
	res, err := s.conn(ctx).ExecContext(ctx, query, int64(userID), amount)
	if err != nil {
		return false, fmt.Errorf("reserve balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve balance rows: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) CreditBalance(ctx context.Context, userID id.UserID, amount int) (int, error) {
	query := `UPDATE users SET balance = balance + $2 WHERE id = $1 RETURNING balance`
	var balance int
	err := s.conn(ctx).QueryRowContext(ctx, query, int64(userID), amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

// RefundOnce writes the refund marker and credits the balance in one
// transaction. A marker that already exists means the refund happened, and
// nothing is credited.
func (s *PostgresStore) RefundOnce(ctx context.Context, attemptID id.AttemptID, userID id.UserID, amount int) (bool, error) {
	var refunded bool
	err := tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		res, err := sqlTx.ExecContext(ctx, `
			INSERT INTO verification_refunds (attempt_id, user_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (attempt_id) DO NOTHING
		`, attemptID.String(), int64(userID), amount)
		if err != nil {
			return fmt.Errorf("insert refund marker: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("refund marker rows: %w", err)
		}
		if n == 0 {
			return nil
		}

		res, err = sqlTx.ExecContext(ctx, `UPDATE users SET balance = balance + $2 WHERE id = $1`, int64(userID), amount)
		if err != nil {
			return fmt.Errorf("refund balance: %w", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("refund balance rows: %w", err)
		}
		if n == 0 {
			return sentinel.ErrNotFound
		}
		refunded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return refunded, nil
}

func (s *PostgresStore) SetBlocked(ctx context.Context, userID id.UserID, blocked bool) error {
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE users SET blocked = $2 WHERE id = $1`, int64(userID), blocked)
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set blocked rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// RecordVerification inserts the record or, for a known attempt, updates its
// status, detail and external id.
func (s *PostgresStore) RecordVerification(ctx context.Context, record models.VerificationRecord) error {
	query := `
		INSERT INTO verifications (id, user_id, category, input, status, detail, external_id, refund_owed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			detail = EXCLUDED.detail,
			external_id = EXCLUDED.external_id,
			refund_owed = GREATEST(verifications.refund_owed, EXCLUDED.refund_owed)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		record.AttemptID.String(),
		int64(record.UserID),
		record.Category,
		record.Input,
		string(record.Status),
		record.Detail,
		record.ExternalID,
		record.RefundOwed,
	)
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	return nil
}

// ListOwedRefunds returns the oldest records that owe a refund and have no
// refund marker yet.
func (s *PostgresStore) ListOwedRefunds(ctx context.Context, limit int) ([]models.OwedRefund, error) {
	query := `
		SELECT v.id, v.user_id, v.refund_owed
		FROM verifications v
		WHERE v.refund_owed > 0
			AND NOT EXISTS (SELECT 1 FROM verification_refunds r WHERE r.attempt_id = v.id)
		ORDER BY v.created_at
		LIMIT $1
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list owed refunds: %w", err)
	}
	defer rows.Close()

	var out []models.OwedRefund
	for rows.Next() {
		var (
			attemptID string
			userID    int64
			owed      models.OwedRefund
		)
		if err := rows.Scan(&attemptID, &userID, &owed.Amount); err != nil {
			return nil, fmt.Errorf("scan owed refund: %w", err)
		}
		if owed.AttemptID, err = id.ParseAttemptID(attemptID); err != nil {
			return nil, fmt.Errorf("scan owed refund: %w", err)
		}
		owed.UserID = id.UserID(userID)
		out = append(out, owed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owed refunds: %w", err)
	}
	return out, nil
}

const verificationColumns = `id, user_id, category, input, status, detail, external_id, created_at`

func (s *PostgresStore) FindVerificationByExternalID(ctx context.Context, userID id.UserID, externalID string) (*models.VerificationRecord, error) {
	query := `SELECT ` + verificationColumns + `
		FROM verifications
		WHERE user_id = $1 AND external_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	record, err := scanVerification(s.conn(ctx).QueryRowContext(ctx, query, int64(userID), externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListVerifications(ctx context.Context, userID id.UserID, limit int) ([]models.VerificationRecord, error) {
	query := `SELECT ` + verificationColumns + `
		FROM verifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn(ctx).QueryContext(ctx, query, int64(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []models.VerificationRecord
	for rows.Next() {
		record, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.VerificationRecord, error) {
	var (
		record    models.VerificationRecord
		attemptID string
		userID    int64
		status    string
	)
	if err := row.Scan(&attemptID, &userID, &record.Category, &record.Input, &status, &record.Detail, &record.ExternalID, &record.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseAttemptID(attemptID)
	if err != nil {
		return nil, fmt.Errorf("parse attempt id: %w", err)
	}
	record.AttemptID = parsed
	record.UserID = id.UserID(userID)
	record.Status = models.RecordStatus(status)
	return &record, nil
}
