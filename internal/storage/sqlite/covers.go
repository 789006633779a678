package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// FindCover retrieves the cover for a (receipt, user) pair.
func (s *SQLiteStore) FindCover(ctx context.Context, date string, user models.UserID) (*models.Cover, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, receipt_date, payer_id, user_id, amount FROM covers WHERE receipt_date = ? AND user_id = ?",
		date, user,
	)
	cover, err := scanCover(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cover for user %d on %s: %w", user, date, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cover: %w", err)
	}
	return cover, nil
}

// SaveCover inserts the cover when ID is zero, otherwise updates the amount.
func (s *SQLiteStore) SaveCover(ctx context.Context, cover *models.Cover) error {
	if cover.ID == 0 {
		result, err := s.db.ExecContext(ctx,
			"INSERT INTO covers (receipt_date, payer_id, user_id, amount) VALUES (?, ?, ?, ?)",
			cover.ReceiptDate, cover.PayerID, cover.UserID, cover.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert cover: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read cover id: %w", err)
		}
		cover.ID = id
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE covers SET amount = ? WHERE id = ?",
		cover.Amount.String(), cover.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cover: %w", err)
	}
	return nil
}

// DeleteCover removes a cover by ID.
func (s *SQLiteStore) DeleteCover(ctx context.Context, coverID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM covers WHERE id = ?", coverID)
	if err != nil {
		return fmt.Errorf("failed to delete cover: %w", err)
	}
	return nil
}

// ListCoversByPayer returns covers where the user fronted the money.
func (s *SQLiteStore) ListCoversByPayer(ctx context.Context, payer models.UserID) ([]*models.Cover, error) {
	return s.listCovers(ctx,
		"SELECT id, receipt_date, payer_id, user_id, amount FROM covers WHERE payer_id = ?",
		payer,
	)
}

// ListCoversByUser returns covers where the user owes money.
func (s *SQLiteStore) ListCoversByUser(ctx context.Context, user models.UserID) ([]*models.Cover, error) {
	return s.listCovers(ctx,
		"SELECT id, receipt_date, payer_id, user_id, amount FROM covers WHERE user_id = ?",
		user,
	)
}

func (s *SQLiteStore) listCovers(ctx context.Context, query string, args ...any) ([]*models.Cover, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list covers: %w", err)
	}
	defer rows.Close()

	var covers []*models.Cover
	for rows.Next() {
		cover, err := scanCover(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cover: %w", err)
		}
		covers = append(covers, cover)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate covers: %w", err)
	}
	return covers, nil
}

func scanCover(row scanner) (*models.Cover, error) {
	var (
		cover  models.Cover
		amount string
	)
	if err := row.Scan(&cover.ID, &cover.ReceiptDate, &cover.PayerID, &cover.UserID, &amount); err != nil {
		return nil, err
	}
	var err error
	if cover.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	return &cover, nil
}

// CreatePayment records a repayment between two users.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.CreatedAt == 0 {
		payment.CreatedAt = time.Now().Unix()
	}
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO payments (payee_id, payer_id, amount, created_at) VALUES (?, ?, ?, ?)",
		payment.PayeeID, payment.PayerID, payment.Amount.String(), payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read payment id: %w", err)
	}
	payment.ID = id
	return nil
}

// ListPaymentsByPayee returns payments received by the user.
func (s *SQLiteStore) ListPaymentsByPayee(ctx context.Context, payee models.UserID) ([]*models.Payment, error) {
	return s.listPayments(ctx,
		"SELECT id, payee_id, payer_id, amount, created_at FROM payments WHERE payee_id = ? ORDER BY created_at",
		payee,
	)
}

// ListPaymentsByPayer returns payments made by the user.
func (s *SQLiteStore) ListPaymentsByPayer(ctx context.Context, payer models.UserID) ([]*models.Payment, error) {
	return s.listPayments(ctx,
		"SELECT id, payee_id, payer_id, amount, created_at FROM payments WHERE payer_id = ? ORDER BY created_at",
		payer,
	)
}

func (s *SQLiteStore) listPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var (
			payment models.Payment
			amount  string
		)
		if err := rows.Scan(&payment.ID, &payment.PayeeID, &payment.PayerID, &amount, &payment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if payment.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		payments = append(payments, &payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}
