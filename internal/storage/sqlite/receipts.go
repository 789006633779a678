package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// CreateReceipt persists a new receipt. The date key must be unused.
func (s *SQLiteStore) CreateReceipt(ctx context.Context, receipt *models.Receipt) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO receipts (date, subtotal, tax, total, tax_rate, payer_id) VALUES (?, ?, ?, ?, ?, ?)",
		receipt.Date,
		receipt.Subtotal.String(),
		receipt.Tax.String(),
		receipt.Total.String(),
		receipt.TaxRate.String(),
		receipt.PayerID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt by its date key.
func (s *SQLiteStore) GetReceipt(ctx context.Context, date string) (*models.Receipt, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT date, subtotal, tax, total, tax_rate, payer_id FROM receipts WHERE date = ?",
		date,
	)
	receipt, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("receipt %s: %w", date, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest first.
func (s *SQLiteStore) ListReceipts(ctx context.Context) ([]*models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT date, subtotal, tax, total, tax_rate, payer_id FROM receipts ORDER BY date DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	return receipts, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*models.Receipt, error) {
	var (
		receipt                      models.Receipt
		subtotal, tax, total, taxRate string
	)
	if err := row.Scan(&receipt.Date, &subtotal, &tax, &total, &taxRate, &receipt.PayerID); err != nil {
		return nil, err
	}

	var err error
	if receipt.Subtotal, err = parseDecimal(subtotal); err != nil {
		return nil, err
	}
	if receipt.Tax, err = parseDecimal(tax); err != nil {
		return nil, err
	}
	if receipt.Total, err = parseDecimal(total); err != nil {
		return nil, err
	}
	if receipt.TaxRate, err = parseDecimal(taxRate); err != nil {
		return nil, err
	}
	return &receipt, nil
}
