package sqlite

import (
	"context"
	"fmt"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
)

// CreateItem persists a new item and populates item.ID.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *models.Item) error {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO items (receipt_date, name, count, price, img_src, taxed, buyers) VALUES (?, ?, ?, ?, ?, ?, ?)",
		item.ReceiptDate,
		item.Name,
		item.Count,
		item.Price.String(),
		item.ImgSrc,
		item.Taxed,
		item.Buyers.Mask(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read item id: %w", err)
	}
	item.ID = id
	return nil
}

// ItemExists reports whether an item with this name is already on the receipt.
func (s *SQLiteStore) ItemExists(ctx context.Context, date, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM items WHERE receipt_date = ? AND name = ?",
		date, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check item existence: %w", err)
	}
	return count > 0, nil
}

// ListItems returns every item on a receipt in insertion order.
func (s *SQLiteStore) ListItems(ctx context.Context, date string) ([]models.Item, error) {
	return s.listItems(ctx,
		"SELECT id, receipt_date, name, count, price, img_src, taxed, buyers FROM items WHERE receipt_date = ? ORDER BY id",
		date,
	)
}

// ListClaimedItems returns only the items with at least one buyer.
func (s *SQLiteStore) ListClaimedItems(ctx context.Context, date string) ([]models.Item, error) {
	return s.listItems(ctx,
		"SELECT id, receipt_date, name, count, price, img_src, taxed, buyers FROM items WHERE receipt_date = ? AND buyers > 0 ORDER BY id",
		date,
	)
}

func (s *SQLiteStore) listItems(ctx context.Context, query string, args ...any) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var (
			item   models.Item
			price  string
			buyers uint32
		)
		if err := rows.Scan(&item.ID, &item.ReceiptDate, &item.Name, &item.Count, &price, &item.ImgSrc, &item.Taxed, &buyers); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if item.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		item.Buyers = models.UserSet(buyers)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// SaveItemBuyers writes the claimant set of a single item.
func (s *SQLiteStore) SaveItemBuyers(ctx context.Context, itemID int64, buyers models.UserSet) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE items SET buyers = ? WHERE id = ?",
		buyers.Mask(), itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to save item buyers: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check item update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %d does not exist", itemID)
	}
	return nil
}
