// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence operations the server needs. This abstraction
// allows swapping storage backends (SQLite, PostgreSQL, etc.) without changing
// the lobby, ledger, or service layers.
type Store interface {
	// GetReceipt retrieves a receipt by its date key.
	GetReceipt(ctx context.Context, date string) (*models.Receipt, error)

	// ListReceipts returns all receipts, newest first.
	ListReceipts(ctx context.Context) ([]*models.Receipt, error)

	// CreateReceipt persists a new receipt. The date must be unused.
	CreateReceipt(ctx context.Context, receipt *models.Receipt) error

	// ListItems returns every item on a receipt in insertion order.
	ListItems(ctx context.Context, date string) ([]models.Item, error)

	// ListClaimedItems returns only the items with at least one buyer.
	ListClaimedItems(ctx context.Context, date string) ([]models.Item, error)

	// CreateItem persists a new item. The item.ID field is populated.
	CreateItem(ctx context.Context, item *models.Item) error

	// ItemExists reports whether an item with this name is already on the
	// receipt. Used for duplicate detection during ingest.
	ItemExists(ctx context.Context, date, name string) (bool, error)

	// SaveItemBuyers writes the claimant set of a single item.
	SaveItemBuyers(ctx context.Context, itemID int64, buyers models.UserSet) error

	// ListUsers returns all registered users ordered by buy index.
	ListUsers(ctx context.Context) ([]*models.User, error)

	// GetUser retrieves a user by their buy index.
	GetUser(ctx context.Context, id models.UserID) (*models.User, error)

	// CreateUser registers a new user. The buy index must be an unused
	// power of two.
	CreateUser(ctx context.Context, user *models.User) error

	// FindCover retrieves the cover for a (receipt, user) pair.
	FindCover(ctx context.Context, date string, user models.UserID) (*models.Cover, error)

	// SaveCover inserts the cover when ID is zero, otherwise updates it.
	SaveCover(ctx context.Context, cover *models.Cover) error

	// DeleteCover removes a cover by ID.
	DeleteCover(ctx context.Context, coverID int64) error

	// ListCoversByPayer returns covers where the user fronted the money.
	ListCoversByPayer(ctx context.Context, payer models.UserID) ([]*models.Cover, error)

	// ListCoversByUser returns covers where the user owes money.
	ListCoversByUser(ctx context.Context, user models.UserID) ([]*models.Cover, error)

	// CreatePayment records a repayment between two users.
	CreatePayment(ctx context.Context, payment *models.Payment) error

	// ListPaymentsByPayee returns payments received by the user.
	ListPaymentsByPayee(ctx context.Context, payee models.UserID) ([]*models.Payment, error)

	// ListPaymentsByPayer returns payments made by the user.
	ListPaymentsByPayer(ctx context.Context, payer models.UserID) ([]*models.Payment, error)

	// Close releases any resources held by the store.
	Close() error
}
