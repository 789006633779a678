package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cover records how much one user owes the payer of a receipt. There is at
// most one Cover per (receipt, user) pair, and never one for the payer
// themselves. Covers are created, updated, and deleted exclusively by the
// ledger recalculation.
type Cover struct {
	// ID is the row identifier assigned by the store.
	ID int64

	// ReceiptDate is the key of the receipt this cover settles.
	ReceiptDate string

	// PayerID is the user who fronted the money.
	PayerID UserID

	// UserID is the user who owes their share back.
	UserID UserID

	// Amount is the share owed, rounded up to the cent.
	Amount decimal.Decimal
}

func (c *Cover) String() string {
	return fmt.Sprintf("user %d covers user %d for $%s on %s", c.PayerID, c.UserID, c.Amount, c.ReceiptDate)
}

// Payment records money handed from one user to another to pay down covers.
// Payments are not tied to a specific receipt; balances net covers against
// payments per counterparty.
type Payment struct {
	// ID is the row identifier assigned by the store.
	ID int64

	// PayeeID is the user receiving the money (the one who was owed).
	PayeeID UserID

	// PayerID is the user paying their debt down.
	PayerID UserID

	// Amount is the amount handed over.
	Amount decimal.Decimal

	// CreatedAt is the Unix timestamp when the payment was recorded.
	CreatedAt int64
}

func (p *Payment) String() string {
	return fmt.Sprintf("user %d paid user %d $%s", p.PayerID, p.PayeeID, p.Amount)
}
