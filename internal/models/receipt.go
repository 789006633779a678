package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Receipt is one shopping trip. Receipts are keyed by calendar date
// (YYYY-MM-DD); the household shops at most once a day.
type Receipt struct {
	// Date is the unique key, formatted YYYY-MM-DD.
	Date string

	// Subtotal is the pre-tax sum of all items.
	Subtotal decimal.Decimal

	// Tax is the tax charged on the taxed items.
	Tax decimal.Decimal

	// Total is the amount the payer actually paid. The upstream ingest
	// validates Total against Subtotal + Tax; the server trusts it.
	Total decimal.Decimal

	// TaxRate is the fractional sales tax rate applied to taxed items
	// (e.g. 0.0800).
	TaxRate decimal.Decimal

	// PayerID is the user who paid for the whole receipt.
	PayerID UserID
}

func (r *Receipt) String() string {
	return fmt.Sprintf("Receipt for $%s on %s", r.Total, r.Date)
}

// Item is a single line item on a receipt.
type Item struct {
	// ID is the row identifier assigned by the store.
	ID int64

	// ReceiptDate is the key of the owning receipt.
	ReceiptDate string

	// Name is the product name as scraped from the order page.
	Name string

	// Count is how many units were bought at Price each.
	Count int

	// Price is the per-unit pre-tax price.
	Price decimal.Decimal

	// ImgSrc is the filename of the product image captured at ingest time.
	ImgSrc string

	// Taxed marks whether sales tax applies to this item.
	Taxed bool

	// Buyers is the set of users splitting this item. It is mutated only by
	// the review lobby while this item is under review or being finalized.
	Buyers UserSet
}

func (i *Item) String() string {
	return fmt.Sprintf("%d x %s bought on %s for $%s", i.Count, i.Name, i.ReceiptDate, i.Price)
}
