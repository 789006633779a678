// Package ledger computes each user's share of a receipt and keeps the
// cover records reconciled with the items' claimant sets.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

var one = decimal.NewFromInt(1)

// Calculator recalculates receipt shares against the backing store.
type Calculator struct {
	store storage.Store
}

// NewCalculator creates a Calculator using the given storage backend.
func NewCalculator(store storage.Store) *Calculator {
	return &Calculator{store: store}
}

// Recalculate computes every claimant's share of the receipt and reconciles
// the stored cover records: covers are updated in place, deleted when the
// user no longer owes anything, and created when newly owed. No cover is
// ever written for the payer. The returned map includes the payer's own
// share when the payer claimed items.
//
// Recalculate is idempotent for a fixed set of item claimant data, so it is
// safe to invoke again at any time, including after an abandoned review.
func (c *Calculator) Recalculate(ctx context.Context, receipt *models.Receipt) (map[models.UserID]decimal.Decimal, error) {
	items, err := c.store.ListClaimedItems(ctx, receipt.Date)
	if err != nil {
		return nil, fmt.Errorf("list claimed items: %w", err)
	}

	taxMultiplier := receipt.TaxRate.Add(one)
	amounts := make(map[models.UserID]decimal.Decimal)
	for _, item := range items {
		buyers := item.Buyers.Members()
		cost := item.Price.Mul(decimal.NewFromInt(int64(item.Count)))
		if item.Taxed {
			cost = cost.Mul(taxMultiplier)
		}
		share := cost.Div(decimal.NewFromInt(int64(len(buyers))))
		for _, buyer := range buyers {
			amounts[buyer] = amounts[buyer].Add(share)
		}
	}

	// Round each accumulated share up to the cent. The payer absorbs at
	// most a fraction of a cent per claimant, never the other way around.
	for user, amount := range amounts {
		amounts[user] = amount.RoundCeil(2)
	}

	users, err := c.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, user := range users {
		if user.BuyIndex == receipt.PayerID {
			continue
		}
		if err := c.reconcileCover(ctx, receipt, user.BuyIndex, amounts); err != nil {
			return nil, err
		}
	}

	return amounts, nil
}

func (c *Calculator) reconcileCover(ctx context.Context, receipt *models.Receipt, user models.UserID, amounts map[models.UserID]decimal.Decimal) error {
	owed, ok := amounts[user]
	owes := ok && owed.IsPositive()
	cover, err := c.store.FindCover(ctx, receipt.Date, user)
	switch {
	case err == nil:
		if owes {
			cover.Amount = owed
			if err := c.store.SaveCover(ctx, cover); err != nil {
				return fmt.Errorf("update cover for user %d: %w", user, err)
			}
		} else if err := c.store.DeleteCover(ctx, cover.ID); err != nil {
			return fmt.Errorf("delete cover for user %d: %w", user, err)
		}
	case errors.Is(err, storage.ErrNotFound):
		if owes {
			cover = &models.Cover{
				ReceiptDate: receipt.Date,
				PayerID:     receipt.PayerID,
				UserID:      user,
				Amount:      owed,
			}
			if err := c.store.SaveCover(ctx, cover); err != nil {
				return fmt.Errorf("create cover for user %d: %w", user, err)
			}
		}
	default:
		return fmt.Errorf("find cover for user %d: %w", user, err)
	}
	return nil
}
