package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
)

// balances nets covers against recorded payments for one user. For each
// counterparty: what they cover of the user's receipts, minus what the user
// covers of theirs, plus payments the user made, minus payments received.
func (w *Worker) balances(ctx context.Context, userID models.UserID) ([]Balance, error) {
	net := make(map[models.UserID]decimal.Decimal)
	add := func(id models.UserID, amount decimal.Decimal) {
		net[id] = net[id].Add(amount)
	}

	owedToUser, err := w.store.ListCoversByPayer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list covers owed: %w", err)
	}
	for _, cover := range owedToUser {
		add(cover.UserID, cover.Amount)
	}

	userOwes, err := w.store.ListCoversByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list covers owing: %w", err)
	}
	for _, cover := range userOwes {
		add(cover.PayerID, cover.Amount.Neg())
	}

	paid, err := w.store.ListPaymentsByPayer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments made: %w", err)
	}
	for _, payment := range paid {
		add(payment.PayeeID, payment.Amount)
	}

	received, err := w.store.ListPaymentsByPayee(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments received: %w", err)
	}
	for _, payment := range received {
		add(payment.PayerID, payment.Amount.Neg())
	}

	balances := make([]Balance, 0, len(net))
	for id, amount := range net {
		balances = append(balances, Balance{UserID: id, Net: amount})
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].UserID < balances[j].UserID
	})
	return balances, nil
}
