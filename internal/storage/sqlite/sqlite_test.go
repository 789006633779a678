package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	users := []*models.User{
		{BuyIndex: 1, Name: "Alice", Username: "alice"},
		{BuyIndex: 2, Name: "Bob", Username: "bob"},
		{BuyIndex: 4, Name: "Carol", Username: "carol"},
	}
	for _, u := range users {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser(%v) failed: %v", u, err)
		}
	}

	t.Run("CreateUser rejects composite buy index", func(t *testing.T) {
		err := store.CreateUser(ctx, &models.User{BuyIndex: 3, Name: "Nope"})
		if err == nil {
			t.Fatal("expected error for buy index 3")
		}
	})

	t.Run("ListUsers orders by buy index", func(t *testing.T) {
		got, err := store.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("ListUsers returned %d users, want 3", len(got))
		}
		for i, u := range got {
			if u.BuyIndex != users[i].BuyIndex || u.Name != users[i].Name {
				t.Errorf("user[%d] = %v, want %v", i, u, users[i])
			}
		}
	})

	t.Run("receipt round trip", func(t *testing.T) {
		receipt := &models.Receipt{
			Date:     "2020-03-14",
			Subtotal: dec(t, "41.50"),
			Tax:      dec(t, "1.23"),
			Total:    dec(t, "42.73"),
			TaxRate:  dec(t, "0.0800"),
			PayerID:  1,
		}
		if err := store.CreateReceipt(ctx, receipt); err != nil {
			t.Fatalf("CreateReceipt failed: %v", err)
		}

		got, err := store.GetReceipt(ctx, "2020-03-14")
		if err != nil {
			t.Fatalf("GetReceipt failed: %v", err)
		}
		if !got.Subtotal.Equal(receipt.Subtotal) || !got.TaxRate.Equal(receipt.TaxRate) || got.PayerID != 1 {
			t.Errorf("GetReceipt = %+v, want %+v", got, receipt)
		}
	})

	t.Run("GetReceipt unknown date is ErrNotFound", func(t *testing.T) {
		_, err := store.GetReceipt(ctx, "1999-01-01")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("items and buyer updates", func(t *testing.T) {
		item := &models.Item{
			ReceiptDate: "2020-03-14",
			Name:        "Frozen Pizza",
			Count:       2,
			Price:       dec(t, "5.48"),
			ImgSrc:      "pizza.jpeg",
			Taxed:       true,
		}
		if err := store.CreateItem(ctx, item); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}
		if item.ID == 0 {
			t.Fatal("expected item ID to be assigned")
		}

		exists, err := store.ItemExists(ctx, "2020-03-14", "Frozen Pizza")
		if err != nil || !exists {
			t.Errorf("ItemExists = %v, %v; want true, nil", exists, err)
		}

		if err := store.SaveItemBuyers(ctx, item.ID, models.NewUserSet(1, 4)); err != nil {
			t.Fatalf("SaveItemBuyers failed: %v", err)
		}

		claimed, err := store.ListClaimedItems(ctx, "2020-03-14")
		if err != nil {
			t.Fatalf("ListClaimedItems failed: %v", err)
		}
		if len(claimed) != 1 || claimed[0].Buyers != models.NewUserSet(1, 4) {
			t.Errorf("ListClaimedItems = %+v", claimed)
		}
		if !claimed[0].Taxed || !claimed[0].Price.Equal(dec(t, "5.48")) {
			t.Errorf("item fields lost in round trip: %+v", claimed[0])
		}
	})

	t.Run("SaveItemBuyers on missing item errors", func(t *testing.T) {
		if err := store.SaveItemBuyers(ctx, 9999, models.NewUserSet(1)); err == nil {
			t.Error("expected error for missing item")
		}
	})

	t.Run("cover lifecycle", func(t *testing.T) {
		cover := &models.Cover{
			ReceiptDate: "2020-03-14",
			PayerID:     1,
			UserID:      4,
			Amount:      dec(t, "5.92"),
		}
		if err := store.SaveCover(ctx, cover); err != nil {
			t.Fatalf("SaveCover insert failed: %v", err)
		}
		if cover.ID == 0 {
			t.Fatal("expected cover ID to be assigned")
		}

		cover.Amount = dec(t, "6.40")
		if err := store.SaveCover(ctx, cover); err != nil {
			t.Fatalf("SaveCover update failed: %v", err)
		}

		got, err := store.FindCover(ctx, "2020-03-14", 4)
		if err != nil {
			t.Fatalf("FindCover failed: %v", err)
		}
		if !got.Amount.Equal(dec(t, "6.40")) {
			t.Errorf("cover amount = %s, want 6.40", got.Amount)
		}

		if err := store.DeleteCover(ctx, cover.ID); err != nil {
			t.Fatalf("DeleteCover failed: %v", err)
		}
		if _, err := store.FindCover(ctx, "2020-03-14", 4); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err after delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("payments by payee and payer", func(t *testing.T) {
		payment := &models.Payment{PayeeID: 1, PayerID: 2, Amount: dec(t, "10.00")}
		if err := store.CreatePayment(ctx, payment); err != nil {
			t.Fatalf("CreatePayment failed: %v", err)
		}
		if payment.CreatedAt == 0 {
			t.Error("expected CreatedAt to be set")
		}

		received, err := store.ListPaymentsByPayee(ctx, 1)
		if err != nil || len(received) != 1 {
			t.Fatalf("ListPaymentsByPayee = %v, %v", received, err)
		}
		made, err := store.ListPaymentsByPayer(ctx, 2)
		if err != nil || len(made) != 1 {
			t.Fatalf("ListPaymentsByPayer = %v, %v", made, err)
		}
		if !made[0].Amount.Equal(dec(t, "10.00")) {
			t.Errorf("payment amount = %s, want 10.00", made[0].Amount)
		}
	})
}
