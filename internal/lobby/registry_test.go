package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/ledger"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage/sqlite"
)

func newTestRegistry(t *testing.T) (*Registry, storage.Store) {
	t.Helper()
	store, err := sqlite.New(t.TempDir() + "/registry.db")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRegistry(store, ledger.NewCalculator(store), newFakeTransport()), store
}

func seedReceipt(t *testing.T, store storage.Store, date string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateUser(ctx, &models.User{BuyIndex: 1, Name: "Alice"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	receipt := &models.Receipt{
		Date:     date,
		Subtotal: decimal.New(100, -1),
		Tax:      decimal.Zero,
		Total:    decimal.New(100, -1),
		TaxRate:  decimal.Zero,
		PayerID:  1,
	}
	if err := store.CreateReceipt(ctx, receipt); err != nil {
		t.Fatalf("CreateReceipt failed: %v", err)
	}
}

func TestRegistryGetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown receipt", func(t *testing.T) {
		registry, _ := newTestRegistry(t)
		if _, err := registry.GetOrCreate(ctx, "2020-01-01"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		if registry.Len() != 0 {
			t.Error("failed lookup must not register a lobby")
		}
	})

	t.Run("one lobby per receipt", func(t *testing.T) {
		registry, store := newTestRegistry(t)
		seedReceipt(t, store, "2020-01-01")

		first, err := registry.GetOrCreate(ctx, "2020-01-01")
		if err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
		second, err := registry.GetOrCreate(ctx, "2020-01-01")
		if err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
		if first != second {
			t.Error("same receipt must map to the same lobby")
		}
		if registry.Len() != 1 {
			t.Errorf("Len() = %d, want 1", registry.Len())
		}
	})

	t.Run("concurrent callers share one lobby", func(t *testing.T) {
		registry, store := newTestRegistry(t)
		seedReceipt(t, store, "2020-01-01")

		var wg sync.WaitGroup
		lobbies := make([]*Lobby, 8)
		for i := range lobbies {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				l, err := registry.GetOrCreate(ctx, "2020-01-01")
				if err != nil {
					t.Errorf("GetOrCreate failed: %v", err)
					return
				}
				lobbies[i] = l
			}(i)
		}
		wg.Wait()

		for i := 1; i < len(lobbies); i++ {
			if lobbies[i] != lobbies[0] {
				t.Fatal("concurrent GetOrCreate returned distinct lobbies")
			}
		}
		if registry.Len() != 1 {
			t.Errorf("Len() = %d, want 1", registry.Len())
		}
	})
}
