package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/hub"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/ledger"
	lobbypkg "github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/lobby"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage/sqlite"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func newTestWorker(t *testing.T) (*Worker, *hub.Hub, storage.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(t.TempDir() + "/dispatch.db")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for id, name := range map[models.UserID]string{1: "Alice", 2: "Bob", 4: "Carol"} {
		if err := store.CreateUser(ctx, &models.User{BuyIndex: id, Name: name}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}
	receipt := &models.Receipt{
		Date:     "2020-03-14",
		Subtotal: dec(t, "10.00"),
		Tax:      decimal.Zero,
		Total:    dec(t, "10.00"),
		TaxRate:  decimal.Zero,
		PayerID:  1,
	}
	if err := store.CreateReceipt(ctx, receipt); err != nil {
		t.Fatalf("CreateReceipt failed: %v", err)
	}

	h := hub.New()
	registry := lobbypkg.NewRegistry(store, ledger.NewCalculator(store), h)
	return NewWorker(h, registry, store), h, store
}

// recv pops the next event from a session channel, failing if none arrives.
func recv(t *testing.T, events <-chan any) any {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event on session channel")
		return nil
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("create and look up", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, err := worker.CreateSession(ctx, 2)
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if session.User.Name != "Bob" {
			t.Errorf("session user = %q, want Bob", session.User.Name)
		}
		if got, ok := worker.Session(session.ID); !ok || got != session {
			t.Error("Session lookup failed")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		if _, err := worker.CreateSession(ctx, 8); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("close leaves the lobby", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, err := worker.CreateSession(ctx, 2)
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if err := worker.Dispatch(ctx, session.ID, Action{Action: "join_lobby", ReceiptDate: "2020-03-14"}); err != nil {
			t.Fatalf("join_lobby failed: %v", err)
		}
		worker.CloseSession(ctx, session.ID)

		if _, ok := worker.Session(session.ID); ok {
			t.Error("closed session still registered")
		}
		if worker.registry.Len() != 0 {
			t.Error("lobby should tear down when its only member's session closes")
		}
	})
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		if err := worker.Dispatch(ctx, "nope", Action{Action: "view_balances"}); !errors.Is(err, ErrUnknownSession) {
			t.Errorf("err = %v, want ErrUnknownSession", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		if err := worker.Dispatch(ctx, session.ID, Action{Action: "dance"}); !errors.Is(err, ErrInvalidAction) {
			t.Errorf("err = %v, want ErrInvalidAction", err)
		}
	})

	t.Run("join sends the lobby snapshot", func(t *testing.T) {
		worker, h, _ := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		events := h.Subscribe(session.ID).Events()

		if err := worker.Dispatch(ctx, session.ID, Action{Action: "join_lobby", ReceiptDate: "2020-03-14"}); err != nil {
			t.Fatalf("join_lobby failed: %v", err)
		}

		init, ok := recv(t, events).(InitEvent)
		if !ok || init.Type != EventInit || init.ReceiptDate != "2020-03-14" {
			t.Fatalf("first event = %#v, want lobby_init", init)
		}
		if len(init.State.AllUsers) != 1 || init.State.AllUsers[0] != 2 {
			t.Errorf("snapshot users = %v, want [2]", init.State.AllUsers)
		}
	})

	t.Run("join unknown receipt", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		if err := worker.Dispatch(ctx, session.ID, Action{Action: "join_lobby", ReceiptDate: "1999-01-01"}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("lobby actions require a joined lobby", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		for _, action := range []Action{
			{Action: "leave_lobby"},
			{Action: "change_status", Status: "active"},
			{Action: "claim_item", ItemID: 1},
		} {
			if err := worker.Dispatch(ctx, session.ID, action); !errors.Is(err, ErrNoLobby) {
				t.Errorf("%s: err = %v, want ErrNoLobby", action.Action, err)
			}
		}
	})

	t.Run("leave tears down a singleton lobby", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		if err := worker.Dispatch(ctx, session.ID, Action{Action: "join_lobby", ReceiptDate: "2020-03-14"}); err != nil {
			t.Fatalf("join_lobby failed: %v", err)
		}
		if err := worker.Dispatch(ctx, session.ID, Action{Action: "leave_lobby"}); err != nil {
			t.Fatalf("leave_lobby failed: %v", err)
		}
		if worker.registry.Len() != 0 {
			t.Error("lobby should deregister after its only member leaves")
		}
	})

	t.Run("lobby close clears every participant", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		if err := worker.Dispatch(ctx, session.ID, Action{Action: "join_lobby", ReceiptDate: "2020-03-14"}); err != nil {
			t.Fatalf("join_lobby failed: %v", err)
		}

		worker.onLobbyClosed(lobbypkg.ClosedEvent{ReceiptDate: "2020-03-14"})
		if err := worker.Dispatch(ctx, session.ID, Action{Action: "change_status", Status: "active"}); !errors.Is(err, ErrNoLobby) {
			t.Errorf("err after close = %v, want ErrNoLobby", err)
		}
	})
}

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("validates its parameters", func(t *testing.T) {
		worker, _, _ := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		for name, action := range map[string]Action{
			"self payment":   {Action: "record_payment", PayeeID: 2, Amount: "5.00"},
			"bad payee":      {Action: "record_payment", PayeeID: 3, Amount: "5.00"},
			"unknown payee":  {Action: "record_payment", PayeeID: 8, Amount: "5.00"},
			"bad amount":     {Action: "record_payment", PayeeID: 1, Amount: "five"},
			"zero amount":    {Action: "record_payment", PayeeID: 1, Amount: "0"},
			"negative value": {Action: "record_payment", PayeeID: 1, Amount: "-2.00"},
		} {
			if err := worker.Dispatch(ctx, session.ID, action); !errors.Is(err, ErrInvalidAction) {
				t.Errorf("%s: err = %v, want ErrInvalidAction", name, err)
			}
		}
	})

	t.Run("stores and acknowledges", func(t *testing.T) {
		worker, h, store := newTestWorker(t)
		session, _ := worker.CreateSession(ctx, 2)
		events := h.Subscribe(session.ID).Events()

		if err := worker.Dispatch(ctx, session.ID, Action{Action: "record_payment", PayeeID: 1, Amount: "6.50"}); err != nil {
			t.Fatalf("record_payment failed: %v", err)
		}

		ack, ok := recv(t, events).(PaymentEvent)
		if !ok || ack.Type != EventPaymentRecorded || ack.Payee != 1 || !ack.Amount.Equal(dec(t, "6.50")) {
			t.Fatalf("ack = %#v", ack)
		}

		payments, err := store.ListPaymentsByPayer(ctx, 2)
		if err != nil {
			t.Fatalf("ListPaymentsByPayer failed: %v", err)
		}
		if len(payments) != 1 || !payments[0].Amount.Equal(dec(t, "6.50")) || payments[0].PayeeID != 1 {
			t.Errorf("stored payments = %+v", payments)
		}
	})
}

func TestViewBalances(t *testing.T) {
	ctx := context.Background()
	worker, h, store := newTestWorker(t)

	// User 2 owes user 1 a 10.00 cover, has paid back 4.00, and is owed
	// 3.00 by user 4.
	if err := store.SaveCover(ctx, &models.Cover{ReceiptDate: "2020-03-14", PayerID: 1, UserID: 2, Amount: dec(t, "10.00")}); err != nil {
		t.Fatalf("SaveCover failed: %v", err)
	}
	if err := store.CreatePayment(ctx, &models.Payment{PayeeID: 1, PayerID: 2, Amount: dec(t, "4.00")}); err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	second := &models.Receipt{
		Date:     "2020-03-15",
		Subtotal: dec(t, "3.00"),
		Tax:      decimal.Zero,
		Total:    dec(t, "3.00"),
		TaxRate:  decimal.Zero,
		PayerID:  2,
	}
	if err := store.CreateReceipt(ctx, second); err != nil {
		t.Fatalf("CreateReceipt failed: %v", err)
	}
	if err := store.SaveCover(ctx, &models.Cover{ReceiptDate: "2020-03-15", PayerID: 2, UserID: 4, Amount: dec(t, "3.00")}); err != nil {
		t.Fatalf("SaveCover failed: %v", err)
	}

	session, _ := worker.CreateSession(ctx, 2)
	events := h.Subscribe(session.ID).Events()
	if err := worker.Dispatch(ctx, session.ID, Action{Action: "view_balances"}); err != nil {
		t.Fatalf("view_balances failed: %v", err)
	}

	balances, ok := recv(t, events).(BalancesEvent)
	if !ok || balances.Type != EventBalances {
		t.Fatalf("event = %#v, want balances", balances)
	}
	if len(balances.Balances) != 2 {
		t.Fatalf("balances = %+v, want entries for users 1 and 4", balances.Balances)
	}
	if balances.Balances[0].UserID != 1 || !balances.Balances[0].Net.Equal(dec(t, "-6.00")) {
		t.Errorf("net against user 1 = %+v, want -6.00", balances.Balances[0])
	}
	if balances.Balances[1].UserID != 4 || !balances.Balances[1].Net.Equal(dec(t, "3.00")) {
		t.Errorf("net against user 4 = %+v, want 3.00", balances.Balances[1])
	}
}
