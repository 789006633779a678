package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/hub"
	lobbypkg "github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/lobby"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/metrics"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

var (
	// ErrUnknownSession means the session ID is not registered.
	ErrUnknownSession = errors.New("unknown session")

	// ErrInvalidAction means the action name or its parameters are bad.
	ErrInvalidAction = errors.New("invalid action")

	// ErrNoLobby means the action needs a joined lobby and there is none.
	ErrNoLobby = errors.New("session has not joined a lobby")
)

// Action is a client request. Which parameter fields matter depends on the
// action name; the rest are ignored.
type Action struct {
	Action      string        `json:"action"`
	ReceiptDate string        `json:"receipt_date,omitempty"`
	Status      string        `json:"status,omitempty"`
	ItemID      int64         `json:"item_id,omitempty"`
	PayeeID     models.UserID `json:"payee_id,omitempty"`
	Amount      string        `json:"amount,omitempty"`
}

// Worker executes session actions. One worker serves every session; its
// mutex guards the session table and each session's lobby reference.
type Worker struct {
	mu       sync.Mutex
	hub      *hub.Hub
	registry *lobbypkg.Registry
	store    storage.Store
	sessions map[string]*Session
}

// NewWorker creates a worker over the given hub, lobby registry, and store.
func NewWorker(h *hub.Hub, registry *lobbypkg.Registry, store storage.Store) *Worker {
	return &Worker{
		hub:      h,
		registry: registry,
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// Run consumes lobby-close notifications until the context is cancelled.
// It must run in its own goroutine before any lobby can finish.
func (w *Worker) Run(ctx context.Context) {
	sub := w.hub.Subscribe(lobbypkg.CoordinatorChannel)
	for {
		select {
		case <-ctx.Done():
			w.hub.Unsubscribe(sub)
			return
		case raw, ok := <-sub.Events():
			if !ok {
				return
			}
			if closed, ok := raw.(lobbypkg.ClosedEvent); ok {
				w.onLobbyClosed(closed)
			}
		}
	}
}

// onLobbyClosed clears the lobby reference of every session that was in the
// closed lobby. The lobby itself has already deregistered.
func (w *Worker) onLobbyClosed(event lobbypkg.ClosedEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, session := range w.sessions {
		if session.lobby != nil && session.lobby.ReceiptDate() == event.ReceiptDate {
			session.lobby = nil
			w.hub.LeaveGroup(event.ReceiptDate, session.ID)
		}
	}
}

// Dispatch executes one action for the session. Results and lobby updates
// arrive on the session's hub channel; the returned error only reports
// request problems.
func (w *Worker) Dispatch(ctx context.Context, sessionID string, action Action) error {
	err := w.dispatch(ctx, sessionID, action)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Actions.WithLabelValues(action.Action, outcome).Inc()
	return err
}

func (w *Worker) dispatch(ctx context.Context, sessionID string, action Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	session, ok := w.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}

	switch action.Action {
	case "join_lobby":
		return w.joinLobby(ctx, session, action.ReceiptDate)
	case "leave_lobby":
		return w.leaveLobby(ctx, session)
	case "change_status":
		return w.changeStatus(ctx, session, action.Status)
	case "claim_item":
		return w.claimItem(ctx, session, action.ItemID)
	case "record_payment":
		return w.recordPayment(ctx, session, action.PayeeID, action.Amount)
	case "view_balances":
		return w.viewBalances(ctx, session)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action.Action)
	}
}

func (w *Worker) joinLobby(ctx context.Context, session *Session, date string) error {
	if date == "" {
		return fmt.Errorf("%w: receipt_date required", ErrInvalidAction)
	}
	if session.lobby != nil {
		// Switching receipts: leave the old lobby first.
		w.hub.LeaveGroup(session.lobby.ReceiptDate(), session.ID)
		session.lobby.RemoveUser(ctx, session.User)
		session.lobby = nil
	}

	lobby, err := w.registry.GetOrCreate(ctx, date)
	if err != nil {
		return err
	}

	// Join the broadcast group only after AddUser so the snapshot below is
	// the client's first event.
	lobby.AddUser(ctx, session.User)
	w.hub.JoinGroup(date, session.ID)
	session.lobby = lobby

	w.hub.Send(session.ID, InitEvent{
		Type:        EventInit,
		ReceiptDate: date,
		State:       lobby.State(),
	})
	return nil
}

func (w *Worker) leaveLobby(ctx context.Context, session *Session) error {
	if session.lobby == nil {
		return ErrNoLobby
	}
	w.hub.LeaveGroup(session.lobby.ReceiptDate(), session.ID)
	session.lobby.RemoveUser(ctx, session.User)
	session.lobby = nil
	return nil
}

func (w *Worker) changeStatus(ctx context.Context, session *Session, status string) error {
	if session.lobby == nil {
		return ErrNoLobby
	}
	switch status {
	case "active":
		session.lobby.ActivateUser(ctx, session.User)
	case "inactive":
		session.lobby.DeactivateUser(ctx, session.User)
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidAction, status)
	}
	return nil
}

func (w *Worker) claimItem(ctx context.Context, session *Session, itemID int64) error {
	if session.lobby == nil {
		return ErrNoLobby
	}
	if itemID <= 0 {
		return fmt.Errorf("%w: item_id required", ErrInvalidAction)
	}
	session.lobby.ClaimItem(ctx, session.User, itemID)
	return nil
}

func (w *Worker) recordPayment(ctx context.Context, session *Session, payeeID models.UserID, amount string) error {
	if !payeeID.Valid() || payeeID == session.User.BuyIndex {
		return fmt.Errorf("%w: bad payee", ErrInvalidAction)
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil || !parsed.IsPositive() {
		return fmt.Errorf("%w: bad amount %q", ErrInvalidAction, amount)
	}
	if _, err := w.store.GetUser(ctx, payeeID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: unknown payee %d", ErrInvalidAction, payeeID)
		}
		return err
	}

	payment := &models.Payment{
		PayeeID: payeeID,
		PayerID: session.User.BuyIndex,
		Amount:  parsed,
	}
	if err := w.store.CreatePayment(ctx, payment); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}

	w.hub.Send(session.ID, PaymentEvent{
		Type:      EventPaymentRecorded,
		PaymentID: payment.ID,
		Payee:     payeeID,
		Amount:    parsed,
	})
	return nil
}

func (w *Worker) viewBalances(ctx context.Context, session *Session) error {
	balances, err := w.balances(ctx, session.User.BuyIndex)
	if err != nil {
		return fmt.Errorf("view balances: %w", err)
	}
	w.hub.Send(session.ID, BalancesEvent{
		Type:     EventBalances,
		Balances: balances,
	})
	return nil
}
