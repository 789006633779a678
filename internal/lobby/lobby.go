// Package lobby implements the live group review session for a receipt:
// participants gather, claim the items they bought, and converge on a cost
// split. One Lobby exists per receipt, obtained through the Registry.
package lobby

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/ledger"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/metrics"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// phase is the lobby's position in the review state machine. The ready
// condition and the countdown continuation both dispatch on it.
type phase int

const (
	// phaseGathering: waiting for every joined user to mark themselves
	// ready. The countdown leads into the item review.
	phaseGathering phase = iota

	// phaseReviewing: one item at a time is up for claiming. The countdown
	// leads to the next item.
	phaseReviewing
)

const (
	// fullCountdown is the tick count for the regular countdowns.
	fullCountdown = 5

	// claimCountdown is the shortened tick count after an exclusive claim.
	claimCountdown = 2

	tickInterval = time.Second
)

// Lobby is the live review session for one receipt. A single mutex
// serializes every entry point, participant actions and timer callbacks
// alike; an exclusive claim and a timer firing must never interleave.
type Lobby struct {
	mu         sync.Mutex
	receipt    *models.Receipt
	store      storage.Store
	calc       *ledger.Calculator
	transport  Transport
	deregister func()

	phase         phase
	closed        bool
	allUsers      models.UserSet
	activeUsers   models.UserSet
	exclusiveUser *models.User
	current       *models.Item
	remaining     []models.Item
	ticksLeft     int
	counting      bool
	timer         *time.Timer

	// afterFunc schedules the next tick; tests replace it to drive the
	// countdown by hand.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func newLobby(receipt *models.Receipt, store storage.Store, calc *ledger.Calculator, transport Transport, deregister func()) *Lobby {
	return &Lobby{
		receipt:    receipt,
		store:      store,
		calc:       calc,
		transport:  transport,
		deregister: deregister,
		phase:      phaseGathering,
		ticksLeft:  fullCountdown,
		afterFunc:  time.AfterFunc,
	}
}

// ReceiptDate returns the lobby's receipt key, which is also its broadcast
// group name.
func (l *Lobby) ReceiptDate() string {
	return l.receipt.Date
}

// AddUser joins a user to the lobby. Re-adding a present user is a no-op
// beyond the rebroadcast.
func (l *Lobby) AddUser(ctx context.Context, user *models.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.allUsers = l.allUsers.Add(user.BuyIndex)
	l.updateUsers(ctx)
}

// RemoveUser takes a user out of the lobby. When the last user leaves the
// lobby tears itself down; if item review had already started, the claims
// recorded so far are still committed to the ledger.
func (l *Lobby) RemoveUser(ctx context.Context, user *models.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.allUsers = l.allUsers.Remove(user.BuyIndex)
	if !l.allUsers.Empty() {
		if l.phase == phaseGathering {
			l.activeUsers = l.activeUsers.Remove(user.BuyIndex)
		}
		l.updateUsers(ctx)
		return
	}

	l.close()
	if l.phase == phaseReviewing {
		if _, err := l.calc.Recalculate(ctx, l.receipt); err != nil {
			slog.Error("Recalculation after abandoned review failed",
				"receipt", l.receipt.Date, "error", err)
		}
	}
}

// ActivateUser marks a user ready. Ignored while an exclusive claim holds
// the floor.
func (l *Lobby) ActivateUser(ctx context.Context, user *models.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.exclusiveUser != nil {
		return
	}
	l.activeUsers = l.activeUsers.Add(user.BuyIndex)
	l.updateUsers(ctx)
}

// DeactivateUser clears a user's ready mark. Ignored while an exclusive
// claim holds the floor.
func (l *Lobby) DeactivateUser(ctx context.Context, user *models.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.exclusiveUser != nil {
		return
	}
	l.activeUsers = l.activeUsers.Remove(user.BuyIndex)
	l.updateUsers(ctx)
}

// ClaimItem takes the current item exclusively for one user. First come
// wins: if another claim is already held, or the item has moved on, the
// request is silently dropped — the loser simply sees the winner's
// broadcast. A successful claim collapses the active set to the claimant
// and shortens the countdown.
func (l *Lobby) ClaimItem(ctx context.Context, user *models.User, itemID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.exclusiveUser != nil || l.current == nil || l.current.ID != itemID {
		return
	}
	l.stopTimer()
	l.exclusiveUser = user
	l.activeUsers = models.NewUserSet(user.BuyIndex)
	l.transport.GroupSend(l.receipt.Date, ItemClaimEvent{
		Type: EventItemClaim,
		User: newUserRef(user),
	})
	l.ticksLeft = claimCountdown
	l.tick(ctx)
}

// State returns the snapshot a newly joined participant resynchronizes from.
func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := State{
		AllUsers:    l.allUsers.Members(),
		ActiveUsers: l.activeUsers.Members(),
	}
	if l.exclusiveUser != nil {
		ref := newUserRef(l.exclusiveUser)
		state.ExclusiveUser = &ref
	}
	if l.counting {
		// The displayed count is one ahead: ticksLeft has already been
		// decremented for the tick currently in flight.
		t := l.ticksLeft + 1
		state.Time = &t
	}
	if l.phase == phaseReviewing && l.current != nil {
		view := newItemView(l.current)
		state.Item = &view
	}
	return state
}

// updateUsers re-evaluates readiness and rebroadcasts membership.
// Callers must hold l.mu.
func (l *Lobby) updateUsers(ctx context.Context) {
	l.checkCountdown(ctx)
	l.transport.GroupSend(l.receipt.Date, UserChangeEvent{
		Type:        EventUserChange,
		AllUsers:    l.allUsers.Members(),
		ActiveUsers: l.activeUsers.Members(),
	})
}

// ready is the phase-dependent countdown gate.
func (l *Lobby) ready() bool {
	switch l.phase {
	case phaseGathering:
		return l.activeUsers == l.allUsers
	default:
		return !l.activeUsers.Empty()
	}
}

// checkCountdown starts the countdown when the ready condition holds and
// cancels it when it no longer does. Callers must hold l.mu.
func (l *Lobby) checkCountdown(ctx context.Context) {
	if l.ready() {
		if !l.counting {
			l.tick(ctx)
		}
	} else if l.counting {
		l.stopTimer()
		l.ticksLeft = fullCountdown
		l.sendTime(nil)
	}
}

// tick advances the countdown: while ticks remain it schedules the next
// tick and broadcasts the new value; at zero it resets the counter and
// runs the phase's continuation. Callers must hold l.mu.
func (l *Lobby) tick(ctx context.Context) {
	if l.ticksLeft > 0 {
		l.counting = true
		l.timer = l.afterFunc(tickInterval, l.onTimer)
		t := l.ticksLeft
		l.sendTime(&t)
		l.ticksLeft--
		return
	}

	l.ticksLeft = fullCountdown
	l.counting = false
	l.timer = nil
	switch l.phase {
	case phaseGathering:
		l.beginReview(ctx)
	case phaseReviewing:
		l.advanceItem(ctx)
	}
}

// onTimer is the timer callback. A tick that fires after the lobby closed
// or the countdown was cancelled is stale and must be ignored.
func (l *Lobby) onTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.counting {
		return
	}
	l.tick(context.Background())
}

func (l *Lobby) sendTime(t *int) {
	l.transport.GroupSend(l.receipt.Date, TimeChangeEvent{Type: EventTimeChange, Time: t})
}

func (l *Lobby) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.counting = false
}

// beginReview transitions from gathering to reviewing and puts the first
// item up. Callers must hold l.mu.
func (l *Lobby) beginReview(ctx context.Context) {
	items, err := l.store.ListItems(ctx, l.receipt.Date)
	if err != nil {
		slog.Error("Failed to load items for review", "receipt", l.receipt.Date, "error", err)
		// Phase unchanged; the ready condition still holds, so the
		// countdown restarts and the load is retried.
		l.checkCountdown(ctx)
		return
	}
	l.phase = phaseReviewing
	l.remaining = items
	l.advanceItem(ctx)
}

// advanceItem commits the finished item's claimant set, then moves review
// to the next item or finalizes the session. The commit happens first so
// the ledger reads back exactly what was claimed; a failed commit keeps the
// current item so the next countdown retries it. Callers must hold l.mu.
func (l *Lobby) advanceItem(ctx context.Context) {
	if l.current != nil {
		if err := l.store.SaveItemBuyers(ctx, l.current.ID, l.activeUsers); err != nil {
			slog.Error("Failed to commit item claims", "receipt", l.receipt.Date,
				"item", l.current.ID, "error", err)
			l.checkCountdown(ctx)
			return
		}
		l.current.Buyers = l.activeUsers
	}

	if len(l.remaining) == 0 {
		l.finish(ctx)
		return
	}

	item := l.remaining[0]
	l.remaining = l.remaining[1:]
	l.current = &item
	l.exclusiveUser = nil
	// Resume from whatever was claimed in an earlier, abandoned session.
	l.activeUsers = item.Buyers
	l.transport.GroupSend(l.receipt.Date, ItemChangeEvent{
		Type:        EventItemChange,
		Item:        newItemView(&item),
		ActiveUsers: item.Buyers.Members(),
	})
	l.updateUsers(ctx)
}

// finish ends the review: deregister, settle the ledger, broadcast the
// shares, and tell the coordinator to release every participant. Callers
// must hold l.mu.
func (l *Lobby) finish(ctx context.Context) {
	l.close()
	amounts, err := l.calc.Recalculate(ctx, l.receipt)
	if err != nil {
		slog.Error("Final recalculation failed", "receipt", l.receipt.Date, "error", err)
	}
	l.transport.GroupSend(l.receipt.Date, FinishedEvent{
		Type:   EventFinished,
		Payer:  l.receipt.PayerID,
		Shares: amounts,
	})
	l.transport.Send(CoordinatorChannel, ClosedEvent{
		Type:        EventClosed,
		ReceiptDate: l.receipt.Date,
		Users:       l.allUsers.Members(),
	})
	metrics.ReviewsFinished.Inc()
	slog.Info("Review finished", "receipt", l.receipt.Date, "users", l.allUsers.Len())
}

// close marks the lobby dead, cancels any pending tick, and removes it
// from the registry. Callers must hold l.mu.
func (l *Lobby) close() {
	l.closed = true
	l.stopTimer()
	l.deregister()
}
