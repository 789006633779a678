package lobby

import (
	"context"
	"fmt"
	"sync"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/ledger"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/metrics"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// Registry is the process-wide directory of live lobbies, at most one per
// receipt. Lobbies are created lazily from the backing receipt record and
// remove themselves when their session ends; the registry never tears one
// down on its own.
type Registry struct {
	mu        sync.Mutex
	store     storage.Store
	calc      *ledger.Calculator
	transport Transport
	lobbies   map[string]*Lobby
}

// NewRegistry creates a Registry backed by the given store and transport.
func NewRegistry(store storage.Store, calc *ledger.Calculator, transport Transport) *Registry {
	return &Registry{
		store:     store,
		calc:      calc,
		transport: transport,
		lobbies:   make(map[string]*Lobby),
	}
}

// GetOrCreate returns the live lobby for the receipt date, creating it from
// the stored receipt if needed. storage.ErrNotFound propagates when no such
// receipt exists. The registry lock covers the whole lookup-or-create, so
// concurrent requests for one date always converge on a single instance.
func (r *Registry) GetOrCreate(ctx context.Context, date string) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.lobbies[date]; ok {
		return l, nil
	}

	receipt, err := r.store.GetReceipt(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load receipt for lobby: %w", err)
	}

	l := newLobby(receipt, r.store, r.calc, r.transport, func() { r.remove(date) })
	r.lobbies[date] = l
	metrics.ActiveLobbies.Inc()
	return l, nil
}

// Len reports how many lobbies are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}

// remove drops the registry entry. Only the lobby itself calls this, at the
// end of its session.
func (r *Registry) remove(date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lobbies[date]; ok {
		delete(r.lobbies, date)
		metrics.ActiveLobbies.Dec()
	}
}
