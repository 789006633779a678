// Package dispatch routes client actions to lobbies and the ledger. Each
// connected client holds a Session; the Worker executes its actions and
// streams results back over the session's hub channel.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	lobbypkg "github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/lobby"
)

// Session is one connected client. Its ID doubles as the client's hub
// channel name. The lobby reference is guarded by the Worker's mutex.
type Session struct {
	ID    string
	User  *models.User
	lobby *lobbypkg.Lobby
}

// CreateSession opens a session for an authenticated user and registers its
// hub channel. A user may hold several sessions at once (one per device).
func (w *Worker) CreateSession(ctx context.Context, userID models.UserID) (*Session, error) {
	user, err := w.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	session := &Session{
		ID:   uuid.NewString(),
		User: user,
	}

	w.mu.Lock()
	w.sessions[session.ID] = session
	w.mu.Unlock()

	return session, nil
}

// Session looks up a live session by ID.
func (w *Worker) Session(id string) (*Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	session, ok := w.sessions[id]
	return session, ok
}

// CloseSession tears a session down: it leaves any joined lobby, closes the
// session's hub channel, and forgets the session.
func (w *Worker) CloseSession(ctx context.Context, id string) {
	w.mu.Lock()
	session, ok := w.sessions[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.sessions, id)
	lobby := session.lobby
	session.lobby = nil
	w.mu.Unlock()

	if lobby != nil {
		w.hub.LeaveGroup(lobby.ReceiptDate(), id)
		lobby.RemoveUser(ctx, session.User)
	}
	w.hub.Drop(id)
}
