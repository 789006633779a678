package service

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/dispatch"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/hub"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/ledger"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/lobby"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/middleware"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
)

// asUser injects the authenticated user the way the auth middleware would.
func asUser(id models.UserID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newSessionStack(t *testing.T) (*http.ServeMux, *dispatch.Worker, *lobby.Registry) {
	t.Helper()
	_, store := newReceiptMux(t)

	ctx := context.Background()
	receipt := &models.Receipt{
		Date:     "2020-03-14",
		Subtotal: decimal.New(10, 0),
		Tax:      decimal.Zero,
		Total:    decimal.New(10, 0),
		TaxRate:  decimal.Zero,
		PayerID:  1,
	}
	if err := store.CreateReceipt(ctx, receipt); err != nil {
		t.Fatalf("CreateReceipt failed: %v", err)
	}

	h := hub.New()
	registry := lobby.NewRegistry(store, ledger.NewCalculator(store), h)
	worker := dispatch.NewWorker(h, registry, store)

	mux := http.NewServeMux()
	NewSessionService(worker, h).Register(mux)
	return mux, worker, registry
}

func doAs(t *testing.T, mux *http.ServeMux, user models.UserID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	asUser(user)(mux).ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, mux *http.ServeMux, user models.UserID) string {
	t.Helper()
	rec := doAs(t, mux, user, http.MethodPost, "/api/session", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	return resp["session_id"]
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("create and dispatch", func(t *testing.T) {
		mux, _, _ := newSessionStack(t)
		id := createSession(t, mux, 2)

		rec := doAs(t, mux, 2, http.MethodPost, "/api/session/"+id+"/actions", `{"action":"view_balances"}`)
		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		mux, _, _ := newSessionStack(t)
		rec := doAs(t, mux, 2, http.MethodPost, "/api/session/nope/actions", `{"action":"view_balances"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("foreign session is forbidden", func(t *testing.T) {
		mux, _, _ := newSessionStack(t)
		id := createSession(t, mux, 2)
		rec := doAs(t, mux, 1, http.MethodPost, "/api/session/"+id+"/actions", `{"action":"view_balances"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("invalid action is a bad request", func(t *testing.T) {
		mux, _, _ := newSessionStack(t)
		id := createSession(t, mux, 2)
		rec := doAs(t, mux, 2, http.MethodPost, "/api/session/"+id+"/actions", `{"action":"dance"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestEventStream(t *testing.T) {
	mux, _, _ := newSessionStack(t)
	id := createSession(t, mux, 2)

	server := httptest.NewServer(asUser(2)(mux))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/session/" + id + "/events")
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// Joining the lobby must show up on the stream as the init snapshot.
	rec := doAs(t, mux, 2, http.MethodPost, "/api/session/"+id+"/actions", `{"action":"join_lobby","receipt_date":"2020-03-14"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("join status = %d, body %s", rec.Code, rec.Body)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		if event.Type != dispatch.EventInit {
			t.Errorf("first event type = %q, want %q", event.Type, dispatch.EventInit)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestEventStreamDisconnectReleasesLobbySeat(t *testing.T) {
	mux, worker, registry := newSessionStack(t)
	leaverID := createSession(t, mux, 1)
	stayerID := createSession(t, mux, 2)

	server := httptest.NewServer(asUser(1)(mux))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/session/" + leaverID + "/events")
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}

	for _, id := range []string{leaverID, stayerID} {
		user := models.UserID(1)
		if id == stayerID {
			user = 2
		}
		rec := doAs(t, mux, user, http.MethodPost, "/api/session/"+id+"/actions", `{"action":"join_lobby","receipt_date":"2020-03-14"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("join status = %d, body %s", rec.Code, rec.Body)
		}
	}

	resp.Body.Close()

	// Dropping the stream must end the session, not just silence it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := worker.Session(leaverID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session survived its stream going away")
		}
		time.Sleep(10 * time.Millisecond)
	}

	l, err := registry.GetOrCreate(context.Background(), "2020-03-14")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	state := l.State()
	if len(state.AllUsers) != 1 || state.AllUsers[0] != 2 {
		t.Errorf("lobby users = %v, want only the remaining participant", state.AllUsers)
	}
}
