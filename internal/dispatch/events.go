package dispatch

import (
	"github.com/shopspring/decimal"

	lobbypkg "github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/lobby"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
)

// Event type discriminators for point-to-point session responses. Group
// broadcasts use the lobby package's event types.
const (
	EventInit            = "lobby_init"
	EventPaymentRecorded = "payment_recorded"
	EventBalances        = "balances"
)

// InitEvent resynchronizes a client that just joined a lobby.
type InitEvent struct {
	Type        string         `json:"type"`
	ReceiptDate string         `json:"receipt_date"`
	State       lobbypkg.State `json:"state"`
}

// PaymentEvent acknowledges a recorded payment.
type PaymentEvent struct {
	Type      string          `json:"type"`
	PaymentID int64           `json:"payment_id"`
	Payee     models.UserID   `json:"payee_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Balance is the net position against one other user. Positive means they
// owe you.
type Balance struct {
	UserID models.UserID   `json:"user_id"`
	Net    decimal.Decimal `json:"net"`
}

// BalancesEvent reports the requesting user's net position against every
// user they have history with.
type BalancesEvent struct {
	Type     string    `json:"type"`
	Balances []Balance `json:"balances"`
}
