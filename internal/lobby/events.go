package lobby

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
)

// CoordinatorChannel is the hub channel the dispatch worker listens on for
// session-cleanup events.
const CoordinatorChannel = "user_action"

// Event type discriminators. Every broadcast payload carries one in its
// "type" field so clients can route updates without reflection.
const (
	EventUserChange = "lobby_user_change"
	EventTimeChange = "lobby_time_change"
	EventItemClaim  = "lobby_item_claim"
	EventItemChange = "lobby_item_change"
	EventFinished   = "lobby_finished"
	EventClosed     = "lobby_close"
)

// UserRef identifies a user in broadcast payloads.
type UserRef struct {
	UserID models.UserID `json:"user_id"`
	Name   string        `json:"name"`
}

func newUserRef(user *models.User) UserRef {
	return UserRef{UserID: user.BuyIndex, Name: user.Name}
}

// ItemView is the broadcast shape of an item under review.
type ItemView struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Count  int             `json:"count"`
	Price  decimal.Decimal `json:"price"`
	Src    string          `json:"src"`
	Taxed  bool            `json:"taxed"`
	Buyers []models.UserID `json:"buyers"`
}

func newItemView(item *models.Item) ItemView {
	return ItemView{
		ID:     item.ID,
		Name:   item.Name,
		Count:  item.Count,
		Price:  item.Price,
		Src:    fmt.Sprintf("static/receipt_items/%s/%s", item.ReceiptDate, item.ImgSrc),
		Taxed:  item.Taxed,
		Buyers: item.Buyers.Members(),
	}
}

// UserChangeEvent reports the joined and ready user sets.
type UserChangeEvent struct {
	Type        string          `json:"type"`
	AllUsers    []models.UserID `json:"all_users"`
	ActiveUsers []models.UserID `json:"active_users"`
}

// TimeChangeEvent reports the countdown. A nil Time clears it.
type TimeChangeEvent struct {
	Type string `json:"type"`
	Time *int   `json:"time"`
}

// ItemClaimEvent reports an exclusive claim on the current item.
type ItemClaimEvent struct {
	Type string  `json:"type"`
	User UserRef `json:"user"`
}

// ItemChangeEvent reports the next item under review.
type ItemChangeEvent struct {
	Type        string          `json:"type"`
	Item        ItemView        `json:"item"`
	ActiveUsers []models.UserID `json:"active_users"`
}

// FinishedEvent reports the final per-user shares once every item has been
// reviewed.
type FinishedEvent struct {
	Type   string                             `json:"type"`
	Payer  models.UserID                      `json:"payer"`
	Shares map[models.UserID]decimal.Decimal `json:"shares"`
}

// ClosedEvent tells the dispatch worker to clear every participant's lobby
// reference. It is sent point-to-point on CoordinatorChannel, never
// broadcast.
type ClosedEvent struct {
	Type        string          `json:"type"`
	ReceiptDate string          `json:"receipt_date"`
	Users       []models.UserID `json:"users"`
}

// State is the resynchronization snapshot handed to a joining participant.
type State struct {
	AllUsers      []models.UserID `json:"all_users"`
	ActiveUsers   []models.UserID `json:"active_users"`
	ExclusiveUser *UserRef        `json:"exclusive_active_user"`
	Time          *int            `json:"time"`
	Item          *ItemView       `json:"item"`
}

// Transport is the group-messaging boundary the lobby broadcasts through.
// Implementations must deliver in order per sender and never block.
type Transport interface {
	// GroupSend fans the event out to everyone subscribed to the group.
	GroupSend(group string, event any)

	// Send delivers the event to a single named channel.
	Send(channel string, event any)
}
