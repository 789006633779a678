package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// ReceiptService serves receipt and item uploads plus the read-side queries.
type ReceiptService struct {
	store storage.Store
}

// NewReceiptService creates a new ReceiptService with the given storage backend.
func NewReceiptService(store storage.Store) *ReceiptService {
	return &ReceiptService{store: store}
}

// Register mounts the service's routes on the mux.
func (s *ReceiptService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/receipts", s.CreateReceipt)
	mux.HandleFunc("POST /api/receipts/{date}/items", s.CreateItems)
	mux.HandleFunc("GET /api/receipts", s.ListReceipts)
	mux.HandleFunc("GET /api/receipts/{date}", s.GetReceipt)
	mux.HandleFunc("GET /api/receipt-dates", s.ListDates)
	mux.HandleFunc("GET /api/users", s.ListUsers)
}

type receiptPayload struct {
	Date     string          `json:"date"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	PayerID  models.UserID   `json:"payer_id"`
}

type itemPayload struct {
	ID     int64           `json:"id,omitempty"`
	Name   string          `json:"name"`
	Count  int             `json:"count"`
	Price  decimal.Decimal `json:"price"`
	ImgSrc string          `json:"img_src,omitempty"`
	Taxed  bool            `json:"taxed"`
	Buyers []models.UserID `json:"buyers,omitempty"`
}

type userPayload struct {
	UserID   models.UserID `json:"user_id"`
	Name     string        `json:"name"`
	Username string        `json:"username,omitempty"`
}

// CreateReceipt uploads a new receipt. A receipt for an existing date is a
// conflict; an unknown payer is rejected outright.
func (s *ReceiptService) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptPayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("date must be YYYY-MM-DD: %w", err))
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUser(ctx, req.PayerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotAcceptable, fmt.Errorf("unknown payer %d", req.PayerID))
			return
		}
		respondError(w, err)
		return
	}
	if _, err := s.store.GetReceipt(ctx, req.Date); err == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("receipt for %s already exists", req.Date))
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		respondError(w, err)
		return
	}

	taxRate := req.TaxRate
	if taxRate.IsZero() && req.Subtotal.IsPositive() {
		taxRate = req.Tax.Div(req.Subtotal).Round(4)
	}
	receipt := &models.Receipt{
		Date:     req.Date,
		Subtotal: req.Subtotal,
		Tax:      req.Tax,
		Total:    req.Total,
		TaxRate:  taxRate,
		PayerID:  req.PayerID,
	}
	if err := s.store.CreateReceipt(ctx, receipt); err != nil {
		respondError(w, err)
		return
	}

	slog.Info("Receipt created", "date", receipt.Date, "total", receipt.Total)
	writeJSON(w, http.StatusCreated, viewReceipt(receipt))
}

type createItemsRequest struct {
	Items []itemPayload `json:"items"`
}

type createItemsResponse struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
}

// CreateItems uploads line items for a receipt. Items whose name already
// exists on the receipt are skipped and counted as duplicates, so the ingest
// tool can be re-run safely.
func (s *ReceiptService) CreateItems(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	ctx := r.Context()
	if _, err := s.store.GetReceipt(ctx, date); err != nil {
		respondError(w, err)
		return
	}

	var req createItemsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("items required"))
		return
	}

	var resp createItemsResponse
	for _, payload := range req.Items {
		if payload.Name == "" {
			writeError(w, http.StatusBadRequest, errors.New("item name required"))
			return
		}
		count := payload.Count
		if count < 1 {
			count = 1
		}

		exists, err := s.store.ItemExists(ctx, date, payload.Name)
		if err != nil {
			respondError(w, err)
			return
		}
		if exists {
			resp.Duplicates++
			continue
		}

		item := &models.Item{
			ReceiptDate: date,
			Name:        payload.Name,
			Count:       count,
			Price:       payload.Price,
			ImgSrc:      payload.ImgSrc,
			Taxed:       payload.Taxed,
		}
		if err := s.store.CreateItem(ctx, item); err != nil {
			respondError(w, err)
			return
		}
		resp.Created++
	}

	slog.Info("Items uploaded", "date", date, "created", resp.Created, "duplicates", resp.Duplicates)
	writeJSON(w, http.StatusCreated, resp)
}

// ListReceipts returns every receipt, newest first.
func (s *ReceiptService) ListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.store.ListReceipts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	views := make([]receiptPayload, 0, len(receipts))
	for _, receipt := range receipts {
		views = append(views, viewReceipt(receipt))
	}
	writeJSON(w, http.StatusOK, views)
}

type receiptDetail struct {
	Receipt receiptPayload `json:"receipt"`
	Items   []itemPayload  `json:"items"`
}

// GetReceipt returns one receipt with its items.
func (s *ReceiptService) GetReceipt(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	ctx := r.Context()

	receipt, err := s.store.GetReceipt(ctx, date)
	if err != nil {
		respondError(w, err)
		return
	}
	items, err := s.store.ListItems(ctx, date)
	if err != nil {
		respondError(w, err)
		return
	}

	detail := receiptDetail{Receipt: viewReceipt(receipt)}
	for i := range items {
		detail.Items = append(detail.Items, viewItem(&items[i]))
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListDates returns just the receipt dates, for pickers.
func (s *ReceiptService) ListDates(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.store.ListReceipts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	dates := make([]string, 0, len(receipts))
	for _, receipt := range receipts {
		dates = append(dates, receipt.Date)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"dates": dates})
}

// ListUsers returns every household member.
func (s *ReceiptService) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	views := make([]userPayload, 0, len(users))
	for _, user := range users {
		views = append(views, userPayload{
			UserID:   user.BuyIndex,
			Name:     user.Name,
			Username: user.Username,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func viewReceipt(receipt *models.Receipt) receiptPayload {
	return receiptPayload{
		Date:     receipt.Date,
		Subtotal: receipt.Subtotal,
		Tax:      receipt.Tax,
		Total:    receipt.Total,
		TaxRate:  receipt.TaxRate,
		PayerID:  receipt.PayerID,
	}
}

func viewItem(item *models.Item) itemPayload {
	return itemPayload{
		ID:     item.ID,
		Name:   item.Name,
		Count:  item.Count,
		Price:  item.Price,
		ImgSrc: item.ImgSrc,
		Taxed:  item.Taxed,
		Buyers: item.Buyers.Members(),
	}
}
