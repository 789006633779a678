package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/auth"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/models"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// AuthService mints identity tokens. People are authenticated by whatever
// gateway fronts the server; the gateway proves itself with a shared secret
// and asks for a token on a member's behalf.
type AuthService struct {
	store         storage.Store
	jwtManager    *auth.JWTManager
	gatewaySecret string
}

// NewAuthService creates a new AuthService.
func NewAuthService(store storage.Store, jwtManager *auth.JWTManager, gatewaySecret string) *AuthService {
	return &AuthService{store: store, jwtManager: jwtManager, gatewaySecret: gatewaySecret}
}

// Register mounts the service's routes on the mux.
func (s *AuthService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/token", s.MintToken)
	mux.HandleFunc("POST /api/users", s.CreateUser)
}

// gatewayAuthorized checks the shared-secret header that proves the request
// came from the fronting gateway.
func (s *AuthService) gatewayAuthorized(w http.ResponseWriter, r *http.Request) bool {
	secret := r.Header.Get("X-Gateway-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.gatewaySecret)) != 1 {
		writeError(w, http.StatusUnauthorized, errors.New("gateway secret required"))
		return false
	}
	return true
}

type mintTokenRequest struct {
	UserID models.UserID `json:"user_id"`
}

type mintTokenResponse struct {
	Token string `json:"token"`
}

// MintToken issues an identity token for a household member. The request
// must carry the gateway secret.
func (s *AuthService) MintToken(w http.ResponseWriter, r *http.Request) {
	if !s.gatewayAuthorized(w, r) {
		return
	}

	var req mintTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.store.GetUser(r.Context(), req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		respondError(w, err)
		return
	}

	slog.Info("Token minted", "user_id", user.BuyIndex)
	writeJSON(w, http.StatusOK, mintTokenResponse{Token: token})
}

type createUserRequest struct {
	UserID   models.UserID `json:"user_id"`
	Name     string        `json:"name"`
	Username string        `json:"username"`
}

// CreateUser provisions a household member under an unused buy index. Like
// token minting, it is a gateway-only operation.
func (s *AuthService) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.gatewayAuthorized(w, r) {
		return
	}

	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.UserID.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("buy index %d is not a single bit", req.UserID))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	if _, err := s.store.GetUser(r.Context(), req.UserID); err == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("buy index %d is taken", req.UserID))
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		respondError(w, err)
		return
	}

	user := &models.User{BuyIndex: req.UserID, Name: req.Name, Username: req.Username}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		respondError(w, err)
		return
	}

	slog.Info("User created", "user_id", user.BuyIndex, "name", user.Name)
	writeJSON(w, http.StatusCreated, userPayload{
		UserID:   user.BuyIndex,
		Name:     user.Name,
		Username: user.Username,
	})
}
