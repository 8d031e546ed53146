package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/koderpark/ani-relayer-be/internal/store"
	"github.com/koderpark/ani-relayer-be/pkg/auth"
)

type AuthAPI struct {
	DB  *store.Postgres
	JWT *auth.JWT
}

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type changePWReq struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}
type tokenResp struct {
	Token   string         `json:"token"`
	Account accountUserDTO `json:"account"`
}
type accountUserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Register handles account signup and returns a JWT
func (a *AuthAPI) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	// Basic validation
	if len(req.Username) < 3 || len(req.Password) < 8 {
		http.Error(w, "invalid username or weak password", http.StatusBadRequest)
		return
	}

	acct, err := a.DB.CreateAccount(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "username already in use", http.StatusConflict)
		return
	}

	// Issue token for 24hrs
	tok, _ := a.JWT.Sign(acct.ID, acct.Username, 24*time.Hour)
	writeJSON(w, tokenResp{Token: tok, Account: accountUserDTO{ID: acct.ID, Username: acct.Username}})
}

// Login verifies credentials and returns a JWT
func (a *AuthAPI) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	acct, err := a.DB.VerifyAccount(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	// Issue token (24h)
	tok, _ := a.JWT.Sign(acct.ID, acct.Username, 24*time.Hour)
	writeJSON(w, tokenResp{Token: tok, Account: accountUserDTO{ID: acct.ID, Username: acct.Username}})
}

// ChangePassword swaps the password after verifying the old one
func (a *AuthAPI) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id := auth.AccountID(r.Context())
	if id == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req changePWReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.NewPassword) < 8 {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	ok, err := a.DB.ChangePassword(r.Context(), id, req.OldPassword, req.NewPassword)
	if err != nil || !ok {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]bool{"changed": true})
}

// Me returns the authenticated account
func (a *AuthAPI) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.AccountID(r.Context())
	if id == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	acct, err := a.DB.GetAccount(r.Context(), id)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, accountUserDTO{ID: acct.ID, Username: acct.Username})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
