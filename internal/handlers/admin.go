package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/ledger"
	"github.com/omega-realm/economy/internal/moderation"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

type AdminHandler struct {
	engine     *ledger.Engine
	moderation *moderation.Service
	log        logrus.FieldLogger
}

func NewAdminHandler(engine *ledger.Engine, mod *moderation.Service, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{engine: engine, moderation: mod, log: log}
}

// SetBalanceRequest represents the balance adjustment body
type SetBalanceRequest struct {
	Tokens *int64 `json:"tokens"`
	Note   string `json:"note,omitempty"`
}

// BanBody represents the ban request body
type BanBody struct {
	UserID   string `json:"userId"`
	Reason   string `json:"reason"`
	Duration *int64 `json:"duration,omitempty"`
}

// Users lists accounts newest first. ?limit= selects 1-200 rows, ?offset=
// skips rows.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	limit, offset := defaultUserPageSize, 0
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUserPageSize {
			writeError(w, apperr.Validation("limit", "limit must be between 1 and 200"))
			return
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperr.Validation("offset", "offset must not be negative"))
			return
		}
		offset = n
	}

	accounts, err := h.engine.Accounts(r.Context(), limit, offset)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  accounts,
		"limit":  limit,
		"offset": offset,
	})
}

// SetBalance overwrites an account balance
func (h *AdminHandler) SetBalance(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	targetID, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req SetBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Tokens == nil {
		writeError(w, apperr.Validation("tokens", "tokens is required"))
		return
	}

	record, err := h.engine.AdminAdjust(r.Context(), ledger.AdjustRequest{
		TargetID:   targetID,
		OperatorID: operatorID,
		NewBalance: *req.Tokens,
		Note:       strings.TrimSpace(req.Note),
	})
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Balance updated",
		"balance":     *req.Tokens,
		"transaction": record,
	})
}

// Ban bans an account
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	var body BanBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	targetID, err := parseID(body.UserID, "userId")
	if err != nil {
		writeError(w, err)
		return
	}

	ban, err := h.moderation.Ban(r.Context(), moderation.BanRequest{
		AccountID:  targetID,
		OperatorID: operatorID,
		Reason:     body.Reason,
		DurationMs: body.Duration,
	})
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Account banned",
		"banLog":  ban,
	})
}

// Unban lifts an account's ban
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	targetID, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.moderation.Unban(r.Context(), targetID, operatorID); err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Account unbanned"})
}

// Bans returns an account's ban history
func (h *AdminHandler) Bans(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, err)
		return
	}
	bans, err := h.moderation.ListBans(r.Context(), targetID)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

// Stats returns platform statistics
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Transactions returns the latest ledger records across all accounts
func (h *AdminHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.RecentRecords(r.Context())
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
