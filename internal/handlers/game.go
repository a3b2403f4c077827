package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/anticheat"
	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/ledger"
	"github.com/omega-realm/economy/internal/models"
)

// SaveRequest reports tokens earned since the last save
type SaveRequest struct {
	TokensEarned *int64 `json:"tokensEarned"`
}

// PlayerView is the account as its owner sees it. The suspicion score stays
// operator-only.
type PlayerView struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Balance   int64     `json:"balance"`
	Banned    bool      `json:"banned"`
	BanReason *string   `json:"ban_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Rank      int64     `json:"rank"`
}

func newPlayerView(a *models.Account, rank int64) PlayerView {
	return PlayerView{
		ID:        a.ID,
		Username:  a.Username,
		Balance:   a.Balance,
		Banned:    a.Banned,
		BanReason: a.BanReason,
		CreatedAt: a.CreatedAt,
		Rank:      rank,
	}
}

type GameHandler struct {
	sessions *anticheat.Evaluator
	engine   *ledger.Engine
	log      logrus.FieldLogger
}

func NewGameHandler(sessions *anticheat.Evaluator, engine *ledger.Engine, log logrus.FieldLogger) *GameHandler {
	return &GameHandler{sessions: sessions, engine: engine, log: log}
}

// StartSession opens a play session, or returns the one already open
func (h *GameHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	session, resumed, err := h.sessions.StartSession(r.Context(), accountID)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	message := "Session started"
	if resumed {
		message = "Existing session resumed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   message,
		"sessionId": session.ID,
		"resumed":   resumed,
	})
}

// EndSession finalizes a session owned by the caller
func (h *GameHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}
	sessionID, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var payload anticheat.EndPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := payload.Validate(); err != nil {
		h.log.WithField("account_id", accountID).Warn("rejected session end payload")
		writeError(w, err)
		return
	}

	result, err := h.sessions.FinalizeSession(r.Context(), accountID, sessionID, payload)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Session finalized",
		"flagged": result.Flagged,
		"reason":  result.Reason,
		"flags":   result.Flags,
	})
}

// Me returns the caller's account
func (h *GameHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	account, err := h.engine.Balance(r.Context(), accountID)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlayerView(account, h.engine.Rank(r.Context(), accountID)))
}

// Save credits tokens earned in play to the caller
func (h *GameHandler) Save(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	var req SaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TokensEarned == nil {
		writeError(w, apperr.Validation("tokensEarned", "tokensEarned is required"))
		return
	}

	result, err := h.engine.CreditReward(r.Context(), ledger.RewardRequest{
		AccountID: accountID,
		Amount:    *req.TokensEarned,
		Note:      "game save",
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			h.log.WithField("account_id", accountID).WithField("tokens", *req.TokensEarned).Warn("rejected game save")
		}
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Game saved",
		"newBalance":  result.NewBalance,
		"transaction": result.Record,
	})
}
