package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/ledger"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type LeaderboardHandler struct {
	engine *ledger.Engine
	log    logrus.FieldLogger
}

func NewLeaderboardHandler(engine *ledger.Engine, log logrus.FieldLogger) *LeaderboardHandler {
	return &LeaderboardHandler{engine: engine, log: log}
}

// GetLeaderboard returns the top token holders. ?limit= selects 1-100 entries.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			writeError(w, apperr.Validation("limit", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	entries, err := h.engine.Leaderboard(r.Context(), limit)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leaderboard": entries,
	})
}
