package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/ledger"
	"github.com/omega-realm/economy/internal/models"
)

type TransferHandler struct {
	engine *ledger.Engine
	log    logrus.FieldLogger
}

func NewTransferHandler(engine *ledger.Engine, log logrus.FieldLogger) *TransferHandler {
	return &TransferHandler{engine: engine, log: log}
}

// SendRequest represents the transfer request body
type SendRequest struct {
	ToUsername string `json:"toUsername"`
	Amount     int64  `json:"amount"`
}

// SendResponse reports a committed transfer
type SendResponse struct {
	Message     string               `json:"message"`
	NewBalance  int64                `json:"newBalance"`
	Fee         int64                `json:"fee"`
	Transaction *models.LedgerRecord `json:"transaction"`
}

// TokenRequest represents the token request body
type TokenRequest struct {
	FromUsername string `json:"fromUsername"`
	Amount       int64  `json:"amount"`
}

// Send transfers tokens to another player by username
func (h *TransferHandler) Send(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.TransferToHandle(r.Context(), accountID, strings.TrimSpace(req.ToUsername), req.Amount, clientIP(r))
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{
		Message:     "Transfer completed",
		NewBalance:  result.NewBalance,
		Fee:         result.Fee,
		Transaction: result.Record,
	})
}

// Request asks another player for tokens
func (h *TransferHandler) Request(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := h.engine.RequestTokens(r.Context(), accountID, strings.TrimSpace(req.FromUsername), req.Amount)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Token request sent",
		"transactionId": record.ID,
	})
}

// History returns the caller's latest transfers
func (h *TransferHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	records, err := h.engine.History(r.Context(), accountID)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already substituted forwarded addresses.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
