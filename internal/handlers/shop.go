package handlers

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/catalog"
	"github.com/omega-realm/economy/internal/ledger"
)

type ShopHandler struct {
	engine  *ledger.Engine
	catalog *catalog.Catalog
	log     logrus.FieldLogger
}

// NewShopHandler creates the shop endpoints. Inventory is granted by the game
// server once the purchase response arrives.
func NewShopHandler(engine *ledger.Engine, cat *catalog.Catalog, log logrus.FieldLogger) *ShopHandler {
	return &ShopHandler{engine: engine, catalog: cat, log: log}
}

// BuyRequest represents the purchase request body
type BuyRequest struct {
	ItemType string `json:"itemType"`
	ItemName string `json:"itemName"`
}

// Catalog lists every purchasable item
func (h *ShopHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": h.catalog.All(),
	})
}

// Buy purchases one catalog item for the caller
func (h *ShopHandler) Buy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(r)
	if !ok {
		unauthorized(w)
		return
	}

	var req BuyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.ItemName = strings.TrimSpace(req.ItemName)
	if req.ItemType != catalog.TypePet && req.ItemType != catalog.TypeAccessory {
		writeError(w, apperr.Validation("itemType", "itemType must be pet or accessory"))
		return
	}
	if req.ItemName == "" {
		writeError(w, apperr.Validation("itemName", "itemName is required"))
		return
	}

	result, err := h.engine.BuyItem(r.Context(), accountID, req.ItemType, req.ItemName, nil)
	if err != nil {
		logIfInternal(h.log, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Purchase completed",
		"item":        result.Item,
		"newBalance":  result.NewBalance,
		"transaction": result.Record,
	})
}
