package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/fetch"
	"github.com/tair/stock-ledger/internal/ledger"
	"github.com/tair/stock-ledger/internal/orders"
	"github.com/tair/stock-ledger/internal/repository"
	"github.com/tair/stock-ledger/pkg/logger"
)

// LedgerHandler handles HTTP requests for the stock ledger. It stands in
// for the rendering shell: every mutation goes through the core
// components' own methods, never their internal state.
type LedgerHandler struct {
	ledger *ledger.Ledger
	logs   *auditlog.Manager
	engine *orders.Engine
	orch   *fetch.Orchestrator
	store  *repository.TracedStore
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(l *ledger.Ledger, logs *auditlog.Manager, engine *orders.Engine, orch *fetch.Orchestrator, store *repository.TracedStore) *LedgerHandler {
	return &LedgerHandler{ledger: l, logs: logs, engine: engine, orch: orch, store: store}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RegisterRoutes registers all ledger routes.
func (h *LedgerHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/items", h.CreateItem).Methods("POST")
	router.HandleFunc("/api/items", h.ListItems).Methods("GET")
	router.HandleFunc("/api/items/{serial}", h.GetItem).Methods("GET")
	router.HandleFunc("/api/items/{serial}", h.RemoveItem).Methods("DELETE")
	router.HandleFunc("/api/items/{serial}/add", h.AddQuantity).Methods("POST")
	router.HandleFunc("/api/items/{serial}/decrease", h.DecreaseQuantity).Methods("POST")
	router.HandleFunc("/api/items/{serial}/quantity", h.SetQuantity).Methods("PUT")
	router.HandleFunc("/api/items/{serial}/composition", h.SetComposition).Methods("PUT")
	router.HandleFunc("/api/items/{serial}/breakdown", h.BreakDownItem).Methods("POST")
	router.HandleFunc("/api/items/{serial}/breakdown-options", h.BreakdownOptions).Methods("GET")
	router.HandleFunc("/api/logs", h.ListLogs).Methods("GET")
	router.HandleFunc("/api/logs/{id}/revert", h.RevertLog).Methods("POST")
	router.HandleFunc("/api/orders", h.ListOrders).Methods("GET")
	router.HandleFunc("/api/fetch", h.TriggerFetch).Methods("POST")
}

// RegisterHealthCheck registers the health endpoint.
func (h *LedgerHandler) RegisterHealthCheck(router *mux.Router, db *sql.DB) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, Response{
				Success: false,
				Error:   "database unreachable",
			})
			return
		}
		respondJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
	}).Methods("GET")
}

// CreateItem handles POST /api/items
func (h *LedgerHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Serial          string               `json:"serial"`
		Name            string               `json:"name"`
		Icon            string               `json:"icon"`
		LowStockTrigger int                  `json:"low_stock_trigger"`
		InitialQuantity int                  `json:"initial_quantity"`
		SKUs            map[string]string    `json:"skus"`
		ComposedOf      []catalog.ItemPacket `json:"composed_of"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}
	if req.Serial == "" || req.Name == "" {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "serial and name are required"})
		return
	}

	skus := make(map[catalog.Platform]string)
	for p, sku := range req.SKUs {
		skus[catalog.Platform(p)] = sku
	}

	item, created := h.ledger.CreateItem(ledger.CreateItemInput{
		Serial:          req.Serial,
		Name:            req.Name,
		Icon:            req.Icon,
		LowStockTrigger: req.LowStockTrigger,
		SKUs:            skus,
		ComposedOf:      req.ComposedOf,
		InitialQuantity: req.InitialQuantity,
	})

	status := http.StatusCreated
	message := "Item created successfully"
	if created {
		if err := h.store.SaveItemWithContext(r.Context(), item, req.ComposedOf); err != nil {
			logger.Error(r.Context()).Err(err).Str("serial", req.Serial).Msg("Failed to persist item")
		}
	} else {
		// the quantity add is already persisted through the audit sink
		status = http.StatusOK
		message = "Item already exists, quantity added"
	}
	view, _ := h.ledger.View(req.Serial)
	respondJSON(w, status, Response{Success: true, Message: message, Data: view})
}

// ListItems handles GET /api/items
func (h *LedgerHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Response{Success: true, Data: h.ledger.Views()})
}

// GetItem handles GET /api/items/{serial}
func (h *LedgerHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	view, ok := h.ledger.View(serial)
	if !ok {
		respondJSON(w, http.StatusNotFound, Response{Success: false, Error: "Item not found"})
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: view})
}

// RemoveItem handles DELETE /api/items/{serial}
func (h *LedgerHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	if !h.ledger.RemoveItem(serial) {
		respondJSON(w, http.StatusNotFound, Response{Success: false, Error: "Item not found"})
		return
	}
	if err := h.store.DeleteItem(serial); err != nil {
		logger.Error(r.Context()).Err(err).Str("serial", serial).Msg("Failed to delete persisted item")
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Item removed"})
}

// AddQuantity handles POST /api/items/{serial}/add
func (h *LedgerHandler) AddQuantity(w http.ResponseWriter, r *http.Request) {
	h.applyQuantity(w, r, func(serial string, qty int) {
		h.ledger.AddItemAmount(serial, qty)
	})
}

// DecreaseQuantity handles POST /api/items/{serial}/decrease
func (h *LedgerHandler) DecreaseQuantity(w http.ResponseWriter, r *http.Request) {
	h.applyQuantity(w, r, func(serial string, qty int) {
		h.ledger.DecreaseItemAmount(serial, qty)
	})
}

// SetQuantity handles PUT /api/items/{serial}/quantity
func (h *LedgerHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	h.applyQuantity(w, r, func(serial string, qty int) {
		h.ledger.SetQuantity(serial, qty)
	})
}

func (h *LedgerHandler) applyQuantity(w http.ResponseWriter, r *http.Request, apply func(serial string, qty int)) {
	serial := mux.Vars(r)["serial"]
	if !h.ledger.HasItem(serial) {
		respondJSON(w, http.StatusNotFound, Response{Success: false, Error: "Item not found"})
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}
	apply(serial, req.Quantity)
	view, _ := h.ledger.View(serial)
	respondJSON(w, http.StatusOK, Response{Success: true, Data: view})
}

// SetComposition handles PUT /api/items/{serial}/composition
func (h *LedgerHandler) SetComposition(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	var req struct {
		ComposedOf []catalog.ItemPacket `json:"composed_of"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}
	if !h.ledger.SetComposition(serial, req.ComposedOf) {
		respondJSON(w, http.StatusNotFound, Response{Success: false, Error: "Item not found"})
		return
	}
	view, _ := h.ledger.View(serial)
	if item, ok := h.ledger.ItemBySerial(serial); ok {
		if err := h.store.SaveItemWithContext(r.Context(), item, req.ComposedOf); err != nil {
			logger.Error(r.Context()).Err(err).Str("serial", serial).Msg("Failed to persist composition")
		}
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Composition updated", Data: view})
}

// BreakDownItem handles POST /api/items/{serial}/breakdown
func (h *LedgerHandler) BreakDownItem(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	if !h.ledger.HasItem(serial) {
		respondJSON(w, http.StatusNotFound, Response{Success: false, Error: "Item not found"})
		return
	}
	var req struct {
		Consumed []catalog.ItemPacket `json:"consumed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}
	residual := h.ledger.BreakDownItem(serial, req.Consumed)
	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Item broken down",
		Data:    map[string]interface{}{"recovered": residual},
	})
}

// BreakdownOptions handles GET /api/items/{serial}/breakdown-options
func (h *LedgerHandler) BreakdownOptions(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	if !h.ledger.HasItem(serial) {
		respondJSON(w, http.StatusNotFound, Response{Success: false, Error: "Item not found"})
		return
	}
	qty, _ := strconv.Atoi(r.URL.Query().Get("quantity"))
	if qty <= 0 {
		qty = 1
	}
	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"coverable": h.ledger.IsItemInStockRecursive(serial, qty),
			"options":   h.ledger.PossibleBreakDowns(serial, qty),
		},
	})
}

// ListLogs handles GET /api/logs
func (h *LedgerHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if sev := r.URL.Query().Get("severity"); sev != "" {
		severity, ok := parseSeverity(sev)
		if !ok {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Unknown severity"})
			return
		}
		respondJSON(w, http.StatusOK, Response{Success: true, Data: h.logs.BySeverity(severity)})
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: h.logs.Entries()})
}

// RevertLog handles POST /api/logs/{id}/revert
func (h *LedgerHandler) RevertLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid log ID"})
		return
	}
	entry := h.logs.ByID(id)
	if entry == nil {
		respondJSON(w, http.StatusNotFound, Response{Success: false, Error: "Log not found"})
		return
	}
	reverter := h.logs.Revert(entry)
	if reverter == nil {
		respondJSON(w, http.StatusConflict, Response{Success: false, Error: "Log is not revertible"})
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Log reverted", Data: reverter})
}

// ListOrders handles GET /api/orders
func (h *LedgerHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Response{Success: true, Data: h.engine.KnownOrders()})
}

// TriggerFetch handles POST /api/fetch. The run is detached from the
// request context; there is no mid-fetch cancellation.
func (h *LedgerHandler) TriggerFetch(w http.ResponseWriter, r *http.Request) {
	if h.orch.FetchAllRecentOrders(context.WithoutCancel(r.Context())) {
		respondJSON(w, http.StatusOK, Response{Success: true, Message: "Fetch run completed"})
		return
	}
	respondJSON(w, http.StatusAccepted, Response{
		Success: true,
		Message: "Fetch skipped: no credentials, cooldown active, or a run is in flight",
	})
}

func parseSeverity(s string) (auditlog.Severity, bool) {
	switch s {
	case "normal":
		return auditlog.SeverityNormal, true
	case "warning":
		return auditlog.SeverityWarning, true
	case "critical":
		return auditlog.SeverityCritical, true
	}
	return 0, false
}

func respondJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}
