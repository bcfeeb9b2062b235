package httpapi

import (
	"errors"
	"net/http"

	"pharmapos/backend/internal/domain"
)

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeServiceError(w, "handleSuppliers", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeServiceError(w, "handleSuppliers", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		purchases, err := a.service.ListPurchases(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			writeServiceError(w, "handlePurchases", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
	case http.MethodPost:
		var req domain.PurchaseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		invoice, err := a.service.CreatePurchase(r.Context(), req)
		if err != nil {
			writeServiceError(w, "handlePurchases", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"purchase": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/v1/purchases/")
	if len(segments) != 1 {
		writeError(w, http.StatusNotFound, errors.New("unknown purchase action"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	invoice, err := a.service.GetPurchaseInvoice(r.Context(), segments[0])
	if err != nil {
		writeServiceError(w, "handlePurchaseActions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase": invoice})
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		expenses, err := a.service.ListExpenses(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			writeServiceError(w, "handleExpenses", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			writeServiceError(w, "handleExpenses", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCashSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.CashSummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, "handleCashSummary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
