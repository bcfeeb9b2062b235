package httpapi

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
)

const returnQuantityPrefix = "qty_"

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, "handleSales", err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// handleSaleActions serves /sales/{id} and /sales/{id}/returns.
func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/v1/sales/")
	switch {
	case len(segments) == 1:
		a.handleSaleInvoice(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "returns":
		a.handleSaleReturns(w, r, segments[0])
	case len(segments) == 0:
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown sale action"))
	}
}

func (a *API) handleSaleInvoice(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	invoice, err := a.service.GetSalesInvoice(r.Context(), id)
	if err != nil {
		writeServiceError(w, "handleSaleInvoice", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleSaleReturns(w http.ResponseWriter, r *http.Request, invoiceID string) {
	switch r.Method {
	case http.MethodGet:
		if actor, ok := service.ActorFromContext(r.Context()); !ok || !actor.IsStaff() {
			writeError(w, http.StatusForbidden, service.ErrForbidden)
			return
		}
		returns, err := a.service.ListInvoiceReturns(r.Context(), invoiceID)
		if err != nil {
			writeServiceError(w, "handleSaleReturns", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
	case http.MethodPost:
		if isFormRequest(r) {
			a.submitReturnForm(w, r, invoiceID)
			return
		}

		var req domain.ReturnRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ret, err := a.service.CreateReturn(r.Context(), invoiceID, req)
		if err != nil {
			writeServiceError(w, "handleSaleReturns", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
	default:
		writeMethodNotAllowed(w)
	}
}

// submitReturnForm handles the return screen post. On success the browser is
// sent to the daily sales report of the invoice's day.
func (a *API) submitReturnForm(w http.ResponseWriter, r *http.Request, invoiceID string) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, fields := returnRequestFromForm(r.PostForm)
	if len(fields) > 0 {
		writeErrorDetails(w, http.StatusUnprocessableEntity, "return rejected", fields)
		return
	}

	ret, err := a.service.CreateReturn(r.Context(), invoiceID, req)
	if err != nil {
		writeServiceError(w, "submitReturnForm", err)
		return
	}

	day := ret.Date
	if invoice, err := a.service.GetSalesInvoice(r.Context(), ret.InvoiceID); err == nil {
		day = invoice.Date
	}
	target := "/api/v1/reports/daily-sales?date=" + url.QueryEscape(day.Format(domain.DateLayout))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// returnRequestFromForm reads qty_<sale_item_id> fields. Blank and zero
// quantities are not selected; anything that is not an integer is reported
// against its sale item id.
func returnRequestFromForm(form url.Values) (domain.ReturnRequest, map[string]string) {
	req := domain.ReturnRequest{Reason: strings.TrimSpace(form.Get("reason"))}
	fields := make(map[string]string)

	keys := make([]string, 0, len(form))
	for key := range form {
		if strings.HasPrefix(key, returnQuantityPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		id := strings.TrimPrefix(key, returnQuantityPrefix)
		raw := strings.TrimSpace(form.Get(key))
		if id == "" || raw == "" {
			continue
		}
		qty, err := strconv.Atoi(raw)
		if err != nil {
			fields[id] = fmt.Sprintf("Invalid quantity %q", raw)
			continue
		}
		if qty == 0 {
			continue
		}
		req.Items = append(req.Items, domain.ReturnLineRequest{SaleItemID: id, Quantity: qty})
	}
	return req, fields
}

func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
