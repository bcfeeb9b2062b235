package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/report"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return login(t, api, "admin", "admin123")
}

func loginAsCashier(t *testing.T, api *API) string {
	t.Helper()
	return login(t, api, "cashier", "cashier123")
}

// send performs an authenticated request. Mutating methods carry a CSRF token.
func send(t *testing.T, api *API, method string, path string, token string, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func sendJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return send(t, api, method, path, token, "application/json", bytes.NewReader(body))
}

type errorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func decodeError(t *testing.T, res *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func sellAmoxiclav(t *testing.T, api *API, token string, qty int) domain.SaleResponse {
	t.Helper()

	res := sendJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"customer_name": "Walk-in",
		"payment_mode":  "CASH",
		"items": []map[string]any{
			{"product_id": "prd_amoxiclav", "quantity": qty, "price": "26.50", "total": "53.00"},
		},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	var sale domain.SaleResponse
	if err := json.NewDecoder(res.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if len(sale.Invoice.Items) != 1 {
		t.Fatalf("expected one sale item, got %d", len(sale.Invoice.Items))
	}
	return sale
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	res := send(t, api, http.MethodGet, "/api/v1/products?q=para", token, "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) != 1 || body.Products[0].ID != "prd_paracetamol" {
		t.Fatalf("expected paracetamol only, got %+v", body.Products)
	}
}

func TestCatalogSearchReturnsStockAndPrice(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	res := send(t, api, http.MethodGet, "/api/v1/catalog/search?q=amox", token, "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body struct {
		Results []domain.CatalogSearchResult `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(body.Results))
	}
	if body.Results[0].Stock != 6 || body.Results[0].Price.StringFixed(2) != "26.50" {
		t.Fatalf("unexpected result %+v", body.Results[0])
	}
}

func TestCreateSaleReturns201WithInvoice(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	sale := sellAmoxiclav(t, api, token, 2)
	if sale.Status != "success" || sale.Duplicate {
		t.Fatalf("unexpected sale response %+v", sale)
	}
	if !strings.HasPrefix(sale.InvoiceNumber, "INV-") {
		t.Fatalf("unexpected invoice number %s", sale.InvoiceNumber)
	}
	if sale.Invoice.Items[0].BatchID != "bat_amox_a" {
		t.Fatalf("expected allocation from bat_amox_a, got %s", sale.Invoice.Items[0].BatchID)
	}

	res := send(t, api, http.MethodGet, "/api/v1/sales/"+sale.InvoiceID, token, "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected invoice lookup 200, got %d", res.Code)
	}
}

func TestCreateSaleValidationErrorHasDetails(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	res := sendJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{},
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", res.Code, res.Body.String())
	}
	body := decodeError(t, res)
	if body.Error == "" || len(body.Details) == 0 {
		t.Fatalf("expected error envelope with details, got %+v", body)
	}
}

func TestStateChangingRequestRequiresCSRF(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", res.Code)
	}
}

func TestReturnFormRedirectsToDailySales(t *testing.T) {
	api := newTestAPI(t)
	sale := sellAmoxiclav(t, api, loginAsCashier(t, api), 2)
	admin := loginAsAdmin(t, api)

	itemID := sale.Invoice.Items[0].ID
	form := url.Values{}
	form.Set("reason", "damaged strip")
	form.Set("qty_"+itemID, "1")
	form.Set("qty_unselected", "")

	res := send(t, api, http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", admin,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d (body: %s)", res.Code, res.Body.String())
	}
	want := "/api/v1/reports/daily-sales?date=" + sale.Invoice.Date.Format(domain.DateLayout)
	if got := res.Header().Get("Location"); got != want {
		t.Fatalf("expected redirect to %s, got %s", want, got)
	}

	list := send(t, api, http.MethodGet, "/api/v1/sales/"+sale.InvoiceID+"/returns", admin, "", nil)
	var body struct {
		Returns []domain.SalesReturn `json:"returns"`
	}
	if err := json.NewDecoder(list.Body).Decode(&body); err != nil {
		t.Fatalf("decode returns: %v", err)
	}
	if len(body.Returns) != 1 || body.Returns[0].RefundAmount.StringFixed(2) != "26.50" {
		t.Fatalf("unexpected returns %+v", body.Returns)
	}
}

func TestReturnOverQuantityIs422WithLineDetails(t *testing.T) {
	api := newTestAPI(t)
	sale := sellAmoxiclav(t, api, loginAsCashier(t, api), 2)
	admin := loginAsAdmin(t, api)
	itemID := sale.Invoice.Items[0].ID

	res := sendJSON(t, api, http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", admin, domain.ReturnRequest{
		Items: []domain.ReturnLineRequest{{SaleItemID: itemID, Quantity: 3}},
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", res.Code, res.Body.String())
	}
	body := decodeError(t, res)
	if _, ok := body.Details[itemID]; !ok {
		t.Fatalf("expected details keyed by sale item id, got %+v", body.Details)
	}

	form := url.Values{}
	form.Set("qty_"+itemID, "two")
	res = send(t, api, http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", admin,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for non-numeric quantity, got %d", res.Code)
	}
}

func TestReturnWithNothingSelectedIs400(t *testing.T) {
	api := newTestAPI(t)
	sale := sellAmoxiclav(t, api, loginAsCashier(t, api), 2)
	admin := loginAsAdmin(t, api)

	form := url.Values{}
	form.Set("qty_"+sale.Invoice.Items[0].ID, "0")
	res := send(t, api, http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", admin,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestCashierCannotSubmitReturn(t *testing.T) {
	api := newTestAPI(t)
	cashier := loginAsCashier(t, api)
	sale := sellAmoxiclav(t, api, cashier, 1)

	res := sendJSON(t, api, http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", cashier, domain.ReturnRequest{
		Items: []domain.ReturnLineRequest{{SaleItemID: sale.Invoice.Items[0].ID, Quantity: 1}},
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestUnknownInvoiceIs404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	res := send(t, api, http.MethodGet, "/api/v1/sales/sale_missing", token, "", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteProductWithStockIs409(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	res := send(t, api, http.MethodDelete, "/api/v1/products/prd_paracetamol", admin, "", nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestDailyRecordsSpreadsheetExport(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	today := time.Now().UTC().Format(domain.DateLayout)

	res := send(t, api, http.MethodGet, "/api/v1/reports/daily?from="+today+"&to="+today+"&format=xlsx", admin, "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Type"); got != report.ContentType {
		t.Fatalf("unexpected content type %s", got)
	}
	if !bytes.HasPrefix(res.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container body")
	}
}

func TestMonthlyRecordsRejectsBadYear(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	res := send(t, api, http.MethodGet, "/api/v1/reports/monthly?year=soon", admin, "", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCashierCannotReachAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	cashier := loginAsCashier(t, api)

	for _, path := range []string{"/api/v1/purchases", "/api/v1/expenses", "/api/v1/users", "/api/v1/alerts/expiry"} {
		res := send(t, api, http.MethodGet, path, cashier, "", nil)
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, res.Code)
		}
	}
}

func TestCreateUserWritesAudit(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	res := sendJSON(t, api, http.MethodPost, "/api/v1/users", admin, domain.UserCreateRequest{
		Username: "nightshift",
		Password: "night123",
		Role:     domain.RoleCashier,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	dup := sendJSON(t, api, http.MethodPost, "/api/v1/users", admin, domain.UserCreateRequest{
		Username: "nightshift",
		Password: "night123",
	})
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate user, got %d", dup.Code)
	}

	logs := send(t, api, http.MethodGet, "/api/v1/audit-logs", admin, "", nil)
	var body struct {
		Logs []domain.AuditLog `json:"logs"`
	}
	if err := json.NewDecoder(logs.Body).Decode(&body); err != nil {
		t.Fatalf("decode audit logs: %v", err)
	}
	found := false
	for _, entry := range body.Logs {
		if entry.Action == "user_create" && entry.EntityID == "nightshift" && entry.ActorUsername == "admin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected user_create audit entry, got %+v", body.Logs)
	}
}

func TestReturnFormAcceptsCSRFField(t *testing.T) {
	api := newTestAPI(t)
	sale := sellAmoxiclav(t, api, loginAsCashier(t, api), 2)
	admin := loginAsAdmin(t, api)

	form := url.Values{}
	form.Set("csrf_token", fetchCSRFToken(t, api))
	form.Set("qty_"+sale.Invoice.Items[0].ID, "2")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+admin)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestReturnFormWithSessionCookie(t *testing.T) {
	api := newTestAPI(t)
	sale := sellAmoxiclav(t, api, loginAsCashier(t, api), 2)

	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "admin123"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")
	loginRes := httptest.NewRecorder()
	api.Handler().ServeHTTP(loginRes, loginReq)

	var session *http.Cookie
	for _, c := range loginRes.Result().Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("expected an HttpOnly session cookie from login, got %+v", session)
	}

	form := url.Values{}
	form.Set("csrf_token", fetchCSRFToken(t, api))
	form.Set("qty_"+sale.Invoice.Items[0].ID, "1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(session)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d (body: %s)", res.Code, res.Body.String())
	}

	noCSRF := httptest.NewRequest(http.MethodPost, "/api/v1/sales/"+sale.InvoiceID+"/returns", strings.NewReader("qty_x=1"))
	noCSRF.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	noCSRF.AddCookie(session)
	res = httptest.NewRecorder()
	api.Handler().ServeHTTP(res, noCSRF)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", res.Code)
	}
}
