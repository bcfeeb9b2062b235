package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/report"
	"pharmapos/backend/internal/store"
)

func (a *API) handleDailySales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	daily, err := a.service.DailySales(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, "handleDailySales", err)
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

func (a *API) handleDailyRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	from, to := query.Get("from"), query.Get("to")
	records, err := a.service.DailyRecords(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, "handleDailyRecords", err)
		return
	}

	if wantsSpreadsheet(r) {
		var buf bytes.Buffer
		if err := report.WriteDaily(&buf, records); err != nil {
			writeServiceError(w, "handleDailyRecords", err)
			return
		}
		name := "daily-records.xlsx"
		if len(records) > 0 {
			name = fmt.Sprintf("daily-records-%s-%s.xlsx", records[0].Day, records[len(records)-1].Day)
		}
		writeSpreadsheet(w, name, &buf)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (a *API) handleMonthlyRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	year := time.Now().Year()
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: year must be a number", store.ErrInvalidTransaction))
			return
		}
		year = parsed
	}

	months, err := a.service.MonthlyRecords(r.Context(), year)
	if err != nil {
		writeServiceError(w, "handleMonthlyRecords", err)
		return
	}

	if wantsSpreadsheet(r) {
		withDays := r.URL.Query().Get("days") == "1" || r.URL.Query().Get("days") == "true"
		var buf bytes.Buffer
		if err := report.WriteMonthly(&buf, months, withDays); err != nil {
			writeServiceError(w, "handleMonthlyRecords", err)
			return
		}
		writeSpreadsheet(w, fmt.Sprintf("monthly-records-%d.xlsx", year), &buf)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "months": months})
}

func (a *API) handleExpiryAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	alerts, err := a.service.ExpiryAlerts(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, "handleExpiryAlerts", err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	dashboard, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, "handleDashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeServiceError(w, "handleAuditLogs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func wantsSpreadsheet(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "xlsx")
}

func writeSpreadsheet(w http.ResponseWriter, filename string, body *bytes.Buffer) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := body.WriteTo(w); err != nil {
		logging.LogError("httpapi", "writeSpreadsheet", "write body", map[string]any{"file": filename}, err)
	}
}
