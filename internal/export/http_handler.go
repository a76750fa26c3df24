package export

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"
)

// Handler exposes submission export and stats over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Export handles GET /admin/export?format=csv|xlsx&status=<sync status>.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var status *domain.SyncStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed := domain.SyncStatus(raw)
		switch parsed {
		case domain.SyncStatusUnsynced, domain.SyncStatusSynced, domain.SyncStatusFailed:
			status = &parsed
		default:
			http.Error(w, fmt.Sprintf("unknown status %q", raw), http.StatusBadRequest)
			return
		}
	}

	stamp := time.Now().UTC().Format("2006-01-02")
	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="submissions-%s.csv"`, stamp))
		if err := h.service.WriteCSV(r.Context(), w, status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="submissions-%s.xlsx"`, stamp))
		if err := h.service.WriteXLSX(r.Context(), w, status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
	}
}

// Stats handles GET /admin/stats?form=<name>&from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid from date: %v", err), http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid to date: %v", err), http.StatusBadRequest)
			return
		}
		to = parsed
	}

	stats, err := h.service.StatsRange(r.Context(), r.URL.Query().Get("form"), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"stats": stats})
}
