package reporting

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires reporting HTTP endpoints. All read-only.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/stock", h.snapshot)
		r.Get("/stock/export", h.exportStock)
		r.Get("/movements", h.history)
		r.Get("/low-stock", h.lowStock)
		r.Get("/overview", h.overview)
	})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.Snapshot(r.Context(), queryInt(r, "warehouse_id"))
	if err != nil {
		h.logger.Error("snapshot", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock": levels})
}

func (h *Handler) exportStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.Snapshot(r.Context(), queryInt(r, "warehouse_id"))
	if err != nil {
		h.logger.Error("export stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=stock-%s.csv", time.Now().Format("20060102")))
	if err := WriteStockCSV(w, levels); err != nil {
		h.logger.Error("export stock write", slog.Any("error", err))
	}
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	productID := queryInt(r, "product_id")
	warehouseID := queryInt(r, "warehouse_id")
	if productID <= 0 || warehouseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and warehouse_id required")
		return
	}
	limit := int(queryInt(r, "limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	movements, err := h.service.History(r.Context(), productID, warehouseID, queryInt(r, "after_id"), limit)
	if err != nil {
		h.logger.Error("history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := queryInt(r, "threshold")
	if threshold <= 0 {
		threshold = 10
	}
	low, err := h.service.LowStock(r.Context(), queryInt(r, "warehouse_id"), threshold)
	if err != nil {
		h.logger.Error("low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"low_stock": low, "threshold": threshold})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	threshold := queryInt(r, "threshold")
	if threshold <= 0 {
		threshold = 10
	}
	overview, err := h.service.GetOverview(r.Context(), queryInt(r, "warehouse_id"), threshold)
	if err != nil {
		h.logger.Error("overview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}

func queryInt(r *http.Request, name string) int64 {
	value, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
