package openingstock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// importMaxBytes caps upload size; opening imports are spreadsheets, not dumps.
const importMaxBytes = 8 << 20

// Handler wires opening-stock HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the opening-stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers opening-stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/opening-stock", func(r chi.Router) {
		r.Post("/", h.submitManual)
		r.Put("/bulk", h.submitBulk)
		r.Post("/import", h.importFile)
	})
}

type bulkItem struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    int64           `json:"quantity"`
	BatchNumber string          `json:"batch_number,omitempty"`
	UnitCost    decimal.Decimal `json:"unit_cost,omitempty"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

type bulkRequest struct {
	Items []bulkItem `json:"items" validate:"required,min=1"`
}

func (h *Handler) submitManual(w http.ResponseWriter, r *http.Request) {
	var req ManualInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	req.ActorID = actorFrom(r)
	grnNumber, err := h.service.SubmitManual(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"grn_number": grnNumber})
}

func (h *Handler) submitBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows := make([]Row, 0, len(req.Items))
	for i, item := range req.Items {
		rows = append(rows, Row{
			SourceRow:   i + 1,
			ProductID:   item.ProductID,
			WarehouseID: item.WarehouseID,
			Quantity:    item.Quantity,
			BatchNumber: item.BatchNumber,
			UnitCost:    item.UnitCost,
			ExpiryDate:  item.ExpiryDate,
		})
	}
	result, err := h.service.ImportBulk(r.Context(), rows, actorFrom(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, importMaxBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart field 'file' required")
		return
	}
	defer file.Close()

	rows, err := ParseDelimited(file)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.service.ImportBulk(r.Context(), rows, actorFrom(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateOpeningBalance):
		httpx.Problem(w, http.StatusConflict, "Opening Balance Exists", err.Error())
	case errors.Is(err, ledger.ErrInvalidQuantity), errors.Is(err, ErrValidation), errors.Is(err, ErrEmptyFile):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("opening stock", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// actorFrom resolves the acting user from the request. Auth middleware is not
// part of this service yet, so the header is trusted input from the gateway.
func actorFrom(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
