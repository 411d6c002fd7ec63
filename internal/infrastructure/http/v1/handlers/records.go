package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"recordshop/internal/domain/audit"
	"recordshop/internal/domain/records"
	"recordshop/internal/infrastructure/http/v1/dto"
)

const defaultHistoryLimit = 50

// RecordService is the catalog API the handler depends on.
type RecordService interface {
	Create(ctx context.Context, r *records.Record) (*records.Record, error)
	Get(ctx context.Context, rawID string) (*records.Record, error)
	Update(ctx context.Context, rawID string, patch records.Patch) (*records.Record, error)
	Search(ctx context.Context, f records.SearchFilter) (*records.SearchResult, error)
	History(ctx context.Context, rawID string, limit int) ([]audit.Entry, error)
}

// RecordHandler handles /records.
type RecordHandler struct {
	*BaseHandler
	service RecordService
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(base *BaseHandler, service RecordService) *RecordHandler {
	return &RecordHandler{BaseHandler: base, service: service}
}

// Create handles POST /records.
func (h *RecordHandler) Create(c *gin.Context) {
	var req dto.CreateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	created, err := h.service.Create(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromRecord(created))
}

// Get handles GET /records/:id.
func (h *RecordHandler) Get(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromRecord(rec))
}

// Update handles PATCH /records/:id.
func (h *RecordHandler) Update(c *gin.Context) {
	var req dto.UpdateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), req.ToPatch())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromRecord(updated))
}

// List handles GET /records: text search, filters and pagination.
func (h *RecordHandler) List(c *gin.Context) {
	var query dto.SearchRecordsQuery
	if !h.BindQuery(c, &query) {
		return
	}

	res, err := h.service.Search(c.Request.Context(), query.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSearchResult(res))
}

// History handles GET /records/:id/history.
func (h *RecordHandler) History(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", defaultHistoryLimit)

	entries, err := h.service.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAuditEntries(entries))
}
