package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opendatarepo/odr-backend/internal/http/response"
	"github.com/opendatarepo/odr-backend/internal/platform/dbctx"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
	"github.com/opendatarepo/odr-backend/internal/services"
)

const downloadBufferSize = 64 * 1024

type ExportHandler struct {
	log *logger.Logger
	svc services.ExportService
}

func NewExportHandler(baseLog *logger.Logger, svc services.ExportService) *ExportHandler {
	return &ExportHandler{
		log: baseLog.With("handler", "ExportHandler"),
		svc: svc,
	}
}

func (h *ExportHandler) Start(c *gin.Context) {
	var in services.StartExportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	job, err := h.svc.StartExport(dbctx.Context{Ctx: c.Request.Context()}, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{
		"id":      job.ID,
		"total":   job.Total,
		"current": job.Current,
	})
}

func (h *ExportHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("malformed job id"))
		return
	}
	job, err := h.svc.GetJobForRequestUser(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("export job %s not found", jobID))
		return
	}
	response.RespondOK(c, gin.H{
		"id":           job.ID,
		"total":        job.Total,
		"current":      job.Current,
		"completed_at": job.CompletedAt,
		"created_at":   job.CreatedAt,
	})
}

// Download streams the finished file with a fixed-size copy buffer so memory
// use stays flat regardless of export size.
func (h *ExportHandler) Download(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("malformed job id"))
		return
	}
	path, filename, err := h.svc.ResolveDownload(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	buf := make([]byte, downloadBufferSize)
	if _, err := io.CopyBuffer(c.Writer, f, buf); err != nil {
		// Headers are already out; all we can do is log the broken stream.
		h.log.Warn("Download stream interrupted", "job_id", jobID, "error", err)
	}
}

type stashRecordListRequest struct {
	RecordIDs []uuid.UUID `json:"record_ids"`
}

func (h *ExportHandler) StashRecordList(c *gin.Context) {
	var in stashRecordListRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	token, err := h.svc.StashRecordList(c.Request.Context(), in.RecordIDs)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"token": token})
}
