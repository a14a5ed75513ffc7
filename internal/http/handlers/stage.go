package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/opendatarepo/odr-backend/internal/domain"
	"github.com/opendatarepo/odr-backend/internal/http/response"
	jobrt "github.com/opendatarepo/odr-backend/internal/jobs/runtime"
	"github.com/opendatarepo/odr-backend/internal/platform/logger"
)

// StageHandler exposes the pipeline stages over HTTP for out-of-process
// runners. The body is the same JSON payload the queue carries; the handler
// dispatches it through the registry exactly as the in-process worker would.
type StageHandler struct {
	log      *logger.Logger
	registry *jobrt.Registry
}

func NewStageHandler(baseLog *logger.Logger, registry *jobrt.Registry) *StageHandler {
	return &StageHandler{
		log:      baseLog.With("handler", "StageHandler"),
		registry: registry,
	}
}

func (h *StageHandler) run(c *gin.Context, tube string) {
	handler, ok := h.registry.Get(tube)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("unknown stage %q", tube))
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := handler.Run(jobrt.NewContext(c.Request.Context(), tube, raw)); err != nil {
		h.log.Error("Stage invocation failed", "tube", tube, "error", err)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "ok"})
}

func (h *StageHandler) Construct(c *gin.Context) { h.run(c, types.TubeCSVExportStart) }
func (h *StageHandler) Worker(c *gin.Context)    { h.run(c, types.TubeCSVExportWorker) }
func (h *StageHandler) Finalize(c *gin.Context)  { h.run(c, types.TubeCSVExportFinalize) }
