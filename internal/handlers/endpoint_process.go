package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/digitalservices/queue-service/internal/queue"
	"github.com/digitalservices/queue-service/internal/storage"
	"github.com/digitalservices/queue-service/internal/store"
)

// Callback response messages
const (
	MessageDetailSaved        = "Detalle insertado exitosamente."
	MessageProcessUpdated     = "Proceso actualizado exitosamente."
	MessageDetailUpdated      = "Estado actualizado exitosamente."
	MessageResultsUpdated     = "Resultados actualizados exitosamente."
	MessageQueueStatusUpdated = "Estado de la cola actualizado exitosamente."
	MessageQueueUpdated       = "Información de la cola actualizada exitosamente."
	MessageTechnologyUpdated  = "Información de la cola actualizada correctamente."
	MessageDataPathUpdated    = "Ruta de datos y estado actualizados exitosamente."
	MessageReprocessed        = "Ruta de datos, estado y mensaje actualizados exitosamente."
)

// UpdateResponse is returned by the callback writers
type UpdateResponse struct {
	Message  string `json:"Message" jsonschema:"required"`
	Updated  int64  `json:"updated,omitempty"`
	Promoted int64  `json:"promoted,omitempty"`
}

// EstimateResponse is the response of getEstimateWaitTime
type EstimateResponse struct {
	Hours int `json:"TiempoEstimadoEsperaHoras" jsonschema:"required"`
}

// Timestamp accepts RFC 3339 times and the zone-less layouts sent by the
// technology workers. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// JSONSchema describes Timestamp as a date-time string
func (Timestamp) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "date-time"}
}

func (t *Timestamp) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// TokenRequest is embedded in every token-gated body
type TokenRequest struct {
	Token string `json:"Token" jsonschema:"required"`
}

// UpdateQueueStatusRequest sets the status of one queue entry
type UpdateQueueStatusRequest struct {
	TokenRequest
	QueueID      int64   `json:"QueueId" binding:"required" jsonschema:"required"`
	StatusID     int     `json:"StatusId" binding:"required" jsonschema:"required,enum=3,enum=4,enum=12,enum=15,enum=16,enum=18"`
	ErrorMessage *string `json:"ErrorMessage"`
}

// UpdateProcessRequest sets the status of a process
type UpdateProcessRequest struct {
	TokenRequest
	ProcessID string `json:"ProcessId" binding:"required" jsonschema:"required"`
	StatusID  int    `json:"StatusId" binding:"required" jsonschema:"required,enum=3,enum=4,enum=15,enum=19"`
}

// UpdateProcessMessageRequest sets the status and message of a process
type UpdateProcessMessageRequest struct {
	UpdateProcessRequest
	Message string `json:"Message"`
}

// SaveProcessDetailRequest registers a detail row of a process
type SaveProcessDetailRequest struct {
	TokenRequest
	ProcessID  string `json:"ProcessId" binding:"required" jsonschema:"required"`
	// VariableID is a pointer so that 0 passes the required check
	VariableID *int `json:"VariableId" binding:"required" jsonschema:"required"`
}

// UpdateProcessStatusRequest sets the status of a detail row
type UpdateProcessStatusRequest struct {
	SaveProcessDetailRequest
	StatusID int `json:"StatusId" binding:"required" jsonschema:"required,enum=3,enum=4,enum=15,enum=19"`
}

// UpdateProcessStatusResultsRequest attaches result metadata to a detail row
type UpdateProcessStatusResultsRequest struct {
	SaveProcessDetailRequest
	Path               string     `json:"Path" binding:"required" jsonschema:"required"`
	ExecutionTimeStart *Timestamp `json:"ExecutionTimeStart"`
	ExecutionTimeEnd   *Timestamp `json:"ExecutionTimeEnd"`
}

// UpdateProcessQueueRequest reports a technology outcome
type UpdateProcessQueueRequest struct {
	TokenRequest
	ProcessID    string `json:"ProcessId" binding:"required" jsonschema:"required"`
	ResponsePath string `json:"ResponsePath" binding:"required" jsonschema:"required"`
	IsSuccess    *bool  `json:"IsSuccess" binding:"required" jsonschema:"required"`
}

// ReprocessQueueRequest sends one entry back to dispatch after a zero-byte notice
type ReprocessQueueRequest struct {
	TokenRequest
	ProcessID      string `json:"ProcessId" binding:"required" jsonschema:"required"`
	ReferenceQueue string `json:"ReferenceQueue" binding:"required" jsonschema:"required"`
}

// UpdateProcessingTechnologyRequest sets the technology in-flight flag
type UpdateProcessingTechnologyRequest struct {
	TokenRequest
	ProcessID              string `json:"ProcessId" binding:"required" jsonschema:"required"`
	ReferencePath          string `json:"ReferencePath" binding:"required" jsonschema:"required"`
	IsProcessingTechnology *bool  `json:"IsProcessingTechnology" binding:"required" jsonschema:"required"`
}

// UpdateProcessDataPathRequest records where a technology worker put its data
type UpdateProcessDataPathRequest struct {
	TokenRequest
	ProcessID              string `json:"ProcessId" binding:"required" jsonschema:"required"`
	QueueReferenceBasePath string `json:"QueueReferenceBasePath" binding:"required" jsonschema:"required"`
	DataToProcessPath      string `json:"DataToProcessPath" binding:"required" jsonschema:"required"`
}

// ReprocessTicketRequest re-enters a whole process into the queue
type ReprocessTicketRequest struct {
	TokenRequest
	TicketID string `json:"TicketId" binding:"required" jsonschema:"required"`
	Flow     int    `json:"Flow" binding:"required" jsonschema:"required,enum=1,enum=2"`
}

// EndpointProcessHandler serves the /endpoint-process callback routes
type EndpointProcessHandler struct {
	store store.StatusStore
	files storage.Storage
}

// NewEndpointProcessHandler creates the callback routes
func NewEndpointProcessHandler(st store.StatusStore, files storage.Storage) *EndpointProcessHandler {
	return &EndpointProcessHandler{store: st, files: files}
}

// Register mounts the routes on rg. tokenAuth guards every route except the
// wait time estimate.
func (h *EndpointProcessHandler) Register(rg *gin.RouterGroup, tokenAuth gin.HandlerFunc) {
	rg.GET("/getEstimateWaitTime", h.GetEstimateWaitTime)

	gated := rg.Group("", tokenAuth)
	gated.POST("/update-queue-status", h.UpdateQueueStatus)
	gated.POST("/update-process", h.UpdateProcess)
	gated.POST("/update-process-message", h.UpdateProcessMessage)
	gated.POST("/save-process-detail", h.SaveProcessDetail)
	gated.POST("/update-process-status", h.UpdateProcessStatus)
	gated.POST("/update-process-status-results", h.UpdateProcessStatusResults)
	gated.POST("/update-process-queue", h.UpdateProcessQueue)
	gated.POST("/update-process-queue-reprocess", h.UpdateProcessQueueReprocess)
	gated.POST("/update-processing-technology", h.UpdateProcessingTechnology)
	gated.POST("/update-process-data-path", h.UpdateProcessDataPath)
	gated.POST("/reprocess-ticket", h.ReprocessTicket)
}

// bind decodes the body cached by the token middleware
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindBodyWith(req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// storeFailed writes the response for a failed store call
func storeFailed(c *gin.Context, err error, msg string) {
	if isNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": msg, "details": err.Error()})
		return
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "details": err.Error()})
}

// rowsOrNotFound answers 404 when a keyed update matched nothing
func rowsOrNotFound(c *gin.Context, n int64, msg string) bool {
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return false
	}
	return true
}

// UpdateQueueStatus sets an arbitrary queue entry status
// @Summary Update queue entry status
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateQueueStatusRequest true "New status"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Queue entry not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-queue-status [post]
func (h *EndpointProcessHandler) UpdateQueueStatus(c *gin.Context) {
	var req UpdateQueueStatusRequest
	if !bind(c, &req) {
		return
	}
	if err := h.store.SetQueueStatus(c.Request.Context(), req.QueueID, queue.Status(req.StatusID), req.ErrorMessage); err != nil {
		storeFailed(c, err, "Failed to update queue status")
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageQueueStatusUpdated, Updated: 1})
}

// UpdateProcess sets a process status
// @Summary Update process status
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateProcessRequest true "New status"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Process not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-process [post]
func (h *EndpointProcessHandler) UpdateProcess(c *gin.Context) {
	var req UpdateProcessRequest
	if !bind(c, &req) {
		return
	}
	if err := h.store.SetProcessStatus(c.Request.Context(), req.ProcessID, queue.ProcessStatus(req.StatusID), nil); err != nil {
		storeFailed(c, err, "Failed to update process")
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageProcessUpdated, Updated: 1})
}

// UpdateProcessMessage sets a process status and message
// @Summary Update process status and message
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateProcessMessageRequest true "New status and message"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Process not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-process-message [post]
func (h *EndpointProcessHandler) UpdateProcessMessage(c *gin.Context) {
	var req UpdateProcessMessageRequest
	if !bind(c, &req) {
		return
	}
	message := req.Message
	if err := h.store.SetProcessStatus(c.Request.Context(), req.ProcessID, queue.ProcessStatus(req.StatusID), &message); err != nil {
		storeFailed(c, err, "Failed to update process")
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageProcessUpdated, Updated: 1})
}

// SaveProcessDetail registers a Pending detail row
// @Summary Save process detail
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body SaveProcessDetailRequest true "Detail to register"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/save-process-detail [post]
func (h *EndpointProcessHandler) SaveProcessDetail(c *gin.Context) {
	var req SaveProcessDetailRequest
	if !bind(c, &req) {
		return
	}
	if err := h.store.SaveProcessDetail(c.Request.Context(), req.ProcessID, *req.VariableID); err != nil {
		storeFailed(c, err, "Failed to save process detail")
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageDetailSaved})
}

// UpdateProcessStatus sets a detail row status
// @Summary Update process detail status
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateProcessStatusRequest true "New detail status"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Detail not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-process-status [post]
func (h *EndpointProcessHandler) UpdateProcessStatus(c *gin.Context) {
	var req UpdateProcessStatusRequest
	if !bind(c, &req) {
		return
	}
	if _, err := h.store.SetDetailStatus(c.Request.Context(), req.ProcessID, *req.VariableID, queue.ProcessStatus(req.StatusID)); err != nil {
		storeFailed(c, err, "Failed to update process detail status")
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageDetailUpdated, Updated: 1})
}

// UpdateProcessStatusResults summarizes a results folder onto its detail row
// @Summary Update process detail results
// @Description Walks Path and stores its size, top-level file count and path relative to the storage base dir
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateProcessStatusResultsRequest true "Results folder"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Detail or folder not found"
// @Failure 500 {object} map[string]string "Database or file system failure"
// @Router /endpoint-process/update-process-status-results [post]
func (h *EndpointProcessHandler) UpdateProcessStatusResults(c *gin.Context) {
	var req UpdateProcessStatusResultsRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	summary, err := h.files.Summarize(ctx, req.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Results path not found", "details": err.Error()})
			return
		}
		log.Error().Err(err).Str("path", req.Path).Msg("Failed to summarize results")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read results", "details": err.Error()})
		return
	}

	results := queue.DetailResults{
		Path:               summary.RelativePath,
		Size:               summary.Size,
		QtyFiles:           summary.FileCount,
		QtyTransactions:    summary.FileCount,
		ExecutionTimeStart: req.ExecutionTimeStart.ptr(),
		ExecutionTimeEnd:   req.ExecutionTimeEnd.ptr(),
	}
	if err := h.store.SetDetailResults(ctx, req.ProcessID, *req.VariableID, results); err != nil {
		storeFailed(c, err, "Failed to update process detail results")
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageResultsUpdated, Updated: 1})
}

// UpdateProcessQueue records a technology outcome and promotes finished siblings
// @Summary Report a technology outcome
// @Description Marks the entry owning ResponsePath ready for next (or pending on failure) and promotes siblings whose technology already succeeded
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateProcessQueueRequest true "Technology outcome"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-process-queue [post]
func (h *EndpointProcessHandler) UpdateProcessQueue(c *gin.Context) {
	var req UpdateProcessQueueRequest
	if !bind(c, &req) {
		return
	}

	update, err := h.store.RecordCallback(c.Request.Context(), queue.CallbackResult{
		ProcessID:    req.ProcessID,
		ResponsePath: req.ResponsePath,
		IsSuccess:    *req.IsSuccess,
	})
	if err != nil {
		storeFailed(c, err, "Failed to update queue")
		return
	}

	log.Info().
		Str("process_id", req.ProcessID).
		Bool("success", *req.IsSuccess).
		Int64("updated", update.Updated).
		Int64("promoted", update.Promoted).
		Msg("Technology outcome recorded")
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageQueueUpdated, Updated: update.Updated, Promoted: update.Promoted})
}

// UpdateProcessQueueReprocess sends an entry back to Registered after a zero-byte notice
// @Summary Reprocess a queue entry
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body ReprocessQueueRequest true "Entry to reprocess"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Queue entry not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-process-queue-reprocess [post]
func (h *EndpointProcessHandler) UpdateProcessQueueReprocess(c *gin.Context) {
	var req ReprocessQueueRequest
	if !bind(c, &req) {
		return
	}
	n, err := h.store.Reprocess(c.Request.Context(), req.ProcessID, req.ReferenceQueue, queue.MessageReprocessZeroBytes)
	if err != nil {
		storeFailed(c, err, "Failed to reprocess queue entry")
		return
	}
	if !rowsOrNotFound(c, n, "Queue entry not found") {
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageReprocessed, Updated: n})
}

// UpdateProcessingTechnology sets the technology in-flight flag of an entry
// @Summary Update processing technology flag
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateProcessingTechnologyRequest true "Flag value"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Queue entry not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-processing-technology [post]
func (h *EndpointProcessHandler) UpdateProcessingTechnology(c *gin.Context) {
	var req UpdateProcessingTechnologyRequest
	if !bind(c, &req) {
		return
	}
	n, err := h.store.SetProcessingTechnology(c.Request.Context(), req.ProcessID, req.ReferencePath, *req.IsProcessingTechnology)
	if err != nil {
		storeFailed(c, err, "Failed to update processing technology")
		return
	}
	if !rowsOrNotFound(c, n, "Queue entry not found") {
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageTechnologyUpdated, Updated: n})
}

// UpdateProcessDataPath marks an entry as sent to process
// @Summary Update process data path
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body UpdateProcessDataPathRequest true "Data path"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token or request"
// @Failure 404 {object} map[string]string "Queue entry not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/update-process-data-path [post]
func (h *EndpointProcessHandler) UpdateProcessDataPath(c *gin.Context) {
	var req UpdateProcessDataPathRequest
	if !bind(c, &req) {
		return
	}
	n, err := h.store.SetDataPath(c.Request.Context(), req.ProcessID, req.QueueReferenceBasePath, req.DataToProcessPath)
	if err != nil {
		storeFailed(c, err, "Failed to update data path")
		return
	}
	if !rowsOrNotFound(c, n, "Queue entry not found") {
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageDataPathUpdated, Updated: n})
}

// GetEstimateWaitTime estimates the queue wait in hours
// @Summary Estimate queue wait time
// @Description Counts Registered and Processing entries; two entries run every three hours
// @Tags endpoint-process
// @Produce json
// @Success 200 {object} EstimateResponse
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/getEstimateWaitTime [get]
func (h *EndpointProcessHandler) GetEstimateWaitTime(c *gin.Context) {
	n, err := h.store.CountWaiting(c.Request.Context())
	if err != nil {
		storeFailed(c, err, "Failed to count waiting entries")
		return
	}
	c.JSON(http.StatusOK, EstimateResponse{Hours: queue.EstimateWaitHours(n)})
}

// ReprocessTicket re-enters every entry of a process through a flow
// @Summary Reprocess a ticket
// @Description Flow 1 sends every entry back to dispatch; flow 2 re-forwards entries whose technology succeeded
// @Tags endpoint-process
// @Accept json
// @Produce json
// @Param request body ReprocessTicketRequest true "Ticket and flow"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} map[string]string "Invalid token, request or flow"
// @Failure 404 {object} map[string]string "Ticket not found"
// @Failure 500 {object} map[string]string "Database failure"
// @Router /endpoint-process/reprocess-ticket [post]
func (h *EndpointProcessHandler) ReprocessTicket(c *gin.Context) {
	var req ReprocessTicketRequest
	if !bind(c, &req) {
		return
	}
	flow := queue.ReprocessFlow(req.Flow)
	if !flow.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown flow %d", req.Flow)})
		return
	}

	n, err := h.store.ReprocessTicket(c.Request.Context(), req.TicketID, flow)
	if err != nil {
		storeFailed(c, err, "Failed to reprocess ticket")
		return
	}
	if !rowsOrNotFound(c, n, "Ticket not found") {
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Message: MessageProcessUpdated, Updated: n})
}
