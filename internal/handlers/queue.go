package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/digitalservices/queue-service/internal/dispatch"
	"github.com/digitalservices/queue-service/internal/queue"
	"github.com/digitalservices/queue-service/internal/storage"
	"github.com/digitalservices/queue-service/internal/store"
)

// Enqueue response messages
const (
	MessageEnqueued      = "Inserción en la cola realizada con éxito."
	MessageEnqueueFailed = "Error en el proceso de encolado."
)

// Dispatcher is the part of dispatch.Dispatcher the queue routes trigger
type Dispatcher interface {
	Run(ctx context.Context, priority bool) (*dispatch.BatchResult, error)
	RunNext(ctx context.Context) (*dispatch.BatchResult, error)
	SelectForTechnology(ctx context.Context, priority bool) ([]queue.Entry, error)
}

// EnqueueRequest is the body of POST /queue/enqueue
type EnqueueRequest struct {
	Technology         string          `json:"Technology" binding:"required" jsonschema:"required"`
	TechnologyEndpoint string          `json:"TechnologyEndpoint" binding:"required" jsonschema:"required"`
	PrevEndpointAPI    string          `json:"PrevEndpointApi"`
	NextEndpointAPI    string          `json:"NextEndpointApi"`
	BasePathReference  string          `json:"BasePathReference"`
	AdditionalData     json.RawMessage `json:"AdditionalData" binding:"required" jsonschema:"required,type=object"`
}

// EnqueueResponse is the result of an enqueue
type EnqueueResponse struct {
	Success bool   `json:"success" jsonschema:"required"`
	Message string `json:"message" jsonschema:"required"`
	ID      int64  `json:"id,omitempty"`
}

// MessageResponse is the neutral response of the run routes when nothing ran
type MessageResponse struct {
	Message string `json:"Message" jsonschema:"required"`
}

// QueueHandler serves the /queue routes
type QueueHandler struct {
	dispatcher Dispatcher
	store      store.StatusStore
	files      storage.Storage
	ipAddress  string
}

// NewQueueHandler creates the queue routes. ipAddress is stored on every
// enqueued entry.
func NewQueueHandler(d Dispatcher, st store.StatusStore, files storage.Storage, ipAddress string) *QueueHandler {
	return &QueueHandler{
		dispatcher: d,
		store:      st,
		files:      files,
		ipAddress:  ipAddress,
	}
}

// Register mounts the routes on rg. runGuards wrap the run routes only.
func (h *QueueHandler) Register(rg *gin.RouterGroup, runGuards ...gin.HandlerFunc) {
	rg.POST("/enqueue", h.Enqueue)

	runs := rg.Group("", runGuards...)
	runs.GET("/run", h.Run)
	runs.GET("/run-priority", h.RunPriority)
	runs.GET("/run-technology", h.RunTechnology)
	runs.GET("/run-technology-priority", h.RunTechnologyPriority)
	runs.GET("/run-next", h.RunNext)
}

// Enqueue stores the additional data next to the inputs and registers the entry
// @Summary Enqueue a process
// @Description Writes the additional data side file into nivel_1_data_modeler.FolderPath and inserts a Registered queue entry
// @Tags queue
// @Accept json
// @Produce json
// @Param request body EnqueueRequest true "Entry to enqueue"
// @Success 200 {object} EnqueueResponse
// @Failure 400 {object} EnqueueResponse "Invalid request"
// @Failure 500 {object} EnqueueResponse "Storage or database failure"
// @Router /queue/enqueue [post]
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, EnqueueResponse{Message: err.Error()})
		return
	}

	data, err := queue.ParseAdditionalData(req.AdditionalData)
	if err != nil {
		c.JSON(http.StatusBadRequest, EnqueueResponse{Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	logger := log.With().
		Str("process_id", data.Modeler.ProcessID).
		Str("technology", req.Technology).
		Logger()

	path, err := h.files.WriteSideFile(ctx, data.Modeler.FolderPath, req.AdditionalData)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write additional data")
		c.JSON(http.StatusInternalServerError, EnqueueResponse{Message: MessageEnqueueFailed + " " + err.Error()})
		return
	}

	// The side file is not removed when the insert fails; a retried enqueue overwrites it.
	id, err := h.store.Insert(ctx, queue.NewEntry{
		ProcessID:          data.Modeler.ProcessID,
		Technology:         req.Technology,
		TechnologyEndpoint: req.TechnologyEndpoint,
		IPAddress:          h.ipAddress,
		APIPrev:            req.PrevEndpointAPI,
		APINext:            req.NextEndpointAPI,
		ReferenceBasePath:  req.BasePathReference,
		AdditionalDataPath: path,
		Priority:           data.PriorityOrDefault(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to insert queue entry")
		c.JSON(http.StatusInternalServerError, EnqueueResponse{Message: MessageEnqueueFailed + " " + err.Error()})
		return
	}

	logger.Info().Int64("queue_id", id).Str("side_file", path).Msg("Entry enqueued")
	c.JSON(http.StatusOK, EnqueueResponse{Success: true, Message: MessageEnqueued, ID: id})
}

// Run dispatches one batch of Registered entries
// @Summary Dispatch queued entries
// @Description Claims up to dispatch.batch_size Registered entries and fires each at its technology endpoint
// @Tags queue
// @Produce json
// @Success 200 {object} dispatch.BatchResult
// @Failure 500 {object} map[string]string "Claim failed"
// @Router /queue/run [get]
func (h *QueueHandler) Run(c *gin.Context) {
	h.run(c, false)
}

// RunPriority dispatches one batch of prioritized entries
// @Summary Dispatch prioritized entries
// @Description Same as /queue/run restricted to entries with priority above zero, highest first
// @Tags queue
// @Produce json
// @Success 200 {object} dispatch.BatchResult
// @Failure 500 {object} map[string]string "Claim failed"
// @Router /queue/run-priority [get]
func (h *QueueHandler) RunPriority(c *gin.Context) {
	h.run(c, true)
}

// Dispatch passes are detached from the request; a dropped client does not
// stop a batch halfway.
func (h *QueueHandler) run(c *gin.Context, priority bool) {
	result, err := h.dispatcher.Run(context.WithoutCancel(c.Request.Context()), priority)
	if err != nil {
		log.Error().Err(err).Bool("priority", priority).Msg("Dispatch run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dispatch queue", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunTechnology hands waiting entries to a technology worker
// @Summary Select entries for a technology worker
// @Description Flags entries sent to process as processing technology and returns them
// @Tags queue
// @Produce json
// @Success 200 {array} queue.Entry
// @Success 200 {object} MessageResponse "Nothing to process"
// @Failure 500 {object} map[string]string "Selection failed"
// @Router /queue/run-technology [get]
func (h *QueueHandler) RunTechnology(c *gin.Context) {
	h.runTechnology(c, false)
}

// RunTechnologyPriority hands prioritized waiting entries to a technology worker
// @Summary Select prioritized entries for a technology worker
// @Tags queue
// @Produce json
// @Success 200 {array} queue.Entry
// @Success 200 {object} MessageResponse "Nothing to process"
// @Failure 500 {object} map[string]string "Selection failed"
// @Router /queue/run-technology-priority [get]
func (h *QueueHandler) RunTechnologyPriority(c *gin.Context) {
	h.runTechnology(c, true)
}

func (h *QueueHandler) runTechnology(c *gin.Context, priority bool) {
	entries, err := h.dispatcher.SelectForTechnology(c.Request.Context(), priority)
	if err != nil {
		log.Error().Err(err).Bool("priority", priority).Msg("Technology selection failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to select entries", "details": err.Error()})
		return
	}
	if len(entries) == 0 {
		c.JSON(http.StatusOK, MessageResponse{Message: dispatch.MessageTechnologyIdle})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// RunNext forwards finished entries to their next stage
// @Summary Forward results to the next stage
// @Description Downloads results of ReadyForNext entries, posts them to the next API and notifies the Output API
// @Tags queue
// @Produce json
// @Success 200 {object} dispatch.BatchResult
// @Failure 500 {object} map[string]string "Claim failed"
// @Router /queue/run-next [get]
func (h *QueueHandler) RunNext(c *gin.Context) {
	result, err := h.dispatcher.RunNext(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		log.Error().Err(err).Msg("Run-next failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to forward results", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// isNotFound reports whether err means the addressed row does not exist
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, storage.ErrNotFound)
}
