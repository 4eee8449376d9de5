package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"webbuilder/internal/models"
	"webbuilder/internal/service/assistant"
	"webbuilder/internal/worker"
)

const downloadFilename = "generated-website.html"

// Handler wires HTTP routes to the shared agent. Every mutation runs through
// the single-writer queue.
type Handler struct {
	agent        *assistant.Agent
	queue        *worker.Queue
	bus          *worker.StateBus
	frontendPath string
	outputPath   string
	log          zerolog.Logger
}

type Options struct {
	FrontendPath string
	// OutputPath receives the code of every successful generation when set.
	OutputPath string
	Bus        *worker.StateBus
	Logger     zerolog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(agent *assistant.Agent, queue *worker.Queue, opts Options) *Handler {
	return &Handler{
		agent:        agent,
		queue:        queue,
		bus:          opts.Bus,
		frontendPath: opts.FrontendPath,
		outputPath:   opts.OutputPath,
		log:          opts.Logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.frontend)
	api := router.Group("/api")
	api.POST("/chat", h.chat)
	api.GET("/history", h.history)
	api.POST("/clear", h.clear)
	api.POST("/download", h.download)
	api.POST("/key", h.setKey)
	api.GET("/status", h.status)
}

// ListenForPeers reloads the agent from the shared journal whenever another
// instance announces a mutation.
func (h *Handler) ListenForPeers(ctx context.Context) error {
	return h.bus.Listen(ctx, func(msg worker.StateMessage) {
		err := h.queue.Submit(ctx, func(ctx context.Context) {
			if err := h.agent.Restore(ctx); err != nil {
				h.log.Warn().Err(err).Str("peer", msg.InstanceID).Msg("reload after peer update failed")
				return
			}
			h.log.Debug().Str("peer", msg.InstanceID).Str("scope", msg.Scope).Msg("reloaded after peer update")
		})
		if err != nil {
			h.log.Warn().Err(err).Msg("schedule peer reload failed")
		}
	})
}

func (h *Handler) frontend(c *gin.Context) {
	info, err := os.Stat(h.frontendPath)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "frontend not found"})
		return
	}
	c.File(h.frontendPath)
}

type chatRequest struct {
	Message string `json:"message"`
	APIKey  string `json:"api_key"`
}

type chatResponse struct {
	Code        string  `json:"code"`
	Explanation string  `json:"explanation"`
	Error       *string `json:"error"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var result models.GenerateResult
	err := h.queue.Submit(c.Request.Context(), func(ctx context.Context) {
		if key := strings.TrimSpace(req.APIKey); key != "" {
			h.agent.SetAPIKey(key)
		}
		result = h.agent.GenerateWebsite(ctx, req.Message)
		if result.Kind == assistant.KindMissingCredential {
			return
		}
		if !result.Failed() {
			h.writeOutput()
		}
		h.bus.Publish(context.WithoutCancel(ctx), worker.ScopeConversation)
	})
	if err != nil {
		h.queueError(c, err)
		return
	}

	if result.Kind == assistant.KindMissingCredential {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       "API key not set. Please provide an API key.",
			"code":        "",
			"explanation": "",
		})
		return
	}
	if result.Failed() {
		msg := result.Error
		c.JSON(http.StatusInternalServerError, chatResponse{Code: result.Code, Explanation: result.Explanation, Error: &msg})
		return
	}
	c.JSON(http.StatusOK, chatResponse{Code: result.Code, Explanation: result.Explanation})
}

func (h *Handler) writeOutput() {
	if h.outputPath == "" {
		return
	}
	if err := h.agent.SaveCodeToFile(h.outputPath); err != nil {
		h.log.Warn().Err(err).Str("path", h.outputPath).Msg("write generated code failed")
	}
}

func (h *Handler) history(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"history":  h.agent.History(),
		"has_code": h.agent.LastGeneratedCode() != "",
	})
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) clear(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please set confirm=true to clear history"})
		return
	}
	err := h.queue.Submit(c.Request.Context(), func(ctx context.Context) {
		h.agent.ClearHistory(ctx)
		h.bus.Publish(context.WithoutCancel(ctx), worker.ScopeClear)
	})
	if err != nil {
		h.queueError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "History cleared successfully"})
}

func (h *Handler) download(c *gin.Context) {
	code := h.agent.LastGeneratedCode()
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No code generated yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "filename": downloadFilename})
}

type keyRequest struct {
	APIKey string `json:"api_key"`
}

func (h *Handler) setKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}
	if err := h.queue.Submit(c.Request.Context(), func(context.Context) {
		h.agent.SetAPIKey(key)
	}); err != nil {
		h.queueError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Status())
}

func (h *Handler) queueError(c *gin.Context, err error) {
	status := queueErrorStatus(err)
	if status == http.StatusTooManyRequests {
		c.JSON(status, gin.H{"error": "server is busy, please retry"})
		return
	}
	h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("request not processed")
	c.JSON(status, gin.H{"error": err.Error()})
}

func queueErrorStatus(err error) int {
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, worker.ErrQueueStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
