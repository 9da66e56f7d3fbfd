// internal/server/handler.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/signalnine/oncall/internal/history"
	"github.com/signalnine/oncall/internal/pipeline"
	"github.com/signalnine/oncall/internal/protocol"
)

// Version is reported by /health
var Version = "dev"

// Runner is the part of the pipeline the API drives
type Runner interface {
	Run(ctx context.Context, req protocol.AnalysisRequest) (*protocol.AnalysisResult, error)
	QuickStats(ctx context.Context, req protocol.AnalysisRequest) (*protocol.Statistics, error)
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Stage      string `json:"stage,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	AnalysisID string `json:"analysis_id,omitempty"`
}

// Handler serves the analysis API
type Handler struct {
	runner  Runner
	db      *history.DB
	results *cache.Cache
	sem     *semaphore.Weighted
	log     zerolog.Logger
}

// NewHandler creates a handler. db may be nil to disable run history.
func NewHandler(runner Runner, db *history.DB, maxConcurrent int64, resultTTL time.Duration, log zerolog.Logger) *Handler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	return &Handler{
		runner:  runner,
		db:      db,
		results: cache.New(resultTTL, 2*resultTTL),
		sem:     semaphore.NewWeighted(maxConcurrent),
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Register mounts the API routes on r
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api/v1/analysis")
	api.POST("", h.analyze)
	api.GET("/quick-stats", h.quickStats)
	api.GET("/status/:id", h.status)
	api.GET("/:id", h.result)

	r.GET("/health", h.health)
	r.GET("/health/ready", h.ready)
}

type quickStatsQuery struct {
	HoursBack     int    `form:"hours_back"`
	FilterQuery   string `form:"filter_query"`
	MaxLogs       int    `form:"max_logs"`
	FocusOnErrors bool   `form:"focus_on_errors"`
}

func (h *Handler) analyze(c *gin.Context) {
	// fields absent from the body keep these values
	req := protocol.AnalysisRequest{FocusOnErrors: true}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.sem.Acquire(ctx, 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Code: string(pipeline.CodeCanceled), Message: err.Error()})
		return
	}
	defer h.sem.Release(1)

	started := time.Now().UTC()
	result, err := h.runner.Run(ctx, req)
	if err != nil {
		h.record(failedRecord("full", started, err))
		h.writeError(c, err)
		return
	}

	h.results.Set(result.AnalysisID, result, cache.DefaultExpiration)
	h.record(&history.Record{
		ID:           result.AnalysisID,
		Timestamp:    result.Timestamp,
		Mode:         "full",
		Status:       string(pipeline.StateComplete),
		Stage:        string(pipeline.StateComplete),
		TotalLogs:    result.Statistics.TotalLogs,
		Findings:     len(result.Findings),
		DocumentPath: result.DocumentPath,
		Summary:      result.Summary,
	})
	c.JSON(http.StatusOK, result)
}

func (h *Handler) quickStats(c *gin.Context) {
	q := quickStatsQuery{HoursBack: 24}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	st, err := h.runner.QuickStats(c.Request.Context(), protocol.AnalysisRequest{
		HoursBack:     q.HoursBack,
		FilterQuery:   q.FilterQuery,
		MaxLogs:       q.MaxLogs,
		FocusOnErrors: q.FocusOnErrors,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) result(c *gin.Context) {
	id := c.Param("id")
	if v, ok := h.results.Get(id); ok {
		c.JSON(http.StatusOK, v)
		return
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Code: "NOT_FOUND", Message: "no recent result for analysis " + id})
}

func (h *Handler) status(c *gin.Context) {
	id := c.Param("id")
	if h.db == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Code: "NOT_FOUND", Message: "run history is disabled"})
		return
	}
	rec, err := h.db.Get(id)
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Code: "NOT_FOUND", Message: "unknown analysis " + id})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("analysis_id", id).Msg("History lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Code: string(pipeline.CodeInternal), Message: "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": Version,
		"time":    time.Now().UTC(),
	})
}

func (h *Handler) ready(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handler) record(r *history.Record) {
	if h.db == nil || r == nil {
		return
	}
	if err := h.db.Save(r); err != nil {
		h.log.Error().Err(err).Str("analysis_id", r.ID).Msg("DB error")
	}
}

func failedRecord(mode string, started time.Time, err error) *history.Record {
	se, ok := pipeline.AsStageError(err)
	if !ok {
		// rejected before a run started: no id to record under
		return nil
	}
	return &history.Record{
		ID:        se.AnalysisID,
		Timestamp: started,
		Mode:      mode,
		Status:    string(pipeline.StateFailed),
		Stage:     string(se.Stage),
		Code:      string(se.Code),
		Attempts:  se.Attempts,
		Error:     se.Err.Error(),
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var re *protocol.RequestError
	if errors.As(err, &re) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Code: "INVALID_REQUEST", Message: re.Error()})
		return
	}

	se, ok := pipeline.AsStageError(err)
	if !ok {
		h.log.Error().Err(err).Msg("Unexpected error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Code: string(pipeline.CodeInternal), Message: err.Error()})
		return
	}

	c.JSON(statusFor(se.Code), ErrorResponse{
		Error:      "analysis_failed",
		Code:       string(se.Code),
		Message:    se.Err.Error(),
		Stage:      string(se.Stage),
		Attempts:   se.Attempts,
		AnalysisID: se.AnalysisID,
	})
}

// statusFor maps failure codes to HTTP statuses: upstream failures are 502
func statusFor(code pipeline.Code) int {
	switch code {
	case pipeline.CodeSourceUnavailable, pipeline.CodeSourceAuth,
		pipeline.CodeProviderFatal, pipeline.CodeProviderExhausted, pipeline.CodeParseError:
		return http.StatusBadGateway
	case pipeline.CodeSourceBadPredicate:
		return http.StatusBadRequest
	case pipeline.CodeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
