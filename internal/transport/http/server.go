// Package http exposes the thin HTTP trigger surface that starts and
// resumes batched grading runs. It never runs the orchestrator itself:
// it mints batch state, checkpoints it so it's visible immediately, and
// hands the actual run off to the worker fleet over the shared job queue.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"brokle/internal/config"
	grading "brokle/internal/core/domain/grading"
	"brokle/internal/infrastructure/dispatch"
	"brokle/internal/transport/http/middleware"
	"brokle/pkg/websocket"
)

// Server is the grading trigger surface: start a batch, poll its state,
// resume it past a pending interrupt, and watch it over a websocket.
type Server struct {
	config       *config.Config
	logger       *slog.Logger
	server       *http.Server
	engine       *gin.Engine
	jobs         *dispatch.Queue
	checkpointer grading.Checkpointer
	hub          *websocket.Hub
	authMW       *middleware.AuthMiddleware
}

// NewServer wires the gin engine around the job queue and checkpointer
// shared with the worker fleet.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	jobs *dispatch.Queue,
	checkpointer grading.Checkpointer,
	hub *websocket.Hub,
	authMW *middleware.AuthMiddleware,
) *Server {
	return &Server{
		config:       cfg,
		logger:       logger,
		jobs:         jobs,
		checkpointer: checkpointer,
		hub:          hub,
		authMW:       authMW,
	}
}

// Start builds the route table and begins serving. It blocks until the
// underlying listener stops; shutdown is driven by the caller via Shutdown.
func (s *Server) Start() error {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	s.engine = gin.New()

	corsConfig := cors.DefaultConfig()
	if len(s.config.Server.CORSAllowedOrigins) == 0 {
		return errors.New("invalid CORS configuration: no origins specified")
	}
	corsConfig.AllowOrigins = s.config.Server.CORSAllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type"}
	corsConfig.MaxAge = 5 * time.Minute
	s.engine.Use(cors.New(corsConfig))

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger(s.logger))
	s.engine.Use(middleware.Recovery(s.logger))
	s.engine.Use(middleware.Metrics())

	s.engine.GET("/health", s.health)

	batches := s.engine.Group("/batches")
	batches.Use(s.authMW.RequireAuth())
	{
		batches.POST("", s.createBatch)
		batches.GET("/:id", s.getBatch)
		batches.POST("/:id/interrupt-response", s.postInterruptResponse)
		batches.GET("/:id/ws", s.watchBatch)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// startBatchRequest is the intake payload: everything grading.Inputs needs
// plus the runtime knobs a caller may override.
type startBatchRequest struct {
	AnswerImages       []grading.ImageRef          `json:"answer_images" binding:"required,min=1"`
	RubricImages       []grading.ImageRef          `json:"rubric_images,omitempty"`
	RubricText         string                      `json:"rubric_text,omitempty"`
	StudentMapping     []grading.StudentMappingEntry `json:"student_mapping,omitempty"`
	ManualBoundaries   []int                       `json:"manual_boundaries,omitempty"`
	Roster             []grading.RosterEntry       `json:"roster,omitempty"`
	ExpectedTotalScore *float64                    `json:"expected_total_score,omitempty"`
	GradingMode        grading.GradingMode         `json:"grading_mode,omitempty"`
}

func (s *Server) createBatch(c *gin.Context) {
	var req startBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputs := grading.Inputs{
		AnswerImages:       req.AnswerImages,
		RubricImages:       req.RubricImages,
		RubricText:         req.RubricText,
		StudentMapping:     req.StudentMapping,
		ManualBoundaries:   req.ManualBoundaries,
		Roster:             req.Roster,
		ExpectedTotalScore: req.ExpectedTotalScore,
		GradingMode:        req.GradingMode,
	}
	cfg := s.config.Grading.Resolve()
	state := grading.NewBatchGradingState(inputs, cfg)

	if err := s.checkpointer.Save(c.Request.Context(), *state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist batch state"})
		return
	}
	if err := s.jobs.PublishStart(c.Request.Context(), state.BatchID, inputs, cfg); err != nil {
		s.logger.Error("failed to publish batch start job", "batch_id", state.BatchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue batch"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batch_id": state.BatchID})
}

func (s *Server) getBatch(c *gin.Context) {
	state, err := s.checkpointer.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) postInterruptResponse(c *gin.Context) {
	batchID := c.Param("id")
	state, err := s.checkpointer.Load(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	if state.PendingInterrupt == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "batch has no pending interrupt"})
		return
	}

	var resp grading.InterruptResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var kind dispatch.BatchJobKind
	switch state.PendingInterrupt.Type {
	case grading.InterruptRubricReview:
		kind = dispatch.BatchJobResumeRubricReview
	case grading.InterruptResultsReview:
		kind = dispatch.BatchJobResumeResultsReview
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown interrupt type"})
		return
	}

	if err := s.jobs.PublishResume(c.Request.Context(), batchID, kind, resp); err != nil {
		s.logger.Error("failed to publish batch resume job", "batch_id", batchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue resume"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "resumed": kind})
}

func (s *Server) watchBatch(c *gin.Context) {
	if err := websocket.Upgrade(s.hub, c.Writer, c.Request, c.Param("id"), s.logger); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
