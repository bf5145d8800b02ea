package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/charnet/internal/checkpoint"
	"github.com/samcharles93/charnet/internal/corpus"
	"github.com/samcharles93/charnet/internal/logger"
	"github.com/samcharles93/charnet/internal/model"
	"github.com/samcharles93/charnet/internal/session"
)

// Server exposes training sessions over HTTP.
type Server struct {
	store    *SessionStore
	defaults session.Config
	log      logger.Logger
}

// NewServer creates a Server. defaults fill every field a create request
// leaves unset.
func NewServer(store *SessionStore, defaults session.Config, log logger.Logger) *Server {
	if store == nil {
		store = NewSessionStore()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:    store,
		defaults: defaults,
		log:      log,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	e.GET("/v1/sessions", s.handleListSessions)
	e.POST("/v1/sessions", s.handleCreateSession)
	e.GET("/v1/sessions/:id", s.handleGetSession)
	e.DELETE("/v1/sessions/:id", s.handleDeleteSession)
	e.POST("/v1/sessions/:id/train", s.handleTrain)
	e.POST("/v1/sessions/:id/generate", s.handleGenerate)
	e.GET("/v1/sessions/:id/checkpoint", s.handleCheckpoint)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "sessions": s.store.Len()})
}

func (s *Server) handleListSessions(c *echo.Context) error {
	list := SessionList{Object: "list", Data: []session.Summary{}}
	for _, sess := range s.store.List() {
		list.Data = append(list.Data, sess.Summary())
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateSession(c *echo.Context) error {
	req, err := decodeJSON[CreateSessionRequest](c)
	if err != nil {
		return writeErr(c, err)
	}
	cfg, err := s.sessionConfig(req)
	if err != nil {
		return writeErr(c, err)
	}
	sess, err := session.New(req.Text, cfg, s.log)
	if err != nil {
		return writeErr(c, err)
	}
	s.store.Add(sess)
	s.log.Info("session created", "id", sess.ID(), "arch", cfg.Arch.String(), "hidden", cfg.HiddenSize)
	return c.JSON(http.StatusCreated, sess.Summary())
}

func (s *Server) sessionConfig(req CreateSessionRequest) (session.Config, error) {
	cfg := s.defaults
	if strings.TrimSpace(req.Text) == "" {
		return cfg, newInvalidRequest("text is required")
	}
	if len(req.Text) > MaxTextBytes {
		return cfg, newInvalidRequest(fmt.Sprintf("text exceeds %d bytes", MaxTextBytes))
	}
	if req.Arch != "" {
		arch, err := model.ParseArch(req.Arch)
		if err != nil {
			return cfg, err
		}
		cfg.Arch = arch
	}
	if req.HiddenSize != nil {
		cfg.HiddenSize = *req.HiddenSize
	}
	if req.LearningRate != nil {
		cfg.LearningRate = *req.LearningRate
	}
	if req.Dropout != nil {
		cfg.Dropout = *req.Dropout
	}
	if req.Window != nil {
		cfg.Window = *req.Window
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.SampleEvery != nil {
		cfg.SampleEvery = *req.SampleEvery
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	cfg.Corpus = corpus.Options{Lowercase: req.Lowercase, CollapseSpace: true}
	return cfg, nil
}

func (s *Server) lookup(c *echo.Context) (*session.Session, error) {
	id := c.Param("id")
	sess, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: session %q", ErrNotFound, id)
	}
	return sess, nil
}

func (s *Server) handleGetSession(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, sess.Summary())
}

func (s *Server) handleDeleteSession(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, fmt.Sprintf("session %q not found", id))
	}
	s.log.Info("session deleted", "id", id)
	return c.JSON(http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) handleTrain(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}
	req, err := decodeJSON[TrainRequest](c)
	if err != nil {
		return writeErr(c, err)
	}
	if req.Steps == 0 {
		req.Steps = 1
	}
	if req.Steps < 0 || req.Steps > MaxTrainSteps {
		return writeBadRequest(c, fmt.Sprintf("steps must be in [1,%d]", MaxTrainSteps))
	}
	ctx := c.Request().Context()

	if !req.Stream {
		report, err := sess.Run(ctx, req.Steps)
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, TrainResponse{Session: sess.Summary(), Report: report})
	}

	w, err := NewSSEStreamWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	for i := 0; i < req.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		report, err := sess.Step(ctx)
		if err != nil {
			return w.Failed(err)
		}
		if err := w.Emit("train.step", report); err != nil {
			return err
		}
	}
	return w.Emit("train.completed", sess.Summary())
}

func (s *Server) handleGenerate(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}
	req, err := decodeJSON[GenerateRequest](c)
	if err != nil {
		return writeErr(c, err)
	}
	if req.Seed == "" {
		return writeBadRequest(c, "seed is required")
	}
	if req.MaxLength == 0 {
		req.MaxLength = defaultGenerateLength
	}
	if req.MaxLength < 0 || req.MaxLength > MaxGenerateLength {
		return writeBadRequest(c, fmt.Sprintf("max_length must be in [1,%d]", MaxGenerateLength))
	}
	gen := session.GenerateRequest{
		Seed:        req.Seed,
		MaxLength:   req.MaxLength,
		Temperature: sess.Config().Temperature,
	}
	if req.Temperature != nil {
		gen.Temperature = *req.Temperature
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	var (
		w         *SSEStreamWriter
		streamErr error
	)
	if req.Stream {
		if w, err = NewSSEStreamWriter(c); err != nil {
			return writeBadRequest(c, err.Error())
		}
		// A failed write means the client is gone: stop generating.
		gen.Stream = func(tok string) {
			if streamErr != nil {
				return
			}
			if err := w.Emit("generate.delta", map[string]string{"token": tok}); err != nil {
				streamErr = err
				cancel()
			}
		}
	}

	res, err := sess.Generate(ctx, gen)
	if streamErr != nil {
		s.log.Debug("generate stream closed", "session", sess.ID(), "error", streamErr)
		return nil
	}
	if err != nil {
		if w != nil && w.Started() {
			return w.Failed(err)
		}
		return writeErr(c, err)
	}
	out := GenerateResponse{
		Text:            res.Text,
		Tokens:          res.Tokens,
		Stopped:         res.Stopped,
		TokensGenerated: res.Stats.TokensGenerated,
		DurationMS:      float64(res.Stats.Duration.Microseconds()) / 1000,
	}
	if w != nil {
		return w.Emit("generate.completed", out)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCheckpoint(c *echo.Context) error {
	sess, err := s.lookup(c)
	if err != nil {
		return writeErr(c, err)
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, sess.ID()))
	return c.JSON(http.StatusOK, checkpoint.FromModel(sess.Model()))
}
