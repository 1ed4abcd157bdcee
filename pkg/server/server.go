// Package server exposes the review queue over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/lifecycle"
	"github.com/ArionMiles/spendsense/pkg/notify"
	"github.com/ArionMiles/spendsense/pkg/orchestrator"
)

const (
	defaultWriteLimit = 60
	heartbeatInterval = 15 * time.Second
)

// Config holds server settings.
type Config struct {
	// Secret enables HS256 bearer authentication when non-empty.
	Secret []byte
	// BackfillDays is the window used by POST /backfill without ?days.
	BackfillDays int
	// WriteLimit is the per-IP requests per minute on write routes. Defaults to 60.
	WriteLimit int
}

// Deps are the collaborators behind the API. Ledger and Events may be nil.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Lifecycle    *lifecycle.Manager
	Store        api.CandidateStore
	Ledger       api.Ledger
	Events       *notify.Bus
}

// Server is the review API.
type Server struct {
	app    *fiber.App
	deps   Deps
	cfg    Config
	logger *slog.Logger
	done   chan struct{}
}

// New builds the fiber app and registers routes.
func New(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteLimit <= 0 {
		cfg.WriteLimit = defaultWriteLimit
	}
	if cfg.BackfillDays <= 0 {
		cfg.BackfillDays = 30
	}

	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "server"),
		done:   make(chan struct{}),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "spendsense",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "internal server error"

			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
				message = fiberErr.Message
			}

			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(s.requestLogger())

	s.app.Get("/healthz", s.health)

	auth := s.authMiddleware()
	writes := limiter.New(limiter.Config{
		Max:        s.cfg.WriteLimit,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		},
	})

	s.app.Get("/candidates", auth, s.listCandidates)
	s.app.Get("/candidates/:id", auth, s.getCandidate)
	s.app.Post("/candidates/:id/confirm", auth, writes, s.confirmCandidate)
	s.app.Post("/candidates/:id/reject", auth, writes, s.rejectCandidate)
	s.app.Post("/messages", auth, writes, s.postMessage)
	s.app.Post("/backfill", auth, writes, s.backfill)
	s.app.Get("/events", auth, s.events)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("review API listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops event streams and waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.logger.Debug("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	body := fiber.Map{
		"ok":    true,
		"stats": s.deps.Orchestrator.Stats().Snapshot(),
	}
	if last, err := s.deps.Store.LastScan(c.UserContext()); err != nil {
		s.logger.Warn("failed to read last scan time", "error", err)
	} else if !last.IsZero() {
		body["last_scan"] = last
	}
	return c.JSON(body)
}

func (s *Server) listCandidates(c *fiber.Ctx) error {
	status := api.Status(c.Query("status"))
	switch status {
	case "", api.StatusPending, api.StatusConfirmed, api.StatusRejected:
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
	}
	return c.JSON(s.deps.Lifecycle.List(c.UserContext(), status))
}

func (s *Server) getCandidate(c *fiber.Ctx) error {
	candidate, ok := s.deps.Lifecycle.Get(c.UserContext(), c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "candidate not found")
	}
	return c.JSON(candidate)
}

// confirmCandidate submits the candidate to the ledger, then marks it confirmed.
// A ledger failure leaves the candidate pending.
func (s *Server) confirmCandidate(c *fiber.Ctx) error {
	id := c.Params("id")

	var submit lifecycle.SubmitFunc
	if s.deps.Ledger != nil {
		submit = s.deps.Ledger.Submit
	}

	_, outcome, err := s.deps.Lifecycle.ConfirmWith(c.UserContext(), id, submit)
	if err != nil {
		s.logger.Error("ledger submission failed", "id", id, "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "ledger submission failed")
	}
	return s.respond(c, id, outcome)
}

func (s *Server) rejectCandidate(c *fiber.Ctx) error {
	id := c.Params("id")
	return s.respond(c, id, s.deps.Lifecycle.Reject(c.UserContext(), id))
}

func (s *Server) respond(c *fiber.Ctx, id string, outcome lifecycle.Outcome) error {
	switch outcome {
	case lifecycle.Updated:
		return s.getCandidate(c)
	case lifecycle.NotFound:
		return fiber.NewError(fiber.StatusNotFound, "candidate not found")
	case lifecycle.AlreadyFinal:
		return fiber.NewError(fiber.StatusConflict, "candidate already decided")
	default:
		s.logger.Error("candidate transition failed", "id", id, "outcome", outcome)
		return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
	}
}

func (s *Server) postMessage(c *fiber.Ctx) error {
	var msg api.RawMessage
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid message body")
	}
	if msg.Body == "" {
		return fiber.NewError(fiber.StatusBadRequest, "body is required")
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	candidate, ok := s.deps.Orchestrator.OnMessage(c.UserContext(), msg)
	if !ok {
		return c.JSON(fiber.Map{"detected": false})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"detected": true, "candidate": candidate})
}

func (s *Server) backfill(c *fiber.Ctx) error {
	days := s.cfg.BackfillDays
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "days must be a positive integer")
		}
		days = parsed
	}
	return c.JSON(s.deps.Orchestrator.Backfill(c.UserContext(), days))
}

// events streams candidateDetected notifications as server-sent events.
func (s *Server) events(c *fiber.Ctx) error {
	if s.deps.Events == nil {
		return fiber.NewError(fiber.StatusNotFound, "event stream disabled")
	}

	ch, cancel := s.deps.Events.Subscribe(notify.DefaultBuffer)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		streamEvents(w, ch, s.done, heartbeatInterval)
	})
	return nil
}

// streamEvents writes events until the channel closes, done is closed, or a write fails.
func streamEvents(w *bufio.Writer, events <-chan notify.Event, done <-chan struct{}, heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Candidate)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
		case <-done:
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
