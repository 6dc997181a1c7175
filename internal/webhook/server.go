package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/set-night/trackerbot/internal/config"
	"github.com/set-night/trackerbot/internal/domain"
)

// Relay delivers decoded tracker events.
type Relay interface {
	Handle(ctx context.Context, ev domain.TrackerEvent) domain.RelayResult
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP surface the tracker posts webhooks to.
type Server struct {
	app     *fiber.App
	relay   Relay
	token   []byte
	db      Pinger
	timeout time.Duration
}

type Options struct {
	Relay Relay
	// Token is the static bearer credential the tracker sends.
	Token string
	DB    Pinger
}

func New(opts Options) *Server {
	s := &Server{
		relay:   opts.Relay,
		token:   []byte(opts.Token),
		db:      opts.DB,
		timeout: config.WebhookTimeout,
	}

	app := fiber.New(fiber.Config{
		AppName:               "trackerbot-webhooks",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestLogger())

	app.Get("/health/live", s.live)
	app.Get("/health/ready", s.ready)

	trackers := app.Group("/trackers", s.authenticate)
	trackers.Post("/comment", s.comment)
	trackers.Post("/updateStatus", s.updateStatus)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	slog.Info("webhook server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// authenticate compares the bearer token in constant time.
func (s *Server) authenticate(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || len(s.token) == 0 || !strings.EqualFold(scheme, "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), s.token) != 1 {
		slog.Warn("webhook rejected", "path", c.Path(), "ip", c.IP(), "error", domain.ErrUnauthorized)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"detail": "Invalid Bearer token"})
	}
	return c.Next()
}

func (s *Server) comment(c *fiber.Ctx) error {
	var p commentPayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		slog.Warn("invalid comment webhook", "error", err)
		return respond(c, domain.RelayError)
	}
	slog.Info("comment webhook received", "event", p.Event, "issue_key", p.Issue.Key, "comment_id", p.Comment.ID.String())
	return s.dispatch(c, p.toEvent())
}

func (s *Server) updateStatus(c *fiber.Ctx) error {
	var p statusPayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		slog.Warn("invalid status webhook", "error", err)
		return respond(c, domain.RelayError)
	}
	slog.Info("status webhook received", "event", p.Event, "issue_key", p.Issue.Key, "status", p.Status.Name)
	return s.dispatch(c, p.toEvent())
}

func (s *Server) dispatch(c *fiber.Ctx, ev domain.TrackerEvent) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.timeout)
	defer cancel()
	return respond(c, s.relay.Handle(ctx, ev))
}

func respond(c *fiber.Ctx, result domain.RelayResult) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": string(result)})
}

func (s *Server) live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

func (s *Server) ready(c *fiber.Ctx) error {
	if s.db == nil {
		return c.JSON(fiber.Map{"status": "ready"})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "unavailable",
			"postgres": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "postgres": "ok"})
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		slog.Info("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}
