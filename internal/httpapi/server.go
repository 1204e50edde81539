// ABOUTME: JSON HTTP API over the conversation repository, audio pipeline and integration secrets
// ABOUTME: Bearer session middleware, slog request logging and error-to-status mapping

package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/2389/coven-sync/internal/conversation"
	"github.com/2389/coven-sync/internal/dedupe"
	"github.com/2389/coven-sync/internal/errdefs"
	"github.com/2389/coven-sync/internal/integration"
	"github.com/2389/coven-sync/internal/session"
	"github.com/2389/coven-sync/internal/upload"
)

// Defaults for projections when a record lacks a name or any content.
const (
	DefaultAgentName = "Agent"
	DefaultPreview   = "Start a conversation"
)

// MaxAudioBytes bounds the request body of an audio upload.
const MaxAudioBytes = 25 << 20

// Retried uploads carrying the same Idempotency-Key within this window get
// the first result back.
const (
	idempotencyTTL  = 10 * time.Minute
	idempotencySize = 1024
)

// ObjectOpener serves signed object downloads.
type ObjectOpener interface {
	Bucket() string
	Open(objectPath, token string) (io.ReadCloser, string, error)
}

// Options wires the server to its services.
type Options struct {
	Conversations *conversation.Repository
	Uploads       *upload.Pipeline
	Secrets       *integration.Store
	Objects       ObjectOpener
	Verifier      *session.Verifier
	Logger        *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	echo          *echo.Echo
	conversations *conversation.Repository
	uploads       *upload.Pipeline
	secrets       *integration.Store
	objects       ObjectOpener
	verifier      *session.Verifier
	logger        *slog.Logger
	uploaded      *dedupe.Cache[*upload.Result]
}

// New builds the echo instance and registers every route.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		echo:          echo.New(),
		conversations: opts.Conversations,
		uploads:       opts.Uploads,
		secrets:       opts.Secrets,
		objects:       opts.Objects,
		verifier:      opts.Verifier,
		logger:        logger.With("component", "httpapi"),
		uploaded:      dedupe.New[*upload.Result](idempotencyTTL, idempotencySize),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:     true,
		LogURIPath:    true,
		LogStatus:     true,
		LogLatency:    true,
		LogError:      true,
		HandleError:   true,
		LogValuesFunc: s.logRequest,
	}))

	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Close releases background resources.
func (s *Server) Close() {
	s.uploaded.Close()
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/objects/:bucket/*", s.handleObject)

	api := s.echo.Group("/api", s.requireSession)
	api.GET("/conversations", s.handleListConversations)
	api.PUT("/conversations/:agentID", s.handleUpsertConversation)
	api.DELETE("/conversations/:agentID", s.handleDeleteConversation)
	api.POST("/conversations/:conversationID/audio", s.handleUploadAudio, middleware.BodyLimit("25M"))
	api.GET("/conversations/:conversationID/messages", s.handleListMessages)
	api.GET("/chats", s.handleListChats)
	api.GET("/agents/:agentID", s.handleGetAgent)
	api.GET("/agents/:agentID/settings", s.handleGetSettings)
	api.GET("/integration", s.handleGetIntegration)
	api.PUT("/integration", s.handlePutIntegration)
}

func (s *Server) logRequest(c echo.Context, v middleware.RequestLoggerValues) error {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("method", v.Method),
		slog.String("path", v.URIPath),
		slog.Int("status", v.Status),
		slog.Duration("latency", v.Latency.Round(time.Microsecond)),
	}
	if v.Error != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", v.Error.Error()))
	}
	s.logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
	return nil
}

// requireSession verifies the bearer token and attaches the session to the
// request context.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, msg := session.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if msg != "" {
			return writeError(c, errdefs.Unauthenticated("http.auth"))
		}
		ownerID, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Debug("rejected session token", "error", err)
			return writeError(c, errdefs.Unauthenticated("http.auth"))
		}

		req := c.Request()
		c.SetRequest(req.WithContext(session.WithSession(req.Context(), &session.Session{OwnerID: ownerID})))
		return next(c)
	}
}

func ownerID(c echo.Context) string {
	if sess := session.FromContext(c.Request().Context()); sess != nil {
		return sess.OwnerID
	}
	return ""
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps classified errors to HTTP statuses and writes a JSON body.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	kind := ""

	switch {
	case errors.Is(err, errdefs.ErrUnauthenticated):
		status, kind = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, errdefs.ErrPersistence):
		status, kind = http.StatusBadGateway, "persistence"
	case errors.Is(err, errdefs.ErrUploadFailed):
		status, kind = http.StatusBadGateway, "upload_failed"
	case errors.Is(err, errdefs.ErrSigningFailed):
		status, kind = http.StatusBadGateway, "signing_failed"
	case errors.Is(err, conversation.ErrMissingIdentity), errors.Is(err, upload.ErrMissingConversation):
		status, kind = http.StatusBadRequest, "invalid_request"
	}

	return c.JSON(status, errorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Kind: "invalid_request"})
}
