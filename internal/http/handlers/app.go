package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/drawing"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/middleware"
)

// Envelope codes understood by the clients.
const (
	CodeSuccess            = 2000
	CodeAuthFailed         = 400
	CodeInvalidParams      = 2001
	CodeFailure            = 2004
	CodeInsufficientCredit = 2005
)

// DefaultMaxUploadBytes bounds the multipart body of a drawing request.
const DefaultMaxUploadBytes = 10 << 20

type Drawer interface {
	Draw(ctx context.Context, req drawing.Request) (drawing.Result, error)
}

type ProfileLister interface {
	List(ctx context.Context) ([]domain.ControlNetProfile, error)
}

type DrawingReader interface {
	Get(ctx context.Context, drawingID, userID string) (*domain.Drawing, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// Options carries the collaborators behind the HTTP surface.
type Options struct {
	Drawer         Drawer
	Profiles       ProfileLister
	Drawings       DrawingReader
	Credits        BalanceReader
	MaxUploadBytes int64
	HealthChecks   map[string]HealthCheck
	Logger         zerolog.Logger
}

type App struct {
	drawer         Drawer
	profiles       ProfileLister
	drawings       DrawingReader
	credits        BalanceReader
	maxUploadBytes int64
	healthChecks   map[string]HealthCheck
	logger         zerolog.Logger
}

func NewApp(opts Options) *App {
	limit := opts.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	return &App{
		drawer:         opts.Drawer,
		profiles:       opts.Profiles,
		drawings:       opts.Drawings,
		credits:        opts.Credits,
		maxUploadBytes: limit,
		healthChecks:   opts.HealthChecks,
		logger:         infra.Component(opts.Logger, "http"),
	}
}

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ok and fail answer with HTTP 200; the outcome lives in the envelope code.
func (a *App) ok(w http.ResponseWriter, r *http.Request, data any) {
	a.json(w, http.StatusOK, envelope{Code: CodeSuccess, Msg: message(r.Context(), msgSuccess), Data: data})
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, code int, key messageKey) {
	a.json(w, http.StatusOK, envelope{Code: code, Msg: message(r.Context(), key)})
}

// writeError maps a domain error onto the envelope and logs what the
// client does not get to see.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, key := classify(err)
	evt := a.logger.Debug()
	if code == CodeFailure {
		evt = a.logger.Error()
	}
	evt.Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("code", code).
		Msg("request failed")
	a.fail(w, r, code, key)
}

// RejectToken is the auth middleware's failure response.
func (a *App) RejectToken(w http.ResponseWriter, r *http.Request) {
	a.fail(w, r, CodeAuthFailed, msgAuthFailed)
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
