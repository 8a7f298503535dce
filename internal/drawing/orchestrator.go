// Package drawing runs one drawing request from billing to the recorded
// result.
package drawing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/credit"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra/sdconfig"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/metrics"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/payload"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/sdapi"
)

// Stage names a step of the request lifecycle.
type Stage string

const (
	StageBilling         Stage = "billing"
	StageBuildingPayload Stage = "building_payload"
	StageGenerating      Stage = "generating"
	StagePersisting      Stage = "persisting"
	StageRecording       Stage = "recording"
	StageDone            Stage = "done"
)

// AbortError reports the stage at which a request stopped.
type AbortError struct {
	Stage Stage
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("drawing aborted at %s: %v", e.Stage, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// CreditDebiter charges a user before any paid work starts.
type CreditDebiter interface {
	CheckAndDebit(ctx context.Context, userID string, requiredMinimum, debitAmount int) error
}

type PayloadBuilder interface {
	BuildText(ctx context.Context, p payload.TextParams) (*sdapi.TxtToImageRequest, error)
	BuildQR(ctx context.Context, p payload.QRParams) (*sdapi.TxtToImageRequest, error)
	BuildRandom(ctx context.Context) (*sdapi.TxtToImageRequest, error)
}

type Generator interface {
	Generate(ctx context.Context, req *sdapi.TxtToImageRequest) (sdapi.GeneratedImages, error)
}

type ArtifactPersister interface {
	Persist(ctx context.Context, encoded, category string) (string, error)
}

type DrawingRecorder interface {
	Record(ctx context.Context, d domain.NewDrawing) (string, error)
}

type Options struct {
	Credits   CreditDebiter
	Builder   PayloadBuilder
	Generator Generator
	Persister ArtifactPersister
	Recorder  DrawingRecorder
	Config    sdconfig.Provider
	Category  string
	// DBTimeout bounds each ledger and recorder call.
	DBTimeout time.Duration
	// BuildTimeout bounds payload assembly including its remote lookups.
	BuildTimeout time.Duration
	// UploadTimeout bounds persisting a single image.
	UploadTimeout time.Duration
	Logger        zerolog.Logger
}

type Orchestrator struct {
	credits       CreditDebiter
	builder       PayloadBuilder
	generator     Generator
	persister     ArtifactPersister
	recorder      DrawingRecorder
	config        sdconfig.Provider
	category      string
	dbTimeout     time.Duration
	buildTimeout  time.Duration
	uploadTimeout time.Duration
	logger        zerolog.Logger
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Credits == nil:
		return nil, errors.New("drawing: credit debiter is required")
	case opts.Builder == nil:
		return nil, errors.New("drawing: payload builder is required")
	case opts.Generator == nil:
		return nil, errors.New("drawing: generator is required")
	case opts.Persister == nil:
		return nil, errors.New("drawing: persister is required")
	case opts.Recorder == nil:
		return nil, errors.New("drawing: recorder is required")
	case opts.Config == nil:
		return nil, errors.New("drawing: config provider is required")
	}
	category := opts.Category
	if category == "" {
		category = "painting"
	}
	dbTimeout := opts.DBTimeout
	if dbTimeout <= 0 {
		dbTimeout = 10 * time.Second
	}
	buildTimeout := opts.BuildTimeout
	if buildTimeout <= 0 {
		buildTimeout = 60 * time.Second
	}
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 60 * time.Second
	}
	return &Orchestrator{
		credits:       opts.Credits,
		builder:       opts.Builder,
		generator:     opts.Generator,
		persister:     opts.Persister,
		recorder:      opts.Recorder,
		config:        opts.Config,
		category:      category,
		dbTimeout:     dbTimeout,
		buildTimeout:  buildTimeout,
		uploadTimeout: uploadTimeout,
		logger:        infra.Component(opts.Logger, "drawing"),
	}, nil
}

// Request is one authenticated drawing request. Text is set for text mode
// and QR for QR mode; random mode needs neither.
type Request struct {
	Mode      domain.DrawingMode
	UserID    string
	RequestID string
	Env       string
	Text      *payload.TextParams
	QR        *payload.QRParams
}

// Result is returned to the caller on success.
type Result struct {
	DrawingID string `json:"drawingId"`
	Location  int    `json:"location"`
}

// Draw runs billing through recording. Once billing starts the work is
// detached from ctx cancellation, since the credits are already spent.
func (o *Orchestrator) Draw(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With().
		Str("mode", string(req.Mode)).
		Str("user_id", req.UserID).
		Str("request_id", req.RequestID).
		Logger()

	started := time.Now()
	cost, err := o.bill(ctx, req)
	metrics.ObserveStage(string(req.Mode), string(StageBilling), started)
	if err != nil {
		return Result{}, o.abort(log, req.Mode, StageBilling, err)
	}
	metrics.CreditsDebited.WithLabelValues(string(req.Mode)).Add(float64(cost))
	log.Info().Int("cost", cost).Msg("drawing billed")

	started = time.Now()
	buildCtx, cancel := context.WithTimeout(ctx, o.buildTimeout)
	genReq, err := o.build(buildCtx, req)
	cancel()
	metrics.ObserveStage(string(req.Mode), string(StageBuildingPayload), started)
	if err != nil {
		return Result{}, o.abort(log, req.Mode, StageBuildingPayload, err)
	}

	started = time.Now()
	images, err := o.generator.Generate(ctx, genReq)
	metrics.ObserveStage(string(req.Mode), string(StageGenerating), started)
	if err != nil {
		return Result{}, o.abort(log, req.Mode, StageGenerating, err)
	}

	started = time.Now()
	generateURL, originalURL, err := o.persist(ctx, log, req.Mode, images)
	metrics.ObserveStage(string(req.Mode), string(StagePersisting), started)
	if err != nil {
		return Result{}, o.abort(log, req.Mode, StagePersisting, err)
	}

	env := req.Env
	if req.Mode == domain.DrawingModeRandom || env == "" {
		env = domain.DefaultEnv
	}
	started = time.Now()
	recordCtx, cancel := context.WithTimeout(ctx, o.dbTimeout)
	id, err := o.recorder.Record(recordCtx, domain.NewDrawing{
		UserID:      req.UserID,
		Prompt:      genReq.Prompt,
		OriginalURL: originalURL,
		GenerateURL: &generateURL,
		Env:         env,
	})
	cancel()
	metrics.ObserveStage(string(req.Mode), string(StageRecording), started)
	if err != nil {
		return Result{}, o.abort(log, req.Mode, StageRecording, err)
	}

	metrics.DrawingsTotal.WithLabelValues(string(req.Mode), string(StageDone)).Inc()
	log.Info().Str("drawing_id", id).Str("generate_url", generateURL).Msg("drawing recorded")
	return Result{DrawingID: id, Location: 0}, nil
}

func (o *Orchestrator) bill(ctx context.Context, req Request) (int, error) {
	settings, err := o.config.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("load drawing config: %w", err)
	}
	billCtx, cancel := context.WithTimeout(ctx, o.dbTimeout)
	defer cancel()
	if err := o.credits.CheckAndDebit(billCtx, req.UserID, credit.MinimumBalance, settings.ImageFrequency); err != nil {
		return 0, err
	}
	return settings.ImageFrequency, nil
}

func (o *Orchestrator) build(ctx context.Context, req Request) (*sdapi.TxtToImageRequest, error) {
	switch req.Mode {
	case domain.DrawingModeText:
		return o.builder.BuildText(ctx, *req.Text)
	case domain.DrawingModeQR:
		return o.builder.BuildQR(ctx, *req.QR)
	default:
		return o.builder.BuildRandom(ctx)
	}
}

// persist stores every image in backend order and stops at the first
// failure. Earlier uploads stay in storage and are logged as orphans.
func (o *Orchestrator) persist(ctx context.Context, log zerolog.Logger, mode domain.DrawingMode, images sdapi.GeneratedImages) (string, *string, error) {
	var paths []string
	for i, encoded := range images.All() {
		uploadCtx, cancel := context.WithTimeout(ctx, o.uploadTimeout)
		path, err := o.persister.Persist(uploadCtx, encoded, o.category)
		cancel()
		if err != nil {
			metrics.ArtifactsTotal.WithLabelValues("failed").Inc()
			if len(paths) > 0 {
				log.Warn().Strs("orphaned", paths).Msg("uploaded artifacts left without a drawing")
			}
			return "", nil, fmt.Errorf("image %d: %w", i, err)
		}
		metrics.ArtifactsTotal.WithLabelValues("stored").Inc()
		paths = append(paths, path)
	}
	generateURL := paths[0]
	var originalURL *string
	if mode != domain.DrawingModeRandom && images.HasGuideEcho() {
		originalURL = &paths[1]
	}
	return generateURL, originalURL, nil
}

func (o *Orchestrator) abort(log zerolog.Logger, mode domain.DrawingMode, stage Stage, err error) error {
	metrics.DrawingsTotal.WithLabelValues(string(mode), string(stage)).Inc()
	evt := log.Error()
	switch {
	case errors.Is(err, domain.ErrInsufficientCredit), errors.Is(err, domain.ErrUserNotFound):
		evt = log.Info()
	case errors.Is(err, domain.ErrInvalidImageFormat), errors.Is(err, domain.ErrInvalidParams), errors.Is(err, domain.ErrProfileNotFound):
		evt = log.Warn()
	}
	evt.Err(err).Str("stage", string(stage)).Bool("credits_spent", stage != StageBilling).Msg("drawing aborted")
	return &AbortError{Stage: stage, Err: err}
}

func validateRequest(req Request) error {
	if req.UserID == "" {
		return domain.ErrAuthFailed
	}
	switch req.Mode {
	case domain.DrawingModeText:
		if req.Text == nil {
			return fmt.Errorf("%w: text parameters missing", domain.ErrInvalidParams)
		}
	case domain.DrawingModeQR:
		if req.QR == nil {
			return fmt.Errorf("%w: qr parameters missing", domain.ErrInvalidParams)
		}
	case domain.DrawingModeRandom:
	default:
		return fmt.Errorf("%w: unknown mode %s", domain.ErrInvalidParams, strconv.Quote(string(req.Mode)))
	}
	return nil
}
