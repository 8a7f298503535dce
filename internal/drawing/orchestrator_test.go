package drawing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/credit"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra/sdconfig"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/payload"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/sdapi"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/storage"
)

type fakeCredits struct {
	mu       sync.Mutex
	balance  int
	debits   []int
	minimums []int
	ctxErr   error
}

func (f *fakeCredits) CheckAndDebit(ctx context.Context, userID string, requiredMinimum, debitAmount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.minimums = append(f.minimums, requiredMinimum)
	if f.balance < requiredMinimum {
		return domain.ErrInsufficientCredit
	}
	f.balance -= debitAmount
	f.debits = append(f.debits, debitAmount)
	return nil
}

type fakeBuilder struct {
	calls []domain.DrawingMode
	err   error
}

func (f *fakeBuilder) request(mode domain.DrawingMode, prompt string) (*sdapi.TxtToImageRequest, error) {
	f.calls = append(f.calls, mode)
	if f.err != nil {
		return nil, f.err
	}
	return &sdapi.TxtToImageRequest{Prompt: prompt, Width: 64, Height: 64, BatchSize: 1}, nil
}

func (f *fakeBuilder) BuildText(ctx context.Context, p payload.TextParams) (*sdapi.TxtToImageRequest, error) {
	return f.request(domain.DrawingModeText, p.Prompt)
}

func (f *fakeBuilder) BuildQR(ctx context.Context, p payload.QRParams) (*sdapi.TxtToImageRequest, error) {
	return f.request(domain.DrawingModeQR, p.Prompt)
}

func (f *fakeBuilder) BuildRandom(ctx context.Context) (*sdapi.TxtToImageRequest, error) {
	return f.request(domain.DrawingModeRandom, "sampled prompt")
}

type fakeGenerator struct {
	images sdapi.GeneratedImages
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, req *sdapi.TxtToImageRequest) (sdapi.GeneratedImages, error) {
	f.calls++
	return f.images, f.err
}

type fakePersister struct {
	persisted []string
	failAt    int
}

func (f *fakePersister) Persist(ctx context.Context, encoded, category string) (string, error) {
	if f.failAt > 0 && len(f.persisted)+1 == f.failAt {
		return "", fmt.Errorf("%w: bucket unavailable", domain.ErrUpload)
	}
	f.persisted = append(f.persisted, encoded)
	return "/" + category + "/" + encoded + ".png", nil
}

type fakeRecorder struct {
	drawings []domain.NewDrawing
	err      error
}

func (f *fakeRecorder) Record(ctx context.Context, d domain.NewDrawing) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.drawings = append(f.drawings, d)
	return "0b9f6a6e-7f73-4c8e-9c39-7a3c1d0e5f10", nil
}

type harness struct {
	credits   *fakeCredits
	builder   *fakeBuilder
	generator *fakeGenerator
	persister *fakePersister
	recorder  *fakeRecorder
	orch      *Orchestrator
}

func newHarness(t *testing.T, balance int, images sdapi.GeneratedImages) *harness {
	t.Helper()
	h := &harness{
		credits:   &fakeCredits{balance: balance},
		builder:   &fakeBuilder{},
		generator: &fakeGenerator{images: images},
		persister: &fakePersister{},
		recorder:  &fakeRecorder{},
	}
	orch, err := NewOrchestrator(Options{
		Credits:   h.credits,
		Builder:   h.builder,
		Generator: h.generator,
		Persister: h.persister,
		Recorder:  h.recorder,
		Config:    sdconfig.Static{URL: "http://sd", ImageFrequency: 2},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func textRequest() Request {
	return Request{
		Mode:      domain.DrawingModeText,
		UserID:    "u1",
		RequestID: "req-1",
		Env:       "1",
		Text: &payload.TextParams{
			CommonParams: payload.CommonParams{Prompt: "a fox"},
			Guide:        payload.TextGuide{Text: "HELLO"},
		},
	}
}

func TestDrawRecordsResultAndGuideEcho(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "result", GuideEcho: "guide"})

	res, err := h.orch.Draw(context.Background(), textRequest())
	require.NoError(t, err)
	require.Equal(t, Result{DrawingID: "0b9f6a6e-7f73-4c8e-9c39-7a3c1d0e5f10", Location: 0}, res)

	require.Equal(t, []string{"result", "guide"}, h.persister.persisted)
	require.Len(t, h.recorder.drawings, 1)
	d := h.recorder.drawings[0]
	require.Equal(t, "/painting/result.png", *d.GenerateURL)
	require.NotNil(t, d.OriginalURL)
	require.Equal(t, "/painting/guide.png", *d.OriginalURL)
	require.Equal(t, "a fox", d.Prompt)
	require.Equal(t, "1", d.Env)
	require.Equal(t, "u1", d.UserID)
	require.Equal(t, []int{2}, h.credits.debits)
	require.Equal(t, []int{credit.MinimumBalance}, h.credits.minimums)
}

func TestDrawSingleImageLeavesOriginalEmpty(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "only"})

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.NoError(t, err)
	require.Nil(t, h.recorder.drawings[0].OriginalURL)
	require.Equal(t, "/painting/only.png", *h.recorder.drawings[0].GenerateURL)
}

func TestDrawRandomIgnoresGuideEchoAndUsesDefaultEnv(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "result", GuideEcho: "second"})

	_, err := h.orch.Draw(context.Background(), Request{Mode: domain.DrawingModeRandom, UserID: "u1", Env: "7"})
	require.NoError(t, err)
	d := h.recorder.drawings[0]
	require.Nil(t, d.OriginalURL)
	require.Equal(t, "/painting/result.png", *d.GenerateURL)
	require.Equal(t, domain.DefaultEnv, d.Env)
	require.Equal(t, "sampled prompt", d.Prompt)
	require.Equal(t, []string{"result", "second"}, h.persister.persisted)
}

func TestDrawGenerationFailureKeepsDebit(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{})
	h.generator.err = fmt.Errorf("%w: response has no images field", domain.ErrGeneration)

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.ErrorIs(t, err, domain.ErrGeneration)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	require.Equal(t, StageGenerating, abort.Stage)

	require.Empty(t, h.recorder.drawings)
	require.Empty(t, h.persister.persisted)
	require.Equal(t, 8, h.credits.balance)
}

func TestDrawInsufficientCreditHasNoSideEffects(t *testing.T) {
	h := newHarness(t, 4, sdapi.GeneratedImages{Result: "r"})

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.ErrorIs(t, err, domain.ErrInsufficientCredit)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	require.Equal(t, StageBilling, abort.Stage)

	require.Empty(t, h.builder.calls)
	require.Zero(t, h.generator.calls)
	require.Empty(t, h.recorder.drawings)
	require.Equal(t, 4, h.credits.balance)
}

func TestDrawBuildFailureStopsBeforeGeneration(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "r"})
	h.builder.err = fmt.Errorf("%w: %w", domain.ErrBuildFailed, domain.ErrProfileNotFound)

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
	require.Zero(t, h.generator.calls)
	require.Equal(t, 8, h.credits.balance)
}

func TestDrawPersistFailureAbortsRemaining(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "a", GuideEcho: "b", Extra: []string{"c"}})
	h.persister.failAt = 2

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.ErrorIs(t, err, domain.ErrUpload)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	require.Equal(t, StagePersisting, abort.Stage)
	require.Equal(t, []string{"a"}, h.persister.persisted)
	require.Empty(t, h.recorder.drawings)
}

func TestDrawRecordFailure(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "a"})
	h.recorder.err = fmt.Errorf("%w: insert failed", domain.ErrRecord)

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.ErrorIs(t, err, domain.ErrRecord)
}

func TestDrawSurvivesClientCancellation(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Draw(ctx, textRequest())
	require.NoError(t, err)
	require.NoError(t, h.credits.ctxErr)
	require.Len(t, h.recorder.drawings, 1)
}

func TestDrawValidatesRequest(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "a"})

	_, err := h.orch.Draw(context.Background(), Request{Mode: domain.DrawingModeText, UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = h.orch.Draw(context.Background(), Request{Mode: domain.DrawingModeRandom})
	require.ErrorIs(t, err, domain.ErrAuthFailed)

	_, err = h.orch.Draw(context.Background(), Request{Mode: "video", UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrInvalidParams)
	require.Empty(t, h.credits.debits)
}

func TestDrawConfigFailureDoesNotDebit(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "a"})
	h.orch.config = failingConfig{}

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.Error(t, err)
	require.Empty(t, h.credits.minimums)
}

type failingConfig struct{}

func (failingConfig) Get(context.Context) (sdconfig.Settings, error) {
	return sdconfig.Settings{}, errors.New("redis down")
}

type deadlinePersister struct {
	deadlines []bool
}

func (d *deadlinePersister) Persist(ctx context.Context, encoded, category string) (string, error) {
	_, ok := ctx.Deadline()
	d.deadlines = append(d.deadlines, ok)
	return "/" + category + "/" + encoded + ".png", nil
}

func TestDrawBoundsEachUploadWithDeadline(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: "a", GuideEcho: "b"})
	persister := &deadlinePersister{}
	h.orch.persister = persister

	_, err := h.orch.Draw(context.Background(), textRequest())
	require.NoError(t, err)
	require.Equal(t, []bool{true, true}, persister.deadlines)
}

type stalledUploader struct{}

func (stalledUploader) Upload(ctx context.Context, category, localPath, filename string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func encodedPixel(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDrawStalledUploadTimesOut(t *testing.T) {
	h := newHarness(t, 10, sdapi.GeneratedImages{Result: encodedPixel(t)})
	persister, err := storage.NewPersister(storage.PersisterOptions{
		Uploader:        stalledUploader{},
		TransientDir:    t.TempDir(),
		DeleteTransient: true,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)
	h.orch.persister = persister
	h.orch.uploadTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err = h.orch.Draw(context.Background(), textRequest())
	require.ErrorIs(t, err, domain.ErrUpload)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, []int{2}, h.credits.debits)
	require.Empty(t, h.recorder.drawings)
}
