// Package payload assembles txt2img requests for each drawing mode.
package payload

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/gallery"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/sdapi"
)

const (
	DefaultCFGScale = 7
	BatchSize       = 1
	// QRBrightnessSelector is the catalog entry always used as the second
	// block in QR mode.
	QRBrightnessSelector = 0
)

// ProfileSource looks up control-net profiles.
type ProfileSource interface {
	ByType(ctx context.Context, selector int) (*domain.ControlNetProfile, error)
}

// QRService decodes an uploaded QR code and renders clean QR images.
type QRService interface {
	Decode(ctx context.Context, imageBase64 string) (string, error)
	Render(ctx context.Context, content string) (string, error)
}

// ExampleSource supplies random-mode parameters.
type ExampleSource interface {
	RandomExample(ctx context.Context) (gallery.Example, error)
}

// Rasterizer turns guide text into PNG bytes.
type Rasterizer interface {
	Render(text string, width, height int) ([]byte, error)
}

type Builder struct {
	profiles ProfileSource
	qr       QRService
	examples ExampleSource
	text     Rasterizer
	logger   zerolog.Logger
}

func NewBuilder(profiles ProfileSource, qr QRService, examples ExampleSource, text Rasterizer, logger zerolog.Logger) *Builder {
	return &Builder{
		profiles: profiles,
		qr:       qr,
		examples: examples,
		text:     text,
		logger:   infra.Component(logger, "payload"),
	}
}

// BuildText produces a request with one control-net block conditioned on
// an uploaded image or on rasterized text.
func (b *Builder) BuildText(ctx context.Context, p TextParams) (*sdapi.TxtToImageRequest, error) {
	if err := p.Validate(); err != nil {
		return nil, buildErr(err)
	}
	profile, err := b.profiles.ByType(ctx, p.Selector)
	if err != nil {
		return nil, buildErr(err)
	}

	var input string
	switch g := p.Guide.(type) {
	case ImageGuide:
		input = base64.StdEncoding.EncodeToString(g.Data)
	case TextGuide:
		png, err := b.text.Render(g.Text, p.Width, p.Height)
		if err != nil {
			return nil, buildErr(err)
		}
		input = base64.StdEncoding.EncodeToString(png)
	}

	req := guidedRequest(p.CommonParams)
	req.AlwaysOnScripts = &sdapi.AlwaysOnScripts{ControlNet: &sdapi.ControlNetScript{
		Args: []sdapi.ControlNetArg{controlNetArg(profile, input)},
	}}
	return finish(req)
}

// BuildQR produces a request with two control-net blocks, both fed the
// re-rendered QR code. The second block always uses the brightness profile.
func (b *Builder) BuildQR(ctx context.Context, p QRParams) (*sdapi.TxtToImageRequest, error) {
	if err := p.Validate(); err != nil {
		return nil, buildErr(err)
	}
	primary, err := b.profiles.ByType(ctx, p.Selector)
	if err != nil {
		return nil, buildErr(err)
	}
	secondary, err := b.profiles.ByType(ctx, QRBrightnessSelector)
	if err != nil {
		return nil, buildErr(err)
	}

	content, err := b.qr.Decode(ctx, base64.StdEncoding.EncodeToString(p.Image.Data))
	if err != nil {
		return nil, buildErr(err)
	}
	rendered, err := b.qr.Render(ctx, content)
	if err != nil {
		return nil, buildErr(err)
	}
	if _, err := base64.StdEncoding.DecodeString(rendered); err != nil {
		return nil, buildErr(fmt.Errorf("rendered qr is not base64: %w", err))
	}
	b.logger.Debug().Int("content_len", len(content)).Msg("qr code re-rendered")

	req := guidedRequest(p.CommonParams)
	req.AlwaysOnScripts = &sdapi.AlwaysOnScripts{ControlNet: &sdapi.ControlNetScript{
		Args: []sdapi.ControlNetArg{
			controlNetArg(primary, rendered),
			controlNetArg(secondary, rendered),
		},
	}}
	return finish(req)
}

// BuildRandom copies the parameters of a randomly sampled gallery example.
func (b *Builder) BuildRandom(ctx context.Context) (*sdapi.TxtToImageRequest, error) {
	ex, err := b.examples.RandomExample(ctx)
	if err != nil {
		return nil, buildErr(err)
	}
	seed := ex.Seed
	req := &sdapi.TxtToImageRequest{
		BatchSize:        BatchSize,
		Seed:             &seed,
		CFGScale:         ex.CFGScale,
		Width:            ex.Width,
		Height:           ex.Height,
		Prompt:           ex.Prompt,
		NegativePrompt:   ex.NegativePrompt,
		SamplerIndex:     ex.Sampler,
		Steps:            ex.Steps,
		OverrideSettings: sdapi.OverrideSettings{SDModelCheckpoint: ex.Checkpoint},
	}
	return finish(req)
}

func guidedRequest(p CommonParams) *sdapi.TxtToImageRequest {
	return &sdapi.TxtToImageRequest{
		BatchSize:        BatchSize,
		CFGScale:         DefaultCFGScale,
		Width:            p.Width,
		Height:           p.Height,
		Prompt:           p.Prompt,
		NegativePrompt:   p.NegativePrompt,
		SamplerIndex:     p.Sampler,
		Steps:            p.Steps,
		OverrideSettings: sdapi.OverrideSettings{SDModelCheckpoint: p.Checkpoint},
	}
}

func controlNetArg(p *domain.ControlNetProfile, input string) sdapi.ControlNetArg {
	return sdapi.ControlNetArg{
		Enabled:       true,
		GuidanceStart: round2(p.GuidanceStart),
		GuidanceEnd:   round2(p.GuidanceEnd),
		Model:         p.Model,
		Module:        p.Module,
		PixelPerfect:  true,
		Weight:        round2(p.Weight),
		InputImage:    input,
	}
}

func finish(req *sdapi.TxtToImageRequest) (*sdapi.TxtToImageRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, buildErr(err)
	}
	return req, nil
}

func buildErr(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrBuildFailed, err)
}

// round2 rounds to two decimals using the exact binary value, so 1.005
// (stored as 1.00499...) becomes 1.0.
func round2(v float64) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return out
}
