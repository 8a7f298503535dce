package payload

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
)

const (
	MaxDimension = 2048
	MaxSteps     = 150
	// MaxEntryTextRunes is about what fits a 2048px canvas at the minimum
	// font size; longer text would overflow it anyway.
	MaxEntryTextRunes = 2000
)

// CommonParams are the caller-supplied fields shared by the guided modes.
type CommonParams struct {
	Selector       int
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Sampler        string
	Steps          int
	Checkpoint     string
}

// Validate rejects values the backend cannot render.
func (p CommonParams) Validate() error {
	switch {
	case strings.TrimSpace(p.Prompt) == "":
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidParams)
	case p.Width <= 0 || p.Width > MaxDimension:
		return fmt.Errorf("%w: width %d out of range", domain.ErrInvalidParams, p.Width)
	case p.Height <= 0 || p.Height > MaxDimension:
		return fmt.Errorf("%w: height %d out of range", domain.ErrInvalidParams, p.Height)
	case p.Steps <= 0 || p.Steps > MaxSteps:
		return fmt.Errorf("%w: steps %d out of range", domain.ErrInvalidParams, p.Steps)
	case strings.TrimSpace(p.Sampler) == "":
		return fmt.Errorf("%w: sampler_index is required", domain.ErrInvalidParams)
	case strings.TrimSpace(p.Checkpoint) == "":
		return fmt.Errorf("%w: modelName is required", domain.ErrInvalidParams)
	}
	return nil
}

// GuideSource is the conditioning input for text mode: exactly one of
// ImageGuide or TextGuide.
type GuideSource interface {
	isGuide()
}

// ImageGuide is an uploaded image used as-is.
type ImageGuide struct {
	Data        []byte
	ContentType string
}

// TextGuide is free text rasterized into a guide image.
type TextGuide struct {
	Text string
}

func (ImageGuide) isGuide() {}
func (TextGuide) isGuide()  {}

// Validate checks the declared type and the sniffed content are both images.
func (g ImageGuide) Validate() error {
	if len(g.Data) == 0 {
		return fmt.Errorf("%w: empty upload", domain.ErrInvalidImageFormat)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(g.ContentType)), "image/") {
		return fmt.Errorf("%w: content type %q", domain.ErrInvalidImageFormat, g.ContentType)
	}
	if detected := mimetype.Detect(g.Data); !strings.HasPrefix(detected.String(), "image/") {
		return fmt.Errorf("%w: detected %s", domain.ErrInvalidImageFormat, detected.String())
	}
	return nil
}

func (g TextGuide) Validate() error {
	if strings.TrimSpace(g.Text) == "" {
		return fmt.Errorf("%w: entryText is empty", domain.ErrInvalidParams)
	}
	if n := utf8.RuneCountInString(g.Text); n > MaxEntryTextRunes {
		return fmt.Errorf("%w: entryText has %d characters, limit %d", domain.ErrInvalidParams, n, MaxEntryTextRunes)
	}
	return nil
}

// TextParams drive text mode.
type TextParams struct {
	CommonParams
	Guide GuideSource
}

// Validate checks the common fields and the guide variant.
func (p TextParams) Validate() error {
	if err := p.CommonParams.Validate(); err != nil {
		return err
	}
	switch g := p.Guide.(type) {
	case ImageGuide:
		return g.Validate()
	case TextGuide:
		return g.Validate()
	default:
		return fmt.Errorf("%w: images or entryText is required", domain.ErrInvalidParams)
	}
}

// QRParams drive QR mode. Image is the uploaded QR code.
type QRParams struct {
	CommonParams
	Image ImageGuide
}

func (p QRParams) Validate() error {
	if err := p.CommonParams.Validate(); err != nil {
		return err
	}
	return p.Image.Validate()
}
