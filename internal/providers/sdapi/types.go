package sdapi

import (
	"errors"
	"fmt"
	"strings"
)

// ControlNetArg is one conditioning block of the controlnet always-on script.
type ControlNetArg struct {
	Enabled       bool    `json:"enabled"`
	GuidanceStart float64 `json:"guidance_start"`
	GuidanceEnd   float64 `json:"guidance_end"`
	Model         string  `json:"model"`
	Module        string  `json:"module"`
	PixelPerfect  bool    `json:"pixel_perfect"`
	Weight        float64 `json:"weight"`
	InputImage    string  `json:"input_image"`
}

type ControlNetScript struct {
	Args []ControlNetArg `json:"args"`
}

type AlwaysOnScripts struct {
	ControlNet *ControlNetScript `json:"controlnet,omitempty"`
}

type OverrideSettings struct {
	SDModelCheckpoint string `json:"sd_model_checkpoint"`
}

// TxtToImageRequest mirrors the body accepted by /sdapi/v1/txt2img.
type TxtToImageRequest struct {
	AlwaysOnScripts  *AlwaysOnScripts `json:"alwayson_scripts,omitempty"`
	BatchSize        int              `json:"batch_size"`
	CFGScale         float64          `json:"cfg_scale"`
	Seed             *int64           `json:"seed,omitempty"`
	Width            int              `json:"width"`
	Height           int              `json:"height"`
	Prompt           string           `json:"prompt"`
	NegativePrompt   string           `json:"negative_prompt"`
	SamplerIndex     string           `json:"sampler_index"`
	Steps            int              `json:"steps"`
	OverrideSettings OverrideSettings `json:"override_settings"`
}

// ControlNetArgs returns the conditioning blocks, or nil when none are set.
func (r *TxtToImageRequest) ControlNetArgs() []ControlNetArg {
	if r == nil || r.AlwaysOnScripts == nil || r.AlwaysOnScripts.ControlNet == nil {
		return nil
	}
	return r.AlwaysOnScripts.ControlNet.Args
}

// Validate checks the request is ready to dispatch.
func (r *TxtToImageRequest) Validate() error {
	if r == nil {
		return errors.New("sdapi: nil request")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("sdapi: invalid size %dx%d", r.Width, r.Height)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("sdapi: invalid batch size %d", r.BatchSize)
	}
	for i, arg := range r.ControlNetArgs() {
		if arg.InputImage == "" {
			return fmt.Errorf("sdapi: controlnet arg %d has no input image", i)
		}
	}
	return nil
}

// GeneratedImages names the positional images returned by the backend.
// Result is the generated picture; GuideEcho is the processed guide image
// when the backend echoes it. Extra holds anything after those two.
type GeneratedImages struct {
	Result    string
	GuideEcho string
	Extra     []string
}

// HasGuideEcho reports whether the backend returned a second image.
func (g GeneratedImages) HasGuideEcho() bool {
	return g.GuideEcho != ""
}

// All returns the images in backend order.
func (g GeneratedImages) All() []string {
	out := make([]string, 0, 2+len(g.Extra))
	out = append(out, g.Result)
	if g.GuideEcho != "" {
		out = append(out, g.GuideEcho)
	}
	return append(out, g.Extra...)
}

func newGeneratedImages(images []string) GeneratedImages {
	g := GeneratedImages{Result: images[0]}
	if len(images) > 1 {
		g.GuideEcho = images[1]
	}
	if len(images) > 2 {
		g.Extra = append([]string(nil), images[2:]...)
	}
	return g
}

// StripDataURI returns the payload after the first comma of a data URI, or
// the input unchanged when it has no comma.
func StripDataURI(s string) string {
	s = strings.TrimSpace(s)
	if _, after, found := strings.Cut(s, ","); found {
		return after
	}
	return s
}
